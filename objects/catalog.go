// Package objects is the DNP3 object catalog: a static table mapping
// (group, variation) to the fixed size, compatible qualifiers, and
// encode/decode functions for every supported object variation. The
// catalog is plain data, not a class hierarchy, so the parse hot path
// never dispatches through an interface.
package objects

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/cursor"
)

// GroupVariation identifies one object type, e.g. group 1 variation 2
// (binary input with flags).
type GroupVariation struct {
	Group     byte
	Variation byte
}

// QualifierCode is the one-byte qualifier field following group and
// variation in an object header.
type QualifierCode byte

// Qualifier codes supported by the application parser.
const (
	Qualifier8BitStartStop    QualifierCode = 0x00
	Qualifier16BitStartStop   QualifierCode = 0x01
	QualifierAllObjects       QualifierCode = 0x06
	Qualifier8BitCount        QualifierCode = 0x07
	Qualifier16BitCount       QualifierCode = 0x08
	Qualifier8BitPrefixCount  QualifierCode = 0x17
	Qualifier16BitPrefixCount QualifierCode = 0x28
	Qualifier16BitFreeFormat  QualifierCode = 0x5B
)

var (
	// ErrUnknownGroupVariation is returned when (group, variation) has no
	// catalog entry.
	ErrUnknownGroupVariation = errors.New("objects: unknown group/variation")
	// ErrInvalidQualifierForVariation is returned when a qualifier code is
	// not in the variation's compatible set.
	ErrInvalidQualifierForVariation = errors.New("objects: qualifier not valid for this group/variation")
	// ErrZeroLengthOctetData is returned when an octet-string object's
	// size is zero, e.g. a group 111 variation 0 object whose 0x5B size
	// prefix is 0 (a zero-length octet string has no defined size).
	ErrZeroLengthOctetData = errors.New("objects: zero-length octet string variation")
	// ErrBadAttribute is returned when an object's internal fields fail a
	// validity check (e.g. an out-of-range control code).
	ErrBadAttribute = errors.New("objects: malformed attribute")
)

// ErrInsufficientBytes re-exports cursor's underrun error so callers only
// need to import this package to check for it.
var ErrInsufficientBytes = cursor.ErrInsufficientBytes

// Value is implemented by every typed object variant the catalog can
// produce. GroupVariation lets generic code (logging, the response
// writer) recover the wire identity of a value without a type switch.
type Value interface {
	GroupVariation() GroupVariation
}

// entry is one row of the catalog: how to size, validate, and codec one
// (group, variation).
type entry struct {
	fixedSize  int // 0 means variably sized (octet strings)
	qualifiers map[QualifierCode]bool
	decode     func(cur *cursor.Reader, size int) (Value, error)
	encode     func(v Value, w *cursor.Writer) error
}

var catalog = map[GroupVariation]entry{}

func register(gv GroupVariation, fixedSize int, quals []QualifierCode, dec func(*cursor.Reader, int) (Value, error), enc func(Value, *cursor.Writer) error) {
	qm := make(map[QualifierCode]bool, len(quals))
	for _, q := range quals {
		qm[q] = true
	}
	catalog[gv] = entry{fixedSize: fixedSize, qualifiers: qm, decode: dec, encode: enc}
}

var rangeQualifiers = []QualifierCode{Qualifier8BitStartStop, Qualifier16BitStartStop, QualifierAllObjects, Qualifier8BitCount, Qualifier16BitCount}
var prefixQualifiers = []QualifierCode{Qualifier8BitPrefixCount, Qualifier16BitPrefixCount}
var allIndexQualifiers = append(append([]QualifierCode{}, rangeQualifiers...), prefixQualifiers...)

// FixedSize returns the wire size of one object of gv, or 0 if it is
// variably sized (octet strings, sized by the header's free-format
// length field).
func FixedSize(gv GroupVariation) (int, bool) {
	e, ok := catalog[gv]
	if !ok {
		return 0, false
	}
	return e.fixedSize, true
}

// QualifierAllowed reports whether qualifier q is compatible with gv.
func QualifierAllowed(gv GroupVariation, q QualifierCode) bool {
	e, ok := catalog[gv]
	if !ok {
		return false
	}
	return e.qualifiers[q]
}

// Decode parses one object of gv from cur. size is only meaningful for
// variably sized variations (free-format qualifier 0x5B supplies it per
// object); fixed-size variations ignore it.
func Decode(gv GroupVariation, cur *cursor.Reader, size int) (Value, error) {
	e, ok := catalog[gv]
	if !ok {
		return nil, ErrUnknownGroupVariation
	}
	return e.decode(cur, size)
}

// Encode serializes v into w using its own catalog entry.
func Encode(v Value, w *cursor.Writer) error {
	gv := v.GroupVariation()
	e, ok := catalog[gv]
	if !ok {
		return ErrUnknownGroupVariation
	}
	return e.encode(v, w)
}

func readFlags(cur *cursor.Reader) (dnp3.Flags, error) {
	b, err := cur.Byte()
	return dnp3.Flags(b), err
}

func read48msTimestamp(cur *cursor.Reader) (int64, error) {
	b, err := cur.Take(6)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v), nil
}

func write48msTimestamp(w *cursor.Writer, ms int64) error {
	v := uint64(ms)
	b := make([]byte, 6)
	for i := 0; i < 6; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return w.PutBytes(b)
}

func init() {
	registerBinaryGroup()
	registerDoubleBitGroup()
	registerBinaryOutputGroup()
	registerCounterGroup()
	registerAnalogGroup()
	registerControlGroup()
	registerTimeGroup()
	registerOctetStringGroup()
	registerClassGroup()
}

// --- Group 1/2: Binary Input, Binary Input Event ---

// Binary is a decoded group 1 or group 2 object.
type Binary struct {
	Group     byte
	Variation byte
	Flags     dnp3.Flags
	State     bool
	Timestamp *int64 // non-nil for event variations carrying a timestamp
}

// GroupVariation implements Value.
func (b Binary) GroupVariation() GroupVariation {
	return GroupVariation{Group: b.Group, Variation: b.Variation}
}

func registerBinaryGroup() {
	register(GroupVariation{1, 2}, 1, rangeQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			return Binary{Group: 1, Variation: 2, Flags: f, State: f&dnp3.FlagState != 0}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(Binary)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			return w.PutByte(byte(f))
		})

	register(GroupVariation{2, 1}, 1, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			return Binary{Group: 2, Variation: 1, Flags: f, State: f&dnp3.FlagState != 0}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(Binary)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			return w.PutByte(byte(f))
		})

	register(GroupVariation{2, 2}, 7, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			ms, err := read48msTimestamp(cur)
			if err != nil {
				return nil, err
			}
			return Binary{Group: 2, Variation: 2, Flags: f, State: f&dnp3.FlagState != 0, Timestamp: &ms}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(Binary)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			if err := w.PutByte(byte(f)); err != nil {
				return err
			}
			var ms int64
			if b.Timestamp != nil {
				ms = *b.Timestamp
			}
			return write48msTimestamp(w, ms)
		})

	register(GroupVariation{2, 3}, 3, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			ts, err := cur.Uint16LE()
			if err != nil {
				return nil, err
			}
			t := int64(ts)
			return Binary{Group: 2, Variation: 3, Flags: f, State: f&dnp3.FlagState != 0, Timestamp: &t}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(Binary)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			if err := w.PutByte(byte(f)); err != nil {
				return err
			}
			var ts uint16
			if b.Timestamp != nil {
				ts = uint16(*b.Timestamp)
			}
			return w.PutUint16LE(ts)
		})
}

// --- Group 3/4: Double-bit Binary, Double-bit Binary Event ---

// DoubleBitBinary is a decoded group 3 or group 4 object.
type DoubleBitBinary struct {
	Variation byte
	Flags     dnp3.Flags
	State     dnp3.DoubleBit
	Timestamp *int64
}

// GroupVariation implements Value.
func (d DoubleBitBinary) GroupVariation() GroupVariation {
	group := byte(3)
	if d.Timestamp != nil {
		group = 4
	}
	return GroupVariation{Group: group, Variation: d.Variation}
}

func registerDoubleBitGroup() {
	register(GroupVariation{3, 2}, 1, rangeQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			b, err := cur.Byte()
			if err != nil {
				return nil, err
			}
			return DoubleBitBinary{Variation: 2, Flags: dnp3.Flags(b &^ 0x03), State: dnp3.DoubleBit(b & 0x03)}, nil
		},
		func(v Value, w *cursor.Writer) error {
			d := v.(DoubleBitBinary)
			return w.PutByte(byte(d.Flags&^0x03) | byte(d.State&0x03))
		})

	register(GroupVariation{4, 2}, 7, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			b, err := cur.Byte()
			if err != nil {
				return nil, err
			}
			ms, err := read48msTimestamp(cur)
			if err != nil {
				return nil, err
			}
			return DoubleBitBinary{Variation: 2, Flags: dnp3.Flags(b &^ 0x03), State: dnp3.DoubleBit(b & 0x03), Timestamp: &ms}, nil
		},
		func(v Value, w *cursor.Writer) error {
			d := v.(DoubleBitBinary)
			if err := w.PutByte(byte(d.Flags&^0x03) | byte(d.State&0x03)); err != nil {
				return err
			}
			var ms int64
			if d.Timestamp != nil {
				ms = *d.Timestamp
			}
			return write48msTimestamp(w, ms)
		})

	register(GroupVariation{4, 3}, 3, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			b, err := cur.Byte()
			if err != nil {
				return nil, err
			}
			ts, err := cur.Uint16LE()
			if err != nil {
				return nil, err
			}
			t := int64(ts)
			return DoubleBitBinary{Variation: 3, Flags: dnp3.Flags(b &^ 0x03), State: dnp3.DoubleBit(b & 0x03), Timestamp: &t}, nil
		},
		func(v Value, w *cursor.Writer) error {
			d := v.(DoubleBitBinary)
			if err := w.PutByte(byte(d.Flags&^0x03) | byte(d.State&0x03)); err != nil {
				return err
			}
			var ts uint16
			if d.Timestamp != nil {
				ts = uint16(*d.Timestamp)
			}
			return w.PutUint16LE(ts)
		})
}

// --- Group 10/11: Binary Output Status, Binary Output Event ---

// BinaryOutputStatus is a decoded group 10 or group 11 object.
type BinaryOutputStatus struct {
	Group     byte
	Variation byte
	Flags     dnp3.Flags
	State     bool
	Timestamp *int64
}

// GroupVariation implements Value.
func (b BinaryOutputStatus) GroupVariation() GroupVariation {
	return GroupVariation{Group: b.Group, Variation: b.Variation}
}

func registerBinaryOutputGroup() {
	register(GroupVariation{10, 2}, 1, rangeQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			return BinaryOutputStatus{Group: 10, Variation: 2, Flags: f, State: f&dnp3.FlagState != 0}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(BinaryOutputStatus)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			return w.PutByte(byte(f))
		})

	register(GroupVariation{11, 1}, 1, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			return BinaryOutputStatus{Group: 11, Variation: 1, Flags: f, State: f&dnp3.FlagState != 0}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(BinaryOutputStatus)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			return w.PutByte(byte(f))
		})

	register(GroupVariation{11, 2}, 7, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			ms, err := read48msTimestamp(cur)
			if err != nil {
				return nil, err
			}
			return BinaryOutputStatus{Group: 11, Variation: 2, Flags: f, State: f&dnp3.FlagState != 0, Timestamp: &ms}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(BinaryOutputStatus)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			if err := w.PutByte(byte(f)); err != nil {
				return err
			}
			var ms int64
			if b.Timestamp != nil {
				ms = *b.Timestamp
			}
			return write48msTimestamp(w, ms)
		})

	register(GroupVariation{13, 1}, 1, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			return BinaryOutputStatus{Group: 13, Variation: 1, Flags: f, State: f&dnp3.FlagState != 0}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(BinaryOutputStatus)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			return w.PutByte(byte(f))
		})

	register(GroupVariation{13, 2}, 7, allIndexQualifiers,
		func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			ms, err := read48msTimestamp(cur)
			if err != nil {
				return nil, err
			}
			return BinaryOutputStatus{Group: 13, Variation: 2, Flags: f, State: f&dnp3.FlagState != 0, Timestamp: &ms}, nil
		},
		func(v Value, w *cursor.Writer) error {
			b := v.(BinaryOutputStatus)
			f := b.Flags
			if b.State {
				f |= dnp3.FlagState
			}
			if err := w.PutByte(byte(f)); err != nil {
				return err
			}
			var ms int64
			if b.Timestamp != nil {
				ms = *b.Timestamp
			}
			return write48msTimestamp(w, ms)
		})
}

// --- Group 20/21: Counter, Frozen Counter ---

// Counter is a decoded group 20 (counter) or group 21 (frozen counter)
// 32-bit-with-flag object.
type Counter struct {
	Frozen bool
	Flags  dnp3.Flags
	Value  uint32
}

// GroupVariation implements Value.
func (c Counter) GroupVariation() GroupVariation {
	if c.Frozen {
		return GroupVariation{Group: 21, Variation: 1}
	}
	return GroupVariation{Group: 20, Variation: 1}
}

func registerCounterGroup() {
	decodeCounter := func(frozen bool) func(*cursor.Reader, int) (Value, error) {
		return func(cur *cursor.Reader, _ int) (Value, error) {
			f, err := readFlags(cur)
			if err != nil {
				return nil, err
			}
			raw, err := cur.Uint32LE()
			if err != nil {
				return nil, err
			}
			return Counter{Frozen: frozen, Flags: f, Value: raw}, nil
		}
	}
	encodeCounter := func(v Value, w *cursor.Writer) error {
		c := v.(Counter)
		if err := w.PutByte(byte(c.Flags)); err != nil {
			return err
		}
		return w.PutUint32LE(c.Value)
	}

	register(GroupVariation{20, 1}, 5, rangeQualifiers, decodeCounter(false), encodeCounter)
	register(GroupVariation{21, 1}, 5, rangeQualifiers, decodeCounter(true), encodeCounter)
}

// --- Group 30/40/42/43: Analog Input, Analog Output Status, Analog
// Output Event, Analog Output Command Event ---

// Analog is a decoded group 30 (analog input), group 40 (analog output
// status), group 42 (analog output event), or group 43 (analog output
// command event) object, normalized to a
// float64 regardless of wire representation (16/32-bit integer or
// floating point).
type Analog struct {
	Group     byte // explicit group; 0 derives 30/40 from IsOutput for callers predating this field
	IsOutput  bool
	Variation byte
	Flags     dnp3.Flags
	Value     float64
}

// GroupVariation implements Value.
func (a Analog) GroupVariation() GroupVariation {
	group := a.Group
	if group == 0 {
		group = 30
		if a.IsOutput {
			group = 40
		}
	}
	return GroupVariation{Group: group, Variation: a.Variation}
}

func registerAnalogGroup() {
	registerAnalogVariant := func(group, variation byte, isOutput bool, decode func(*cursor.Reader) (float64, error), encode func(float64, *cursor.Writer) error) {
		quals := rangeQualifiers
		if group == 42 || group == 43 {
			quals = allIndexQualifiers // event groups, written with prefixed qualifiers
		}
		register(GroupVariation{group, variation}, 0, quals,
			func(cur *cursor.Reader, _ int) (Value, error) {
				f, err := readFlags(cur)
				if err != nil {
					return nil, err
				}
				val, err := decode(cur)
				if err != nil {
					return nil, err
				}
				return Analog{Group: group, IsOutput: isOutput, Variation: variation, Flags: f, Value: val}, nil
			},
			func(v Value, w *cursor.Writer) error {
				a := v.(Analog)
				if err := w.PutByte(byte(a.Flags)); err != nil {
					return err
				}
				return encode(a.Value, w)
			})
	}

	decodeInt32 := func(cur *cursor.Reader) (float64, error) {
		v, err := cur.Uint32LE()
		return float64(int32(v)), err
	}
	encodeInt32 := func(v float64, w *cursor.Writer) error { return w.PutUint32LE(uint32(int32(v))) }

	decodeInt16 := func(cur *cursor.Reader) (float64, error) {
		v, err := cur.Uint16LE()
		return float64(int16(v)), err
	}
	encodeInt16 := func(v float64, w *cursor.Writer) error { return w.PutUint16LE(uint16(int16(v))) }

	decodeFloat32 := func(cur *cursor.Reader) (float64, error) {
		v, err := cur.Uint32LE()
		return float64(math.Float32frombits(v)), err
	}
	encodeFloat32 := func(v float64, w *cursor.Writer) error { return w.PutUint32LE(math.Float32bits(float32(v))) }

	decodeFloat64 := func(cur *cursor.Reader) (float64, error) {
		b, err := cur.Take(8)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}
	encodeFloat64 := func(v float64, w *cursor.Writer) error {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return w.PutBytes(b)
	}

	registerAnalogVariant(30, 1, false, decodeInt32, encodeInt32)
	registerAnalogVariant(30, 2, false, decodeInt16, encodeInt16)
	registerAnalogVariant(30, 5, false, decodeFloat32, encodeFloat32)
	registerAnalogVariant(30, 6, false, decodeFloat64, encodeFloat64)
	registerAnalogVariant(40, 1, true, decodeInt32, encodeInt32)
	registerAnalogVariant(40, 2, true, decodeInt16, encodeInt16)
	registerAnalogVariant(40, 3, true, decodeFloat32, encodeFloat32)
	registerAnalogVariant(40, 4, true, decodeFloat64, encodeFloat64)
	registerAnalogVariant(42, 1, true, decodeInt32, encodeInt32)
	registerAnalogVariant(42, 2, true, decodeInt16, encodeInt16)
	registerAnalogVariant(42, 5, true, decodeFloat32, encodeFloat32)
	registerAnalogVariant(42, 6, true, decodeFloat64, encodeFloat64)
	registerAnalogVariant(43, 1, true, decodeInt32, encodeInt32)
	registerAnalogVariant(43, 2, true, decodeInt16, encodeInt16)
	registerAnalogVariant(43, 5, true, decodeFloat32, encodeFloat32)
	registerAnalogVariant(43, 6, true, decodeFloat64, encodeFloat64)

	catalog[GroupVariation{30, 1}] = entryWithFixedSize(catalog[GroupVariation{30, 1}], 5)
	catalog[GroupVariation{30, 2}] = entryWithFixedSize(catalog[GroupVariation{30, 2}], 3)
	catalog[GroupVariation{30, 5}] = entryWithFixedSize(catalog[GroupVariation{30, 5}], 5)
	catalog[GroupVariation{30, 6}] = entryWithFixedSize(catalog[GroupVariation{30, 6}], 9)
	catalog[GroupVariation{40, 1}] = entryWithFixedSize(catalog[GroupVariation{40, 1}], 5)
	catalog[GroupVariation{40, 2}] = entryWithFixedSize(catalog[GroupVariation{40, 2}], 3)
	catalog[GroupVariation{40, 3}] = entryWithFixedSize(catalog[GroupVariation{40, 3}], 5)
	catalog[GroupVariation{40, 4}] = entryWithFixedSize(catalog[GroupVariation{40, 4}], 9)
	catalog[GroupVariation{42, 1}] = entryWithFixedSize(catalog[GroupVariation{42, 1}], 5)
	catalog[GroupVariation{42, 2}] = entryWithFixedSize(catalog[GroupVariation{42, 2}], 3)
	catalog[GroupVariation{42, 5}] = entryWithFixedSize(catalog[GroupVariation{42, 5}], 5)
	catalog[GroupVariation{42, 6}] = entryWithFixedSize(catalog[GroupVariation{42, 6}], 9)
	catalog[GroupVariation{43, 1}] = entryWithFixedSize(catalog[GroupVariation{43, 1}], 5)
	catalog[GroupVariation{43, 2}] = entryWithFixedSize(catalog[GroupVariation{43, 2}], 3)
	catalog[GroupVariation{43, 5}] = entryWithFixedSize(catalog[GroupVariation{43, 5}], 5)
	catalog[GroupVariation{43, 6}] = entryWithFixedSize(catalog[GroupVariation{43, 6}], 9)
}

func entryWithFixedSize(e entry, size int) entry {
	e.fixedSize = size
	return e
}

// --- Group 12: Control Relay Output Block (CROB) ---

// ControlCode is the CROB's operation code (group 12 variation 1, byte
// 0, bits 0-3 plus the clear/queue/trip-close bits).
type ControlCode byte

// Control code values (IEEE-1815 Table 4-9, subset in common use).
const (
	ControlNul      ControlCode = 0
	ControlPulseOn  ControlCode = 1
	ControlPulseOff ControlCode = 2
	ControlLatchOn  ControlCode = 3
	ControlLatchOff ControlCode = 4
	ControlTrip     ControlCode = 0x81
	ControlClose    ControlCode = 0x41
)

// ControlRelayOutputBlock is a decoded group 12 variation 1 object.
type ControlRelayOutputBlock struct {
	Code    ControlCode
	Count   byte
	OnTime  uint32
	OffTime uint32
	Status  dnp3.CommandStatus
}

// GroupVariation implements Value.
func (ControlRelayOutputBlock) GroupVariation() GroupVariation {
	return GroupVariation{Group: 12, Variation: 1}
}

func registerControlGroup() {
	register(GroupVariation{12, 1}, 11, append(append([]QualifierCode{}, prefixQualifiers...), rangeQualifiers...),
		func(cur *cursor.Reader, _ int) (Value, error) {
			code, err := cur.Byte()
			if err != nil {
				return nil, err
			}
			count, err := cur.Byte()
			if err != nil {
				return nil, err
			}
			onTime, err := cur.Uint32LE()
			if err != nil {
				return nil, err
			}
			offTime, err := cur.Uint32LE()
			if err != nil {
				return nil, err
			}
			status, err := cur.Byte()
			if err != nil {
				return nil, err
			}
			return ControlRelayOutputBlock{Code: ControlCode(code), Count: count, OnTime: onTime, OffTime: offTime, Status: dnp3.CommandStatus(status)}, nil
		},
		func(v Value, w *cursor.Writer) error {
			c := v.(ControlRelayOutputBlock)
			if err := w.PutByte(byte(c.Code)); err != nil {
				return err
			}
			if err := w.PutByte(c.Count); err != nil {
				return err
			}
			if err := w.PutUint32LE(c.OnTime); err != nil {
				return err
			}
			if err := w.PutUint32LE(c.OffTime); err != nil {
				return err
			}
			return w.PutByte(byte(c.Status))
		})
}

// --- Group 50/52: Time and Date, Time Delay ---

// AbsoluteTime is a decoded group 50 variation 1 or variation 3 object:
// a 48-bit millisecond timestamp used for clock-sync writes and LAN time
// sync (variation 3 carries the RECORD_CURRENT_TIME-paired rewrite).
type AbsoluteTime struct {
	Variation        byte
	MillisSinceEpoch int64
}

// GroupVariation implements Value.
func (t AbsoluteTime) GroupVariation() GroupVariation {
	return GroupVariation{Group: 50, Variation: t.Variation}
}

// FineTimeDelay is a decoded group 52 variation 2 object: a 16-bit
// millisecond delay returned from DELAY_MEASURE.
type FineTimeDelay struct {
	Milliseconds uint16
}

// GroupVariation implements Value.
func (FineTimeDelay) GroupVariation() GroupVariation {
	return GroupVariation{Group: 52, Variation: 2}
}

func registerTimeGroup() {
	decodeTime := func(variation byte) func(*cursor.Reader, int) (Value, error) {
		return func(cur *cursor.Reader, _ int) (Value, error) {
			ms, err := read48msTimestamp(cur)
			if err != nil {
				return nil, err
			}
			return AbsoluteTime{Variation: variation, MillisSinceEpoch: ms}, nil
		}
	}
	encodeTime := func(v Value, w *cursor.Writer) error {
		t := v.(AbsoluteTime)
		return write48msTimestamp(w, t.MillisSinceEpoch)
	}
	register(GroupVariation{50, 1}, 6, []QualifierCode{Qualifier8BitStartStop, Qualifier16BitStartStop, Qualifier8BitCount, Qualifier16BitCount}, decodeTime(1), encodeTime)
	register(GroupVariation{50, 3}, 6, []QualifierCode{Qualifier8BitStartStop, Qualifier16BitStartStop, Qualifier8BitCount, Qualifier16BitCount}, decodeTime(3), encodeTime)

	register(GroupVariation{52, 2}, 2, []QualifierCode{Qualifier8BitCount, Qualifier16BitCount},
		func(cur *cursor.Reader, _ int) (Value, error) {
			ms, err := cur.Uint16LE()
			if err != nil {
				return nil, err
			}
			return FineTimeDelay{Milliseconds: ms}, nil
		},
		func(v Value, w *cursor.Writer) error {
			return w.PutUint16LE(v.(FineTimeDelay).Milliseconds)
		})
}

// --- Group 60: Class Data (integrity/event poll selectors) ---

// ClassPoll identifies one of group 60's four "no data" variations used
// to request class 0 (static) or class 1/2/3 (event) data; it carries no
// payload, only a qualifier-0x06 header.
type ClassPoll struct {
	Variation byte // 1=class0, 2=class1, 3=class2, 4=class3
}

// GroupVariation implements Value.
func (c ClassPoll) GroupVariation() GroupVariation {
	return GroupVariation{Group: 60, Variation: c.Variation}
}

func registerClassGroup() {
	for v := byte(1); v <= 4; v++ {
		variation := v
		register(GroupVariation{60, variation}, 0, []QualifierCode{QualifierAllObjects},
			func(cur *cursor.Reader, _ int) (Value, error) {
				return ClassPoll{Variation: variation}, nil
			},
			func(v Value, w *cursor.Writer) error { return nil })
	}
}

// --- Group 110/111/113: Octet String, Octet String Event, Virtual
// Terminal Event Data ---

// OctetString is a decoded group 110, 111, or 113 object; its size is
// carried out-of-band by the object header's free-format length field
// rather than by variation, so the catalog entry's fixedSize is 0.
type OctetString struct {
	Group   byte // explicit group; 0 derives 110/111 from IsEvent for callers predating this field
	IsEvent bool
	Data    []byte
}

// GroupVariation implements Value. For group 110 the variation is the
// string length; groups 111 and 113 report variation 0, the only
// variation the catalog registers for them (their size travels in the
// 0x5B qualifier's per-object size prefix).
func (o OctetString) GroupVariation() GroupVariation {
	group := o.Group
	if group == 0 {
		group = 110
		if o.IsEvent {
			group = 111
		}
	}
	variation := byte(len(o.Data))
	if group != 110 {
		variation = 0
	}
	return GroupVariation{Group: group, Variation: variation}
}

func registerOctetStringGroup() {
	decode := func(isEvent bool) func(*cursor.Reader, int) (Value, error) {
		return func(cur *cursor.Reader, size int) (Value, error) {
			if size <= 0 {
				return nil, ErrZeroLengthOctetData
			}
			b, err := cur.Take(size)
			if err != nil {
				return nil, err
			}
			data := append([]byte{}, b...)
			return OctetString{IsEvent: isEvent, Data: data}, nil
		}
	}
	decodeVirtualTerminal := func(cur *cursor.Reader, size int) (Value, error) {
		if size <= 0 {
			return nil, ErrZeroLengthOctetData
		}
		b, err := cur.Take(size)
		if err != nil {
			return nil, err
		}
		data := append([]byte{}, b...)
		return OctetString{Group: 113, IsEvent: true, Data: data}, nil
	}
	encode := func(v Value, w *cursor.Writer) error {
		return w.PutBytes(v.(OctetString).Data)
	}
	// Decode does not special-case variation 0. Group 110 variations
	// 1-255 each decode exactly as many bytes as the variation number;
	// groups 111 and 113 are registered only as variation 0 and take
	// their size from the 0x5B qualifier's per-object size prefix. A size
	// of 0 yields ErrZeroLengthOctetData.
	for v := 1; v <= 255; v++ {
		n := v
		register(GroupVariation{110, byte(v)}, v, allIndexQualifiers,
			func(cur *cursor.Reader, _ int) (Value, error) { return decode(false)(cur, n) }, encode)
	}
	register(GroupVariation{111, 0}, 0, []QualifierCode{Qualifier16BitFreeFormat}, decode(true), encode)
	register(GroupVariation{113, 0}, 0, []QualifierCode{Qualifier16BitFreeFormat}, decodeVirtualTerminal, encode)
}
