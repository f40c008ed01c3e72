// Package apdu implements the DNP3 application layer: fragment header
// parsing (application control byte, function code, IIN), and the
// object-header iterator built on the objects catalog.
package apdu

import (
	"errors"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/rob-gra/go-dnp3/objects"
)

// Application control byte bit layout.
const (
	ctrlFir = 1 << 7
	ctrlFin = 1 << 6
	ctrlCon = 1 << 5
	ctrlUns = 1 << 4
	ctrlSeqMask = 0x0F
)

// IIN1 is the first octet of the Internal Indications field (grounded on
// the gopacket DNP3 layer's IINCodes map).
type IIN1 byte

// IIN1 bits.
const (
	IIN1BroadcastRx    IIN1 = 1 << 0
	IIN1Class1Events   IIN1 = 1 << 1
	IIN1Class2Events   IIN1 = 1 << 2
	IIN1Class3Events   IIN1 = 1 << 3
	IIN1NeedTime       IIN1 = 1 << 4
	IIN1LocalControl   IIN1 = 1 << 5
	IIN1DeviceTrouble  IIN1 = 1 << 6
	IIN1DeviceRestart  IIN1 = 1 << 7
)

// IIN2 is the second octet of the Internal Indications field.
type IIN2 byte

// IIN2 bits.
const (
	IIN2NoFuncCodeSupport IIN2 = 1 << 0
	IIN2ObjectUnknown     IIN2 = 1 << 1
	IIN2ParameterError    IIN2 = 1 << 2
	IIN2EventBufferOverflow IIN2 = 1 << 3
	IIN2AlreadyExecuting  IIN2 = 1 << 4
	IIN2ConfigCorrupt     IIN2 = 1 << 5
)

// IIN is the full 16-bit Internal Indications field.
type IIN struct {
	IIN1 IIN1
	IIN2 IIN2
}

var (
	// ErrInsufficientBytes re-exports cursor's underrun sentinel.
	ErrInsufficientBytes = cursor.ErrInsufficientBytes
	// ErrUnknownGroupVariation re-exports the objects catalog sentinel.
	ErrUnknownGroupVariation = objects.ErrUnknownGroupVariation
	// ErrInvalidQualifierForVariation re-exports the objects catalog
	// sentinel.
	ErrInvalidQualifierForVariation = objects.ErrInvalidQualifierForVariation
	// ErrZeroLengthOctetData re-exports the objects catalog sentinel.
	ErrZeroLengthOctetData = objects.ErrZeroLengthOctetData
	// ErrBadAttribute re-exports the objects catalog sentinel.
	ErrBadAttribute = objects.ErrBadAttribute
	// ErrTruncatedHeader is returned when fewer than 2 bytes remain for
	// the application control byte and function code.
	ErrTruncatedHeader = errors.New("apdu: truncated application header")
)

// Header is the decoded application control byte plus function code.
type Header struct {
	Fir      bool
	Fin      bool
	Con      bool
	Uns      bool
	Seq      byte // 4-bit application sequence number
	Function dnp3.FunctionCode
	IIN      IIN // only meaningful on responses (FuncResponse/FuncUnsolicitedResponse)
}

// IsResponse reports whether Function marks this fragment as carrying an
// IIN field.
func (h Header) IsResponse() bool {
	return h.Function == dnp3.FuncResponse || h.Function == dnp3.FuncUnsolicitedResponse
}

func (h Header) controlByte() byte {
	c := h.Seq & ctrlSeqMask
	if h.Fir {
		c |= ctrlFir
	}
	if h.Fin {
		c |= ctrlFin
	}
	if h.Con {
		c |= ctrlCon
	}
	if h.Uns {
		c |= ctrlUns
	}
	return c
}

// DecodeHeader parses the application control byte, function code, and
// (for responses) the 2-byte IIN field from the front of buf, returning
// the header and the number of bytes consumed.
func DecodeHeader(buf []byte) (Header, int, error) {
	var h Header
	if len(buf) < 2 {
		return h, 0, ErrTruncatedHeader
	}
	ctrl := buf[0]
	h.Fir = ctrl&ctrlFir != 0
	h.Fin = ctrl&ctrlFin != 0
	h.Con = ctrl&ctrlCon != 0
	h.Uns = ctrl&ctrlUns != 0
	h.Seq = ctrl & ctrlSeqMask
	h.Function = dnp3.FunctionCode(buf[1])

	consumed := 2
	if h.IsResponse() {
		if len(buf) < 4 {
			return Header{}, 0, ErrTruncatedHeader
		}
		h.IIN = IIN{IIN1: IIN1(buf[2]), IIN2: IIN2(buf[3])}
		consumed = 4
	}
	return h, consumed, nil
}

// EncodeHeader serializes h (control byte + function code, plus IIN for
// responses) into a new byte slice.
func EncodeHeader(h Header) []byte {
	out := []byte{h.controlByte(), byte(h.Function)}
	if h.IsResponse() {
		out = append(out, byte(h.IIN.IIN1), byte(h.IIN.IIN2))
	}
	return out
}

// ObjectHeader is one decoded (group, variation, qualifier, range/count)
// header together with the lazily-iterated objects it introduces.
type ObjectHeader struct {
	Group     byte
	Variation byte
	Qualifier objects.QualifierCode
	Start     uint32 // meaningful for range qualifiers (0x00/0x01)
	Stop      uint32
	Count     uint32 // meaningful for count/prefix qualifiers
	FreeSize  uint32 // meaningful for qualifier 0x5B only
}

// ObjectIterator yields each object under one ObjectHeader in sequence.
// It is single-pass and bound to the underlying buffer's lifetime:
// callers that need to retain a decoded Value past the iterator's
// lifetime must copy it.
type ObjectIterator struct {
	hdr       ObjectHeader
	cur       *cursor.Reader
	gv        objects.GroupVariation
	remaining int
	nextIndex uint32
	prefixed  bool
	err       error
}

// Index returns the point index of the most recently yielded object when
// the header used a ranged or prefixed qualifier (meaningful once Next
// has returned ok).
func (it *ObjectIterator) Index() uint32 { return it.nextIndex - 1 }

// Err returns the first error encountered, if any.
func (it *ObjectIterator) Err() error { return it.err }

// Next advances the iterator and returns the next object's index and
// value, or ok=false when the header is exhausted or an error occurred
// (distinguishable via Err).
func (it *ObjectIterator) Next() (index uint32, value objects.Value, ok bool) {
	if it.err != nil || it.remaining <= 0 {
		return 0, nil, false
	}

	idx := it.nextIndex
	if it.prefixed {
		var prefix uint32
		var err error
		switch it.hdr.Qualifier {
		case objects.Qualifier8BitPrefixCount:
			b, e := it.cur.Byte()
			prefix, err = uint32(b), e
		case objects.Qualifier16BitPrefixCount:
			b, e := it.cur.Uint16LE()
			prefix, err = uint32(b), e
		}
		if err != nil {
			it.err = err
			return 0, nil, false
		}
		idx = prefix
	}

	size := 0
	if it.hdr.Qualifier == objects.Qualifier16BitFreeFormat {
		b, err := it.cur.Uint16LE()
		if err != nil {
			it.err = err
			return 0, nil, false
		}
		size = int(b)
	}

	val, err := objects.Decode(it.gv, it.cur, size)
	if err != nil {
		it.err = err
		return 0, nil, false
	}

	it.remaining--
	it.nextIndex = idx + 1
	return idx, val, true
}

// NewObjectHeaderIterator reads one object header from cur (group,
// variation, qualifier, and the qualifier-specific range/count fields)
// and returns an ObjectIterator over the objects it introduces.
func NewObjectHeaderIterator(cur *cursor.Reader) (ObjectHeader, *ObjectIterator, error) {
	group, err := cur.Byte()
	if err != nil {
		return ObjectHeader{}, nil, err
	}
	variation, err := cur.Byte()
	if err != nil {
		return ObjectHeader{}, nil, err
	}
	qualByte, err := cur.Byte()
	if err != nil {
		return ObjectHeader{}, nil, err
	}
	qual := objects.QualifierCode(qualByte)
	gv := objects.GroupVariation{Group: group, Variation: variation}

	if !objects.QualifierAllowed(gv, qual) {
		return ObjectHeader{}, nil, ErrInvalidQualifierForVariation
	}

	hdr := ObjectHeader{Group: group, Variation: variation, Qualifier: qual}
	it := &ObjectIterator{hdr: hdr, cur: cur, gv: gv}

	switch qual {
	case objects.Qualifier8BitStartStop:
		start, e1 := cur.Byte()
		stop, e2 := cur.Byte()
		if e1 != nil {
			return ObjectHeader{}, nil, e1
		}
		if e2 != nil {
			return ObjectHeader{}, nil, e2
		}
		hdr.Start, hdr.Stop = uint32(start), uint32(stop)
		it.nextIndex = hdr.Start
		it.remaining = int(hdr.Stop) - int(hdr.Start) + 1

	case objects.Qualifier16BitStartStop:
		start, e1 := cur.Uint16LE()
		stop, e2 := cur.Uint16LE()
		if e1 != nil {
			return ObjectHeader{}, nil, e1
		}
		if e2 != nil {
			return ObjectHeader{}, nil, e2
		}
		hdr.Start, hdr.Stop = uint32(start), uint32(stop)
		it.nextIndex = hdr.Start
		it.remaining = int(hdr.Stop) - int(hdr.Start) + 1

	case objects.QualifierAllObjects:
		// No object data follows a qualifier-0x06 header: it is a
		// selector ("all instances of this group/variation"), used by
		// class and integrity polls. The iterator yields nothing; the
		// header itself is the caller's signal.
		it.remaining = 0

	case objects.Qualifier8BitCount:
		count, e := cur.Byte()
		if e != nil {
			return ObjectHeader{}, nil, e
		}
		hdr.Count = uint32(count)
		it.remaining = int(count)

	case objects.Qualifier16BitCount:
		count, e := cur.Uint16LE()
		if e != nil {
			return ObjectHeader{}, nil, e
		}
		hdr.Count = uint32(count)
		it.remaining = int(count)

	case objects.Qualifier8BitPrefixCount:
		count, e := cur.Byte()
		if e != nil {
			return ObjectHeader{}, nil, e
		}
		hdr.Count = uint32(count)
		it.remaining = int(count)
		it.prefixed = true

	case objects.Qualifier16BitPrefixCount:
		count, e := cur.Uint16LE()
		if e != nil {
			return ObjectHeader{}, nil, e
		}
		hdr.Count = uint32(count)
		it.remaining = int(count)
		it.prefixed = true

	case objects.Qualifier16BitFreeFormat:
		count, e := cur.Uint16LE()
		if e != nil {
			return ObjectHeader{}, nil, e
		}
		hdr.Count = uint32(count)
		it.remaining = int(count)

	default:
		return ObjectHeader{}, nil, ErrInvalidQualifierForVariation
	}

	return hdr, it, nil
}

// RecomputeIIN folds fresh status flags into an IIN value, used by the
// response writer at send time: bits already set in base are kept and
// each true flag adds its bit. ALWAYS_ON has no defined bit in this
// IIN1/IIN2 layout and has no parameter here.
func RecomputeIIN(base IIN, eventOverflow bool, class1, class2, class3 bool, needTime, restart, localControl, deviceTrouble, configCorrupt bool) IIN {
	out := base
	if class1 {
		out.IIN1 |= IIN1Class1Events
	}
	if class2 {
		out.IIN1 |= IIN1Class2Events
	}
	if class3 {
		out.IIN1 |= IIN1Class3Events
	}
	if needTime {
		out.IIN1 |= IIN1NeedTime
	}
	if restart {
		out.IIN1 |= IIN1DeviceRestart
	}
	if localControl {
		out.IIN1 |= IIN1LocalControl
	}
	if deviceTrouble {
		out.IIN1 |= IIN1DeviceTrouble
	}
	if eventOverflow {
		out.IIN2 |= IIN2EventBufferOverflow
	}
	if configCorrupt {
		out.IIN2 |= IIN2ConfigCorrupt
	}
	return out
}
