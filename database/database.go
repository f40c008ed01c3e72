// Package database implements the outstation's measurement point
// database: typed point maps, deadbands, transaction-scoped updates, and
// the event-detection rule that feeds the event buffer.
package database

import (
	"errors"
	"math"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/eventbuf"
	"github.com/rob-gra/go-dnp3/objects"
)

var (
	// ErrAlreadyExists is returned by Add when (type, index) is already
	// present.
	ErrAlreadyExists = errors.New("database: point already exists")
	// ErrNotFound is returned by Update/Remove/Get for an unknown point.
	ErrNotFound = errors.New("database: point not found")
)

// EventMode selects how Update decides whether to generate an event.
type EventMode int

// Event modes.
const (
	EventDetect EventMode = iota // generate iff the detection rule fires
	EventForce                   // always generate
	EventSuppress                // never generate
)

// UpdateOptions controls one Update call's side effects.
type UpdateOptions struct {
	UpdateStatic    bool
	EventMode       EventMode
	AssignClassOnEvent *dnp3.EventClass // nil: keep the point's configured class
}

// PointConfig is supplied to Add to configure a point's static/event
// variations, event class, and (for Analog/Counter) deadband.
type PointConfig struct {
	Class           dnp3.EventClass
	StaticVariation byte
	EventVariation  byte
	Deadband        float64 // analog/counter only
}

// point is the database's internal record for one (type, index).
type point struct {
	cfg   PointConfig
	value objects.Value
	flags dnp3.Flags
	ts    *int64
}

// Database owns the live point set for one outstation session. It is
// exclusively accessed through Transaction: no mutex guards it, since
// allowing concurrent partial writes would break the
// one-event-scan-per-transaction invariant.
type Database struct {
	points map[dnp3.PointAddress]*point
	events *eventbuf.Buffer
}

// New creates an empty Database backed by the given event buffer.
func New(events *eventbuf.Buffer) *Database {
	return &Database{points: make(map[dnp3.PointAddress]*point), events: events}
}

// Snapshot is a read-only view over the database's current point values,
// handed to the response writer so it never touches live transaction
// state mid-build.
type Snapshot struct {
	points map[dnp3.PointAddress]point
}

// Get returns the static value and flags of (t, index) in the snapshot.
func (s Snapshot) Get(t dnp3.PointType, index uint16) (objects.Value, dnp3.Flags, bool) {
	p, ok := s.points[dnp3.PointAddress{Type: t, Index: index}]
	if !ok {
		return nil, 0, false
	}
	return p.value, p.flags, true
}

// Config returns the configured PointConfig for (t, index).
func (s Snapshot) Config(t dnp3.PointType, index uint16) (PointConfig, bool) {
	p, ok := s.points[dnp3.PointAddress{Type: t, Index: index}]
	if !ok {
		return PointConfig{}, false
	}
	return p.cfg, true
}

// Indices returns every configured index for point type t, sorted
// ascending, for the response writer's contiguous-range detection.
func (s Snapshot) Indices(t dnp3.PointType) []uint16 {
	var out []uint16
	for addr := range s.points {
		if addr.Type == t {
			out = append(out, addr.Index)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Snapshot captures the database's current state for response building.
func (d *Database) Snapshot() Snapshot {
	points := make(map[dnp3.PointAddress]point, len(d.points))
	for addr, p := range d.points {
		points[addr] = *p
	}
	return Snapshot{points: points}
}

func defaultValue(t dnp3.PointType) objects.Value {
	switch t {
	case dnp3.Binary:
		return objects.Binary{Group: 1, Variation: 2, State: false}
	case dnp3.DoubleBitBinary:
		return objects.DoubleBitBinary{Variation: 2, State: dnp3.DoubleBitIndeterminate}
	case dnp3.BinaryOutputStatus:
		return objects.BinaryOutputStatus{Group: 10, Variation: 2, State: false}
	case dnp3.Counter:
		return objects.Counter{Value: 0}
	case dnp3.FrozenCounter:
		return objects.Counter{Frozen: true, Value: 0}
	case dnp3.Analog:
		return objects.Analog{Variation: 5, Value: 0}
	case dnp3.AnalogOutputStatus:
		return objects.Analog{IsOutput: true, Variation: 3, Value: 0}
	case dnp3.OctetString:
		return objects.OctetString{Data: []byte{0x00}}
	default:
		return nil
	}
}

// Transaction is the scoped mutation handle: all Add/Update/Remove/Get
// calls happen inside one, and exactly one event-scan pass runs when
// it ends.
type Transaction struct {
	db             *Database
	touchedUpdates []pendingUpdate
}

// Transact runs fn with a Transaction over d, then performs the
// post-transaction event scan exactly once.
func (d *Database) Transact(fn func(tx *Transaction)) {
	tx := &Transaction{db: d}
	fn(tx)
	tx.scanEvents()
}

// Add inserts a new point with the default value for its type and
// DefaultFlags (RESTART asserted), failing if already present.
func (tx *Transaction) Add(t dnp3.PointType, index uint16, cfg PointConfig) error {
	addr := dnp3.PointAddress{Type: t, Index: index}
	if _, exists := tx.db.points[addr]; exists {
		return ErrAlreadyExists
	}
	tx.db.points[addr] = &point{cfg: cfg, value: defaultValue(t), flags: dnp3.DefaultFlags}
	return nil
}

// Remove deletes a point. Events already queued for it remain in the
// event buffer.
func (tx *Transaction) Remove(t dnp3.PointType, index uint16) error {
	addr := dnp3.PointAddress{Type: t, Index: index}
	if _, exists := tx.db.points[addr]; !exists {
		return ErrNotFound
	}
	delete(tx.db.points, addr)
	return nil
}

// Get returns the current static value and flags for (t, index).
func (tx *Transaction) Get(t dnp3.PointType, index uint16) (objects.Value, dnp3.Flags, error) {
	p, ok := tx.db.points[dnp3.PointAddress{Type: t, Index: index}]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return p.value, p.flags, nil
}

// pendingUpdate records one Update call to be resolved into an event
// decision during the transaction's single post-scan pass.
type pendingUpdate struct {
	addr    dnp3.PointAddress
	value   objects.Value
	flags   dnp3.Flags
	ts      *int64
	opts    UpdateOptions
	oldValue objects.Value
	oldFlags dnp3.Flags
}

// Update applies a value/flags/timestamp change under the current
// transaction. The event-detection decision is deferred to the
// transaction's single end-of-scope scan; the flag/value comparison
// uses the point's value as it stood when this Update was called.
func (tx *Transaction) Update(t dnp3.PointType, index uint16, value objects.Value, flags dnp3.Flags, ts *int64, opts UpdateOptions) error {
	addr := dnp3.PointAddress{Type: t, Index: index}
	p, ok := tx.db.points[addr]
	if !ok {
		return ErrNotFound
	}

	pu := pendingUpdate{addr: addr, value: value, flags: flags, ts: ts, opts: opts, oldValue: p.value, oldFlags: p.flags}
	tx.touchedUpdates = append(tx.touchedUpdates, pu)

	if opts.UpdateStatic {
		p.value = value
		p.flags = flags
		p.ts = ts
	}
	return nil
}

func (tx *Transaction) scanEvents() {
	for _, pu := range tx.touchedUpdates {
		p := tx.db.points[pu.addr]
		if p == nil {
			continue
		}
		if p.cfg.Class == dnp3.ClassNone {
			continue
		}
		if pu.opts.EventMode == EventSuppress {
			continue
		}
		if pu.opts.EventMode == EventDetect && !eventFires(pu.addr.Type, pu.oldValue, pu.value, pu.oldFlags, pu.flags, p.cfg.Deadband) {
			continue
		}

		class := p.cfg.Class
		if pu.opts.AssignClassOnEvent != nil {
			class = *pu.opts.AssignClassOnEvent
		}
		tx.db.events.Insert(pu.addr.Type, pu.addr.Index, pu.value, pu.flags, class, p.cfg.EventVariation)
	}
}

func eventFires(t dnp3.PointType, oldValue, newValue objects.Value, oldFlags, newFlags dnp3.Flags, deadband float64) bool {
	if oldFlags != newFlags {
		return true
	}
	switch t {
	case dnp3.Analog:
		return math.Abs(analogFloat(newValue)-analogFloat(oldValue)) > deadband
	case dnp3.Counter, dnp3.FrozenCounter:
		return counterDelta(oldValue, newValue) > uint32(deadband)
	case dnp3.OctetString:
		return !octetStringsEqual(oldValue, newValue)
	default:
		return oldValue != newValue
	}
}

func analogFloat(v objects.Value) float64 {
	if a, ok := v.(objects.Analog); ok {
		return a.Value
	}
	return 0
}

func counterDelta(oldValue, newValue objects.Value) uint32 {
	oldC, _ := oldValue.(objects.Counter)
	newC, _ := newValue.(objects.Counter)
	return newC.Value - oldC.Value // unsigned wraparound is intentional
}

func octetStringsEqual(a, b objects.Value) bool {
	oa, ok1 := a.(objects.OctetString)
	ob, ok2 := b.(objects.OctetString)
	if !ok1 || !ok2 || len(oa.Data) != len(ob.Data) {
		return false
	}
	for i := range oa.Data {
		if oa.Data[i] != ob.Data[i] {
			return false
		}
	}
	return true
}
