// Package eventbuf implements the outstation's bounded, per-class event
// buffer: a flat ring of event records with per-class capacity, oldest-
// of-any-class eviction on overflow, and a sent/confirm/timeout lifecycle
// so a response that is never confirmed gets its events resent.
package eventbuf

import (
	"errors"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/objects"
)

// ErrCapacityZero is returned by NewBuffer when a configured capacity is
// non-positive.
var ErrCapacityZero = errors.New("eventbuf: class and total capacity must be positive")

// Record is one buffered event: the point it was generated from, its
// decoded value, its assigned class/variation, and the monotonic
// insertion sequence used to preserve event ordering.
type Record struct {
	Seq       uint64
	Type      dnp3.PointType
	Index     uint16
	Value     objects.Value
	Flags     dnp3.Flags
	Class     dnp3.EventClass
	Variation byte
	sent      bool
}

// Sent reports whether this record has been included in a response
// awaiting confirmation.
func (r *Record) Sent() bool { return r.sent }

// Capacity configures the per-class and total limits a Buffer enforces.
type Capacity struct {
	Class1 int
	Class2 int
	Class3 int
	Total  int
}

// Buffer is a bounded, insertion-ordered store of Records, grounded on
// gocanopen's internal/fifo ring-buffer (readPos/writePos over a flat
// array) but specialized to event records and per-class bookkeeping
// rather than raw bytes.
type Buffer struct {
	cap       Capacity
	ring      []*Record
	head      int // oldest occupied slot
	tail      int // next free slot
	count     int // total occupied
	classCnt  map[dnp3.EventClass]int
	nextSeq   uint64
	overflow  bool
}

// NewBuffer creates a Buffer. All capacities must be positive; cap.Total
// need not equal the sum of the per-class capacities (classes share the
// ring up to Total).
func NewBuffer(cap Capacity) (*Buffer, error) {
	if cap.Class1 <= 0 || cap.Class2 <= 0 || cap.Class3 <= 0 || cap.Total <= 0 {
		return nil, ErrCapacityZero
	}
	return &Buffer{
		cap:      cap,
		ring:     make([]*Record, cap.Total),
		classCnt: make(map[dnp3.EventClass]int, 3),
	}, nil
}

func (b *Buffer) classCapacity(c dnp3.EventClass) int {
	switch c {
	case dnp3.Class1:
		return b.cap.Class1
	case dnp3.Class2:
		return b.cap.Class2
	case dnp3.Class3:
		return b.cap.Class3
	default:
		return 0
	}
}

// Overflowed reports whether an insertion has evicted an unread event
// since the last ClearOverflow call (drives outstation IIN2.3,
// EVENT_BUFFER_OVERFLOW).
func (b *Buffer) Overflowed() bool { return b.overflow }

// ClearOverflow resets the overflow latch, called after a response
// carrying IIN2.3 has been sent.
func (b *Buffer) ClearOverflow() { b.overflow = false }

// Len returns the number of records currently buffered (sent or not).
func (b *Buffer) Len() int { return b.count }

// Insert adds a new event of class c. If class c is already at its
// configured capacity, or the buffer is at its total capacity, the
// oldest record of any class is evicted first and Overflowed becomes
// true.
func (b *Buffer) Insert(typ dnp3.PointType, index uint16, value objects.Value, flags dnp3.Flags, class dnp3.EventClass, variation byte) *Record {
	if b.classCnt[class] >= b.classCapacity(class) || b.count >= b.cap.Total {
		b.evictOldest()
	}

	rec := &Record{
		Seq:       b.nextSeq,
		Type:      typ,
		Index:     index,
		Value:     value,
		Flags:     flags,
		Class:     class,
		Variation: variation,
	}
	b.nextSeq++

	b.ring[b.tail] = rec
	b.tail = (b.tail + 1) % len(b.ring)
	b.count++
	b.classCnt[class]++
	return rec
}

func (b *Buffer) evictOldest() {
	if b.count == 0 {
		return
	}
	old := b.ring[b.head]
	b.ring[b.head] = nil
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.classCnt[old.Class]--
	b.overflow = true
}

// iterate walks occupied slots from head to tail in insertion order,
// calling fn for each. fn returning false stops iteration early.
func (b *Buffer) iterate(fn func(*Record) bool) {
	idx := b.head
	for i := 0; i < b.count; i++ {
		if !fn(b.ring[idx]) {
			return
		}
		idx = (idx + 1) % len(b.ring)
	}
}

// Select returns up to max unsent records whose class is set in mask, in
// insertion order, and marks them sent. It does not remove them: removal
// only happens on Confirm.
func (b *Buffer) Select(mask dnp3.ClassMask, max int) []*Record {
	var out []*Record
	b.iterate(func(r *Record) bool {
		if len(out) >= max {
			return false
		}
		if r.sent {
			return true
		}
		if !mask.Has(r.Class) {
			return true
		}
		r.sent = true
		out = append(out, r)
		return true
	})
	return out
}

// Confirm permanently removes every record marked sent, called when the
// master confirms the fragment that carried them.
func (b *Buffer) Confirm() {
	kept := make([]*Record, 0, b.count)
	b.iterate(func(r *Record) bool {
		if !r.sent {
			kept = append(kept, r)
		} else {
			b.classCnt[r.Class]--
		}
		return true
	})
	b.rebuild(kept)
}

// Timeout clears the sent mark on every record, called when the confirm
// timeout elapses with no confirm, so the next response resends them.
func (b *Buffer) Timeout() {
	b.iterate(func(r *Record) bool {
		r.sent = false
		return true
	})
}

func (b *Buffer) rebuild(kept []*Record) {
	ring := make([]*Record, len(b.ring))
	for i, r := range kept {
		ring[i] = r
	}
	b.ring = ring
	b.head = 0
	b.tail = len(kept) % len(ring)
	b.count = len(kept)
}

// AnyUnreported reports whether class c has at least one record not yet
// marked sent, driving the outstation's CLASS_1/2/3_EVENTS IIN bits.
func (b *Buffer) AnyUnreported(c dnp3.EventClass) bool {
	found := false
	b.iterate(func(r *Record) bool {
		if r.Class == c && !r.sent {
			found = true
			return false
		}
		return true
	})
	return found
}
