package outstation

import (
	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/apdu"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/rob-gra/go-dnp3/database"
	"github.com/rob-gra/go-dnp3/eventbuf"
	"github.com/rob-gra/go-dnp3/objects"
)

// readRange is one explicit group/variation object header from a READ
// request: either a bounded index range (Qualifier8/16BitStartStop) or
// the qualifier-0x06 "all instances" selector, applied to a specific
// group/variation rather than the group-60 class shorthand.
type readRange struct {
	group, variation byte
	all              bool
	start, stop      uint32
}

// ReadPlan is the outcome of scanning a READ request's object headers:
// which classes were requested (group 60, qualifier 0x06) plus any
// explicit group/variation ranges named outright.
type ReadPlan struct {
	Class0 bool
	Class1 bool
	Class2 bool
	Class3 bool
	Ranges []readRange
}

func planRead(body []byte) ReadPlan {
	var plan ReadPlan
	cur := cursor.NewReader(body)
	for cur.Remaining() > 0 {
		hdr, it, err := apdu.NewObjectHeaderIterator(cur)
		if err != nil {
			break
		}
		switch {
		case hdr.Group == 60:
			switch hdr.Variation {
			case 1:
				plan.Class0 = true
			case 2:
				plan.Class1 = true
			case 3:
				plan.Class2 = true
			case 4:
				plan.Class3 = true
			}
		case hdr.Qualifier == objects.QualifierAllObjects:
			plan.Ranges = append(plan.Ranges, readRange{group: hdr.Group, variation: hdr.Variation, all: true})
		case hdr.Qualifier == objects.Qualifier8BitStartStop || hdr.Qualifier == objects.Qualifier16BitStartStop:
			plan.Ranges = append(plan.Ranges, readRange{group: hdr.Group, variation: hdr.Variation, start: hdr.Start, stop: hdr.Stop})
		}
		for {
			if _, _, ok := it.Next(); !ok {
				break
			}
		}
	}
	return plan
}

// pointTypeForGroup maps a request's static object group to the
// database's point type, so an explicit group/variation range read can
// be resolved against the snapshot the same way a class-0 poll is.
// Event groups (2/4/11/13/42/43) have no static counterpart and are not
// listed: a range read naming one of them yields no indices.
func pointTypeForGroup(group byte) (dnp3.PointType, bool) {
	switch group {
	case 1:
		return dnp3.Binary, true
	case 3:
		return dnp3.DoubleBitBinary, true
	case 10:
		return dnp3.BinaryOutputStatus, true
	case 20:
		return dnp3.Counter, true
	case 21:
		return dnp3.FrozenCounter, true
	case 30:
		return dnp3.Analog, true
	case 40:
		return dnp3.AnalogOutputStatus, true
	case 110:
		return dnp3.OctetString, true
	default:
		return 0, false
	}
}

// indicesInRange filters a sorted index slice to [start, stop] inclusive.
func indicesInRange(indices []uint16, start, stop uint32) []uint16 {
	var out []uint16
	for _, idx := range indices {
		if uint32(idx) >= start && uint32(idx) <= stop {
			out = append(out, idx)
		}
	}
	return out
}

var allPointTypes = []dnp3.PointType{
	dnp3.Binary, dnp3.DoubleBitBinary, dnp3.BinaryOutputStatus,
	dnp3.Counter, dnp3.FrozenCounter, dnp3.Analog, dnp3.AnalogOutputStatus,
	dnp3.OctetString,
}

// contiguousRuns splits a sorted, deduplicated index slice into maximal
// runs of consecutive values, so the response writer can emit one ranged
// qualifier per run instead of one header per point.
func contiguousRuns(indices []uint16) [][]uint16 {
	if len(indices) == 0 {
		return nil
	}
	var runs [][]uint16
	start := 0
	for i := 1; i <= len(indices); i++ {
		if i == len(indices) || indices[i] != indices[i-1]+1 {
			runs = append(runs, indices[start:i])
			start = i
		}
	}
	return runs
}

// responseItem is one self-contained object header plus its objects,
// written atomically to a fragment's body. isEvent marks items that
// consume event records, so the caller knows which fragment needs CON=1.
type responseItem struct {
	isEvent bool
	write   func(*cursor.Writer) error
}

func staticRunItem(t dnp3.PointType, run []uint16, snap database.Snapshot) responseItem {
	return responseItem{write: func(w *cursor.Writer) error {
		first, _, ok := snap.Get(t, run[0])
		if !ok {
			return nil
		}
		gv := first.GroupVariation()
		if err := w.PutByte(gv.Group); err != nil {
			return err
		}
		if err := w.PutByte(gv.Variation); err != nil {
			return err
		}
		start, stop := run[0], run[len(run)-1]
		if stop <= 255 {
			if err := w.PutByte(byte(objects.Qualifier8BitStartStop)); err != nil {
				return err
			}
			if err := w.PutByte(byte(start)); err != nil {
				return err
			}
			if err := w.PutByte(byte(stop)); err != nil {
				return err
			}
		} else {
			if err := w.PutByte(byte(objects.Qualifier16BitStartStop)); err != nil {
				return err
			}
			if err := w.PutUint16LE(start); err != nil {
				return err
			}
			if err := w.PutUint16LE(stop); err != nil {
				return err
			}
		}
		for _, idx := range run {
			val, _, ok := snap.Get(t, idx)
			if !ok {
				continue
			}
			if err := objects.Encode(val, w); err != nil {
				return err
			}
		}
		return nil
	}}
}

func eventItem(rec *eventbuf.Record) responseItem {
	return responseItem{isEvent: true, write: func(w *cursor.Writer) error {
		gv := rec.Value.GroupVariation()
		if err := w.PutByte(gv.Group); err != nil {
			return err
		}
		if err := w.PutByte(gv.Variation); err != nil {
			return err
		}
		prefixQual := objects.Qualifier8BitPrefixCount
		if rec.Index > 255 {
			prefixQual = objects.Qualifier16BitPrefixCount
		}
		if err := w.PutByte(byte(prefixQual)); err != nil {
			return err
		}
		if err := w.PutByte(1); err != nil {
			return err
		}
		if prefixQual == objects.Qualifier8BitPrefixCount {
			if err := w.PutByte(byte(rec.Index)); err != nil {
				return err
			}
		} else {
			if err := w.PutUint16LE(rec.Index); err != nil {
				return err
			}
		}
		return objects.Encode(rec.Value, w)
	}}
}

func classMaskFromPlan(plan ReadPlan) dnp3.ClassMask {
	var mask dnp3.ClassMask
	if plan.Class1 {
		mask |= dnp3.MaskClass1
	}
	if plan.Class2 {
		mask |= dnp3.MaskClass2
	}
	if plan.Class3 {
		mask |= dnp3.MaskClass3
	}
	return mask
}

func buildReadItems(snap database.Snapshot, events *eventbuf.Buffer, plan ReadPlan) []responseItem {
	var items []responseItem
	if plan.Class0 {
		for _, t := range allPointTypes {
			indices := snap.Indices(t)
			for _, run := range contiguousRuns(indices) {
				items = append(items, staticRunItem(t, run, snap))
			}
		}
	}
	for _, r := range plan.Ranges {
		t, ok := pointTypeForGroup(r.group)
		if !ok {
			continue
		}
		indices := snap.Indices(t)
		if !r.all {
			indices = indicesInRange(indices, r.start, r.stop)
		}
		for _, run := range contiguousRuns(indices) {
			items = append(items, staticRunItem(t, run, snap))
		}
	}
	if mask := classMaskFromPlan(plan); mask != 0 {
		for _, rec := range events.Select(mask, 4096) {
			items = append(items, eventItem(rec))
		}
	}
	return items
}

// writeFragments packs items into one or more fragment bodies bounded by
// capacity, setting FIR on the first and FIN on the last, and reports
// per-fragment whether it carries any event item (so the caller can set
// CON=1 only where it applies).
func writeFragments(items []responseItem, capacity int) (bodies [][]byte, hasEvents []bool) {
	if len(items) == 0 {
		return [][]byte{{}}, []bool{false}
	}

	w := cursor.NewWriter(capacity)
	containsEvent := false
	for _, item := range items {
		before := w.Len()
		err := item.write(w)
		if err != nil {
			// Roll back a partially-written item and start a fresh
			// fragment for it.
			bodies = append(bodies, append([]byte{}, w.Bytes()[:before]...))
			hasEvents = append(hasEvents, containsEvent)
			w = cursor.NewWriter(capacity)
			containsEvent = false
			if item.write(w) != nil {
				// a single item larger than capacity is dropped silently
				w = cursor.NewWriter(capacity)
			}
		}
		if item.isEvent {
			containsEvent = true
		}
	}
	bodies = append(bodies, w.Bytes())
	hasEvents = append(hasEvents, containsEvent)
	return bodies, hasEvents
}

// buildReadResponse builds the one or more response fragments answering
// a READ request.
func buildReadResponse(seq byte, snap database.Snapshot, events *eventbuf.Buffer, plan ReadPlan, capacity int, iin apdu.IIN) [][]byte {
	items := buildReadItems(snap, events, plan)
	bodies, hasEvents := writeFragments(items, capacity)

	fragments := make([][]byte, len(bodies))
	for i, body := range bodies {
		hdr := apdu.Header{
			Fir:      i == 0,
			Fin:      i == len(bodies)-1,
			Con:      hasEvents[i],
			Function: dnp3.FuncResponse,
			Seq:      seq,
			IIN:      iin,
		}
		fragments[i] = append(apdu.EncodeHeader(hdr), body...)
	}
	return fragments
}
