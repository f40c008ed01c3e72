package link

import (
	"github.com/rob-gra/go-dnp3/dnplog"
)

// Stats are running counters of frame outcomes, exposed for operational
// logging and tests; nothing in the protocol logic depends on them.
type Stats struct {
	Accepted         uint64
	RejectedBadStart uint64
	RejectedBadCRC   uint64
	RejectedShort    uint64
	DuplicateDropped uint64
}

type stationPair struct {
	Source, Dest uint16
}

type fcbState struct {
	last bool
	seen bool
}

// Layer tracks per-peer FCB state for duplicate-frame detection on a
// balanced link and accumulates Stats. It holds no buffering of its own;
// callers own the byte stream and hand Layer one candidate frame's worth
// of bytes at a time via Receive.
type Layer struct {
	fcb   map[stationPair]fcbState
	stats Stats
	log   dnplog.Logger
}

// NewLayer creates a Layer. The zero value is not usable; always use this
// constructor so the FCB table is initialized.
func NewLayer(log dnplog.Logger) *Layer {
	return &Layer{
		fcb: make(map[stationPair]fcbState),
		log: log,
	}
}

// Stats returns a snapshot of the running counters.
func (l *Layer) Stats() Stats {
	return l.stats
}

// Receive decodes one frame from the front of buf and applies FCB/FCV
// duplicate detection. ok is false when the frame was rejected (bad
// frame) or silently dropped (duplicate); in both cases the caller
// discards the frame. A dropped duplicate reports the bytes it occupied;
// a rejected frame always reports consumed = 0, whatever the error.
func (l *Layer) Receive(buf []byte) (frame Frame, consumed int, ok bool, err error) {
	frame, consumed, err = Decode(buf)
	if err != nil {
		switch err {
		case ErrBadStart:
			l.stats.RejectedBadStart++
		case ErrTruncated:
			l.stats.RejectedShort++
		case ErrHeaderCRC, ErrBlockCRC:
			l.stats.RejectedBadCRC++
		}
		l.log.Warn("link: frame rejected: %v", err)
		return Frame{}, consumed, false, err
	}

	if frame.Prm && frame.Fcv {
		key := stationPair{Source: frame.Source, Dest: frame.Dest}
		st := l.fcb[key]
		if st.seen && st.last == frame.Fcb {
			l.stats.DuplicateDropped++
			l.log.Debug("link: duplicate frame from %d to %d dropped", frame.Source, frame.Dest)
			return frame, consumed, false, nil
		}
		l.fcb[key] = fcbState{last: frame.Fcb, seen: true}
	}

	l.stats.Accepted++
	return frame, consumed, true, nil
}
