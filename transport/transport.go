// Package transport implements the DNP3 pseudo-transport function: 6-bit
// sequence numbering with FIN/FIR framing, reassembling link-layer user
// data into application fragments of up to 2048 bytes.
package transport

import (
	"errors"

	"github.com/rob-gra/go-dnp3/dnplog"
)

const (
	// MaxFragmentSize is the largest application fragment the transport
	// layer will reassemble; Split does not check fragments against it.
	MaxFragmentSize = 2048
	// MaxSegmentPayload is the largest payload a single transport
	// segment may carry (link frame user data minus the 1-byte header).
	MaxSegmentPayload = 249

	hdrFin = 1 << 7
	hdrFir = 1 << 6
	hdrSeqMask = 0x3F
)

var (
	// ErrSequenceBreak is returned when a non-FIR segment's sequence
	// number does not follow the last accepted segment.
	ErrSequenceBreak = errors.New("transport: sequence break")
	// ErrNotInProgress is returned when a non-FIR segment arrives with
	// no fragment currently being assembled.
	ErrNotInProgress = errors.New("transport: segment received with no fragment in progress")
	// ErrFragmentTooLarge is returned when reassembly would exceed
	// MaxFragmentSize.
	ErrFragmentTooLarge = errors.New("transport: reassembled fragment exceeds maximum size")
)

// Header is the one-byte transport segment header: FIN|FIR|SEQ[6].
type Header byte

// NewHeader builds a transport header byte.
func NewHeader(fin, fir bool, seq byte) Header {
	h := seq & hdrSeqMask
	if fin {
		h |= hdrFin
	}
	if fir {
		h |= hdrFir
	}
	return Header(h)
}

// Fin reports the FIN bit.
func (h Header) Fin() bool { return byte(h)&hdrFin != 0 }

// Fir reports the FIR bit.
func (h Header) Fir() bool { return byte(h)&hdrFir != 0 }

// Seq returns the 6-bit sequence number.
func (h Header) Seq() byte { return byte(h) & hdrSeqMask }

// Assembler reassembles a stream of transport segments, received from one
// direction, into complete application fragments. It holds no knowledge
// of the link layer; callers feed it the user-data payload of each
// accepted link frame in arrival order.
type Assembler struct {
	inProgress   bool
	expectedSeq  byte
	buf          []byte
	log          dnplog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(log dnplog.Logger) *Assembler {
	return &Assembler{log: log}
}

// Reset discards any in-progress fragment.
func (a *Assembler) Reset() {
	a.inProgress = false
	a.buf = nil
}

// Accept feeds one transport segment (header byte + payload) into the
// assembler. It returns the completed fragment (non-nil) when seg carries
// FIN, nil while reassembly is still in progress, and an error on any
// sequencing violation — in which case the in-progress fragment is
// discarded with no partial delivery, matching the invariant that a gap,
// duplicate, or out-of-order SEQ resets transport state entirely.
func (a *Assembler) Accept(seg []byte) ([]byte, error) {
	if len(seg) == 0 {
		a.Reset()
		return nil, ErrNotInProgress
	}
	hdr := Header(seg[0])
	payload := seg[1:]

	if hdr.Fir() {
		a.inProgress = true
		a.buf = append([]byte{}, payload...)
		a.expectedSeq = (hdr.Seq() + 1) & hdrSeqMask
		if hdr.Fin() {
			frag := a.buf
			a.Reset()
			return frag, nil
		}
		return nil, nil
	}

	if !a.inProgress {
		a.Reset()
		return nil, ErrNotInProgress
	}
	if hdr.Seq() != a.expectedSeq {
		a.Reset()
		return nil, ErrSequenceBreak
	}
	if len(a.buf)+len(payload) > MaxFragmentSize {
		a.Reset()
		return nil, ErrFragmentTooLarge
	}
	a.buf = append(a.buf, payload...)
	a.expectedSeq = (a.expectedSeq + 1) & hdrSeqMask

	if hdr.Fin() {
		frag := a.buf
		a.Reset()
		return frag, nil
	}
	return nil, nil
}

// Fragmenter splits application fragments into transport segments for
// transmission, maintaining one running SEQ counter across all fragments
// sent, incrementing modulo 64 regardless of fragment boundaries.
type Fragmenter struct {
	seq byte
}

// NewFragmenter creates a Fragmenter whose SEQ counter starts at 0.
func NewFragmenter() *Fragmenter {
	return &Fragmenter{}
}

// Split divides fragment into segments of at most MaxSegmentPayload
// bytes, each prefixed with its transport header. The first segment has
// FIR set, the last has FIN set; a single short fragment gets one
// segment with both set.
func (fr *Fragmenter) Split(fragment []byte) [][]byte {
	if len(fragment) == 0 {
		return [][]byte{{byte(NewHeader(true, true, fr.nextSeq()))}}
	}

	var segments [][]byte
	for off := 0; off < len(fragment); off += MaxSegmentPayload {
		end := off + MaxSegmentPayload
		if end > len(fragment) {
			end = len(fragment)
		}
		fir := off == 0
		fin := end == len(fragment)
		hdr := NewHeader(fin, fir, fr.nextSeq())
		seg := make([]byte, 0, 1+(end-off))
		seg = append(seg, byte(hdr))
		seg = append(seg, fragment[off:end]...)
		segments = append(segments, seg)
	}
	return segments
}

func (fr *Fragmenter) nextSeq() byte {
	s := fr.seq
	fr.seq = (fr.seq + 1) & hdrSeqMask
	return s
}
