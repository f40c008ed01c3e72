package transport

import (
	"testing"

	"github.com/rob-gra/go-dnp3/dnplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segment(fin, fir bool, seq byte, payload ...byte) []byte {
	seg := make([]byte, 0, 1+len(payload))
	seg = append(seg, byte(NewHeader(fin, fir, seq)))
	seg = append(seg, payload...)
	return seg
}

func TestAssemblerReassemblesTwoSegments(t *testing.T) {
	// [0x40, ...200 bytes] then [0x81, ...100 bytes] yield a 300-byte
	// fragment. 0x40 = FIR, seq 0; 0x81 = FIN, seq 1.
	a := NewAssembler(dnplog.NewDisabled())

	first := append([]byte{0x40}, make([]byte, 200)...)
	frag, err := a.Accept(first)
	require.NoError(t, err)
	assert.Nil(t, frag)

	second := append([]byte{0x81}, make([]byte, 100)...)
	frag, err = a.Accept(second)
	require.NoError(t, err)
	require.NotNil(t, frag)
	assert.Len(t, frag, 300)
}

func TestAssemblerResetsOnSequenceBreak(t *testing.T) {
	a := NewAssembler(dnplog.NewDisabled())

	_, err := a.Accept(segment(false, true, 0, make([]byte, 10)...))
	require.NoError(t, err)

	// the next segment arrives with seq 2 instead of the expected 1.
	_, err = a.Accept(segment(true, false, 2, make([]byte, 5)...))
	assert.ErrorIs(t, err, ErrSequenceBreak)

	// state reset: a subsequent FIN segment with no FIR is rejected, not
	// silently appended to the discarded buffer.
	_, err = a.Accept(segment(true, false, 3, make([]byte, 5)...))
	assert.ErrorIs(t, err, ErrNotInProgress)
}

func TestAssemblerSingleSegmentFragment(t *testing.T) {
	a := NewAssembler(dnplog.NewDisabled())
	frag, err := a.Accept(segment(true, true, 0, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, frag)
}

func TestFragmenterSplitsAtMaxPayload(t *testing.T) {
	fr := NewFragmenter()
	fragment := make([]byte, MaxSegmentPayload+50)
	for i := range fragment {
		fragment[i] = byte(i)
	}

	segs := fr.Split(fragment)
	require.Len(t, segs, 2)

	h0 := Header(segs[0][0])
	assert.True(t, h0.Fir())
	assert.False(t, h0.Fin())
	assert.Equal(t, byte(0), h0.Seq())
	assert.Len(t, segs[0][1:], MaxSegmentPayload)

	h1 := Header(segs[1][0])
	assert.False(t, h1.Fir())
	assert.True(t, h1.Fin())
	assert.Equal(t, byte(1), h1.Seq())
	assert.Len(t, segs[1][1:], 50)
}

func TestFragmenterSeqWrapsModulo64(t *testing.T) {
	fr := NewFragmenter()
	fr.seq = 63
	segs := fr.Split([]byte{1})
	require.Len(t, segs, 1)
	assert.Equal(t, byte(63), Header(segs[0][0]).Seq())
	assert.Equal(t, byte(0), fr.seq)
}

func TestRoundTripThroughFragmenterAndAssembler(t *testing.T) {
	fr := NewFragmenter()
	fragment := make([]byte, 500)
	for i := range fragment {
		fragment[i] = byte(i % 251)
	}
	segs := fr.Split(fragment)

	a := NewAssembler(dnplog.NewDisabled())
	var got []byte
	for _, seg := range segs {
		frag, err := a.Accept(seg)
		require.NoError(t, err)
		if frag != nil {
			got = frag
		}
	}
	assert.Equal(t, fragment, got)
}
