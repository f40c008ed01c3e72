package apdu

import (
	"testing"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/rob-gra/go-dnp3/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeaderRequest(t *testing.T) {
	buf := []byte{0xC0, byte(dnp3.FuncRead)}
	h, n, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, h.Fir)
	assert.True(t, h.Fin)
	assert.False(t, h.Con)
	assert.Equal(t, byte(0), h.Seq)
	assert.Equal(t, dnp3.FuncRead, h.Function)
	assert.False(t, h.IsResponse())
}

func TestDecodeHeaderResponseWithIIN(t *testing.T) {
	buf := []byte{0xC1, byte(dnp3.FuncResponse), 0x02, 0x00}
	h, n, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, h.IsResponse())
	assert.Equal(t, byte(1), h.Seq)
	assert.Equal(t, IIN1Class1Events, h.IIN.IIN1)
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{Fir: true, Fin: true, Con: true, Seq: 5, Function: dnp3.FuncResponse, IIN: IIN{IIN1: IIN1NeedTime, IIN2: IIN2ObjectUnknown}}
	wire := EncodeHeader(h)
	got, n, err := DecodeHeader(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderTruncated(t *testing.T) {
	_, _, err := DecodeHeader([]byte{0xC0})
	assert.ErrorIs(t, err, ErrTruncatedHeader)

	_, _, err = DecodeHeader([]byte{0xC0, byte(dnp3.FuncResponse), 0x00})
	assert.ErrorIs(t, err, ErrTruncatedHeader)
}

func TestObjectHeaderIteratorRangedQualifier(t *testing.T) {
	w := cursor.NewWriter(64)
	require.NoError(t, w.PutBytes([]byte{1, 2, 0x00, 0, 2})) // g1v2, qualifier 0x00, start=0 stop=2
	for i := 0; i < 3; i++ {
		require.NoError(t, w.PutByte(byte(dnp3.FlagOnline)))
	}

	cur := cursor.NewReader(w.Bytes())
	hdr, it, err := NewObjectHeaderIterator(cur)
	require.NoError(t, err)
	assert.Equal(t, byte(1), hdr.Group)
	assert.Equal(t, uint32(0), hdr.Start)
	assert.Equal(t, uint32(2), hdr.Stop)

	var seen []uint32
	for {
		idx, val, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, idx)
		b := val.(objects.Binary)
		assert.False(t, b.State)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{0, 1, 2}, seen)
}

func TestObjectHeaderIteratorAllObjectsQualifierYieldsNothing(t *testing.T) {
	w := cursor.NewWriter(8)
	require.NoError(t, w.PutBytes([]byte{60, 1, 0x06})) // class 0 poll selector

	cur := cursor.NewReader(w.Bytes())
	hdr, it, err := NewObjectHeaderIterator(cur)
	require.NoError(t, err)
	assert.Equal(t, byte(60), hdr.Group)

	_, _, ok := it.Next()
	assert.False(t, ok)
	assert.NoError(t, it.Err())
}

func TestObjectHeaderIteratorPrefixedQualifier(t *testing.T) {
	w := cursor.NewWriter(64)
	require.NoError(t, w.PutBytes([]byte{12, 1, 0x17, 1})) // g12v1, 8-bit prefix, count=1
	require.NoError(t, w.PutByte(3))                       // prefix index 3
	require.NoError(t, w.PutBytes([]byte{1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}))

	cur := cursor.NewReader(w.Bytes())
	_, it, err := NewObjectHeaderIterator(cur)
	require.NoError(t, err)

	idx, val, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, uint32(3), idx)
	_, isCrob := val.(objects.ControlRelayOutputBlock)
	assert.True(t, isCrob)
}

func TestObjectHeaderIteratorRejectsInvalidQualifier(t *testing.T) {
	w := cursor.NewWriter(8)
	require.NoError(t, w.PutBytes([]byte{1, 2, 0x5B})) // free-format qualifier invalid for g1v2

	cur := cursor.NewReader(w.Bytes())
	_, _, err := NewObjectHeaderIterator(cur)
	assert.ErrorIs(t, err, ErrInvalidQualifierForVariation)
}

func TestRecomputeIIN(t *testing.T) {
	iin := RecomputeIIN(IIN{}, true, true, false, true, false, false, false, false, false)
	assert.Equal(t, IIN1Class1Events|IIN1Class3Events, iin.IIN1)
	assert.Equal(t, IIN2EventBufferOverflow, iin.IIN2)
}
