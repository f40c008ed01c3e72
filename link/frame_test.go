package link

import (
	"testing"

	"github.com/rob-gra/go-dnp3/dnpcrc"
	"github.com/rob-gra/go-dnp3/dnplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeControlByte(t *testing.T) {
	// S1: bytes 05 64 05 C9 01 00 00 04 <crc> parse as DIR=1,PRM=1,FC=9,
	// len=5, dest=1, src=4, with a verifying header CRC.
	header := []byte{0x05, 0x64, 0x05, 0xC9, 0x01, 0x00, 0x00, 0x04}
	framed := dnpcrc.AppendChecksum(append([]byte{}, header...))

	f, n, err := Decode(framed)
	require.NoError(t, err)
	assert.Equal(t, len(framed), n)
	assert.True(t, f.Dir)
	assert.True(t, f.Prm)
	assert.Equal(t, byte(PriRequestLinkStatus), f.Function)
	assert.Len(t, f.UserData, 0)
	assert.Equal(t, uint16(1), f.Dest)
	assert.Equal(t, uint16(4), f.Source)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{Dir: true, Prm: true, Fcb: false, Fcv: true, Function: byte(PriConfirmedUserData), Dest: 1024, Source: 1, UserData: []byte{}},
		{Dir: false, Prm: false, Function: byte(SecAck), Dest: 1, Source: 1024, UserData: []byte{}},
		{Dir: true, Prm: true, Fcv: true, Function: byte(PriUnconfirmedUserData), Dest: 1, Source: 4, UserData: make([]byte, 40)},
		{Dir: true, Prm: true, Fcv: true, Function: byte(PriUnconfirmedUserData), Dest: 1, Source: 4, UserData: make([]byte, MaxUserData)},
	}
	for i := range cases {
		for j := range cases[i].UserData {
			cases[i].UserData[j] = byte(j)
		}
	}

	for _, want := range cases {
		wire, err := Encode(want)
		require.NoError(t, err)

		got, n, err := Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, len(wire), n)
		assert.Equal(t, want.Dir, got.Dir)
		assert.Equal(t, want.Prm, got.Prm)
		assert.Equal(t, want.Fcb, got.Fcb)
		assert.Equal(t, want.Fcv, got.Fcv)
		assert.Equal(t, want.Function, got.Function)
		assert.Equal(t, want.Dest, got.Dest)
		assert.Equal(t, want.Source, got.Source)
		assert.Equal(t, len(want.UserData), len(got.UserData))
		assert.Equal(t, want.UserData, got.UserData)
	}
}

func TestEncodeRejectsOversizedUserData(t *testing.T) {
	_, err := Encode(Frame{UserData: make([]byte, MaxUserData+1)})
	assert.ErrorIs(t, err, ErrUserDataTooLarge)
}

func TestDecodeRejectsBadStart(t *testing.T) {
	wire, err := Encode(Frame{Function: byte(PriResetLinkStates), Prm: true})
	require.NoError(t, err)
	wire[0] = 0x00
	_, _, err = Decode(wire)
	assert.ErrorIs(t, err, ErrBadStart)
}

func TestDecodeRejectsBadHeaderCRC(t *testing.T) {
	wire, err := Encode(Frame{Function: byte(PriResetLinkStates), Prm: true})
	require.NoError(t, err)
	wire[8] ^= 0xFF
	_, _, err = Decode(wire)
	assert.ErrorIs(t, err, ErrHeaderCRC)
}

func TestDecodeRejectsBadBlockCRC(t *testing.T) {
	wire, err := Encode(Frame{Prm: true, Fcv: true, Function: byte(PriUnconfirmedUserData), UserData: []byte{1, 2, 3}})
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF
	_, _, err = Decode(wire)
	assert.ErrorIs(t, err, ErrBlockCRC)
}

func TestIsBroadcast(t *testing.T) {
	assert.True(t, Frame{Dest: BroadcastConfirmedOrNot}.IsBroadcast())
	assert.True(t, Frame{Dest: BroadcastUnconfirmed}.IsBroadcast())
	assert.True(t, Frame{Dest: BroadcastConfirmed}.IsBroadcast())
	assert.False(t, Frame{Dest: 1}.IsBroadcast())
}

func TestLayerDropsReplayedFrame(t *testing.T) {
	l := NewLayer(dnplog.NewDisabled())
	wire, err := Encode(Frame{Prm: true, Fcv: true, Fcb: false, Function: byte(PriConfirmedUserData), Source: 4, Dest: 1, UserData: []byte{1}})
	require.NoError(t, err)

	_, _, ok, err := l.Receive(wire)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, ok, err = l.Receive(wire)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, l.Stats().DuplicateDropped)

	toggled, err := Encode(Frame{Prm: true, Fcv: true, Fcb: true, Function: byte(PriConfirmedUserData), Source: 4, Dest: 1, UserData: []byte{1}})
	require.NoError(t, err)
	_, _, ok, err = l.Receive(toggled)
	require.NoError(t, err)
	assert.True(t, ok)
}
