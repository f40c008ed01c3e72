package objects

import (
	"testing"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value, size int) Value {
	t.Helper()
	w := cursor.NewWriter(64)
	require.NoError(t, Encode(v, w))

	cur := cursor.NewReader(w.Bytes())
	got, err := Decode(v.GroupVariation(), cur, size)
	require.NoError(t, err)
	return got
}

func TestBinaryRoundTrip(t *testing.T) {
	v := Binary{Group: 1, Variation: 2, Flags: dnp3.FlagOnline, State: true}
	got := roundTrip(t, v, 0).(Binary)
	assert.True(t, got.State)
	assert.Equal(t, dnp3.FlagOnline|dnp3.FlagState, got.Flags)
}

func TestBinaryEventWithTimestampRoundTrip(t *testing.T) {
	ts := int64(12345)
	v := Binary{Group: 2, Variation: 2, Flags: dnp3.FlagOnline, State: true, Timestamp: &ts}
	got := roundTrip(t, v, 0).(Binary)
	require.NotNil(t, got.Timestamp)
	assert.Equal(t, ts, *got.Timestamp)
}

func TestBinaryEventRelativeTimeRoundTrip(t *testing.T) {
	ts := int64(4096)
	v := Binary{Group: 2, Variation: 3, Flags: dnp3.FlagOnline, State: true, Timestamp: &ts}
	got := roundTrip(t, v, 0).(Binary)
	require.NotNil(t, got.Timestamp)
	assert.Equal(t, ts, *got.Timestamp)
	assert.Equal(t, GroupVariation{2, 3}, got.GroupVariation())
}

func TestDoubleBitBinaryRoundTrip(t *testing.T) {
	v := DoubleBitBinary{Variation: 2, Flags: dnp3.FlagOnline, State: dnp3.DoubleBitOn}
	got := roundTrip(t, v, 0).(DoubleBitBinary)
	assert.Equal(t, dnp3.DoubleBitOn, got.State)
}

func TestDoubleBitBinaryEventVariationsRoundTrip(t *testing.T) {
	ts := int64(99999)
	absolute := DoubleBitBinary{Variation: 2, Flags: dnp3.FlagOnline, State: dnp3.DoubleBitOn, Timestamp: &ts}
	got := roundTrip(t, absolute, 0).(DoubleBitBinary)
	require.NotNil(t, got.Timestamp)
	assert.Equal(t, ts, *got.Timestamp)
	assert.Equal(t, GroupVariation{4, 2}, got.GroupVariation())

	relTs := int64(42)
	relative := DoubleBitBinary{Variation: 3, Flags: dnp3.FlagOnline, State: dnp3.DoubleBitOff, Timestamp: &relTs}
	got2 := roundTrip(t, relative, 0).(DoubleBitBinary)
	require.NotNil(t, got2.Timestamp)
	assert.Equal(t, relTs, *got2.Timestamp)
	assert.Equal(t, GroupVariation{4, 3}, got2.GroupVariation())
}

func TestBinaryOutputEventAndCommandEventRoundTrip(t *testing.T) {
	boEvent := BinaryOutputStatus{Group: 11, Variation: 1, Flags: dnp3.FlagOnline, State: true}
	got := roundTrip(t, boEvent, 0).(BinaryOutputStatus)
	assert.True(t, got.State)

	ts := int64(500)
	boEventTimed := BinaryOutputStatus{Group: 11, Variation: 2, Flags: dnp3.FlagOnline, State: true, Timestamp: &ts}
	got2 := roundTrip(t, boEventTimed, 0).(BinaryOutputStatus)
	require.NotNil(t, got2.Timestamp)
	assert.Equal(t, ts, *got2.Timestamp)

	commandEvent := BinaryOutputStatus{Group: 13, Variation: 1, Flags: dnp3.FlagOnline, State: false}
	got3 := roundTrip(t, commandEvent, 0).(BinaryOutputStatus)
	assert.False(t, got3.State)
}

func TestAnalogOutputEventRoundTrip(t *testing.T) {
	v := Analog{Group: 42, Variation: 5, Flags: dnp3.FlagOnline, Value: 12.5}
	got := roundTrip(t, v, 0).(Analog)
	assert.InDelta(t, 12.5, got.Value, 0.001)
	assert.Equal(t, GroupVariation{42, 5}, got.GroupVariation())
}

func TestAnalogOutputCommandEventRoundTrip(t *testing.T) {
	v := Analog{Group: 43, Variation: 1, Flags: dnp3.FlagOnline, Value: -77}
	got := roundTrip(t, v, 0).(Analog)
	assert.Equal(t, float64(-77), got.Value)
	assert.Equal(t, GroupVariation{43, 1}, got.GroupVariation())
}

func TestVirtualTerminalEventDataRoundTrip(t *testing.T) {
	v := OctetString{Group: 113, IsEvent: true, Data: []byte("vt-data")}
	w := cursor.NewWriter(64)
	require.NoError(t, Encode(v, w))

	got, err := Decode(GroupVariation{113, 0}, cursor.NewReader(w.Bytes()), len(v.Data))
	require.NoError(t, err)
	assert.Equal(t, []byte("vt-data"), got.(OctetString).Data)
}

func TestCounterRoundTrip(t *testing.T) {
	v := Counter{Flags: dnp3.FlagOnline, Value: 0xDEADBEEF}
	got := roundTrip(t, v, 0).(Counter)
	assert.Equal(t, uint32(0xDEADBEEF), got.Value)

	frozen := Counter{Frozen: true, Flags: dnp3.FlagOnline, Value: 42}
	got2 := roundTrip(t, frozen, 0).(Counter)
	assert.True(t, got2.Frozen)
	assert.Equal(t, uint32(42), got2.Value)
}

func TestAnalogFloat32RoundTrip(t *testing.T) {
	v := Analog{Variation: 5, Flags: dnp3.FlagOnline, Value: 98.6}
	got := roundTrip(t, v, 0).(Analog)
	assert.InDelta(t, 98.6, got.Value, 0.001)
}

func TestAnalogOutputStatusInt16RoundTrip(t *testing.T) {
	v := Analog{IsOutput: true, Variation: 2, Flags: dnp3.FlagOnline, Value: -1234}
	got := roundTrip(t, v, 0).(Analog)
	assert.Equal(t, float64(-1234), got.Value)
}

func TestControlRelayOutputBlockRoundTrip(t *testing.T) {
	v := ControlRelayOutputBlock{Code: ControlLatchOn, Count: 1, OnTime: 1000, OffTime: 0, Status: dnp3.StatusSuccess}
	got := roundTrip(t, v, 0).(ControlRelayOutputBlock)
	assert.Equal(t, ControlLatchOn, got.Code)
	assert.Equal(t, dnp3.StatusSuccess, got.Status)
}

func TestOctetStringRoundTrip(t *testing.T) {
	v := OctetString{Data: []byte("hello!!!")}
	got := roundTrip(t, v, len(v.Data)).(OctetString)
	assert.Equal(t, []byte("hello!!!"), got.Data)
}

func TestOctetStringZeroLength(t *testing.T) {
	cur := cursor.NewReader([]byte{})
	_, err := Decode(GroupVariation{111, 0}, cur, 0)
	assert.ErrorIs(t, err, ErrZeroLengthOctetData)
}

func TestDecodeUnknownGroupVariation(t *testing.T) {
	cur := cursor.NewReader([]byte{1, 2, 3})
	_, err := Decode(GroupVariation{255, 255}, cur, 0)
	assert.ErrorIs(t, err, ErrUnknownGroupVariation)
}

func TestQualifierAllowed(t *testing.T) {
	assert.True(t, QualifierAllowed(GroupVariation{1, 2}, Qualifier8BitStartStop))
	assert.False(t, QualifierAllowed(GroupVariation{1, 2}, Qualifier16BitFreeFormat))
	assert.True(t, QualifierAllowed(GroupVariation{111, 0}, Qualifier16BitFreeFormat))
}

func TestFixedSize(t *testing.T) {
	size, ok := FixedSize(GroupVariation{20, 1})
	require.True(t, ok)
	assert.Equal(t, 5, size)

	_, ok = FixedSize(GroupVariation{255, 255})
	assert.False(t, ok)
}

func TestClassPollRoundTrip(t *testing.T) {
	w := cursor.NewWriter(8)
	require.NoError(t, Encode(ClassPoll{Variation: 1}, w))
	assert.Len(t, w.Bytes(), 0)
}
