package eventbuf

import (
	"testing"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T, class1 int) *Buffer {
	t.Helper()
	b, err := NewBuffer(Capacity{Class1: class1, Class2: 10, Class3: 10, Total: 10})
	require.NoError(t, err)
	return b
}

func TestInsertAndSelectPreservesOrder(t *testing.T) {
	b := newTestBuffer(t, 10)
	b.Insert(dnp3.Binary, 0, objects.Binary{Group: 2, Variation: 1}, 0, dnp3.Class1, 1)
	b.Insert(dnp3.Binary, 1, objects.Binary{Group: 2, Variation: 1}, 0, dnp3.Class1, 1)
	b.Insert(dnp3.Binary, 2, objects.Binary{Group: 2, Variation: 1}, 0, dnp3.Class1, 1)

	recs := b.Select(dnp3.MaskClass1, 10)
	require.Len(t, recs, 3)
	assert.Equal(t, uint16(0), recs[0].Index)
	assert.Equal(t, uint16(1), recs[1].Index)
	assert.Equal(t, uint16(2), recs[2].Index)
}

func TestOverflowEvictsOldestOfAnyClass(t *testing.T) {
	// S5: class-1 capacity = 2; generate 3 class-1 events; buffer holds
	// the newest 2, overflow latch set.
	b := newTestBuffer(t, 2)
	b.Insert(dnp3.Binary, 0, objects.Binary{}, 0, dnp3.Class1, 1)
	b.Insert(dnp3.Binary, 1, objects.Binary{}, 0, dnp3.Class1, 1)
	assert.False(t, b.Overflowed())

	b.Insert(dnp3.Binary, 2, objects.Binary{}, 0, dnp3.Class1, 1)
	assert.True(t, b.Overflowed())
	assert.Equal(t, 2, b.Len())

	recs := b.Select(dnp3.MaskClass1, 10)
	require.Len(t, recs, 2)
	assert.Equal(t, uint16(1), recs[0].Index)
	assert.Equal(t, uint16(2), recs[1].Index)
}

func TestConfirmRemovesOnlySentRecords(t *testing.T) {
	b := newTestBuffer(t, 10)
	b.Insert(dnp3.Binary, 0, objects.Binary{}, 0, dnp3.Class1, 1)
	b.Insert(dnp3.Binary, 1, objects.Binary{}, 0, dnp3.Class2, 1)

	sent := b.Select(dnp3.MaskClass1, 10)
	require.Len(t, sent, 1)

	b.Confirm()
	assert.Equal(t, 1, b.Len())
	remaining := b.Select(dnp3.MaskClass1|dnp3.MaskClass2, 10)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint16(1), remaining[0].Index)
}

func TestTimeoutResendsUnconfirmedEvents(t *testing.T) {
	// S6: sent events not confirmed within the timeout are cleared back
	// to unsent so the next response resends them.
	b := newTestBuffer(t, 10)
	b.Insert(dnp3.Binary, 0, objects.Binary{}, 0, dnp3.Class1, 1)

	first := b.Select(dnp3.MaskClass1, 10)
	require.Len(t, first, 1)
	assert.Empty(t, b.Select(dnp3.MaskClass1, 10)) // already sent, not reselected

	b.Timeout()
	again := b.Select(dnp3.MaskClass1, 10)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].Seq, again[0].Seq)
}

func TestAnyUnreported(t *testing.T) {
	b := newTestBuffer(t, 10)
	assert.False(t, b.AnyUnreported(dnp3.Class1))
	b.Insert(dnp3.Binary, 0, objects.Binary{}, 0, dnp3.Class1, 1)
	assert.True(t, b.AnyUnreported(dnp3.Class1))
	b.Select(dnp3.MaskClass1, 10)
	assert.False(t, b.AnyUnreported(dnp3.Class1))
}

func TestNewBufferRejectsZeroCapacity(t *testing.T) {
	_, err := NewBuffer(Capacity{Class1: 0, Class2: 1, Class3: 1, Total: 1})
	assert.ErrorIs(t, err, ErrCapacityZero)
}
