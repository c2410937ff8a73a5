package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// collect walks a side front to back.
func collect(b *Book, side Side) []uint64 {
	var ids []uint64
	for id := b.Front(side); id != 0; id = b.NextOf(id, side) {
		ids = append(ids, id)
	}
	return ids
}

func TestBookInsertAndWalk(t *testing.T) {
	b := NewBook()
	assert.Zero(t, b.Front(Ask))
	assert.Zero(t, b.Back(Ask))

	b.InsertBefore(2, 0, Ask) // append to empty list
	b.InsertBefore(3, 0, Ask) // append at back
	b.InsertFirst(4, Ask)     // push to front

	assert.Equal(t, []uint64{4, 2, 3}, collect(b, Ask))
	assert.Equal(t, uint64(4), b.Front(Ask))
	assert.Equal(t, uint64(3), b.Back(Ask))
	assert.Equal(t, 3, b.Len(Ask))

	// The list is circular through the sentinel.
	assert.Zero(t, b.NextOf(3, Ask))
	assert.Zero(t, b.PrevOf(4, Ask))
	assert.Equal(t, uint64(2), b.PrevOf(3, Ask))

	// Sides are independent.
	assert.Zero(t, b.Front(Bid))
	assert.False(t, b.Contains(2, Bid))
	assert.True(t, b.Contains(2, Ask))
}

func TestBookInsertBeforePivot(t *testing.T) {
	b := NewBook()
	b.InsertBefore(2, 0, Bid)
	b.InsertBefore(3, 0, Bid)
	b.InsertBefore(4, 3, Bid) // squeeze between 2 and 3

	assert.Equal(t, []uint64{2, 4, 3}, collect(b, Bid))
}

func TestBookUnlink(t *testing.T) {
	b := NewBook()
	b.InsertBefore(2, 0, Ask)
	b.InsertBefore(3, 0, Ask)
	b.InsertBefore(4, 0, Ask)

	b.Unlink(3, Ask) // middle
	assert.Equal(t, []uint64{2, 4}, collect(b, Ask))

	b.Unlink(2, Ask) // front
	assert.Equal(t, []uint64{4}, collect(b, Ask))
	assert.Equal(t, uint64(4), b.Front(Ask))
	assert.Equal(t, uint64(4), b.Back(Ask))

	b.Unlink(4, Ask) // last one out
	assert.Empty(t, collect(b, Ask))
	assert.Zero(t, b.Front(Ask))

	// Unlinking an id that is not linked is a no-op.
	b.Unlink(9, Ask)
	assert.Empty(t, collect(b, Ask))
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()

	// 0 and 1 are reserved sentinels.
	assert.Equal(t, uint64(2), s.AllocateID())
	assert.Equal(t, uint64(3), s.AllocateID())

	o := &Order{ID: 2, Owner: "alice", Active: true,
		SellingAmt: amt(1), BuyingAmt: amt(1), PriceRatio: amt(1)}
	s.Put(o)

	got, err := s.Get(2)
	assert.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.True(t, s.IsActive(2))

	s.SetActive(2, false)
	_, err = s.Get(2)
	assert.ErrorIs(t, err, ErrInactiveOrder)

	s.Remove(2)
	assert.False(t, s.IsActive(2))
	_, err = s.Get(2)
	assert.ErrorIs(t, err, ErrInactiveOrder)

	// Ids keep increasing, never reused.
	assert.Equal(t, uint64(4), s.AllocateID())
}
