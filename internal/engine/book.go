package engine

// bookNode links an order into its side's list by id only; there are no
// order pointers in the topology.
type bookNode struct {
	prev uint64
	next uint64
}

// Book holds the bid and ask lists. Each list is circular through the
// sentinel node at key 0: sentinel.next is the best order, sentinel.prev the
// worst. Every linked id refers to an active record in the Store; the Book
// itself never inspects prices — callers decide positions.
type Book struct {
	sides [2]map[uint64]bookNode
}

func NewBook() *Book {
	b := &Book{}
	for i := range b.sides {
		b.sides[i] = map[uint64]bookNode{0: {}}
	}
	return b
}

// Front returns the best order id of the side, or 0 when empty.
func (b *Book) Front(side Side) uint64 {
	return b.sides[side][0].next
}

// Back returns the worst order id of the side, or 0 when empty.
func (b *Book) Back(side Side) uint64 {
	return b.sides[side][0].prev
}

func (b *Book) NextOf(id uint64, side Side) uint64 {
	return b.sides[side][id].next
}

func (b *Book) PrevOf(id uint64, side Side) uint64 {
	return b.sides[side][id].prev
}

// Contains reports whether id is linked into the side's list.
func (b *Book) Contains(id uint64, side Side) bool {
	_, ok := b.sides[side][id]
	return ok && id != 0
}

// InsertBefore links id immediately ahead of pivot. A pivot of 0 is the
// sentinel, which appends at the back of the list.
func (b *Book) InsertBefore(id, pivot uint64, side Side) {
	m := b.sides[side]
	prev := m[pivot].prev
	m[id] = bookNode{prev: prev, next: pivot}
	n := m[prev]
	n.next = id
	m[prev] = n
	n = m[pivot]
	n.prev = id
	m[pivot] = n
}

// InsertFirst links id at the front of the list.
func (b *Book) InsertFirst(id uint64, side Side) {
	b.InsertBefore(id, b.Front(side), side)
}

// Unlink removes id from the list in O(1).
func (b *Book) Unlink(id uint64, side Side) {
	m := b.sides[side]
	node, ok := m[id]
	if !ok {
		return
	}
	n := m[node.prev]
	n.next = node.next
	m[node.prev] = n
	n = m[node.next]
	n.prev = node.prev
	m[node.next] = n
	delete(m, id)
}

// Len counts the orders linked on the side.
func (b *Book) Len(side Side) int {
	return len(b.sides[side]) - 1
}

func (b *Book) clone() *Book {
	c := &Book{}
	for i, m := range b.sides {
		cm := make(map[uint64]bookNode, len(m))
		for id, n := range m {
			cm[id] = n
		}
		c.sides[i] = cm
	}
	return c
}
