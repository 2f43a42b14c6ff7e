package orderbook

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

var (
	ErrInvalidValue   = errors.New("invalid value")
	ErrEmptyList      = errors.New("list is empty")
	ErrNoSuchNeighbor = errors.New("no such neighbor")
	ErrNotFound       = errors.New("id not in list")
)

const nilHandle = -1

type node struct {
	id    common.Hash
	value *num.Uint
	seq   uint64
	prev  int // toward tail (lower)
	next  int // toward head (higher)
}

// SortedList is a doubly linked list of ids ordered by value.
//
// The tail holds the lowest value and the head the highest; Next moves toward
// the head and Prev toward the tail. Nodes live in an arena slice addressed by
// index handles, so removal is O(1) and there are no pointer cycles.
//
// Equal values keep insertion order. With fifoAtHead the earliest of a run of
// equal values sits closest to the head, otherwise closest to the tail, so
// whichever end a caller treats as "best" always yields the oldest entry first.
//
// SortedList is not safe for concurrent use.
type SortedList struct {
	nodes      []node
	free       []int
	index      map[common.Hash]int
	head, tail int
	count      int
	seq        uint64
	fifoAtHead bool
}

// NewSortedList creates an empty list.
func NewSortedList(fifoAtHead bool) *SortedList {
	return &SortedList{
		index:      make(map[common.Hash]int),
		head:       nilHandle,
		tail:       nilHandle,
		fifoAtHead: fifoAtHead,
	}
}

// below reports whether node a sorts strictly closer to the tail than node b.
func (l *SortedList) below(a, b *node) bool {
	if c := a.value.Cmp(b.value); c != 0 {
		return c < 0
	}
	if l.fifoAtHead {
		return a.seq > b.seq
	}
	return a.seq < b.seq
}

// Insert adds id with the given value. An id already present is removed and
// re-inserted. Hints are candidate neighbor ids; the first one that is an
// exact neighbor of the new slot is used directly, otherwise the walk starts
// at the first hint still in the list, or at the head when none is.
func (l *SortedList) Insert(id common.Hash, value *num.Uint, hints ...common.Hash) error {
	if value.IsZero() {
		return fmt.Errorf("%w: zero value for %s", ErrInvalidValue, id.Hex())
	}
	if id == (common.Hash{}) {
		return fmt.Errorf("%w: zero id", ErrInvalidValue)
	}
	l.Remove(id)

	l.seq++
	n := node{id: id, value: value.Clone(), seq: l.seq, prev: nilHandle, next: nilHandle}

	lower := l.findLower(&n, hints)
	h := l.alloc(n)
	l.linkAbove(h, lower)
	l.index[id] = h
	l.count++
	return nil
}

// findLower returns the handle of the node that should sit directly below n,
// or nilHandle if n becomes the new tail.
func (l *SortedList) findLower(n *node, hints []common.Hash) int {
	if l.count == 0 {
		return nilHandle
	}

	start := nilHandle
	for _, hint := range hints {
		h, ok := l.index[hint]
		if !ok {
			continue
		}
		if lower, exact := l.exactSlot(h, n); exact {
			return lower
		}
		if start == nilHandle {
			start = h
		}
	}
	if start == nilHandle {
		start = l.head
	}

	cur := start
	if l.below(&l.nodes[cur], n) {
		for next := l.nodes[cur].next; next != nilHandle && l.below(&l.nodes[next], n); next = l.nodes[cur].next {
			cur = next
		}
		return cur
	}
	for cur != nilHandle && !l.below(&l.nodes[cur], n) {
		cur = l.nodes[cur].prev
	}
	return cur
}

// exactSlot checks whether n belongs directly next to the node at h.
func (l *SortedList) exactSlot(h int, n *node) (int, bool) {
	cand := &l.nodes[h]
	if l.below(cand, n) {
		if cand.next == nilHandle || !l.below(&l.nodes[cand.next], n) {
			return h, true
		}
		return nilHandle, false
	}
	if cand.prev == nilHandle || l.below(&l.nodes[cand.prev], n) {
		return cand.prev, true
	}
	return nilHandle, false
}

func (l *SortedList) alloc(n node) int {
	if k := len(l.free); k > 0 {
		h := l.free[k-1]
		l.free = l.free[:k-1]
		l.nodes[h] = n
		return h
	}
	l.nodes = append(l.nodes, n)
	return len(l.nodes) - 1
}

func (l *SortedList) linkAbove(h, lower int) {
	n := &l.nodes[h]
	var upper int
	if lower == nilHandle {
		upper = l.tail
		l.tail = h
	} else {
		upper = l.nodes[lower].next
		l.nodes[lower].next = h
	}
	n.prev = lower
	n.next = upper
	if upper == nilHandle {
		l.head = h
	} else {
		l.nodes[upper].prev = h
	}
}

// Remove unlinks id. It returns false if id is not present.
func (l *SortedList) Remove(id common.Hash) bool {
	h, ok := l.index[id]
	if !ok {
		return false
	}
	n := l.nodes[h]
	if n.prev == nilHandle {
		l.tail = n.next
	} else {
		l.nodes[n.prev].next = n.next
	}
	if n.next == nilHandle {
		l.head = n.prev
	} else {
		l.nodes[n.next].prev = n.prev
	}
	l.nodes[h] = node{prev: nilHandle, next: nilHandle}
	l.free = append(l.free, h)
	delete(l.index, id)
	l.count--
	return true
}

// Head returns the id with the highest value.
func (l *SortedList) Head() (common.Hash, error) {
	if l.head == nilHandle {
		return common.Hash{}, ErrEmptyList
	}
	return l.nodes[l.head].id, nil
}

// Tail returns the id with the lowest value.
func (l *SortedList) Tail() (common.Hash, error) {
	if l.tail == nilHandle {
		return common.Hash{}, ErrEmptyList
	}
	return l.nodes[l.tail].id, nil
}

// Next returns the neighbor of id toward the head.
func (l *SortedList) Next(id common.Hash) (common.Hash, error) {
	next, err := l.TryNext(id)
	if err != nil {
		return common.Hash{}, err
	}
	if next == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("%w: %s is the head", ErrNoSuchNeighbor, id.Hex())
	}
	return next, nil
}

// Prev returns the neighbor of id toward the tail.
func (l *SortedList) Prev(id common.Hash) (common.Hash, error) {
	prev, err := l.TryPrev(id)
	if err != nil {
		return common.Hash{}, err
	}
	if prev == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("%w: %s is the tail", ErrNoSuchNeighbor, id.Hex())
	}
	return prev, nil
}

// TryNext is Next returning the zero hash at the head.
func (l *SortedList) TryNext(id common.Hash) (common.Hash, error) {
	h, ok := l.index[id]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	if next := l.nodes[h].next; next != nilHandle {
		return l.nodes[next].id, nil
	}
	return common.Hash{}, nil
}

// TryPrev is Prev returning the zero hash at the tail.
func (l *SortedList) TryPrev(id common.Hash) (common.Hash, error) {
	h, ok := l.index[id]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	if prev := l.nodes[h].prev; prev != nilHandle {
		return l.nodes[prev].id, nil
	}
	return common.Hash{}, nil
}

func (l *SortedList) HasNext(id common.Hash) bool {
	h, ok := l.index[id]
	return ok && l.nodes[h].next != nilHandle
}

func (l *SortedList) HasPrev(id common.Hash) bool {
	h, ok := l.index[id]
	return ok && l.nodes[h].prev != nilHandle
}

func (l *SortedList) Contains(id common.Hash) bool {
	_, ok := l.index[id]
	return ok
}

// Value returns the value stored for id.
func (l *SortedList) Value(id common.Hash) (*num.Uint, bool) {
	h, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.nodes[h].value.Clone(), true
}

func (l *SortedList) Count() int    { return l.count }
func (l *SortedList) IsEmpty() bool { return l.count == 0 }

// Ascending calls fn from tail to head until fn returns false.
func (l *SortedList) Ascending(fn func(id common.Hash, value *num.Uint) bool) {
	for h := l.tail; h != nilHandle; h = l.nodes[h].next {
		if !fn(l.nodes[h].id, l.nodes[h].value) {
			return
		}
	}
}

// Descending calls fn from head to tail until fn returns false.
func (l *SortedList) Descending(fn func(id common.Hash, value *num.Uint) bool) {
	for h := l.head; h != nilHandle; h = l.nodes[h].prev {
		if !fn(l.nodes[h].id, l.nodes[h].value) {
			return
		}
	}
}

// Validate checks ordering, link symmetry and the node count.
func (l *SortedList) Validate() error {
	seen := 0
	prev := nilHandle
	for h := l.tail; h != nilHandle; h = l.nodes[h].next {
		n := &l.nodes[h]
		if n.prev != prev {
			return fmt.Errorf("broken prev link at %s", n.id.Hex())
		}
		if prev != nilHandle && !l.below(&l.nodes[prev], n) {
			return fmt.Errorf("order violated at %s", n.id.Hex())
		}
		if idx, ok := l.index[n.id]; !ok || idx != h {
			return fmt.Errorf("index mismatch at %s", n.id.Hex())
		}
		prev = h
		seen++
		if seen > l.count {
			return fmt.Errorf("cycle detected: walked %d nodes, count %d", seen, l.count)
		}
	}
	if prev != l.head {
		return fmt.Errorf("head mismatch")
	}
	if seen != l.count || len(l.index) != l.count {
		return fmt.Errorf("count mismatch: walked %d, count %d, indexed %d", seen, l.count, len(l.index))
	}
	return nil
}
