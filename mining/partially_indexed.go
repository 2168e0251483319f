// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"fmt"
	"sort"
)

// Handle identifies an element of a PartiallyIndexed structure.  It is the
// element's insertion position and stays valid for the lifetime of the
// structure.
type Handle int

// notCandidate is the candidate position of an element that is not indexed.
const notCandidate = -1

// element is an arena entry.
type element[T any] struct {
	item T

	// candidate is the element's position in the candidate index or
	// notCandidate.
	candidate int
}

// Policy does the accounting for the candidates of a PartiallyIndexed
// structure and decides how they rank.
type Policy[T any] interface {
	// Less reports whether a ranks strictly before b.
	Less(a, b T) bool

	// HasRoomFor reports whether item fits in the budget without
	// displacing any candidate.
	HasRoomFor(item T) bool

	// Accumulate charges item against the budget.
	Accumulate(item T)

	// RemoveInsertSeveral is invoked with a sorted candidate index when the
	// element h does not fit.  The policy may evict candidates and insert
	// h through ops, keeping its own accounting in step.  Leaving the index
	// unchanged is valid.
	RemoveInsertSeveral(h Handle, ops *Ops[T])

	// CheckNode verifies the policy's view of the element h.
	CheckNode(h Handle, ops *Ops[T]) error
}

// PartiallyIndexed stores every inserted element in an append-only arena and
// indexes the subset currently selected by its policy.  The candidate index
// is kept in rank order lazily.
//
// It is not safe for concurrent use.
type PartiallyIndexed[T any] struct {
	policy     Policy[T]
	elements   []element[T]
	candidates []Handle
	sorted     bool
}

// NewPartiallyIndexed returns an empty structure governed by policy.
func NewPartiallyIndexed[T any](policy Policy[T]) *PartiallyIndexed[T] {
	return &PartiallyIndexed[T]{
		policy: policy,
		sorted: true,
	}
}

// Insert adds item and returns its handle.  When the policy has room for it
// the item is appended to the candidates, which are then considered unsorted.
// Otherwise the candidates are sorted and the policy decides whether the item
// displaces lower ranked ones.
func (p *PartiallyIndexed[T]) Insert(item T) Handle {
	h := Handle(len(p.elements))
	p.elements = append(p.elements, element[T]{
		item:      item,
		candidate: notCandidate,
	})

	if p.policy.HasRoomFor(item) {
		p.elements[h].candidate = len(p.candidates)
		p.candidates = append(p.candidates, h)
		p.policy.Accumulate(item)
		p.sorted = false
	} else {
		p.sort()
		p.policy.RemoveInsertSeveral(h, &Ops[T]{p: p})
	}

	if debugInvariants {
		if err := p.CheckInvariants(); err != nil {
			panic(err)
		}
	}
	return h
}

// Len returns the number of stored elements.
func (p *PartiallyIndexed[T]) Len() int {
	return len(p.elements)
}

// CandidateLen returns the number of indexed elements.
func (p *PartiallyIndexed[T]) CandidateLen() int {
	return len(p.candidates)
}

// Candidates returns the handles of the candidates in rank order.  The index
// is sorted first if needed.
func (p *PartiallyIndexed[T]) Candidates() []Handle {
	p.sort()
	handles := make([]Handle, len(p.candidates))
	copy(handles, p.candidates)
	return handles
}

// Get returns the element with handle h.
func (p *PartiallyIndexed[T]) Get(h Handle) T {
	return p.elements[h].item
}

// IsCandidate reports whether the element h is indexed.
func (p *PartiallyIndexed[T]) IsCandidate(h Handle) bool {
	return p.elements[h].candidate != notCandidate
}

// Sorted reports whether the candidate index is known to be in rank order.
func (p *PartiallyIndexed[T]) Sorted() bool {
	return p.sorted
}

// sort puts the candidate index in rank order.  Equal ranks keep their
// relative order.
func (p *PartiallyIndexed[T]) sort() {
	if p.sorted {
		return
	}
	sort.SliceStable(p.candidates, func(i, j int) bool {
		return p.policy.Less(p.elements[p.candidates[i]].item,
			p.elements[p.candidates[j]].item)
	})
	p.reindex(0)
	p.sorted = true
}

// reindex refreshes the back-index of the candidates from position from on.
func (p *PartiallyIndexed[T]) reindex(from int) {
	for pos := from; pos < len(p.candidates); pos++ {
		p.elements[p.candidates[pos]].candidate = pos
	}
}

// upperBound returns the first position in [lo, hi) whose candidate ranks
// strictly after item, or hi.
func (p *PartiallyIndexed[T]) upperBound(item T, lo, hi int) int {
	return lo + sort.Search(hi-lo, func(i int) bool {
		return p.policy.Less(item, p.elements[p.candidates[lo+i]].item)
	})
}

func (p *PartiallyIndexed[T]) insertAt(pos int, h Handle) {
	p.candidates = append(p.candidates, 0)
	copy(p.candidates[pos+1:], p.candidates[pos:])
	p.candidates[pos] = h
	p.reindex(pos)
}

func (p *PartiallyIndexed[T]) removeAt(pos int) {
	h := p.candidates[pos]
	p.candidates = append(p.candidates[:pos], p.candidates[pos+1:]...)
	p.elements[h].candidate = notCandidate
	p.reindex(pos)
}

// move repositions the candidate h by binary search within [lo, hi), where
// the bounds are positions before h is taken out.
func (p *PartiallyIndexed[T]) move(h Handle, lo, hi int) {
	pos := p.elements[h].candidate
	if pos == notCandidate {
		return
	}
	p.removeAt(pos)
	if lo > pos {
		lo--
	}
	if hi > pos {
		hi--
	}
	lo = max(0, min(lo, len(p.candidates)))
	hi = max(lo, min(hi, len(p.candidates)))
	p.insertAt(p.upperBound(p.elements[h].item, lo, hi), h)
}

// CheckInvariants verifies the consistency of the arena and the candidate
// index, and asks the policy to check every element.
func (p *PartiallyIndexed[T]) CheckInvariants() error {
	if len(p.candidates) > len(p.elements) {
		return fmt.Errorf("%d candidates exceed %d elements",
			len(p.candidates), len(p.elements))
	}

	seen := make(map[Handle]struct{}, len(p.candidates))
	for pos, h := range p.candidates {
		if h < 0 || int(h) >= len(p.elements) {
			return fmt.Errorf("candidate %d refers to missing element %d",
				pos, h)
		}
		if _, ok := seen[h]; ok {
			return fmt.Errorf("element %d indexed more than once", h)
		}
		seen[h] = struct{}{}
		if p.elements[h].candidate != pos {
			return fmt.Errorf("element %d points at candidate %d, "+
				"indexed at %d", h, p.elements[h].candidate, pos)
		}
	}

	indexed := 0
	for i := range p.elements {
		if p.elements[i].candidate != notCandidate {
			indexed++
		}
	}
	if indexed != len(p.candidates) {
		return fmt.Errorf("%d elements claim an index, %d candidates",
			indexed, len(p.candidates))
	}

	if p.sorted {
		for pos := 1; pos < len(p.candidates); pos++ {
			cur := p.elements[p.candidates[pos]].item
			prev := p.elements[p.candidates[pos-1]].item
			if p.policy.Less(cur, prev) {
				return fmt.Errorf("candidates marked sorted are out "+
					"of order at %d", pos)
			}
		}
	}

	ops := &Ops[T]{p: p}
	for i := range p.elements {
		if err := p.policy.CheckNode(Handle(i), ops); err != nil {
			return err
		}
	}
	return nil
}

// Ops is the view of a PartiallyIndexed structure handed to its policy.
// Positional operations assume the candidate index is sorted, which holds
// whenever the policy is invoked through RemoveInsertSeveral.
type Ops[T any] struct {
	p *PartiallyIndexed[T]
}

// Len returns the number of candidates.
func (o *Ops[T]) Len() int {
	return len(o.p.candidates)
}

// Get returns the element with handle h.
func (o *Ops[T]) Get(h Handle) T {
	return o.p.elements[h].item
}

// IsCandidate reports whether the element h is indexed.
func (o *Ops[T]) IsCandidate(h Handle) bool {
	return o.p.IsCandidate(h)
}

// Position returns the rank of the candidate h, or -1 when it is not
// indexed.
func (o *Ops[T]) Position(h Handle) int {
	return o.p.elements[h].candidate
}

// Reverse returns a walker over the candidates from the lowest rank up.
func (o *Ops[T]) Reverse() *Reverser[T] {
	return &Reverser[T]{p: o.p, next: len(o.p.candidates) - 1}
}

// Remove takes the element h out of the candidate index.
func (o *Ops[T]) Remove(h Handle) {
	if pos := o.p.elements[h].candidate; pos != notCandidate {
		o.p.removeAt(pos)
	}
}

// Insert indexes the element h after every candidate that does not rank
// after it.
func (o *Ops[T]) Insert(h Handle) {
	if o.p.elements[h].candidate != notCandidate {
		return
	}
	o.p.insertAt(o.p.upperBound(o.p.elements[h].item, 0,
		len(o.p.candidates)), h)
}

// ReSortLeft repositions the candidate h among the candidates ranked before
// it.  It is used after h improved.
func (o *Ops[T]) ReSortLeft(h Handle) {
	o.p.move(h, 0, o.Position(h))
}

// ReSortRight repositions the candidate h among the candidates ranked after
// it.  It is used after h worsened.
func (o *Ops[T]) ReSortRight(h Handle) {
	pos := o.Position(h)
	o.p.move(h, pos+1, len(o.p.candidates))
}

// ReSortToEnd repositions the candidate find among the candidates ranked
// after from.
func (o *Ops[T]) ReSortToEnd(from, find Handle) {
	o.p.move(find, o.Position(from)+1, len(o.p.candidates))
}

// ReSortFromBegin repositions the candidate find among the candidates
// ranked before to.
func (o *Ops[T]) ReSortFromBegin(to, find Handle) {
	o.p.move(find, 0, o.Position(to))
}

// ReSort repositions the candidate find among the candidates ranked
// strictly between from and to.
func (o *Ops[T]) ReSort(from, to, find Handle) {
	o.p.move(find, o.Position(from)+1, o.Position(to))
}

// Reverser walks the candidate index from the lowest rank up.  The candidate
// most recently returned may be removed while walking.
type Reverser[T any] struct {
	p    *PartiallyIndexed[T]
	next int
}

// HasNext reports whether a higher ranked candidate remains.
func (r *Reverser[T]) HasNext() bool {
	return r.next >= 0 && r.next < len(r.p.candidates)
}

// Next returns the next candidate handle.
func (r *Reverser[T]) Next() Handle {
	h := r.p.candidates[r.next]
	r.next--
	return h
}
