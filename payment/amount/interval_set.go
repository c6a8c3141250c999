package amount

import (
	"github.com/google/btree"
)

// IntervalSet stores a set of integers as disjoint ranges of consecutive values,
// so Add, Remove and NextMissing run in O(log n).
// NextMissing(x) returns the smallest integer >= x that is not in the set.

type interval struct {
	l, r int64
}

func (a interval) Less(b btree.Item) bool {
	return a.l < b.(interval).l
}

type IntervalSet struct {
	tree *btree.BTree
}

func NewIntervalSet() *IntervalSet {
	return &IntervalSet{
		tree: btree.New(2),
	}
}

// floor returns the interval with the largest l <= x.
func (s *IntervalSet) floor(x int64) (interval, bool) {
	var got interval
	found := false
	s.tree.DescendLessOrEqual(interval{x, x}, func(it btree.Item) bool {
		got = it.(interval)
		found = true
		return false
	})
	return got, found
}

// ceil returns the interval with the smallest l >= x.
func (s *IntervalSet) ceil(x int64) (interval, bool) {
	var got interval
	found := false
	s.tree.AscendGreaterOrEqual(interval{x, x}, func(it btree.Item) bool {
		got = it.(interval)
		found = true
		return false
	})
	return got, found
}

// Contains reports whether x is in the set.
func (s *IntervalSet) Contains(x int64) bool {
	p, ok := s.floor(x)
	return ok && x <= p.r
}

// Add a number to the set, merging with neighbours
func (s *IntervalSet) Add(x int64) {
	if s.Contains(x) {
		return
	}
	merged := interval{x, x}

	if prev, ok := s.floor(x); ok && prev.r+1 == x {
		s.tree.Delete(prev)
		merged.l = prev.l
	}
	if next, ok := s.ceil(x + 1); ok && next.l == x+1 {
		s.tree.Delete(next)
		merged.r = next.r
	}
	s.tree.ReplaceOrInsert(merged)
}

// Remove a number from the set, splitting its interval if needed
func (s *IntervalSet) Remove(x int64) {
	target, ok := s.floor(x)
	if !ok || x > target.r {
		return
	}
	s.tree.Delete(target)
	if target.l < x {
		s.tree.ReplaceOrInsert(interval{target.l, x - 1})
	}
	if x < target.r {
		s.tree.ReplaceOrInsert(interval{x + 1, target.r})
	}
}

func (s *IntervalSet) NextMissing(x int64) int64 {
	if p, ok := s.floor(x); ok && x <= p.r {
		return p.r + 1
	}
	return x
}

func (s *IntervalSet) Len() int {
	n := int64(0)
	s.tree.Ascend(func(it btree.Item) bool {
		iv := it.(interval)
		n += iv.r - iv.l + 1
		return true
	})
	return int(n)
}
