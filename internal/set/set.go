// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package set provides a minimal generic set, adapted from the
// teacher's utils/set package for the handful of operations consensus
// and gossip actually need.
package set

import "golang.org/x/exp/maps"

const minSetSize = 16

// Set is a set of comparable elements.
type Set[T comparable] map[T]struct{}

// NewSet returns a new set with initial capacity size.
func NewSet[T comparable](size int) Set[T] {
	if size < 0 {
		size = 0
	}
	if size < minSetSize {
		size = minSetSize
	}
	return make(map[T]struct{}, size)
}

// Of returns a set initialized with elts.
func Of[T comparable](elts ...T) Set[T] {
	s := NewSet[T](len(elts))
	s.Add(elts...)
	return s
}

// Add inserts elts into the set.
func (s *Set[T]) Add(elts ...T) {
	if *s == nil {
		*s = NewSet[T](len(elts))
	}
	for _, e := range elts {
		(*s)[e] = struct{}{}
	}
}

// Contains reports whether elt is in the set.
func (s Set[T]) Contains(elt T) bool {
	_, ok := s[elt]
	return ok
}

// Remove deletes elts from the set.
func (s Set[T]) Remove(elts ...T) {
	for _, e := range elts {
		delete(s, e)
	}
}

// Len returns the number of elements.
func (s Set[T]) Len() int { return len(s) }

// List returns the set's elements in unspecified order.
func (s Set[T]) List() []T {
	return maps.Keys(s)
}
