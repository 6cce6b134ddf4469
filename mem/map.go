// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package mem provides small containers used by the engines to track
// resources across the commands of a recording.
package mem

import (
	"cmp"
	"iter"
	"slices"
	"sort"

	"golang.org/x/exp/constraints"
)

// BinaryTreeMap is a map backed by a sorted slice. Iteration happens in key
// order, which keeps resource release deterministic. Deleted entries are
// tombstoned and reused when the same key is inserted again.
type BinaryTreeMap[K constraints.Ordered, V any] struct {
	entries []binaryTreeMapEntry[K, V]
}

type binaryTreeMapEntry[K constraints.Ordered, V any] struct {
	key     K
	value   V
	deleted bool
}

func (m *BinaryTreeMap[K, V]) find(key K) (*binaryTreeMapEntry[K, V], bool) {
	idx, ok := sort.Find(len(m.entries), func(i int) int {
		return cmp.Compare(key, m.entries[i].key)
	})
	if !ok || m.entries[idx].deleted {
		return nil, false
	}
	return &m.entries[idx], true
}

func (m *BinaryTreeMap[K, V]) Insert(key K, value V) {
	idx := sort.Search(len(m.entries), func(i int) bool {
		return key <= m.entries[i].key
	})
	if idx == len(m.entries) || m.entries[idx].key != key {
		m.entries = slices.Insert(m.entries, idx, binaryTreeMapEntry[K, V]{key, value, false})
	} else {
		e := &m.entries[idx]
		e.value = value
		e.deleted = false
	}
}

func (m *BinaryTreeMap[K, V]) Get(key K) (V, bool) {
	if e, ok := m.find(key); ok {
		return e.value, true
	}
	return *new(V), false
}

// Delete reports whether key was present.
func (m *BinaryTreeMap[K, V]) Delete(key K) bool {
	if e, ok := m.find(key); ok {
		e.deleted = true
		var zero V
		e.value = zero
		return true
	}
	return false
}

func (m *BinaryTreeMap[K, V]) Len() int {
	n := 0
	for _, e := range m.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

func (m *BinaryTreeMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range m.entries {
			if e.deleted {
				continue
			}
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

func (m *BinaryTreeMap[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

func (m *BinaryTreeMap[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Clear removes all entries but keeps the backing storage.
func (m *BinaryTreeMap[K, V]) Clear() {
	clear(m.entries)
	m.entries = m.entries[:0]
}
