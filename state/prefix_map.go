package state

import (
	"iter"
	"strings"

	"github.com/google/btree"
)

type prefixItem[V any] struct {
	prefix string
	value  V
}

// PrefixMap is an ordered map whose keys are address prefixes. Resolve finds the longest known
// prefix of an address, which is how ledger addresses are routed. The empty prefix is a catch-all.
//
// PrefixMap is not safe for concurrent use, and must not be modified while it is being iterated.
type PrefixMap[V any] struct {
	tree *btree.BTreeG[prefixItem[V]]
}

func NewPrefixMap[V any]() *PrefixMap[V] {
	return &PrefixMap[V]{
		tree: btree.NewG[prefixItem[V]](8, func(a, b prefixItem[V]) bool {
			return a.prefix < b.prefix
		}),
	}
}

func (m *PrefixMap[V]) Size() int {
	return m.tree.Len()
}

// Keys returns all prefixes in ascending order.
func (m *PrefixMap[V]) Keys() []string {
	keys := make([]string, 0, m.tree.Len())
	m.tree.Ascend(func(item prefixItem[V]) bool {
		keys = append(keys, item.prefix)
		return true
	})
	return keys
}

// All iterates over the entries in ascending prefix order.
func (m *PrefixMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		m.tree.Ascend(func(item prefixItem[V]) bool {
			return yield(item.prefix, item.value)
		})
	}
}

// Get returns the value stored under exactly prefix.
func (m *PrefixMap[V]) Get(prefix string) (V, bool) {
	item, ok := m.tree.Get(prefixItem[V]{prefix: prefix})
	return item.value, ok
}

// Resolve returns the value of the longest stored prefix of key.
func (m *PrefixMap[V]) Resolve(key string) (V, bool) {
	prefix, ok := m.ResolvePrefix(key)
	if !ok {
		var zero V
		return zero, false
	}
	return m.Get(prefix)
}

// ResolvePrefix returns the longest stored prefix of key.
func (m *PrefixMap[V]) ResolvePrefix(key string) (string, bool) {
	probe := key
	for {
		var found string
		ok := false
		m.tree.DescendLessOrEqual(prefixItem[V]{prefix: probe}, func(item prefixItem[V]) bool {
			found, ok = item.prefix, true
			return false
		})
		if !ok {
			return "", false
		}
		if strings.HasPrefix(key, found) {
			return found, true
		}
		// any prefix of key that sorts below found must also be a prefix of their common part
		probe = key[:commonPrefixLen(found, key)]
	}
}

// Insert stores value under prefix, replacing any existing value.
func (m *PrefixMap[V]) Insert(prefix string, value V) V {
	m.tree.ReplaceOrInsert(prefixItem[V]{prefix: prefix, value: value})
	return value
}

func (m *PrefixMap[V]) Delete(prefix string) {
	m.tree.Delete(prefixItem[V]{prefix: prefix})
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
