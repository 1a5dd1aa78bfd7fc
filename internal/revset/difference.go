// Package revset implements merge-based set operations over ascending key lists.
//
// Every function here assumes its inputs are sorted ascending by key. Under that
// precondition each operation is a single co-ascending pass over both inputs
// with two cursors that never move backwards.
package revset

import (
	"cmp"
	"slices"

	"github.com/masmgr/revtrack/internal/errs"
)

// Pair is a key with an attached value.
type Pair[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// Difference returns the pairs whose key does not occur in remove, in their
// original order. pairs must be ascending with unique keys and remove must be
// ascending. Keys in remove that have no match in pairs are skipped.
func Difference[K cmp.Ordered, V any](pairs []Pair[K, V], remove []K) []Pair[K, V] {
	return DifferenceFunc(pairs, func(p Pair[K, V]) K { return p.Key }, remove)
}

// DifferenceFunc is Difference for any element type with a key accessor.
func DifferenceFunc[T any, K cmp.Ordered](items []T, key func(T) K, remove []K) []T {
	result := make([]T, 0, len(items))
	if len(remove) == 0 {
		return append(result, items...)
	}

	j := 0
	for _, item := range items {
		k := key(item)
		// Skip removal keys below k; they have no match in items.
		for j < len(remove) && remove[j] < k {
			j++
		}
		if j < len(remove) && remove[j] == k {
			continue
		}
		result = append(result, item)
	}
	return result
}

// Union merges two ascending key lists into one strictly ascending list.
// Duplicates within and across the inputs are collapsed.
func Union[K cmp.Ordered](a, b []K) []K {
	result := make([]K, 0, len(a)+len(b))
	push := func(k K) {
		if n := len(result); n > 0 && result[n-1] == k {
			return
		}
		result = append(result, k)
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			push(a[i])
			i++
		case b[j] < a[i]:
			push(b[j])
			j++
		default:
			push(a[i])
			i++
			j++
		}
	}
	for ; i < len(a); i++ {
		push(a[i])
	}
	for ; j < len(b); j++ {
		push(b[j])
	}
	return result
}

// Normalize returns a sorted copy of keys with duplicates removed.
func Normalize[K cmp.Ordered](keys []K) []K {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Validate returns a validation error unless keys is strictly ascending.
func Validate[K cmp.Ordered](keys []K) error {
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return errs.Errorf(errs.Validation, "revset.Validate",
				"keys not strictly ascending at index %d: %v after %v", i, keys[i], keys[i-1])
		}
	}
	return nil
}
