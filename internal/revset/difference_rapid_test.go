package revset

import (
	"slices"
	"testing"

	"pgregory.net/rapid"
)

// --- Generators ---

func genAscendingKeys(max int) *rapid.Generator[[]int] {
	return rapid.Custom(func(t *rapid.T) []int {
		keys := rapid.SliceOfN(rapid.IntRange(0, max), 0, 60).Draw(t, "keys")
		return Normalize(keys)
	})
}

func genSortedWithDuplicates(max int) *rapid.Generator[[]int] {
	return rapid.Custom(func(t *rapid.T) []int {
		keys := rapid.SliceOfN(rapid.IntRange(0, max), 0, 60).Draw(t, "keys")
		slices.Sort(keys)
		return keys
	})
}

// --- Property Tests ---

func TestRapidDifference_MatchesNaiveFilter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := genAscendingKeys(100).Draw(t, "pairs")
		remove := genSortedWithDuplicates(100).Draw(t, "remove")
		pairs := pairsOf(keys...)

		got := Difference(pairs, remove)

		want := make([]Pair[int, string], 0, len(pairs))
		for _, p := range pairs {
			if !slices.Contains(remove, p.Key) {
				want = append(want, p)
			}
		}
		if !slices.Equal(got, want) {
			t.Fatalf("Difference(%v, %v) = %v, expected %v", keys, remove, got, want)
		}
	})
}

func TestRapidDifference_OutputAscending(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pairs := pairsOf(genAscendingKeys(50).Draw(t, "pairs")...)
		remove := genAscendingKeys(50).Draw(t, "remove")

		got := Difference(pairs, remove)
		keys := make([]int, len(got))
		for i, p := range got {
			keys[i] = p.Key
		}
		if err := Validate(keys); err != nil {
			t.Fatalf("result keys not strictly ascending: %v", keys)
		}
	})
}

func TestRapidDifference_RemovingEverythingIsEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := genAscendingKeys(100).Draw(t, "keys")
		extra := genAscendingKeys(100).Draw(t, "extra")

		got := Difference(pairsOf(keys...), Union(keys, extra))
		if len(got) != 0 {
			t.Fatalf("expected empty result, got %v", got)
		}
	})
}

func TestRapidUnion_StrictlyAscendingSuperset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genSortedWithDuplicates(40).Draw(t, "a")
		b := genSortedWithDuplicates(40).Draw(t, "b")

		got := Union(a, b)
		if err := Validate(got); err != nil {
			t.Fatalf("Union(%v, %v) = %v not strictly ascending", a, b, got)
		}
		want := Normalize(append(slices.Clone(a), b...))
		if !slices.Equal(got, want) {
			t.Fatalf("Union(%v, %v) = %v, expected %v", a, b, got, want)
		}
	})
}
