// Package sample provides deterministic down-sampling of dataset items.
//
// Sampling is reproducible: the same (seed, rate) pair always selects the
// same subset. Stratified sampling draws independently within each category
// so every category keeps roughly the same proportion.
package sample

import (
	"fmt"
	"math"
	"math/rand"
)

// CategoryStats records how many items a category had and how many survived
// sampling.
type CategoryStats struct {
	Total   int
	Sampled int
}

// Mask returns a deterministic selection mask of length n with
// round(n*rate) entries set to true.
func Mask(seed int64, n int, rate float64) ([]bool, error) {
	if rate < 0.0 || rate > 1.0 {
		return nil, fmt.Errorf("sampling rate must be between 0.0 and 1.0, got %v", rate)
	}
	if n <= 0 {
		return nil, fmt.Errorf("data size must be positive, got %d", n)
	}

	rng := rand.New(rand.NewSource(seed))
	indices := rng.Perm(n)

	count := int(math.Round(float64(n) * rate))
	mask := make([]bool, n)
	for _, idx := range indices[:count] {
		mask[idx] = true
	}
	return mask, nil
}

// Items samples a slice, preserving the original order of the survivors.
func Items[T any](items []T, seed int64, rate float64) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if rate >= 1.0 {
		out := make([]T, len(items))
		copy(out, items)
		return out, nil
	}
	if rate <= 0.0 {
		return nil, nil
	}

	mask, err := Mask(seed, len(items), rate)
	if err != nil {
		return nil, err
	}
	var out []T
	for i, keep := range mask {
		if keep {
			out = append(out, items[i])
		}
	}
	return out, nil
}

// ByCategory samples each category independently with the same seed, so each
// category retains roughly the requested proportion. Survivors keep their
// original relative order.
func ByCategory[T any](items []T, category func(T) string, seed int64, rate float64) ([]T, map[string]CategoryStats, error) {
	groups := make(map[string][]T)
	var order []string
	for _, item := range items {
		cat := category(item)
		if _, seen := groups[cat]; !seen {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], item)
	}

	stats := make(map[string]CategoryStats, len(groups))
	var out []T
	for _, cat := range order {
		group := groups[cat]
		sampled, err := Items(group, seed, rate)
		if err != nil {
			return nil, nil, fmt.Errorf("sampling category %q: %w", cat, err)
		}
		stats[cat] = CategoryStats{Total: len(group), Sampled: len(sampled)}
		out = append(out, sampled...)
	}
	return out, stats, nil
}
