// Package ranking orders points of interest by great-circle distance from an
// origin.
package ranking

import (
	"cmp"
	"slices"

	"campus-server/geo"
)

// All asks Rank for the full sorted list.
const All = 0

// Common result sizes used by the client: the highlighted "closest markers"
// and the single "closest monument".
const (
	ClosestMarkers  = 3
	ClosestMonument = 1
)

// Located is anything with a position on the map.
type Located interface {
	Point() geo.Point
}

// Ranked pairs an item with its distance from the ranking origin.
type Ranked[T any] struct {
	Item       T       `json:"item"`
	DistanceKm float64 `json:"distance_km"`
}

// Rank returns items ordered by ascending distance from origin. Items at the
// same distance keep their input order. k <= 0 returns every item; otherwise
// at most k are returned. An empty input yields an empty, non-nil slice.
func Rank[T Located](origin geo.Point, items []T, k int) ([]Ranked[T], error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}

	ranked := make([]Ranked[T], 0, len(items))
	for _, item := range items {
		d, err := geo.DistanceKm(origin, item.Point())
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, Ranked[T]{Item: item, DistanceKm: d})
	}

	slices.SortStableFunc(ranked, func(a, b Ranked[T]) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})

	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}

