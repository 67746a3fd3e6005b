package geo

import (
	"math"
	"sort"

	"github.com/tidwall/rtree"

	"fieldroute/internal/model"
)

// Index answers radius queries over a fixed snapshot of positioned items.
// Points are stored as (lng, lat). Boxes do not wrap the antimeridian.
type Index[T any] struct {
	tr    rtree.RTreeG[int]
	items []T
	pos   []model.Coordinate
}

// Hit is one radius query result.
type Hit[T any] struct {
	Item       T
	DistanceKm float64
}

func NewIndex[T any](items []T, at func(T) model.Coordinate) *Index[T] {
	ix := &Index[T]{items: items, pos: make([]model.Coordinate, len(items))}
	for i, it := range items {
		c := at(it)
		ix.pos[i] = c
		p := [2]float64{c.Lng, c.Lat}
		ix.tr.Insert(p, p, i)
	}
	return ix
}

func (ix *Index[T]) Len() int { return ix.tr.Len() }

// Within returns items no farther than radiusKm from center, nearest first.
// limit <= 0 means no limit.
func (ix *Index[T]) Within(center model.Coordinate, radiusKm float64, limit int) []Hit[T] {
	if radiusKm < 0 {
		return nil
	}
	min, max := boundingBox(center, radiusKm)
	var hits []Hit[T]
	ix.tr.Search(min, max, func(_, _ [2]float64, i int) bool {
		d := Distance(center, ix.pos[i])
		if d <= radiusKm {
			hits = append(hits, Hit[T]{Item: ix.items[i], DistanceKm: d})
		}
		return true
	})
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].DistanceKm < hits[b].DistanceKm })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func boundingBox(c model.Coordinate, radiusKm float64) (min, max [2]float64) {
	ang := radiusKm / earthRadiusKm
	dLat := ang * 180 / math.Pi
	dLng := 180.0
	// a cap that reaches a pole spans every longitude
	if c.Lat+dLat < 90 && c.Lat-dLat > -90 {
		if s := math.Sin(ang) / math.Cos(c.Lat*math.Pi/180); s < 1 {
			dLng = math.Asin(s) * 180 / math.Pi
		}
	}
	min = [2]float64{c.Lng - dLng, math.Max(-90, c.Lat-dLat)}
	max = [2]float64{c.Lng + dLng, math.Min(90, c.Lat+dLat)}
	return min, max
}
