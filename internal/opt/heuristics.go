package opt

import (
	"context"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// ImproveOrder2Opt reverses segments of an open path while that shortens it.
// The first stop stays in place. rounds <= 0 runs until no segment helps.
// When ctx is done the best order so far is returned with ctx's error.
func ImproveOrder2Opt(ctx context.Context, stops []model.Location, rounds int) ([]model.Location, error) {
	best := append([]model.Location(nil), stops...)
	n := len(best)
	if n < 4 {
		return best, nil
	}
	dist := func(a, b int) float64 { return geo.Distance(best[a].Coordinate, best[b].Coordinate) }
	for it := 0; rounds <= 0 || it < rounds; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			if err := ctx.Err(); err != nil {
				return best, err
			}
			for k := i + 1; k < n; k++ {
				// reversing best[i..k] swaps edges (i-1,i),(k,k+1) for (i-1,k),(i,k+1)
				delta := dist(i-1, k) - dist(i-1, i)
				if k+1 < n {
					delta += dist(i, k+1) - dist(k, k+1)
				}
				if delta < -1e-9 {
					reverse(best[i : k+1])
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best, nil
}

func reverse(s []model.Location) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
