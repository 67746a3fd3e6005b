package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// ctxCheckEvery bounds how many iterations run between cancellation checks.
const ctxCheckEvery = 32

// AnnealConfig controls route refinement.
type AnnealConfig struct {
	Iterations    int     // 0 keeps the construction route
	InitialTemp   float64 // starting temperature
	Cooling       float64 // geometric factor applied after every iteration, in (0,1)
	TunnelDecay   float64 // non-local move probability is exp(-t/TunnelDecay)
	SnapshotEvery int     // 0 disables snapshots
	Polish        bool    // run 2-opt over the best route after annealing
}

func DefaultAnnealConfig() AnnealConfig {
	return AnnealConfig{
		Iterations:    1000,
		InitialTemp:   1000,
		Cooling:       0.95,
		TunnelDecay:   100,
		SnapshotEvery: 100,
	}
}

func (c AnnealConfig) withDefaults() AnnealConfig {
	d := DefaultAnnealConfig()
	if c.Iterations < 0 {
		c.Iterations = 0
	}
	if c.InitialTemp <= 0 {
		c.InitialTemp = d.InitialTemp
	}
	if c.Cooling <= 0 || c.Cooling >= 1 {
		c.Cooling = d.Cooling
	}
	if c.TunnelDecay <= 0 {
		c.TunnelDecay = d.TunnelDecay
	}
	return c
}

// BuildGreedy orders locations nearest-neighbour first, starting from
// locations[0]. Ties go to the earliest remaining location. Two or fewer
// locations come back in input order.
func BuildGreedy(locations []model.Location) []model.Location {
	out := make([]model.Location, 0, len(locations))
	if len(locations) <= 2 {
		return append(out, locations...)
	}
	remaining := append([]model.Location(nil), locations[1:]...)
	cur := locations[0]
	out = append(out, cur)
	for len(remaining) > 0 {
		best := 0
		bestKm := geo.Distance(cur.Coordinate, remaining[0].Coordinate)
		for i := 1; i < len(remaining); i++ {
			if d := geo.Distance(cur.Coordinate, remaining[i].Coordinate); d < bestKm {
				best, bestKm = i, d
			}
		}
		cur = remaining[best]
		out = append(out, cur)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}

// Refine anneals the greedy route and returns the shortest order seen.
//
// The working route moves by one swap per iteration: early on mostly swaps of
// two arbitrary positions, later mostly adjacent swaps. Shorter candidates are
// always taken; others are taken with probability exp(-delta/T). When ctx is
// cancelled the best route so far is returned together with the error.
func Refine(ctx context.Context, locations []model.Location, cfg AnnealConfig, rng *rand.Rand) (model.RouteResult, Metrics, error) {
	cfg = cfg.withDefaults()
	current := BuildGreedy(locations)
	currentKm := geo.PathKm(current)
	m := Metrics{
		InitialKm: currentKm,
		BestKm:    currentKm,
		FinalKm:   currentKm,
		InitTemp:  cfg.InitialTemp,
		Cooling:   cfg.Cooling,
	}
	n := len(current)
	if n < 2 || cfg.Iterations == 0 {
		return routeResult(current, currentKm, currentKm), m, nil
	}

	best := append([]model.Location(nil), current...)
	bestKm := currentKm
	cand := make([]model.Location, n)
	temp := cfg.InitialTemp
	var err error
	for t := 0; t < cfg.Iterations; t++ {
		if t%ctxCheckEvery == 0 {
			if err = ctx.Err(); err != nil {
				m.Truncated = true
				break
			}
		}
		copy(cand, current)
		if rng.Float64() < math.Exp(-float64(t)/cfg.TunnelDecay) {
			i := rng.Intn(n)
			j := rng.Intn(n - 1)
			if j >= i {
				j++
			}
			cand[i], cand[j] = cand[j], cand[i]
			m.TunnelMoves++
		} else {
			i := rng.Intn(n - 1)
			cand[i], cand[i+1] = cand[i+1], cand[i]
			m.LocalMoves++
		}

		candKm := geo.PathKm(cand)
		accept := candKm < currentKm
		if !accept && rng.Float64() < math.Exp(-(candKm-currentKm)/temp) {
			accept = true
			m.AcceptedWorse++
		}
		if accept {
			current, cand = cand, current
			currentKm = candKm
			if currentKm < bestKm {
				copy(best, current)
				bestKm = currentKm
				m.Improvements++
			}
		} else {
			m.Rejected++
		}
		temp *= cfg.Cooling
		m.Iterations++
		if cfg.SnapshotEvery > 0 && m.Iterations%cfg.SnapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, TempSnapshot{Iteration: m.Iterations, Temperature: temp, CurrentKm: currentKm, BestKm: bestKm})
		}
	}
	m.FinalKm = currentKm

	if cfg.Polish && err == nil {
		best, err = ImproveOrder2Opt(ctx, best, 0)
		if err != nil {
			m.Truncated = true
		}
		bestKm = geo.PathKm(best)
	}
	m.BestKm = bestKm
	res := routeResult(best, bestKm, m.InitialKm)
	if err != nil {
		return res, m, fmt.Errorf("refine route: %w", err)
	}
	return res, m, nil
}

func routeResult(stops []model.Location, km, greedyKm float64) model.RouteResult {
	if stops == nil {
		stops = []model.Location{}
	}
	return model.RouteResult{Stops: stops, TotalDistanceKm: km, GreedyDistanceKm: greedyKm}
}
