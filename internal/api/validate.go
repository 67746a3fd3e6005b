package api

import (
	"fmt"
	"math"

	"fieldroute/internal/model"
)

const (
	maxIterations = 1_000_000
	maxLocations  = 5000
	maxTimeBudget = 60_000
)

func validateIterations(it *int) error {
	if it == nil {
		return nil
	}
	if *it < 0 || *it > maxIterations {
		return fmt.Errorf("iterations must be in [0,%d]", maxIterations)
	}
	return nil
}

func validateCoordinate(what string, c model.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%s: coordinates must be finite", what)
	}
	return nil
}

func validateRouteRequest(req *model.RouteOptimizeRequest) error {
	if len(req.Locations) > maxLocations {
		return fmt.Errorf("at most %d locations allowed", maxLocations)
	}
	for i, l := range req.Locations {
		if err := validateCoordinate(fmt.Sprintf("locations[%d]", i), l.Coordinate); err != nil {
			return err
		}
	}
	return validateIterations(req.Iterations)
}

func validateAssignmentRequest(req *model.AssignmentOptimizeRequest) error {
	if err := validateIterations(req.Iterations); err != nil {
		return err
	}
	if req.TimeBudgetMs < 0 || req.TimeBudgetMs > maxTimeBudget {
		return fmt.Errorf("timeBudgetMs must be in [0,%d]", maxTimeBudget)
	}
	if err := validateTeams(req.Teams); err != nil {
		return err
	}
	return validateJobs(req.Jobs)
}

// Ids key the assignment map, so they must be present and unique.
func validateTeams(teams []model.Team) error {
	seen := make(map[string]bool, len(teams))
	for i, t := range teams {
		if t.ID == "" {
			return fmt.Errorf("teams[%d]: id required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate team id %s", t.ID)
		}
		seen[t.ID] = true
		if err := validateCoordinate("team "+t.ID, t.Location.Coordinate); err != nil {
			return err
		}
	}
	return nil
}

func validateJobs(jobs []model.Job) error {
	seen := make(map[string]bool, len(jobs))
	for i, j := range jobs {
		if j.ID == "" {
			return fmt.Errorf("jobs[%d]: id required", i)
		}
		if seen[j.ID] {
			return fmt.Errorf("duplicate job id %s", j.ID)
		}
		seen[j.ID] = true
		if err := validateCoordinate("job "+j.ID, j.Location.Coordinate); err != nil {
			return err
		}
	}
	return nil
}

func validateOptimizerConfig(c *model.OptimizerConfig) error {
	switch {
	case c.Iterations < 0 || c.Iterations > maxIterations:
		return fmt.Errorf("iterations must be in [0,%d]", maxIterations)
	case c.Cooling != 0 && (c.Cooling <= 0 || c.Cooling >= 1):
		return fmt.Errorf("cooling must be in (0,1)")
	case c.InitialTemp < 0:
		return fmt.Errorf("initialTemp must be >= 0")
	case c.TunnelDecay < 0:
		return fmt.Errorf("tunnelDecay must be >= 0")
	case c.SpeedKph < 0:
		return fmt.Errorf("speedKph must be >= 0")
	case c.TimeBudgetMs < 0 || c.TimeBudgetMs > maxTimeBudget:
		return fmt.Errorf("timeBudgetMs must be in [0,%d]", maxTimeBudget)
	}
	return nil
}
