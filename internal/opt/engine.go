package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// Options configures one optimisation call.
type Options struct {
	Anneal        AnnealConfig
	AffinityNoise bool
	SpeedKph      float64
	TimeBudget    time.Duration // 0 means no budget
}

func DefaultOptions() Options {
	return Options{Anneal: DefaultAnnealConfig(), AffinityNoise: true, SpeedKph: 50}
}

// Report is an assignment result plus per-team annealing metrics.
type Report struct {
	Result  model.AssignmentResult
	Metrics map[string]Metrics // keyed by team id
	Total   Metrics
}

// Engine binds teams to jobs and orders each team's stops. It is safe for
// concurrent use; every call draws its own generator from the Seeder.
type Engine struct {
	opts  Options
	seeds *Seeder
}

func NewEngine(seed int64, opts Options) *Engine {
	return &Engine{opts: opts, seeds: NewSeeder(seed)}
}

func (e *Engine) Options() Options { return e.opts }

// Rand returns a generator pinned to seed, or the next derived one when seed is 0.
func (e *Engine) Rand(seed int64) *rand.Rand {
	if seed != 0 {
		return NewRand(seed)
	}
	return e.seeds.Next()
}

// OptimizeRoute orders locations; iterations overrides the configured count when non-nil.
func (e *Engine) OptimizeRoute(ctx context.Context, locations []model.Location, iterations *int) (model.RouteResult, error) {
	opts := e.opts
	if iterations != nil {
		opts.Anneal.Iterations = *iterations
	}
	res, _, err := e.RouteWith(ctx, locations, opts, 0)
	return res, err
}

// OptimizeAssignment matches teams to jobs and routes each matched team.
func (e *Engine) OptimizeAssignment(ctx context.Context, teams []model.Team, jobs []model.Job) (model.AssignmentResult, error) {
	rep, err := e.AssignWith(ctx, teams, jobs, e.opts, 0)
	return rep.Result, err
}

// RouteWith is OptimizeRoute under per-call options. A non-zero seed pins
// the generator.
func (e *Engine) RouteWith(ctx context.Context, locations []model.Location, opts Options, seed int64) (model.RouteResult, Metrics, error) {
	return Route(ctx, locations, opts, e.Rand(seed))
}

// AssignWith is OptimizeAssignment under per-call options, keeping metrics.
func (e *Engine) AssignWith(ctx context.Context, teams []model.Team, jobs []model.Job, opts Options, seed int64) (Report, error) {
	return Assign(ctx, teams, jobs, opts, e.Rand(seed))
}

// Route refines one stop list under opts and fills in drive time.
func Route(ctx context.Context, locations []model.Location, opts Options, rng *rand.Rand) (model.RouteResult, Metrics, error) {
	ctx, cancel, budgeted := withBudget(ctx, opts.TimeBudget)
	defer cancel()
	res, m, err := Refine(ctx, locations, opts.Anneal, rng)
	res.DriveMinutes = geo.DriveMinutes(res.TotalDistanceKm, opts.SpeedKph)
	if budgeted(err) {
		err = nil
	}
	return res, m, err
}

// Assign runs the whole pipeline: affinity, collapse, then one route per
// matched team made of the team's position and its job. Every team gets a
// plan in input order; unmatched teams have an empty route.
func Assign(ctx context.Context, teams []model.Team, jobs []model.Job, opts Options, rng *rand.Rand) (Report, error) {
	ctx, cancel, budgeted := withBudget(ctx, opts.TimeBudget)
	defer cancel()

	rep := Report{
		Result: model.AssignmentResult{
			Assignments:     map[string]string{},
			Pairs:           []model.AssignmentPair{},
			Plans:           make([]model.TeamPlan, len(teams)),
			UnassignedTeams: []string{},
			UnassignedJobs:  []string{},
		},
		Metrics: map[string]Metrics{},
	}
	for i, t := range teams {
		rep.Result.Plans[i] = model.TeamPlan{TeamID: t.ID, Route: routeResult(nil, 0, 0)}
	}

	var pairs []Pair
	var total float64
	if len(teams) > 0 && len(jobs) > 0 {
		var noise *rand.Rand
		if opts.AffinityNoise {
			noise = rng
		}
		scores := AffinityMatrix(teams, jobs, noise)
		for _, row := range scores {
			for _, v := range row {
				if v > 0 {
					total += v
				}
			}
		}
		pairs = Collapse(scores)
	}

	jobOf := make(map[int]int, len(pairs))
	jobTaken := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		jobOf[p.Team] = p.Job
		jobTaken[p.Job] = true
		share := 0.0
		if total > 0 {
			share = p.Score / total
		}
		rep.Result.Assignments[teams[p.Team].ID] = jobs[p.Job].ID
		rep.Result.Pairs = append(rep.Result.Pairs, model.AssignmentPair{
			TeamID: teams[p.Team].ID, JobID: jobs[p.Job].ID, Affinity: p.Score, Share: share,
		})
	}
	for j, jb := range jobs {
		if !jobTaken[j] {
			rep.Result.UnassignedJobs = append(rep.Result.UnassignedJobs, jb.ID)
		}
	}

	for i, t := range teams {
		j, ok := jobOf[i]
		if !ok {
			rep.Result.UnassignedTeams = append(rep.Result.UnassignedTeams, t.ID)
			continue
		}
		stops := []model.Location{teamStop(t), jobStop(jobs[j])}
		res, m, err := Refine(ctx, stops, opts.Anneal, rng)
		res.DriveMinutes = geo.DriveMinutes(res.TotalDistanceKm, opts.SpeedKph)
		rep.Result.Plans[i] = model.TeamPlan{TeamID: t.ID, JobID: jobs[j].ID, Route: res}
		rep.Result.TotalDistanceKm += res.TotalDistanceKm
		rep.Metrics[t.ID] = m
		rep.Total.Add(m)
		if err != nil {
			if budgeted(err) {
				continue
			}
			return rep, fmt.Errorf("route team %s: %w", t.ID, err)
		}
	}
	return rep, nil
}

// withBudget derives a deadline context for a non-zero budget. The returned
// predicate reports whether an error came from that budget rather than the caller.
func withBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc, func(error) bool) {
	if budget <= 0 {
		return ctx, func() {}, func(error) bool { return false }
	}
	parent := ctx
	bctx, cancel := context.WithTimeout(ctx, budget)
	return bctx, cancel, func(err error) bool {
		return err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
	}
}

func teamStop(t model.Team) model.Location {
	loc := t.Location
	if loc.ID == "" {
		loc.ID = t.ID
	}
	if loc.Label == "" {
		loc.Label = t.Name
	}
	return loc
}

func jobStop(j model.Job) model.Location {
	loc := j.Location
	if loc.ID == "" {
		loc.ID = j.ID
	}
	if loc.Label == "" {
		loc.Label = j.Title
	}
	return loc
}
