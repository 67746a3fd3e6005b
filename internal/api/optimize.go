package api

import (
    "context"
    "errors"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"

    "fieldroute/internal/geo"
    "fieldroute/internal/metrics"
    "fieldroute/internal/model"
    "fieldroute/internal/opt"
    "fieldroute/internal/store"
)

type routeResponse struct {
    RunID string `json:"runId"`
    model.RouteResult
    Metrics opt.Metrics `json:"metrics"`
}

type assignmentResponse struct {
    RunID string `json:"runId"`
    model.AssignmentResult
}

// optionsFor overlays the tenant's stored optimizer config on the service defaults.
func (s *Server) optionsFor(ctx context.Context, tenant string) opt.Options {
    o := s.Engine.Options()
    cfg, err := s.Store.GetOptimizerConfig(ctx, tenant)
    if err != nil {
        log.Printf("[API] optimizer config tenant=%s: %v", tenant, err)
        return o
    }
    if cfg == nil {
        return o
    }
    if cfg.Iterations > 0 { o.Anneal.Iterations = cfg.Iterations }
    if cfg.InitialTemp > 0 { o.Anneal.InitialTemp = cfg.InitialTemp }
    if cfg.Cooling > 0 { o.Anneal.Cooling = cfg.Cooling }
    if cfg.TunnelDecay > 0 { o.Anneal.TunnelDecay = cfg.TunnelDecay }
    if cfg.AffinityNoise != nil { o.AffinityNoise = *cfg.AffinityNoise }
    if cfg.SpeedKph > 0 { o.SpeedKph = cfg.SpeedKph }
    if cfg.Polish != nil { o.Anneal.Polish = *cfg.Polish }
    if cfg.TimeBudgetMs > 0 { o.TimeBudget = time.Duration(cfg.TimeBudgetMs) * time.Millisecond }
    return o
}

func effectiveConfig(o opt.Options) model.OptimizerConfig {
    noise, polish := o.AffinityNoise, o.Anneal.Polish
    return model.OptimizerConfig{
        Iterations:    o.Anneal.Iterations,
        InitialTemp:   o.Anneal.InitialTemp,
        Cooling:       o.Anneal.Cooling,
        TunnelDecay:   o.Anneal.TunnelDecay,
        AffinityNoise: &noise,
        SpeedKph:      o.SpeedKph,
        Polish:        &polish,
        TimeBudgetMs:  int(o.TimeBudget / time.Millisecond),
    }
}

// optimizeFailed maps engine errors: a caller that went away gets 503, anything else 500.
func optimizeFailed(w http.ResponseWriter, r *http.Request, kind string, err error) {
    if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
        metrics.OptimizationRuns.WithLabelValues(kind, "cancelled").Inc()
        writeProblem(w, http.StatusServiceUnavailable, "Optimization cancelled", err.Error(), r.URL.Path)
        return
    }
    metrics.OptimizationRuns.WithLabelValues(kind, "error").Inc()
    writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
}

// OptimizeRouteHandler handles POST /v1/optimize/route
func (s *Server) OptimizeRouteHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.authorize(w, r, Principal.CanDispatch, "dispatcher or admin")
    if !ok { return }
    var req model.RouteOptimizeRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateRouteRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid route request", err.Error(), r.URL.Path)
        return
    }
    opts := s.optionsFor(r.Context(), p.Tenant)
    if req.Iterations != nil { opts.Anneal.Iterations = *req.Iterations }

    start := time.Now()
    res, m, err := s.Engine.RouteWith(r.Context(), req.Locations, opts, req.Seed)
    metrics.OptimizationDuration.WithLabelValues(model.RunKindRoute).Observe(time.Since(start).Seconds())
    if err != nil {
        optimizeFailed(w, r, model.RunKindRoute, err)
        return
    }
    metrics.OptimizationRuns.WithLabelValues(model.RunKindRoute, "ok").Inc()
    metrics.RouteDistanceKm.Observe(res.TotalDistanceKm)
    metrics.RouteSavedKm.Observe(res.SavedKm())

    run := model.Run{
        ID:        uuid.NewString(),
        TenantID:  p.Tenant,
        Kind:      model.RunKindRoute,
        Seed:      req.Seed,
        CreatedAt: time.Now().UTC(),
        Result: model.AssignmentResult{
            Assignments: map[string]string{},
            Plans:       []model.TeamPlan{{Route: res}},
            TotalDistanceKm: res.TotalDistanceKm,
        },
    }
    s.recordRun(r.Context(), run, map[string]opt.Metrics{"": m})
    s.Pub.Emit(r.Context(), p.Tenant, model.EventRouteOptimized, map[string]any{
        "runId": run.ID, "stops": len(res.Stops), "totalDistanceKm": res.TotalDistanceKm, "savedKm": res.SavedKm(),
    })
    if strings.EqualFold(r.URL.Query().Get("format"), "geojson") {
        writeGeoJSON(w, http.StatusOK, geo.RouteCollection(res))
        return
    }
    writeJSON(w, http.StatusOK, routeResponse{RunID: run.ID, RouteResult: res, Metrics: m})
}

// claimJobs marks each matched store job assigned. A job another run took in
// the meantime is dropped from res and its team becomes unassigned.
func (s *Server) claimJobs(ctx context.Context, tenant string, res *model.AssignmentResult) {
    lost := map[string]bool{}
    for _, pl := range res.Plans {
        if pl.JobID == "" { continue }
        _, err := s.Store.ClaimJob(ctx, tenant, pl.JobID, pl.TeamID)
        switch {
        case err == nil:
        case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
            log.Printf("[API] job %s no longer pending, dropping it from team %s", pl.JobID, pl.TeamID)
            lost[pl.TeamID] = true
        default:
            log.Printf("[API] claim job %s: %v", pl.JobID, err)
        }
    }
    if len(lost) == 0 { return }

    pairs := res.Pairs[:0]
    for _, pr := range res.Pairs {
        if !lost[pr.TeamID] { pairs = append(pairs, pr) }
    }
    res.Pairs = pairs
    res.UnassignedTeams = []string{}
    res.TotalDistanceKm = 0
    for i := range res.Plans {
        pl := &res.Plans[i]
        if lost[pl.TeamID] {
            delete(res.Assignments, pl.TeamID)
            pl.JobID = ""
            pl.Route = model.RouteResult{Stops: []model.Location{}}
        }
        if pl.JobID == "" {
            res.UnassignedTeams = append(res.UnassignedTeams, pl.TeamID)
        }
        res.TotalDistanceKm += pl.Route.TotalDistanceKm
    }
}

// OptimizeAssignmentHandler handles POST /v1/optimize/assignment. Teams and
// jobs default to the tenant's stored teams and pending jobs.
func (s *Server) OptimizeAssignmentHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.authorize(w, r, Principal.CanDispatch, "dispatcher or admin")
    if !ok { return }
    var req model.AssignmentOptimizeRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateAssignmentRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid assignment request", err.Error(), r.URL.Path)
        return
    }
    ctx := r.Context()
    fromStore := false
    if len(req.Teams) == 0 {
        teams, err := s.Store.ListTeams(ctx, p.Tenant)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "List teams failed", err.Error(), r.URL.Path); return }
        req.Teams = teams
    }
    if len(req.Jobs) == 0 {
        jobs, err := s.Store.ListJobs(ctx, p.Tenant, model.JobPending)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path); return }
        req.Jobs = jobs
        fromStore = true
    }

    opts := s.optionsFor(ctx, p.Tenant)
    if req.Iterations != nil { opts.Anneal.Iterations = *req.Iterations }
    if req.AffinityNoise != nil { opts.AffinityNoise = *req.AffinityNoise }
    if req.TimeBudgetMs > 0 { opts.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond }

    start := time.Now()
    rep, err := s.Engine.AssignWith(ctx, req.Teams, req.Jobs, opts, req.Seed)
    metrics.OptimizationDuration.WithLabelValues(model.RunKindAssignment).Observe(time.Since(start).Seconds())
    if err != nil {
        optimizeFailed(w, r, model.RunKindAssignment, err)
        return
    }
    res := rep.Result
    if fromStore {
        s.claimJobs(ctx, p.Tenant, &res)
    }
    metrics.OptimizationRuns.WithLabelValues(model.RunKindAssignment, "ok").Inc()
    metrics.AssignmentUnassigned.WithLabelValues("teams").Set(float64(len(res.UnassignedTeams)))
    metrics.AssignmentUnassigned.WithLabelValues("jobs").Set(float64(len(res.UnassignedJobs)))
    for _, pl := range res.Plans {
        if pl.JobID != "" { metrics.RouteDistanceKm.Observe(pl.Route.TotalDistanceKm) }
    }

    run := model.Run{ID: uuid.NewString(), TenantID: p.Tenant, Kind: model.RunKindAssignment, Seed: req.Seed, CreatedAt: time.Now().UTC(), Result: res}
    s.recordRun(ctx, run, rep.Metrics)

    for _, pl := range res.Plans {
        if pl.JobID == "" { continue }
        s.publishTeam(p.Tenant, pl.TeamID, SSEEvent{Type: model.EventAssignmentCreated, Data: map[string]any{
            "runId": run.ID, "teamId": pl.TeamID, "jobId": pl.JobID, "route": pl.Route,
        }})
    }
    s.Pub.Emit(ctx, p.Tenant, model.EventAssignmentCompleted, map[string]any{
        "runId": run.ID, "assignments": res.Assignments, "unassignedTeams": res.UnassignedTeams, "unassignedJobs": res.UnassignedJobs,
    })
    writeJSON(w, http.StatusOK, assignmentResponse{RunID: run.ID, AssignmentResult: res})
}

// recordRun stores the run and its per-team annealing metrics. Failures are
// logged; the caller already has its result.
func (s *Server) recordRun(ctx context.Context, run model.Run, byTeam map[string]opt.Metrics) {
    if err := s.Store.SaveRun(ctx, run); err != nil {
        log.Printf("[STORE] save run %s: %v", run.ID, err)
        return
    }
    rows := make([]model.PlanMetrics, 0, len(byTeam))
    for teamID, m := range byTeam {
        rows = append(rows, model.PlanMetrics{
            RunID: run.ID, TeamID: teamID, Kind: run.Kind,
            Iterations: m.Iterations, Improvements: m.Improvements, AcceptedWorse: m.AcceptedWorse, Rejected: m.Rejected,
            TunnelMoves: m.TunnelMoves, LocalMoves: m.LocalMoves,
            InitialKm: m.InitialKm, BestKm: m.BestKm, FinalKm: m.FinalKm, InitTemp: m.InitTemp, Cooling: m.Cooling,
            CreatedAt: run.CreatedAt,
        })
    }
    if len(rows) == 0 { return }
    if err := s.Store.SavePlanMetrics(ctx, run.TenantID, rows); err != nil {
        log.Printf("[STORE] save plan metrics %s: %v", run.ID, err)
    }
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/runs" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authorize(w, r, Principal.CanDispatch, "dispatcher or admin")
    if !ok { return }
    items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryInt(r, "limit", 50))
    if err != nil { writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "missing id", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authorize(w, r, Principal.CanDispatch, "dispatcher or admin")
    if !ok { return }
    run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Run not found", "", r.URL.Path); return }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path); return }
    if strings.EqualFold(r.URL.Query().Get("format"), "geojson") {
        writeGeoJSON(w, http.StatusOK, geo.AssignmentCollection(run.Result))
        return
    }
    writeJSON(w, http.StatusOK, run)
}
