package api

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"

    "fieldroute/internal/metrics"
    "fieldroute/internal/model"
    "fieldroute/internal/store"
)

const triangleBody = `{"locations":[{"id":"A","lat":0,"lng":0},{"id":"B","lat":0,"lng":1},{"id":"C","lat":0,"lng":0.5}],"iterations":0,"seed":1}`

func stopIDs(stops []model.Location) string {
    ids := make([]string, len(stops))
    for i, s := range stops { ids[i] = s.ID }
    return strings.Join(ids, ",")
}

func TestOptimizeRouteTriangle(t *testing.T) {
    s := newTestServer(t)
    rr := call(s.OptimizeRouteHandler, http.MethodPost, "/v1/optimize/route", triangleBody)
    if rr.Code != 200 { t.Fatalf("route: %d %s", rr.Code, rr.Body.String()) }
    var res routeResponse
    decode(t, rr, &res)
    if got := stopIDs(res.Stops); got != "A,C,B" { t.Fatalf("order: got %s, want A,C,B", got) }
    if res.TotalDistanceKm < 111 || res.TotalDistanceKm > 111.4 { t.Fatalf("distance: %v", res.TotalDistanceKm) }
    if res.RunID == "" { t.Fatal("missing run id") }
    if res.DriveMinutes <= 0 { t.Fatalf("drive minutes: %v", res.DriveMinutes) }

    var runs struct{ Items []model.Run `json:"items"` }
    decode(t, call(s.RunsHandler, http.MethodGet, "/v1/runs", ""), &runs)
    if len(runs.Items) != 1 || runs.Items[0].ID != res.RunID || runs.Items[0].Kind != model.RunKindRoute { t.Fatalf("runs: %+v", runs.Items) }

    var metrics struct{ Items []model.PlanMetrics `json:"items"` }
    decode(t, call(s.PlanMetricsHandler, http.MethodGet, "/v1/admin/plan-metrics?runId="+res.RunID, ""), &metrics)
    if len(metrics.Items) != 1 || metrics.Items[0].Kind != model.RunKindRoute { t.Fatalf("plan metrics: %+v", metrics.Items) }
}

func TestOptimizeRouteEmptyAndSingle(t *testing.T) {
    s := newTestServer(t)
    var res routeResponse
    decode(t, call(s.OptimizeRouteHandler, http.MethodPost, "/v1/optimize/route", `{"locations":[]}`), &res)
    if len(res.Stops) != 0 || res.TotalDistanceKm != 0 { t.Fatalf("empty: %+v", res.RouteResult) }
    decode(t, call(s.OptimizeRouteHandler, http.MethodPost, "/v1/optimize/route", `{"locations":[{"id":"X","lat":10,"lng":10}]}`), &res)
    if stopIDs(res.Stops) != "X" || res.TotalDistanceKm != 0 { t.Fatalf("single: %+v", res.RouteResult) }
}

func TestOptimizeRouteGeoJSON(t *testing.T) {
    s := newTestServer(t)
    rr := call(s.OptimizeRouteHandler, http.MethodPost, "/v1/optimize/route?format=geojson", triangleBody)
    if rr.Code != 200 { t.Fatalf("route: %d %s", rr.Code, rr.Body.String()) }
    if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" { t.Fatalf("content type %q", ct) }
    var fc struct {
        Type     string `json:"type"`
        Features []struct{ Geometry struct{ Type string `json:"type"` } `json:"geometry"` } `json:"features"`
    }
    decode(t, rr, &fc)
    if fc.Type != "FeatureCollection" || len(fc.Features) == 0 { t.Fatalf("geojson: %s", rr.Body.String()) }
    if fc.Features[0].Geometry.Type != "LineString" { t.Fatalf("first feature should be the path, got %s", fc.Features[0].Geometry.Type) }
}

func TestOptimizeRouteValidation(t *testing.T) {
    s := newTestServer(t)
    cases := map[string]string{
        "negative iterations": `{"locations":[{"lat":0,"lng":0}],"iterations":-1}`,
        "too many iterations": `{"locations":[{"lat":0,"lng":0}],"iterations":2000000}`,
        "malformed":           `{"locations":`,
        "unknown field":       `{"stops":[]}`,
    }
    for name, body := range cases {
        if rr := call(s.OptimizeRouteHandler, http.MethodPost, "/v1/optimize/route", body); rr.Code != http.StatusBadRequest {
            t.Errorf("%s: want 400, got %d", name, rr.Code)
        }
    }
    if rr := call(s.OptimizeRouteHandler, http.MethodGet, "/v1/optimize/route", ""); rr.Code != http.StatusMethodNotAllowed { t.Fatalf("GET: want 405, got %d", rr.Code) }
    if rr := call(s.OptimizeRouteHandler, http.MethodPost, "/v1/optimize/route", triangleBody, "X-Role", "team"); rr.Code != http.StatusForbidden { t.Fatalf("team role: want 403, got %d", rr.Code) }
}

func TestOptimizeRouteCancelled(t *testing.T) {
    s := newTestServer(t)
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    req := httptest.NewRequest(http.MethodPost, "/v1/optimize/route", strings.NewReader(`{"locations":[{"lat":0,"lng":0},{"lat":1,"lng":1},{"lat":2,"lng":0},{"lat":3,"lng":1}]}`)).WithContext(ctx)
    rr := httptest.NewRecorder()
    s.OptimizeRouteHandler(rr, req)
    if rr.Code != http.StatusServiceUnavailable { t.Fatalf("want 503, got %d %s", rr.Code, rr.Body.String()) }
}

func TestOptimizeAssignmentExplicit(t *testing.T) {
    s := newTestServer(t)
    body := `{"affinityNoise":false,"seed":3,
        "teams":[{"id":"T1","location":{"lat":0,"lng":0},"skills":["plumbing"]},{"id":"T2","location":{"lat":0,"lng":1},"skills":["electrical"]},{"id":"T3","location":{"lat":5,"lng":5}}],
        "jobs":[{"id":"J1","location":{"lat":0,"lng":0.01},"requirements":["plumbing"]},{"id":"J2","location":{"lat":0,"lng":1.01},"requirements":["electrical"]}]}`
    rr := call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", body)
    if rr.Code != 200 { t.Fatalf("assign: %d %s", rr.Code, rr.Body.String()) }
    var res assignmentResponse
    decode(t, rr, &res)
    if res.Assignments["T1"] != "J1" || res.Assignments["T2"] != "J2" { t.Fatalf("assignments: %v", res.Assignments) }
    if len(res.UnassignedTeams) != 1 || res.UnassignedTeams[0] != "T3" { t.Fatalf("unassigned teams: %v", res.UnassignedTeams) }
    if len(res.Plans) != 3 { t.Fatalf("plans: %+v", res.Plans) }
    if got := stopIDs(res.Plans[0].Route.Stops); got != "T1,J1" { t.Fatalf("T1 route: %s", got) }
    if len(res.Plans[2].Route.Stops) != 0 || res.Plans[2].Route.TotalDistanceKm != 0 { t.Fatalf("T3 route should be empty: %+v", res.Plans[2].Route) }

    // explicit records leave the stored jobs alone
    var jobs struct{ Items []model.Job `json:"items"` }
    decode(t, call(s.JobsHandler, http.MethodGet, "/v1/jobs", ""), &jobs)
    if len(jobs.Items) != 0 { t.Fatalf("store touched: %+v", jobs.Items) }
}

func TestOptimizeAssignmentFromStore(t *testing.T) {
    s := newTestServer(t)
    seedRecords(t, s)
    rr := call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{"affinityNoise":false}`)
    if rr.Code != 200 { t.Fatalf("assign: %d %s", rr.Code, rr.Body.String()) }
    var res assignmentResponse
    decode(t, rr, &res)
    if len(res.Assignments) != 2 { t.Fatalf("assignments: %v", res.Assignments) }

    var jobs struct{ Items []model.Job `json:"items"` }
    decode(t, call(s.JobsHandler, http.MethodGet, "/v1/jobs?status=assigned", ""), &jobs)
    if len(jobs.Items) != 2 { t.Fatalf("assigned jobs: %+v", jobs.Items) }
    for _, j := range jobs.Items {
        if res.Assignments[j.TeamID] != j.ID { t.Fatalf("job %s stored with team %s, result %v", j.ID, j.TeamID, res.Assignments) }
    }

    // nothing pending is left, so a second run assigns nothing
    var again assignmentResponse
    decode(t, call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{}`), &again)
    if len(again.Assignments) != 0 || len(again.UnassignedTeams) != 2 { t.Fatalf("second run: %+v", again.AssignmentResult) }
    for _, pl := range again.Plans {
        if pl.JobID != "" || len(pl.Route.Stops) != 0 { t.Fatalf("second run plan %+v should be empty", pl) }
    }
}

// takenStore lets another dispatcher take one job between listing and claiming.
type takenStore struct {
    store.Store
    jobID string
}

func (ts takenStore) ClaimJob(ctx context.Context, tenantID, jobID, teamID string) (model.Job, error) {
    if jobID == ts.jobID {
        if _, err := ts.Store.ClaimJob(ctx, tenantID, jobID, "OTHER"); err != nil { return model.Job{}, err }
    }
    return ts.Store.ClaimJob(ctx, tenantID, jobID, teamID)
}

func TestOptimizeAssignmentDropsJobTakenElsewhere(t *testing.T) {
    s := newTestServer(t)
    seedRecords(t, s)
    s.Store = takenStore{Store: s.Store, jobID: "J1"}
    rr := call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{"affinityNoise":false}`)
    if rr.Code != 200 { t.Fatalf("assign: %d %s", rr.Code, rr.Body.String()) }
    var res assignmentResponse
    decode(t, rr, &res)
    if len(res.Assignments) != 1 || res.Assignments["T2"] != "J2" { t.Fatalf("assignments: %v", res.Assignments) }
    if len(res.UnassignedTeams) != 1 || res.UnassignedTeams[0] != "T1" { t.Fatalf("unassigned teams: %v", res.UnassignedTeams) }
    for _, pr := range res.Pairs {
        if pr.JobID == "J1" { t.Fatalf("pairs still carry J1: %+v", res.Pairs) }
    }
    if res.TotalDistanceKm != res.Plans[1].Route.TotalDistanceKm { t.Fatalf("total %v, T2 route %v", res.TotalDistanceKm, res.Plans[1].Route.TotalDistanceKm) }

    var jobs struct{ Items []model.Job `json:"items"` }
    decode(t, call(s.JobsHandler, http.MethodGet, "/v1/jobs?status=assigned", ""), &jobs)
    for _, j := range jobs.Items {
        if j.ID == "J1" && j.TeamID != "OTHER" { t.Fatalf("J1 reassigned to %s", j.TeamID) }
    }
}

func TestOptimizeAssignmentConcurrentRunsNeverShareJobs(t *testing.T) {
    s := newTestServer(t)
    seedRecords(t, s)
    var wg sync.WaitGroup
    results := make([]assignmentResponse, 6)
    for i := range results {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            rr := call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{"affinityNoise":false}`)
            if rr.Code == 200 { _ = json.Unmarshal(rr.Body.Bytes(), &results[i]) }
        }(i)
    }
    wg.Wait()
    seen := map[string]int{}
    for _, r := range results {
        for _, job := range r.Assignments { seen[job]++ }
    }
    for job, n := range seen {
        if n != 1 { t.Fatalf("job %s assigned by %d runs", job, n) }
    }
    if len(seen) != 2 { t.Fatalf("want both jobs assigned once, got %v", seen) }
}

func TestOptimizeFailedStatusLabel(t *testing.T) {
    cancelled := testutil.ToFloat64(metrics.OptimizationRuns.WithLabelValues(model.RunKindRoute, "cancelled"))
    failed := testutil.ToFloat64(metrics.OptimizationRuns.WithLabelValues(model.RunKindRoute, "error"))

    rr := httptest.NewRecorder()
    optimizeFailed(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize/route", nil), model.RunKindRoute, errors.New("boom"))
    if rr.Code != http.StatusInternalServerError { t.Fatalf("want 500, got %d", rr.Code) }
    rr = httptest.NewRecorder()
    optimizeFailed(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize/route", nil), model.RunKindRoute, context.Canceled)
    if rr.Code != http.StatusServiceUnavailable { t.Fatalf("want 503, got %d", rr.Code) }

    if got := testutil.ToFloat64(metrics.OptimizationRuns.WithLabelValues(model.RunKindRoute, "error")); got != failed+1 { t.Fatalf("error count %v", got) }
    if got := testutil.ToFloat64(metrics.OptimizationRuns.WithLabelValues(model.RunKindRoute, "cancelled")); got != cancelled+1 { t.Fatalf("cancelled count %v", got) }
}

func TestOptimizeAssignmentRejectsDuplicates(t *testing.T) {
    s := newTestServer(t)
    rr := call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{"teams":[{"id":"T"},{"id":"T"}],"jobs":[{"id":"J"}]}`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("want 400, got %d", rr.Code) }
    rr = call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{"timeBudgetMs":999999}`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("budget: want 400, got %d", rr.Code) }
}

func TestRunByID(t *testing.T) {
    s := newTestServer(t)
    seedRecords(t, s)
    var res assignmentResponse
    decode(t, call(s.OptimizeAssignmentHandler, http.MethodPost, "/v1/optimize/assignment", `{"affinityNoise":false}`), &res)

    rr := call(s.RunByIDHandler, http.MethodGet, "/v1/runs/"+res.RunID, "")
    if rr.Code != 200 { t.Fatalf("get run: %d", rr.Code) }
    var run model.Run
    decode(t, rr, &run)
    if run.Kind != model.RunKindAssignment || run.Result.Assignments["T1"] != res.Assignments["T1"] { t.Fatalf("run: %+v", run) }

    rr = call(s.RunByIDHandler, http.MethodGet, "/v1/runs/"+res.RunID+"?format=geojson", "")
    if rr.Code != 200 || rr.Header().Get("Content-Type") != "application/geo+json" { t.Fatalf("geojson run: %d %s", rr.Code, rr.Header().Get("Content-Type")) }

    if rr := call(s.RunByIDHandler, http.MethodGet, "/v1/runs/missing", ""); rr.Code != http.StatusNotFound { t.Fatalf("missing: want 404, got %d", rr.Code) }
    if rr := call(s.RunByIDHandler, http.MethodGet, "/v1/runs/"+res.RunID, "", "X-Tenant-Id", "t_other"); rr.Code != http.StatusNotFound { t.Fatalf("cross tenant: want 404, got %d", rr.Code) }
}
