package store

import (
    "context"
    "fmt"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "fieldroute/internal/model"
)

func TestMemoryTeamsAndLocation(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    teams := []model.Team{{ID: "b", Skills: []string{"hvac"}}, {ID: "a"}}
    if n, err := m.UpsertTeams(ctx, "t1", teams); err != nil || n != 2 { t.Fatalf("upsert: %d %v", n, err) }
    list, _ := m.ListTeams(ctx, "t1")
    if len(list) != 2 || list[0].ID != "a" { t.Fatalf("want sorted teams, got %+v", list) }
    if other, _ := m.ListTeams(ctx, "t2"); len(other) != 0 { t.Fatalf("tenant leak: %+v", other) }
    got, err := m.UpdateTeamLocation(ctx, "t1", "b", model.Coordinate{Lat: 1, Lng: 2})
    if err != nil { t.Fatal(err) }
    if got.Location.Lat != 1 || got.Location.Lng != 2 || got.UpdatedAt == nil { t.Fatalf("unexpected team %+v", got) }
    if _, err := m.UpdateTeamLocation(ctx, "t1", "zzz", model.Coordinate{}); err != ErrNotFound { t.Fatalf("want ErrNotFound, got %v", err) }
}

func TestMemoryJobStatus(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    if _, err := m.UpsertJobs(ctx, "t1", []model.Job{{ID: "j1"}, {ID: "j2", Status: model.JobCompleted}}); err != nil { t.Fatal(err) }
    pending, _ := m.ListJobs(ctx, "t1", model.JobPending)
    if len(pending) != 1 || pending[0].ID != "j1" { t.Fatalf("pending filter: %+v", pending) }
    j, err := m.UpdateJobStatus(ctx, "t1", "j1", model.JobAssigned, "T9")
    if err != nil || j.TeamID != "T9" { t.Fatalf("assign: %+v %v", j, err) }
    j, _ = m.UpdateJobStatus(ctx, "t1", "j1", model.JobPending, "T9")
    if j.TeamID != "" { t.Fatalf("pending job keeps team %q", j.TeamID) }
    if _, err := m.UpdateJobStatus(ctx, "t1", "j1", "lost", ""); err != ErrInvalidStatus { t.Fatalf("want ErrInvalidStatus, got %v", err) }
    if _, err := m.UpsertJobs(ctx, "t1", []model.Job{{ID: "j3", Status: "lost"}}); err != ErrInvalidStatus { t.Fatalf("want ErrInvalidStatus, got %v", err) }
}

func TestMemoryRunsPaging(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    for _, id := range []string{"r1", "r2", "r3"} {
        if err := m.SaveRun(ctx, model.Run{ID: id, TenantID: "t1", Kind: model.RunKindRoute}); err != nil { t.Fatal(err) }
    }
    page, next, _ := m.ListRuns(ctx, "t1", "", 2)
    if len(page) != 2 || page[0].ID != "r3" || page[1].ID != "r2" || next != "r2" { t.Fatalf("first page %+v next=%q", page, next) }
    page, next, _ = m.ListRuns(ctx, "t1", next, 2)
    if len(page) != 1 || page[0].ID != "r1" || next != "" { t.Fatalf("second page %+v next=%q", page, next) }
    if _, err := m.GetRun(ctx, "t2", "r1"); err != ErrNotFound { t.Fatalf("cross-tenant read: %v", err) }
    page, next, _ = m.ListRuns(ctx, "t1", "r-gone", 2)
    if len(page) != 0 || next != "" { t.Fatalf("unknown cursor should give an empty page, got %+v next=%q", page, next) }
}

func TestMemoryUnknownCursorEmptyPage(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://x", Events: []string{"*"}}); err != nil { t.Fatal(err) }
    subs, next, _ := m.ListSubscriptions(ctx, "t1", "nope", 10)
    if len(subs) != 0 || next != "" { t.Fatalf("subscriptions: %+v next=%q", subs, next) }
    if _, err := m.EnqueueWebhook(ctx, "t1", "s1", "e", "http://x", "k", []byte(`{}`)); err != nil { t.Fatal(err) }
    ds, next, _ := m.ListWebhookDeliveries(ctx, "t1", "", "nope", 10)
    if len(ds) != 0 || next != "" { t.Fatalf("deliveries: %+v next=%q", ds, next) }
}

func TestMemoryClaimJobOnce(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    if _, err := m.UpsertJobs(ctx, "t1", []model.Job{{ID: "j1"}, {ID: "j2", Status: model.JobCompleted}}); err != nil { t.Fatal(err) }
    var wg sync.WaitGroup
    var won atomic.Int32
    for i := 0; i < 16; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            if _, err := m.ClaimJob(ctx, "t1", "j1", fmt.Sprintf("T%d", i)); err == nil { won.Add(1) } else if err != ErrConflict { t.Errorf("claim: %v", err) }
        }(i)
    }
    wg.Wait()
    if won.Load() != 1 { t.Fatalf("want exactly one claim, got %d", won.Load()) }
    if _, err := m.ClaimJob(ctx, "t1", "j2", "T1"); err != ErrConflict { t.Fatalf("completed job: %v", err) }
    if _, err := m.ClaimJob(ctx, "t1", "zzz", "T1"); err != ErrNotFound { t.Fatalf("missing job: %v", err) }
}

func TestMemoryOptimizerConfigAndMetrics(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    cfg, err := m.GetOptimizerConfig(ctx, "t1")
    if err != nil || cfg != nil { t.Fatalf("want nil config, got %+v %v", cfg, err) }
    _ = m.SaveOptimizerConfig(ctx, "t1", model.OptimizerConfig{Iterations: 50})
    cfg, _ = m.GetOptimizerConfig(ctx, "t1")
    if cfg == nil || cfg.Iterations != 50 { t.Fatalf("config not saved: %+v", cfg) }
    _ = m.SavePlanMetrics(ctx, "t1", []model.PlanMetrics{{RunID: "r1", Kind: "route"}, {RunID: "r2", Kind: "assignment"}})
    rows, _ := m.ListPlanMetrics(ctx, "t1", "r2", "")
    if len(rows) != 1 || rows[0].Kind != "assignment" { t.Fatalf("metrics filter: %+v", rows) }
}

func TestMemorySubscriptions(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    a, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{model.EventRouteOptimized}})
    _, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"*"}})
    subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", model.EventRouteOptimized)
    if len(subs) != 2 { t.Fatalf("want 2 matches, got %d", len(subs)) }
    subs, _ = m.GetSubscriptionsForEvent(ctx, "t1", model.EventAssignmentCompleted)
    if len(subs) != 1 || subs[0].URL != "http://b" { t.Fatalf("wildcard match: %+v", subs) }
    page, next, _ := m.ListSubscriptions(ctx, "t1", "", 1)
    if len(page) != 1 || next != a.ID { t.Fatalf("paging: %+v next=%q", page, next) }
    if err := m.DeleteSubscription(ctx, "t1", a.ID); err != nil { t.Fatal(err) }
    if err := m.DeleteSubscription(ctx, "t1", a.ID); err != ErrNotFound { t.Fatalf("want ErrNotFound, got %v", err) }
}

func TestMemoryWebhookLifecycle(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    payload := []byte(`{"id":"evt_1"}`)
    id, _ := m.EnqueueWebhook(ctx, "t1", "s1", model.EventRouteOptimized, "http://x", "sec", payload)
    dup, _ := m.EnqueueWebhook(ctx, "t1", "s1", model.EventRouteOptimized, "http://x", "sec", payload)
    if dup != id { t.Fatalf("duplicate event enqueued twice: %s vs %s", id, dup) }
    due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 1 { t.Fatalf("want 1 due, got %d", len(due)) }
    later := time.Now().Add(time.Hour)
    _ = m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12)
    due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 0 { t.Fatalf("retry scheduled in the future should not be due") }
    if err := m.RetryWebhookDelivery(ctx, "t2", id); err != ErrNotFound { t.Fatalf("cross-tenant retry: %v", err) }
    _ = m.RetryWebhookDelivery(ctx, "t1", id)
    due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 1 || due[0].Attempts != 1 { t.Fatalf("manual retry: %+v", due) }
    _ = m.FailWebhookDelivery(ctx, id, "gone", 410, 3)
    list, _, _ := m.ListWebhookDeliveries(ctx, "t1", DeliveryFailed, "", 10)
    if len(list) != 1 || list[0].Attempts != 2 || list[0].NextAttemptAt != nil { t.Fatalf("failed view: %+v", list) }
}
