//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "fieldroute/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }
    // second run is a no-op
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate again: %v", err) }
    if _, _, err := p.ListRuns(t.Context(), "t_it", "", 1); err != nil { t.Fatalf("ListRuns: %v", err) }
}

func TestPostgresTeamsJobsRuns(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }
    ctx := t.Context()
    tenant := "t_it_" + model.JobPending
    team := model.Team{ID: "T1", Name: "Alpha", Location: model.Location{Coordinate: model.Coordinate{Lat: 40.7, Lng: -74}}, Skills: []string{"electrical"}}
    if _, err := p.UpsertTeams(ctx, tenant, []model.Team{team}); err != nil { t.Fatalf("UpsertTeams: %v", err) }
    got, err := p.UpdateTeamLocation(ctx, tenant, "T1", model.Coordinate{Lat: 41, Lng: -73})
    if err != nil { t.Fatalf("UpdateTeamLocation: %v", err) }
    if got.Location.Lat != 41 || len(got.Skills) != 1 { t.Fatalf("unexpected team %+v", got) }
    job := model.Job{ID: "J1", Location: model.Location{Coordinate: model.Coordinate{Lat: 40.8, Lng: -74}}}
    if _, err := p.UpsertJobs(ctx, tenant, []model.Job{job}); err != nil { t.Fatalf("UpsertJobs: %v", err) }
    if _, err := p.UpdateJobStatus(ctx, tenant, "J1", "bogus", ""); err != ErrInvalidStatus { t.Fatalf("want ErrInvalidStatus, got %v", err) }
    run := model.Run{TenantID: tenant, Kind: model.RunKindAssignment, Seed: 7, Result: model.AssignmentResult{Assignments: map[string]string{"T1": "J1"}}}
    if err := p.SaveRun(ctx, run); err != nil { t.Fatalf("SaveRun: %v", err) }
    runs, _, err := p.ListRuns(ctx, tenant, "", 10)
    if err != nil || len(runs) == 0 { t.Fatalf("ListRuns: %v (%d)", err, len(runs)) }
    back, err := p.GetRun(ctx, tenant, runs[0].ID)
    if err != nil { t.Fatalf("GetRun: %v", err) }
    if back.Result.Assignments["T1"] != "J1" { t.Fatalf("unexpected run %+v", back) }
    if page, next, err := p.ListRuns(ctx, tenant, "not-a-uuid", 10); err != nil || len(page) != 0 || next != "" { t.Fatalf("bad cursor: %v %d %q", err, len(page), next) }

    if _, err := p.UpdateJobStatus(ctx, tenant, "J1", model.JobPending, ""); err != nil { t.Fatalf("reset J1: %v", err) }
    claimed, err := p.ClaimJob(ctx, tenant, "J1", "T1")
    if err != nil || claimed.Status != model.JobAssigned || claimed.TeamID != "T1" { t.Fatalf("ClaimJob: %+v %v", claimed, err) }
    if _, err := p.ClaimJob(ctx, tenant, "J1", "T2"); err != ErrConflict { t.Fatalf("second claim: want ErrConflict, got %v", err) }
    if _, err := p.ClaimJob(ctx, tenant, "J404", "T2"); err != ErrNotFound { t.Fatalf("missing job: want ErrNotFound, got %v", err) }
}
