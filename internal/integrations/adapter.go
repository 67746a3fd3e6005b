// Package integrations defines the feeds that supply team and job snapshots
// to the dispatcher.
package integrations

import (
	"context"
	"fmt"

	"fieldroute/internal/model"
)

// Source is a read-only feed of teams and jobs.
type Source interface {
	Name() string
	FetchTeams(ctx context.Context) ([]model.Team, error)
	FetchJobs(ctx context.Context) ([]model.Job, error)
}

// Snapshot fetches both record sets from src. Jobs without a status are
// treated as pending.
func Snapshot(ctx context.Context, src Source) ([]model.Team, []model.Job, error) {
	teams, err := src.FetchTeams(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: fetch teams: %w", src.Name(), err)
	}
	jobs, err := src.FetchJobs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: fetch jobs: %w", src.Name(), err)
	}
	for i := range jobs {
		if jobs[i].Status == "" {
			jobs[i].Status = model.JobPending
		}
	}
	return teams, jobs, nil
}
