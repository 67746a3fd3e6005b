package store

import (
    "context"
    "errors"
    "time"

    "fieldroute/internal/model"
)

// Store is the persistence interface used by the API server. It supplies
// team and job snapshots to the engine and keeps what each run produced.
type Store interface {
    // Teams
    UpsertTeams(ctx context.Context, tenantID string, teams []model.Team) (int, error)
    ListTeams(ctx context.Context, tenantID string) ([]model.Team, error)
    GetTeam(ctx context.Context, tenantID, id string) (model.Team, error)
    UpdateTeamLocation(ctx context.Context, tenantID, teamID string, at model.Coordinate) (model.Team, error)

    // Jobs
    UpsertJobs(ctx context.Context, tenantID string, jobs []model.Job) (int, error)
    ListJobs(ctx context.Context, tenantID, status string) ([]model.Job, error)
    UpdateJobStatus(ctx context.Context, tenantID, jobID, status, teamID string) (model.Job, error)
    // ClaimJob moves a pending job to assigned for teamID, or returns ErrConflict.
    ClaimJob(ctx context.Context, tenantID, jobID, teamID string) (model.Job, error)

    // Runs
    SaveRun(ctx context.Context, run model.Run) error
    GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
    ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error)

    // Plan metrics
    SavePlanMetrics(ctx context.Context, tenantID string, items []model.PlanMetrics) error
    ListPlanMetrics(ctx context.Context, tenantID, runID, kind string) ([]model.PlanMetrics, error)

    // Optimizer config per tenant; nil when the tenant has none.
    GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error)
    SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryStatus, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a job is no longer in the state a claim expects.
var ErrConflict = errors.New("conflict")

// ErrInvalidStatus is returned for job statuses outside pending/assigned/completed.
var ErrInvalidStatus = errors.New("invalid job status")

func validJobStatus(s string) bool {
    switch s {
    case model.JobPending, model.JobAssigned, model.JobCompleted:
        return true
    }
    return false
}

const defaultPageSize = 100
