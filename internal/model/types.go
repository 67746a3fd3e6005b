package model

import "time"

// Core dispatch types shared by the engine, the store and the API.

// Coordinate is a point in decimal degrees. No range validation is applied.
type Coordinate struct {
    Lat float64 `json:"lat" yaml:"lat"`
    Lng float64 `json:"lng" yaml:"lng"`
}

// DefaultCoordinate is used for records that arrive without a position.
var DefaultCoordinate = Coordinate{Lat: 40.7128, Lng: -74.0060}

// Location is a routable stop. ID and Label are display-only.
type Location struct {
    ID    string `json:"id,omitempty" yaml:"id,omitempty"`
    Label string `json:"label,omitempty" yaml:"label,omitempty"`
    Coordinate `yaml:",inline"`
}

const GeneralSkill = "general"

type Job struct {
    ID           string     `json:"id" yaml:"id"`
    Title        string     `json:"title,omitempty" yaml:"title,omitempty"`
    Location     Location   `json:"location" yaml:"location"`
    Requirements []string   `json:"requirements,omitempty" yaml:"requirements,omitempty"`
    Status       string     `json:"status,omitempty" yaml:"status,omitempty"`
    TeamID       string     `json:"teamId,omitempty" yaml:"teamId,omitempty"`
    UpdatedAt    *time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

type Team struct {
    ID        string     `json:"id" yaml:"id"`
    Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
    Location  Location   `json:"location" yaml:"location"`
    Skills    []string   `json:"skills,omitempty" yaml:"skills,omitempty"`
    UpdatedAt *time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Job statuses
const (
    JobPending   = "pending"
    JobAssigned  = "assigned"
    JobCompleted = "completed"
)

// Tags returns the set semantics the engine uses: duplicates removed in
// first-seen order, and an empty set becomes {"general"}.
func Tags(in []string) []string {
    out := make([]string, 0, len(in))
    seen := make(map[string]struct{}, len(in))
    for _, t := range in {
        if _, ok := seen[t]; ok {
            continue
        }
        seen[t] = struct{}{}
        out = append(out, t)
    }
    if len(out) == 0 {
        return []string{GeneralSkill}
    }
    return out
}

// RouteResult is an ordered open path over the input locations.
type RouteResult struct {
    Stops            []Location `json:"stops"`
    TotalDistanceKm  float64    `json:"totalDistanceKm"`
    GreedyDistanceKm float64    `json:"greedyDistanceKm"`
    DriveMinutes     float64    `json:"driveMinutes"`
}

// SavedKm is how much refinement shortened the construction route.
func (r RouteResult) SavedKm() float64 {
    if r.GreedyDistanceKm <= r.TotalDistanceKm {
        return 0
    }
    return r.GreedyDistanceKm - r.TotalDistanceKm
}

type AssignmentPair struct {
    TeamID   string  `json:"teamId"`
    JobID    string  `json:"jobId"`
    Affinity float64 `json:"affinity"`
    Share    float64 `json:"share"`
}

// TeamPlan is one team's outcome. Route is empty when no job was assigned.
type TeamPlan struct {
    TeamID string      `json:"teamId"`
    JobID  string      `json:"jobId,omitempty"`
    Route  RouteResult `json:"route"`
}

type AssignmentResult struct {
    Assignments     map[string]string `json:"assignments"`
    Pairs           []AssignmentPair  `json:"pairs"`
    Plans           []TeamPlan        `json:"plans"`
    UnassignedTeams []string          `json:"unassignedTeams"`
    UnassignedJobs  []string          `json:"unassignedJobs"`
    TotalDistanceKm float64           `json:"totalDistanceKm"`
}

// API requests

type RouteOptimizeRequest struct {
    Locations  []Location `json:"locations"`
    Iterations *int       `json:"iterations,omitempty"`
    Seed       int64      `json:"seed,omitempty"`
}

type AssignmentOptimizeRequest struct {
    Teams         []Team `json:"teams,omitempty"`
    Jobs          []Job  `json:"jobs,omitempty"`
    Iterations    *int   `json:"iterations,omitempty"`
    Seed          int64  `json:"seed,omitempty"`
    AffinityNoise *bool  `json:"affinityNoise,omitempty"`
    TimeBudgetMs  int    `json:"timeBudgetMs,omitempty"`
}

type LocationUpdate struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type JobStatusUpdate struct {
    Status string `json:"status"`
    TeamID string `json:"teamId,omitempty"`
}

// Run is a stored optimisation outcome.
type Run struct {
    ID        string           `json:"id"`
    TenantID  string           `json:"tenantId"`
    Kind      string           `json:"kind"`
    Seed      int64            `json:"seed"`
    CreatedAt time.Time        `json:"createdAt"`
    Result    AssignmentResult `json:"result"`
}

const (
    RunKindRoute      = "route"
    RunKindAssignment = "assignment"
)

// PlanMetrics is the stored summary of one annealing run.
type PlanMetrics struct {
    RunID         string    `json:"runId"`
    TeamID        string    `json:"teamId,omitempty"`
    Kind          string    `json:"kind"`
    Iterations    int       `json:"iterations"`
    Improvements  int       `json:"improvements"`
    AcceptedWorse int       `json:"acceptedWorse"`
    Rejected      int       `json:"rejected"`
    TunnelMoves   int       `json:"tunnelMoves"`
    LocalMoves    int       `json:"localMoves"`
    InitialKm     float64   `json:"initialKm"`
    BestKm        float64   `json:"bestKm"`
    FinalKm       float64   `json:"finalKm"`
    InitTemp      float64   `json:"initTemp"`
    Cooling       float64   `json:"cooling"`
    CreatedAt     time.Time `json:"createdAt"`
}

// OptimizerConfig holds per-tenant overrides. Zero values mean "use default".
type OptimizerConfig struct {
    Iterations    int     `json:"iterations,omitempty" yaml:"iterations,omitempty"`
    InitialTemp   float64 `json:"initialTemp,omitempty" yaml:"initialTemp,omitempty"`
    Cooling       float64 `json:"cooling,omitempty" yaml:"cooling,omitempty"`
    TunnelDecay   float64 `json:"tunnelDecay,omitempty" yaml:"tunnelDecay,omitempty"`
    AffinityNoise *bool   `json:"affinityNoise,omitempty" yaml:"affinityNoise,omitempty"`
    SpeedKph      float64 `json:"speedKph,omitempty" yaml:"speedKph,omitempty"`
    Polish        *bool   `json:"polish,omitempty" yaml:"polish,omitempty"`
    TimeBudgetMs  int     `json:"timeBudgetMs,omitempty" yaml:"timeBudgetMs,omitempty"`
}

// Subscriptions

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}

// Event types emitted to webhooks and the live feed.
const (
    EventAssignmentCompleted = "assignment.completed"
    EventAssignmentCreated   = "assignment.created"
    EventRouteOptimized      = "route.optimized"
    EventTeamLocation        = "team.location"
    EventJobStatus           = "job.status"
)
