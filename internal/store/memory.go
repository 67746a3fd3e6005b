package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "fieldroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    teams  map[string]map[string]model.Team        // tenant -> team id -> team
    jobs   map[string]map[string]model.Job         // tenant -> job id -> job
    runs   map[string][]model.Run                  // tenant -> runs, oldest first
    planMx map[string][]model.PlanMetrics          // tenant -> metrics rows
    optCfg map[string]model.OptimizerConfig        // tenant -> config
    subs   map[string][]model.Subscription         // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery             // id -> delivery state
    deliveriesByTenant map[string][]string         // tenant -> delivery ids
    order  []string                                // delivery ids in enqueue order
    dedup  map[string]string                       // tenant|event|url|key -> delivery id
}

func NewMemory() *Memory {
    return &Memory{
        teams: map[string]map[string]model.Team{},
        jobs: map[string]map[string]model.Job{},
        runs: map[string][]model.Run{},
        planMx: map[string][]model.PlanMetrics{},
        optCfg: map[string]model.OptimizerConfig{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dedup: map[string]string{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) UpsertTeams(ctx context.Context, tenantID string, teams []model.Team) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.teams[tenantID] == nil { m.teams[tenantID] = map[string]model.Team{} }
    now := time.Now().UTC()
    for _, t := range teams {
        t.UpdatedAt = &now
        m.teams[tenantID][t.ID] = t
    }
    return len(teams), nil
}

func (m *Memory) ListTeams(ctx context.Context, tenantID string) ([]model.Team, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Team, 0, len(m.teams[tenantID]))
    for _, t := range m.teams[tenantID] { out = append(out, t) }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) GetTeam(ctx context.Context, tenantID, id string) (model.Team, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.teams[tenantID][id]
    if !ok { return model.Team{}, ErrNotFound }
    return t, nil
}

func (m *Memory) UpdateTeamLocation(ctx context.Context, tenantID, teamID string, at model.Coordinate) (model.Team, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.teams[tenantID][teamID]
    if !ok { return model.Team{}, ErrNotFound }
    t.Location.Coordinate = at
    now := time.Now().UTC()
    t.UpdatedAt = &now
    m.teams[tenantID][teamID] = t
    return t, nil
}

func (m *Memory) UpsertJobs(ctx context.Context, tenantID string, jobs []model.Job) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.jobs[tenantID] == nil { m.jobs[tenantID] = map[string]model.Job{} }
    now := time.Now().UTC()
    for _, j := range jobs {
        if j.Status == "" { j.Status = model.JobPending }
        if !validJobStatus(j.Status) { return 0, ErrInvalidStatus }
        j.UpdatedAt = &now
        m.jobs[tenantID][j.ID] = j
    }
    return len(jobs), nil
}

func (m *Memory) ListJobs(ctx context.Context, tenantID, status string) ([]model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Job{}
    for _, j := range m.jobs[tenantID] {
        if status == "" || j.Status == status { out = append(out, j) }
    }
    sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
    return out, nil
}

func (m *Memory) UpdateJobStatus(ctx context.Context, tenantID, jobID, status, teamID string) (model.Job, error) {
    if !validJobStatus(status) { return model.Job{}, ErrInvalidStatus }
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[tenantID][jobID]
    if !ok { return model.Job{}, ErrNotFound }
    j.Status = status
    j.TeamID = teamID
    if status == model.JobPending { j.TeamID = "" }
    now := time.Now().UTC()
    j.UpdatedAt = &now
    m.jobs[tenantID][jobID] = j
    return j, nil
}

func (m *Memory) ClaimJob(ctx context.Context, tenantID, jobID, teamID string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[tenantID][jobID]
    if !ok { return model.Job{}, ErrNotFound }
    if j.Status != model.JobPending { return model.Job{}, ErrConflict }
    j.Status = model.JobAssigned
    j.TeamID = teamID
    now := time.Now().UTC()
    j.UpdatedAt = &now
    m.jobs[tenantID][jobID] = j
    return j, nil
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if run.ID == "" { run.ID = uuid.New().String() }
    m.runs[run.TenantID] = append(m.runs[run.TenantID], run)
    return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, r := range m.runs[tenantID] {
        if r.ID == id { return r, nil }
    }
    return model.Run{}, ErrNotFound
}

// ListRuns pages newest first; the cursor is the last id of the previous page.
func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.runs[tenantID]
    start := len(list) - 1
    if cursor != "" {
        start = -1 // unknown cursors page past the end
        for i := range list { if list[i].ID == cursor { start = i - 1; break } }
    }
    if limit <= 0 { limit = defaultPageSize }
    out := []model.Run{}
    for i := start; i >= 0 && len(out) < limit; i-- { out = append(out, list[i]) }
    next := ""
    if len(out) == limit && start-limit >= 0 { next = out[len(out)-1].ID }
    return out, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID string, items []model.PlanMetrics) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.planMx[tenantID] = append(m.planMx[tenantID], items...)
    return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, runID, kind string) ([]model.PlanMetrics, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.PlanMetrics{}
    for _, it := range m.planMx[tenantID] {
        if runID != "" && it.RunID != runID { continue }
        if kind != "" && it.Kind != kind { continue }
        out = append(out, it)
    }
    return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if cfg, ok := m.optCfg[tenantID]; ok { return &cfg, nil }
    return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.optCfg[tenantID] = cfg
    return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType || e == "*" { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        start = len(list)
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = defaultPageSize }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription{}, list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    if len(out) == len(arr) { return ErrNotFound }
    m.subs[tenantID] = out
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
    if id, ok := m.dedup[key]; ok { return id, nil }
    id := uuid.New().String()
    m.dedup[key] = id
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    m.order = append(m.order, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := time.Now()
        d.DeliveredAt = &now
        return nil
    }
    d.Status = DeliveryRetry
    d.LastError = lastError
    if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryStatus, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        start = len(ids)
        for i, id := range ids { if id == cursor { start = i + 1; break } }
    }
    if limit <= 0 { limit = defaultPageSize }
    out := []DeliveryStatus{}
    next := ""
    for _, id := range ids[start:] {
        d := m.deliveries[id]
        if status != "" && d.Status != status { continue }
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, d.view())
    }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = DeliveryRetry
    d.NextAttemptAt = time.Now()
    return nil
}

func (d *memDelivery) view() DeliveryStatus {
    v := DeliveryStatus{ID: d.ID, EventType: d.EventType, URL: d.URL, Status: d.Status, Attempts: d.Attempts, LastError: d.LastError, ResponseCode: d.ResponseCode, LatencyMs: d.LatencyMs, DeliveredAt: d.DeliveredAt}
    if !d.NextAttemptAt.IsZero() && d.Status != DeliveryDelivered && d.Status != DeliveryFailed {
        t := d.NextAttemptAt
        v.NextAttemptAt = &t
    }
    return v
}
