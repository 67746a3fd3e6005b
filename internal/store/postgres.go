package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "embed"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fieldroute/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies embedded migrations that have not run yet, in file name order.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return fmt.Errorf("migrate: %w", err)
    }
    names, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        var done bool
        if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&done); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
        if done { continue }
        body, err := migrations.ReadFile(name)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migrate %s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migrate %s: %w", name, err)
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

func (p *Postgres) UpsertTeams(ctx context.Context, tenantID string, teams []model.Team) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func(){ _ = tx.Rollback() }()
    for _, t := range teams {
        _, err = tx.ExecContext(ctx, `INSERT INTO teams (tenant_id, id, name, label, lat, lng, skills, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,now())
            ON CONFLICT (tenant_id, id) DO UPDATE SET name=$3, label=$4, lat=$5, lng=$6, skills=$7::jsonb, updated_at=now()`,
            tenantID, t.ID, nullIfEmpty(t.Name), nullIfEmpty(t.Location.Label), t.Location.Lat, t.Location.Lng, jsonArray(t.Skills))
        if err != nil { return 0, fmt.Errorf("upsert team %s: %w", t.ID, err) }
    }
    if err := tx.Commit(); err != nil { return 0, err }
    return len(teams), nil
}

const teamCols = `id, COALESCE(name,''), COALESCE(label,''), lat, lng, skills, updated_at`

func scanTeam(sc interface{ Scan(...any) error }) (model.Team, error) {
    var t model.Team
    var skills []byte
    var updated time.Time
    if err := sc.Scan(&t.ID, &t.Name, &t.Location.Label, &t.Location.Lat, &t.Location.Lng, &skills, &updated); err != nil {
        return model.Team{}, err
    }
    t.Location.ID = t.ID
    _ = json.Unmarshal(skills, &t.Skills)
    t.UpdatedAt = &updated
    return t, nil
}

func (p *Postgres) ListTeams(ctx context.Context, tenantID string) ([]model.Team, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+teamCols+` FROM teams WHERE tenant_id=$1 ORDER BY id`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Team{}
    for rows.Next() {
        t, err := scanTeam(rows)
        if err != nil { return nil, err }
        out = append(out, t)
    }
    return out, rows.Err()
}

func (p *Postgres) GetTeam(ctx context.Context, tenantID, id string) (model.Team, error) {
    t, err := scanTeam(p.db.QueryRowContext(ctx, `SELECT `+teamCols+` FROM teams WHERE tenant_id=$1 AND id=$2`, tenantID, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Team{}, ErrNotFound }
    return t, err
}

func (p *Postgres) UpdateTeamLocation(ctx context.Context, tenantID, teamID string, at model.Coordinate) (model.Team, error) {
    t, err := scanTeam(p.db.QueryRowContext(ctx, `UPDATE teams SET lat=$3, lng=$4, updated_at=now() WHERE tenant_id=$1 AND id=$2 RETURNING `+teamCols, tenantID, teamID, at.Lat, at.Lng))
    if errors.Is(err, sql.ErrNoRows) { return model.Team{}, ErrNotFound }
    return t, err
}

func (p *Postgres) UpsertJobs(ctx context.Context, tenantID string, jobs []model.Job) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func(){ _ = tx.Rollback() }()
    for _, j := range jobs {
        if j.Status == "" { j.Status = model.JobPending }
        if !validJobStatus(j.Status) { return 0, ErrInvalidStatus }
        _, err = tx.ExecContext(ctx, `INSERT INTO jobs (tenant_id, id, title, label, lat, lng, requirements, status, team_id, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,now())
            ON CONFLICT (tenant_id, id) DO UPDATE SET title=$3, label=$4, lat=$5, lng=$6, requirements=$7::jsonb, status=$8, team_id=$9, updated_at=now()`,
            tenantID, j.ID, nullIfEmpty(j.Title), nullIfEmpty(j.Location.Label), j.Location.Lat, j.Location.Lng, jsonArray(j.Requirements), j.Status, nullIfEmpty(j.TeamID))
        if err != nil { return 0, fmt.Errorf("upsert job %s: %w", j.ID, err) }
    }
    if err := tx.Commit(); err != nil { return 0, err }
    return len(jobs), nil
}

const jobCols = `id, COALESCE(title,''), COALESCE(label,''), lat, lng, requirements, status, COALESCE(team_id,''), updated_at`

func scanJob(sc interface{ Scan(...any) error }) (model.Job, error) {
    var j model.Job
    var reqs []byte
    var updated time.Time
    if err := sc.Scan(&j.ID, &j.Title, &j.Location.Label, &j.Location.Lat, &j.Location.Lng, &reqs, &j.Status, &j.TeamID, &updated); err != nil {
        return model.Job{}, err
    }
    j.Location.ID = j.ID
    _ = json.Unmarshal(reqs, &j.Requirements)
    j.UpdatedAt = &updated
    return j, nil
}

func (p *Postgres) ListJobs(ctx context.Context, tenantID, status string) ([]model.Job, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND ($2='' OR status=$2) ORDER BY id`, tenantID, status)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Job{}
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, err }
        out = append(out, j)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateJobStatus(ctx context.Context, tenantID, jobID, status, teamID string) (model.Job, error) {
    if !validJobStatus(status) { return model.Job{}, ErrInvalidStatus }
    if status == model.JobPending { teamID = "" }
    j, err := scanJob(p.db.QueryRowContext(ctx, `UPDATE jobs SET status=$3, team_id=$4, updated_at=now() WHERE tenant_id=$1 AND id=$2 RETURNING `+jobCols, tenantID, jobID, status, nullIfEmpty(teamID)))
    if errors.Is(err, sql.ErrNoRows) { return model.Job{}, ErrNotFound }
    return j, err
}

func (p *Postgres) ClaimJob(ctx context.Context, tenantID, jobID, teamID string) (model.Job, error) {
    j, err := scanJob(p.db.QueryRowContext(ctx, `UPDATE jobs SET status='assigned', team_id=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2 AND status='pending' RETURNING `+jobCols, tenantID, jobID, nullIfEmpty(teamID)))
    if !errors.Is(err, sql.ErrNoRows) { return j, err }
    var exists bool
    if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE tenant_id=$1 AND id=$2)`, tenantID, jobID).Scan(&exists); err != nil {
        return model.Job{}, err
    }
    if !exists { return model.Job{}, ErrNotFound }
    return model.Job{}, ErrConflict
}

// validCursor accepts the empty cursor or a run/subscription/delivery uuid.
func validCursor(cursor string) bool {
    if cursor == "" { return true }
    _, err := uuid.Parse(cursor)
    return err == nil
}

func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
    if run.ID == "" { run.ID = uuid.New().String() }
    body, err := json.Marshal(run.Result)
    if err != nil { return err }
    created := run.CreatedAt
    if created.IsZero() { created = time.Now().UTC() }
    _, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, kind, seed, result, created_at) VALUES ($1,$2,$3,$4,$5::jsonb,$6)`,
        run.ID, run.TenantID, run.Kind, run.Seed, body, created)
    return err
}

const runCols = `id::text, tenant_id, kind, seed, result, created_at`

func scanRun(sc interface{ Scan(...any) error }) (model.Run, error) {
    var r model.Run
    var body []byte
    if err := sc.Scan(&r.ID, &r.TenantID, &r.Kind, &r.Seed, &body, &r.CreatedAt); err != nil {
        return model.Run{}, err
    }
    if err := json.Unmarshal(body, &r.Result); err != nil { return model.Run{}, fmt.Errorf("decode run %s: %w", r.ID, err) }
    return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Run{}, ErrNotFound }
    r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

// ListRuns pages newest first using (created_at, id) keyset pagination.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
    if !validCursor(cursor) { return []model.Run{}, "", nil }
    if limit <= 0 { limit = defaultPageSize }
    var rows *sql.Rows
    var err error
    if cursor == "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, tenantID, limit+1)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND (created_at, id) < (SELECT created_at, id FROM runs WHERE id=$2::uuid) ORDER BY created_at DESC, id DESC LIMIT $3`, tenantID, cursor, limit+1)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID string, items []model.PlanMetrics) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, m := range items {
        _, err = tx.ExecContext(ctx, `INSERT INTO plan_metrics (id, tenant_id, run_id, team_id, kind, iterations, improvements, accepted_worse, rejected, tunnel_moves, local_moves, initial_km, best_km, final_km, init_temp, cooling)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
            uuid.New().String(), tenantID, m.RunID, nullIfEmpty(m.TeamID), m.Kind,
            m.Iterations, m.Improvements, m.AcceptedWorse, m.Rejected, m.TunnelMoves, m.LocalMoves,
            m.InitialKm, m.BestKm, m.FinalKm, m.InitTemp, m.Cooling)
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, runID, kind string) ([]model.PlanMetrics, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT run_id, COALESCE(team_id,''), kind, iterations, improvements, accepted_worse, rejected, tunnel_moves, local_moves,
            COALESCE(initial_km,0), COALESCE(best_km,0), COALESCE(final_km,0), COALESCE(init_temp,0), COALESCE(cooling,0), created_at
        FROM plan_metrics WHERE tenant_id=$1 AND ($2='' OR run_id=$2) AND ($3='' OR kind=$3) ORDER BY created_at DESC LIMIT 500`, tenantID, runID, kind)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.PlanMetrics{}
    for rows.Next() {
        var m model.PlanMetrics
        if err := rows.Scan(&m.RunID, &m.TeamID, &m.Kind, &m.Iterations, &m.Improvements, &m.AcceptedWorse, &m.Rejected, &m.TunnelMoves, &m.LocalMoves,
            &m.InitialKm, &m.BestKm, &m.FinalKm, &m.InitTemp, &m.Cooling, &m.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, m)
    }
    return out, rows.Err()
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg model.OptimizerConfig
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return &cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    body, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2::jsonb, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2::jsonb, updated_at=now()`, tenantID, body)
    return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev := jsonArray(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4::jsonb,$5)`, id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret))
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    filter, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND (events @> $2::jsonb OR events @> '["*"]'::jsonb)`, tenantID, filter)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if !validCursor(cursor) { return []model.Subscription{}, "", nil }
    if limit <= 0 { limit = defaultPageSize }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 AND ($2='' OR id > $2::uuid) ORDER BY id LIMIT $3`, tenantID, cursor, limit+1)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s := model.Subscription{TenantID: tenantID}
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events); err != nil { return nil, "", err }
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    // claimed rows are leased for a minute so concurrent workers skip them
    rows, err := p.db.QueryContext(ctx, `WITH due AS (
            SELECT id FROM webhook_deliveries
            WHERE status IN ('pending','retry') AND next_attempt_at <= now()
            ORDER BY next_attempt_at ASC LIMIT $1
            FOR UPDATE SKIP LOCKED)
        UPDATE webhook_deliveries d SET next_attempt_at = now() + interval '1 minute'
        FROM due WHERE d.id = due.id
        RETURNING d.id::text, d.tenant_id, COALESCE(d.subscription_id::text,''), d.event_type, d.url, COALESCE(d.secret,''), d.payload, d.status, d.attempts`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`, id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryStatus, string, error) {
    if !validCursor(cursor) { return []DeliveryStatus{}, "", nil }
    if limit <= 0 { limit = defaultPageSize }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at
        FROM webhook_deliveries WHERE tenant_id=$1 AND ($2='' OR status=$2) AND ($3='' OR (created_at, id) > (SELECT created_at, id FROM webhook_deliveries WHERE id=$3::uuid))
        ORDER BY created_at, id LIMIT $4`, tenantID, status, cursor, limit+1)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []DeliveryStatus{}
    for rows.Next() {
        var d DeliveryStatus
        var next time.Time
        var delivered sql.NullTime
        if err := rows.Scan(&d.ID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &next, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil { return nil, "", err }
        if d.Status == DeliveryPending || d.Status == DeliveryRetry { d.NextAttemptAt = &next }
        if delivered.Valid { t := delivered.Time; d.DeliveredAt = &t }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    nextCursor := ""
    if len(out) > limit {
        out = out[:limit]
        nextCursor = out[limit-1].ID
    }
    return out, nextCursor, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// computeDedupKey uses the event id when the payload carries one, else a
// short content hash, so re-emitting the same event is a no-op.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

// jsonArray encodes tags for jsonb columns; nil becomes [].
func jsonArray(v []string) []byte {
    if len(v) == 0 { return []byte("[]") }
    b, _ := json.Marshal(v)
    return b
}
