package api

import (
    "context"
    "errors"
    "net/http"
    "net/url"
    "strings"
    "time"

    "fieldroute/internal/model"
    "fieldroute/internal/store"
)

// OptimizerConfigHandler returns the service defaults and the caller's tenant overrides.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.authorize(w, r, nil, "")
    if !ok { return }
    tenantCfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
    if err != nil { writeProblem(w, 500, "Get config failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{
        "defaults":  effectiveConfig(s.Engine.Options()),
        "tenant":    tenantCfg,
        "effective": effectiveConfig(s.optionsFor(r.Context(), p.Tenant)),
    })
}

// Admin get/set optimizer tenant config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/optimizer/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.authorize(w, r, Principal.IsAdmin, "admin")
    if !ok { return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Get config failed", err.Error(), r.URL.Path); return }
        if cfg == nil { cfg = &model.OptimizerConfig{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config *model.OptimizerConfig `json:"config"` }
        if err := decodeJSON(w, r, &body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if err := validateOptimizerConfig(body.Config); err != nil { writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path); return }
        if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, *body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// PlanMetricsHandler lists stored annealing metrics, optionally by run and kind.
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.authorize(w, r, Principal.IsAdmin, "admin")
    if !ok { return }
    q := r.URL.Query()
    items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, q.Get("runId"), q.Get("kind"))
    if err != nil { writeProblem(w, 500, "Metrics failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// SubscriptionsHandler handles GET/POST /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/subscriptions" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.authorize(w, r, Principal.IsAdmin, "admin")
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := decodeJSON(w, r, &req); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        req.TenantID = p.Tenant
        if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
            writeProblem(w, 400, "Invalid subscription", "url must be absolute http(s)", r.URL.Path)
            return
        }
        if len(req.Events) == 0 { writeProblem(w, 400, "Invalid subscription", "events required", r.URL.Path); return }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil { writeProblem(w, 500, "Create subscription failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryInt(r, "limit", 100))
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        for i := range items { items[i].Secret = "" }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p, ok := s.authorize(w, r, Principal.IsAdmin, "admin")
    if !ok { return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Subscription not found", "", r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.authorize(w, r, Principal.IsAdmin, "admin")
    if !ok { return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    q := r.URL.Query()
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryInt(r, "limit", 100))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// Admin: requeue one delivery, including dead-lettered ones
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p, ok := s.authorize(w, r, Principal.IsAdmin, "admin")
    if !ok { return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Delivery not found", "", r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

// ReadyHandler pings Postgres and Redis when they are configured.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    type pinger interface{ Ping(ctx context.Context) error }
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if pg, ok := s.Store.(pinger); ok {
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "store: "+err.Error(), r.URL.Path); return }
    }
    if rb, ok := s.Broker.(pinger); ok {
        if err := rb.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "broker: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
