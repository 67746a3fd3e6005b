package webhooks

import (
    "bytes"
    "context"
    "log"
    "net/http"
    "strconv"
    "time"

    "fieldroute/internal/config"
    "fieldroute/internal/metrics"
    "fieldroute/internal/store"
)

type Worker struct {
    Store store.Store
    HTTP  *http.Client
    Stop  chan struct{}
    MaxAttempts int
    Interval time.Duration
    BatchSize int
}

func NewWorker(s store.Store, cfg config.WebhookConfig) *Worker {
    max := cfg.MaxAttempts
    if max <= 0 { max = 10 }
    interval := cfg.PollInterval
    if interval <= 0 { interval = time.Second }
    timeout := cfg.Timeout
    if timeout <= 0 { timeout = 5 * time.Second }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: timeout}, Stop: make(chan struct{}), MaxAttempts: max, Interval: interval, BatchSize: 50}
}

// Start polls for due deliveries until ctx is done or Stop is closed.
func (w *Worker) Start(ctx context.Context) {
    go func() {
        ticker := time.NewTicker(w.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce(ctx)
            }
        }
    }()
}

func (w *Worker) processOnce(parent context.Context) {
    ctx, cancel := context.WithTimeout(parent, 10*time.Second)
    defer cancel()
    batch := w.BatchSize
    if batch <= 0 { batch = 50 }
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, batch)
    if err != nil {
        log.Printf("[WEBHOOK] fetch due deliveries: %v", err)
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    next := time.Now().Add(nextBackoff(it.Attempts))
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil {
        // a malformed URL will never succeed
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
        return
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", it.EventType)
    req.Header.Set("X-Delivery-Id", it.ID)
    req.Header.Set("X-Delivery-Attempt", strconv.Itoa(it.Attempts+1))
    if it.Secret != "" {
        req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
        req.Header.Set("X-Signature-V2", SignTimestamped(it.Secret, time.Now(), it.Payload))
    }
    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := int(time.Since(start).Milliseconds())
    code := 0
    if err == nil && resp != nil {
        code = resp.StatusCode
        if resp.Body != nil { _ = resp.Body.Close() }
        if code >= 200 && code < 300 { success = true }
    }
    lastErr := ""
    if !success {
        if err != nil { lastErr = err.Error() } else { lastErr = "status " + strconv.Itoa(code) }
    }
    status := store.DeliveryDelivered
    switch {
    case success:
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
    case it.Attempts+1 >= w.MaxAttempts:
        status = store.DeliveryFailed
        log.Printf("[WEBHOOK] delivery %s to %s failed after %d attempts: %s", it.ID, it.URL, it.Attempts+1, lastErr)
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
    default:
        status = store.DeliveryRetry
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 12 { attempts = 12 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
