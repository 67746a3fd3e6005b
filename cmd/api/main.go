package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "fieldroute/internal/api"
    "fieldroute/internal/config"
    "fieldroute/internal/metrics"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    defer func() { _ = srvDeps.Close() }()
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Optimization
    mux.HandleFunc("/v1/optimize/route", srvDeps.OptimizeRouteHandler)
    mux.HandleFunc("/v1/optimize/assignment", srvDeps.OptimizeAssignmentHandler)
    mux.HandleFunc("/v1/optimizer/config", srvDeps.OptimizerConfigHandler)
    mux.HandleFunc("/v1/runs", srvDeps.RunsHandler)
    mux.HandleFunc("/v1/runs/", srvDeps.RunByIDHandler)

    // Teams and jobs
    mux.HandleFunc("/v1/teams", srvDeps.TeamsHandler)
    mux.HandleFunc("/v1/teams/", srvDeps.TeamByIDHandler) // /location, /events/stream
    mux.HandleFunc("/v1/jobs", srvDeps.JobsHandler)
    mux.HandleFunc("/v1/jobs/", srvDeps.JobByIDHandler) // /nearby, /{id}/status

    // Live feed and subscriptions
    mux.HandleFunc("/v1/ws", srvDeps.FeedWSHandler)
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/optimizer/config", srvDeps.AdminOptimizerConfigHandler)
    mux.HandleFunc("/v1/admin/plan-metrics", srvDeps.PlanMetricsHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)

    // Health, docs, metrics
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    mux.HandleFunc("/debug/info", srvDeps.DebugJSON)
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/docs", srvDeps.DocsHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":" + cfg.Server.Port
    srv := &http.Server{
        Addr:              addr,
        Handler:           srvDeps.Middleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    ctx, stop := context.WithCancel(context.Background())
    defer stop()
    srvDeps.NewWebhookWorker().Start(ctx)

    go func() {
        log.Printf("API listening on %s (auth=%s)", addr, cfg.Auth.Mode)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server error: %v", err)
        }
    }()

    shutdown := make(chan os.Signal, 1)
    signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
    sig := <-shutdown
    log.Printf("Received signal %v, starting graceful shutdown", sig)

    stop()
    sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    if err := srv.Shutdown(sctx); err != nil {
        log.Printf("could not gracefully shutdown the server: %v", err)
    }
    log.Println("Server stopped")
}
