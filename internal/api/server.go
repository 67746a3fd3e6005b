package api

import (
    "context"
    "log"
    "strings"

    "fieldroute/internal/auth"
    "fieldroute/internal/config"
    "fieldroute/internal/opt"
    "fieldroute/internal/store"
    "fieldroute/internal/webhooks"
)

type Server struct {
    Store  store.Store
    Pub    *webhooks.Publisher
    Auth   *auth.Verifier
    Broker EventBroker
    Engine *opt.Engine
    Config config.Config
    limits *tenantLimiter
}

// NewServer wires the store, broker and engine from cfg. Without a database
// URL the in-memory store is used; without a Redis URL the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.Database.URL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            return nil, err
        }
        if cfg.Database.Migrate {
            if err := sp.Migrate(context.Background()); err != nil {
                return nil, err
            }
        }
        s = sp
    }
    var broker EventBroker = NewBroker()
    if cfg.Redis.URL != "" {
        if rb, err := NewRedisBroker(cfg.Redis.URL); err == nil {
            broker = rb
        } else {
            log.Printf("[API] redis broker unavailable, using in-process broker: %v", err)
        }
    }
    return &Server{
        Store:  s,
        Pub:    webhooks.NewPublisher(s),
        Auth:   auth.NewVerifier(cfg.Auth),
        Broker: broker,
        Engine: opt.NewEngine(cfg.Optimizer.Seed, cfg.EngineOptions()),
        Config: cfg,
        limits: newTenantLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst),
    }, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Config.Webhooks)
}

// Close releases the store connection when it holds one.
func (s *Server) Close() error {
    if c, ok := s.Store.(interface{ Close() error }); ok {
        return c.Close()
    }
    return nil
}
