package api

import (
    "net/http"
    "time"

    "fieldroute/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the running config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Config
    writeJSON(w, http.StatusOK, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":               c.Server.Port,
            "authMode":           c.Auth.Mode,
            "allowOrigins":       c.Server.AllowOrigins,
            "rateRps":            c.Server.RateRPS,
            "rateBurst":          c.Server.RateBurst,
            "webhookMaxAttempts": c.Webhooks.MaxAttempts,
            "hasDatabaseUrl":     c.Database.URL != "",
            "hasRedisUrl":        c.Redis.URL != "",
            "optimizer":          effectiveConfig(s.Engine.Options()),
        },
    })
}
