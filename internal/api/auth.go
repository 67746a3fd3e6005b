// Package api implements HTTP handlers and helpers for the dispatch service.
package api

import (
    "net/http"
    "strings"
)

// Roles
const (
    RoleAdmin      = "admin"
    RoleDispatcher = "dispatcher"
    RoleTeam       = "team"
)

type Principal struct {
    Tenant string
    Role   string // admin, dispatcher, team
    TeamID string
    Authenticated bool
}

// getPrincipal extracts tenant and role from a bearer token or headers.
// - If Authorization: Bearer is present, uses the configured verifier (dev/hmac/jwks).
// - Otherwise in dev mode falls back to X-Tenant-Id / X-Role / X-Team-Id headers.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Tenant: pr.Tenant, Role: pr.Role, TeamID: pr.TeamID, Authenticated: true}
        }
        return Principal{}
    }
    if s.Auth != nil && s.Auth.Mode != "dev" {
        return Principal{}
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := strings.ToLower(r.Header.Get("X-Role"))
    if tenant == "" {
        tenant = "t_demo"
    }
    if role == "" {
        role = RoleAdmin
    }
    return Principal{Tenant: tenant, Role: role, TeamID: r.Header.Get("X-Team-Id"), Authenticated: true}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanDispatch reports whether the principal may run optimisations and edit records.
func (p Principal) CanDispatch() bool { return p.Role == RoleAdmin || p.Role == RoleDispatcher }

// CanActAsTeam reports whether the principal may act for the given team.
func (p Principal) CanActAsTeam(teamID string) bool {
    return p.CanDispatch() || (p.Role == RoleTeam && p.TeamID != "" && p.TeamID == teamID)
}

// authorize writes 401/403 and returns false when allow rejects the caller.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, allow func(Principal) bool, need string) (Principal, bool) {
    p := s.getPrincipal(r)
    if !p.Authenticated {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
        return p, false
    }
    if allow != nil && !allow(p) {
        writeProblem(w, http.StatusForbidden, "Forbidden", need+" required", r.URL.Path)
        return p, false
    }
    return p, true
}
