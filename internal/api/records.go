package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "fieldroute/internal/geo"
    "fieldroute/internal/model"
    "fieldroute/internal/store"
)

// TeamsHandler handles GET/POST /v1/teams
func (s *Server) TeamsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/teams" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        p, ok := s.authorize(w, r, nil, "")
        if !ok { return }
        items, err := s.Store.ListTeams(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "List teams failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        p, ok := s.authorize(w, r, Principal.CanDispatch, "dispatcher or admin")
        if !ok { return }
        var req struct{ Teams []model.Team `json:"teams"` }
        if err := decodeJSON(w, r, &req); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path); return }
        if err := validateTeams(req.Teams); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid teams", err.Error(), r.URL.Path); return }
        n, err := s.Store.UpsertTeams(r.Context(), p.Tenant, req.Teams)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "Upsert teams failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusAccepted, map[string]int{"upserted": n})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// TeamByIDHandler handles POST /v1/teams/{id}/location and GET /v1/teams/{id}/events/stream
func (s *Server) TeamByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/teams/")
    parts := strings.Split(rest, "/")
    id := parts[0]
    if rest == r.URL.Path || id == "" || len(parts) < 2 {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    switch {
    case parts[1] == "location" && len(parts) == 2:
        s.teamLocation(w, r, id)
    case parts[1] == "events" && len(parts) == 3 && parts[2] == "stream":
        s.teamEvents(w, r, id)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

func (s *Server) teamLocation(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authorize(w, r, func(p Principal) bool { return p.CanActAsTeam(id) }, "own team or dispatcher")
    if !ok { return }
    var req model.LocationUpdate
    if err := decodeJSON(w, r, &req); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path); return }
    at := model.Coordinate{Lat: req.Lat, Lng: req.Lng}
    if err := validateCoordinate("location", at); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid location", err.Error(), r.URL.Path); return }
    team, err := s.Store.UpdateTeamLocation(r.Context(), p.Tenant, id, at)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Team not found", "", r.URL.Path); return }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "Update location failed", err.Error(), r.URL.Path); return }
    s.publishTeam(p.Tenant, id, SSEEvent{Type: model.EventTeamLocation, Data: map[string]any{
        "teamId": id, "lat": at.Lat, "lng": at.Lng, "ts": time.Now().UTC().Format(time.RFC3339),
    }})
    writeJSON(w, http.StatusOK, team)
}

// teamEvents streams the team's topic as server-sent events. Dispatchers may
// watch any team; a team may watch only itself.
func (s *Server) teamEvents(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authorize(w, r, func(p Principal) bool { return p.CanActAsTeam(id) }, "own team or dispatcher")
    if !ok { return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    topic := teamTopic(p.Tenant, id)
    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)
    defer trackFeedClient("sse")()

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"teamId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, open := <-ch:
            if !open { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}

// JobsHandler handles GET/POST /v1/jobs
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/jobs" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        p, ok := s.authorize(w, r, nil, "")
        if !ok { return }
        items, err := s.Store.ListJobs(r.Context(), p.Tenant, r.URL.Query().Get("status"))
        if err != nil { writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        p, ok := s.authorize(w, r, Principal.CanDispatch, "dispatcher or admin")
        if !ok { return }
        var req struct{ Jobs []model.Job `json:"jobs"` }
        if err := decodeJSON(w, r, &req); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path); return }
        if err := validateJobs(req.Jobs); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid jobs", err.Error(), r.URL.Path); return }
        n, err := s.Store.UpsertJobs(r.Context(), p.Tenant, req.Jobs)
        if errors.Is(err, store.ErrInvalidStatus) { writeProblem(w, http.StatusBadRequest, "Invalid jobs", err.Error(), r.URL.Path); return }
        if err != nil { writeProblem(w, http.StatusInternalServerError, "Upsert jobs failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusAccepted, map[string]int{"upserted": n})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// JobByIDHandler handles GET /v1/jobs/nearby and POST /v1/jobs/{id}/status
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
    if rest == "nearby" {
        s.nearbyJobs(w, r)
        return
    }
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    id := parts[0]
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req model.JobStatusUpdate
    p, ok := s.authorize(w, r, nil, "")
    if !ok { return }
    if err := decodeJSON(w, r, &req); err != nil { writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path); return }
    teamID := req.TeamID
    if !p.CanDispatch() {
        // teams may only report progress on their own jobs
        if p.Role != RoleTeam || p.TeamID == "" || (teamID != "" && teamID != p.TeamID) {
            writeProblem(w, http.StatusForbidden, "Forbidden", "own team or dispatcher required", r.URL.Path)
            return
        }
        teamID = p.TeamID
    }
    job, err := s.Store.UpdateJobStatus(r.Context(), p.Tenant, id, req.Status, teamID)
    switch {
    case errors.Is(err, store.ErrInvalidStatus):
        writeProblem(w, http.StatusBadRequest, "Invalid status", err.Error(), r.URL.Path)
        return
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, 404, "Job not found", "", r.URL.Path)
        return
    case err != nil:
        writeProblem(w, http.StatusInternalServerError, "Update job failed", err.Error(), r.URL.Path)
        return
    }
    evt := SSEEvent{Type: model.EventJobStatus, Data: map[string]any{"jobId": job.ID, "status": job.Status, "teamId": job.TeamID}}
    if job.TeamID != "" {
        s.publishTeam(p.Tenant, job.TeamID, evt)
    } else {
        s.Broker.Publish(dispatchTopic(p.Tenant), evt)
    }
    s.Pub.Emit(r.Context(), p.Tenant, model.EventJobStatus, evt.Data)
    writeJSON(w, http.StatusOK, job)
}

// nearbyJobs answers GET /v1/jobs/nearby?lat&lng&radiusKm[&status][&limit]
// from an R-tree over the tenant's jobs.
func (s *Server) nearbyJobs(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authorize(w, r, nil, "")
    if !ok { return }
    lat, okLat := queryFloat(r, "lat")
    lng, okLng := queryFloat(r, "lng")
    if !okLat || !okLng { writeProblem(w, http.StatusBadRequest, "Missing lat/lng", "", r.URL.Path); return }
    radius, okR := queryFloat(r, "radiusKm")
    if !okR { radius = 10 }
    if radius <= 0 { writeProblem(w, http.StatusBadRequest, "radiusKm must be > 0", "", r.URL.Path); return }
    status := r.URL.Query().Get("status")
    if status == "" { status = model.JobPending }
    if status == "any" { status = "" }
    jobs, err := s.Store.ListJobs(r.Context(), p.Tenant, status)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path); return }
    ix := geo.NewIndex(jobs, func(j model.Job) model.Coordinate { return j.Location.Coordinate })
    hits := ix.Within(model.Coordinate{Lat: lat, Lng: lng}, radius, queryInt(r, "limit", 20))
    type item struct {
        model.Job
        DistanceKm float64 `json:"distanceKm"`
    }
    out := make([]item, 0, len(hits))
    for _, h := range hits {
        out = append(out, item{Job: h.Item, DistanceKm: h.DistanceKm})
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
