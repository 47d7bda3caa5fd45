package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "weighgate/internal/engine"
    "weighgate/internal/metrics"
    "weighgate/internal/model"
    "weighgate/internal/webhooks"
)

// analyzeEntry aggregates a weigh entry against the packaging catalog
// and classifies it against the order's expectation.
func (s *Server) analyzeEntry(r *http.Request, tenant string, o model.OrderOut, entry model.WeighEntry) (actual float64, res engine.AnalysisResult, ok bool, err error) {
    table, err := s.Store.PackagingTable(r.Context(), tenant)
    if err != nil { return 0, engine.AnalysisResult{}, false, err }
    weights := engine.PackagingWeights{}
    for id, p := range table { weights[id] = p.WeightG }
    actual = engine.Aggregate(entry.Bags, entry.Packaging, weights)
    cfg, err := s.Store.GetWeighingConfig(r.Context(), tenant)
    if err != nil { return 0, engine.AnalysisResult{}, false, err }
    res, ok = engine.Analyze(actual, float64(o.ExpectedG), o.Lines, cfg.ToleranceG)
    return actual, res, ok, nil
}

// AnalyzeHandler classifies a weigh entry without committing anything.
// POST /v1/weigh/analyze
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.AnalyzeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.OrderID == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid request", "orderId required", r.URL.Path)
        return
    }
    if err := validateWeighEntry(&req.WeighEntry); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid weigh entry", err.Error(), r.URL.Path)
        return
    }
    _, tenant := s.withTenant(r)
    o, err := s.Store.GetOrder(r.Context(), tenant, req.OrderID)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
        return
    }
    actual, res, ok, err := s.analyzeEntry(r, tenant, o, req.WeighEntry)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Analyze failed", err.Error(), r.URL.Path)
        return
    }
    out := map[string]any{
        "orderId":       o.ID,
        "actualGrams":   engine.RoundGrams(actual),
        "expectedGrams": o.ExpectedG,
        "ok":            ok,
    }
    if ok {
        out["status"] = res.Status
        out["message"] = res.Message
        out["deltaGrams"] = engine.RoundGrams(res.DeltaGrams)
        if len(res.Suspects) > 0 { out["suspects"] = res.Suspects }
    }
    writeJSON(w, http.StatusOK, out)
}

// weighCommit records a weighing on the order. Underweight verdicts
// block the commit with 409 unless override is set; overrides are
// audited and emit their own event. POST /v1/orders/{id}/weigh
func (s *Server) weighCommit(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.WeighRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateWeighEntry(&req.WeighEntry); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid weigh entry", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    tenant := pr.Tenant
    o, err := s.Store.GetOrder(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
        return
    }
    actual, res, hasVerdict, err := s.analyzeEntry(r, tenant, o, req.WeighEntry)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Weigh failed", err.Error(), r.URL.Path)
        return
    }
    if hasVerdict && res.Status == engine.StatusUnderweight && !req.Override {
        w.Header().Set("Content-Type", "application/problem+json")
        w.WriteHeader(http.StatusConflict)
        _ = json.NewEncoder(w).Encode(map[string]any{
            "type":          "about:blank",
            "title":         "Underweight",
            "status":        http.StatusConflict,
            "detail":        res.Message,
            "instance":      r.URL.Path,
            "deltaGrams":    engine.RoundGrams(res.DeltaGrams),
            "expectedGrams": o.ExpectedG,
            "actualGrams":   engine.RoundGrams(actual),
            "suspects":      res.Suspects,
        })
        return
    }
    status := "weighed"
    if req.Complete { status = "completed" }
    result := model.WeighResult{
        ActualG:    engine.RoundGrams(actual),
        Status:     status,
        Overridden: req.Override && hasVerdict && res.Status == engine.StatusUnderweight,
        TS:         time.Now().UTC().Format(time.RFC3339),
    }
    verdict := ""
    if hasVerdict {
        verdict = string(res.Status)
        result.Verdict = verdict
        result.DeltaG = engine.RoundGrams(res.DeltaGrams)
        metrics.WeighVerdicts.WithLabelValues(verdict).Inc()
    }
    updated, err := s.Store.CommitWeighing(r.Context(), tenant, id, result)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Weigh failed", err.Error(), r.URL.Path)
        return
    }
    station := req.Station
    if station == "" { station = pr.StationID }
    actor := pr.Role
    if pr.StationID != "" { actor = fmt.Sprintf("%s@%s", pr.Role, pr.StationID) }
    _ = s.Store.InsertWeighAudit(r.Context(), tenant, model.WeighAudit{
        OrderID:    id,
        Actor:      actor,
        Station:    station,
        ActualG:    result.ActualG,
        ExpectedG:  o.ExpectedG,
        DeltaG:     result.DeltaG,
        Verdict:    verdict,
        Overridden: result.Overridden,
        TS:         result.TS,
    })
    data := map[string]any{
        "orderId": id, "actualGrams": result.ActualG, "expectedGrams": o.ExpectedG,
        "deltaGrams": result.DeltaG, "verdict": verdict, "status": status,
    }
    s.Pub.Emit(r.Context(), tenant, webhooks.EventOrderWeighed, data)
    s.Broker.Publish(id, SSEEvent{Type: webhooks.EventOrderWeighed, Data: data})
    switch verdict {
    case string(engine.StatusUnderweight):
        s.Pub.Emit(r.Context(), tenant, webhooks.EventOrderUnderweight, data)
    case string(engine.StatusOverweight):
        s.Pub.Emit(r.Context(), tenant, webhooks.EventOrderOverweight, data)
    }
    if result.Overridden {
        od := map[string]any{"orderId": id, "actor": actor, "station": station, "deltaGrams": result.DeltaG}
        s.Pub.Emit(r.Context(), tenant, webhooks.EventWeighOverridden, od)
        s.Broker.Publish(id, SSEEvent{Type: webhooks.EventWeighOverridden, Data: od})
    }
    s.Drafts.Clear(tenant, id)
    writeJSON(w, http.StatusOK, updated)
}

// weighDraft saves, loads, or clears the in-progress weigh entry.
// PUT/GET/DELETE /v1/orders/{id}/weigh/draft
func (s *Server) weighDraft(w http.ResponseWriter, r *http.Request, id string) {
    pr := s.getPrincipal(r)
    station := r.URL.Query().Get("station")
    if station == "" { station = pr.StationID }
    switch r.Method {
    case http.MethodPut:
        var entry model.WeighEntry
        if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        d := s.Drafts.Save(pr.Tenant, id, station, entry)
        writeJSON(w, http.StatusOK, d)
    case http.MethodGet:
        d, ok := s.Drafts.Load(pr.Tenant, id, station)
        if !ok {
            writeProblem(w, http.StatusNotFound, "Draft not found", "", r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, d)
    case http.MethodDelete:
        s.Drafts.Clear(pr.Tenant, id)
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// weighStream pushes order weighing events over SSE.
// GET /v1/orders/{id}/weigh/stream
func (s *Server) weighStream(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)

    fmt.Fprintf(w, ": connected\n\n")
    flusher.Flush()

    heartbeat := time.NewTicker(15 * time.Second)
    defer heartbeat.Stop()

    for {
        select {
        case <-r.Context().Done():
            return
        case <-heartbeat.C:
            fmt.Fprintf(w, ": ping\n\n")
            flusher.Flush()
        case ev, ok := <-ch:
            if !ok { return }
            b, err := json.Marshal(ev.Data)
            if err != nil { continue }
            fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b)
            flusher.Flush()
        }
    }
}
