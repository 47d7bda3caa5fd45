package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "sync"
    "time"

    "weighgate/internal/engine"
    "weighgate/internal/metrics"
    "weighgate/internal/model"
    "weighgate/internal/store"
    "weighgate/internal/webhooks"
)

// buildLines resolves order line product references against the catalog
// and computes the order's monetary value. Unknown product ids keep the
// entered quantity but carry no weight or category.
func (s *Server) buildLines(ctx context.Context, tenant string, in model.OrderIn) ([]engine.OrderLine, float64, error) {
    table, err := s.Store.ProductTable(ctx, tenant)
    if err != nil { return nil, 0, err }
    lines := make([]engine.OrderLine, 0, len(in.Lines))
    var value float64
    for _, l := range in.Lines {
        ol := engine.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
        if p, ok := table[l.ProductID]; ok {
            ol.CategoryID = p.CategoryID
            ol.Name = p.Name
            ol.WeightG = p.WeightG
            if ol.UnitPrice == 0 { ol.UnitPrice = p.PriceUnits }
        }
        if l.Quantity > 0 { value += ol.UnitPrice * float64(l.Quantity) }
        lines = append(lines, ol)
    }
    return lines, value, nil
}

// computeExpectation runs the active rules over an order snapshot and
// returns the persisted expectation. Rule counters are updated as a
// side effect.
func (s *Server) computeExpectation(ctx context.Context, tenant string, lines []engine.OrderLine, orderValue float64) (model.Expectation, error) {
    rules, err := s.Store.ActiveRules(ctx, tenant)
    if err != nil { return model.Expectation{}, err }
    table, err := s.Store.ProductTable(ctx, tenant)
    if err != nil { return model.Expectation{}, err }
    weights := engine.ProductWeights{}
    for id, p := range table { weights[id] = p.WeightG }
    snap := engine.Snapshot{Lines: lines, OrderValue: orderValue}
    start := time.Now()
    out := engine.Apply(rules, snap, weights, engine.BaseWeight(snap))
    metrics.RuleApplyDuration.Observe(time.Since(start).Seconds())
    for _, r := range rules {
        var added float64
        for _, a := range out.Additions {
            if a.RuleID == r.ID { added += a.TotalGrams }
        }
        engine.RecordStats(tenant, r.ID, out.Triggers[r.ID], added)
    }
    return model.Expectation{ExpectedG: engine.RoundGrams(out.ExpectedGrams), Additions: out.Additions, Notes: out.Notes, Matched: out.Matched}, nil
}

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var in model.OrderIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if len(in.Lines) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid order", "at least one line required", r.URL.Path)
            return
        }
        _, tenant := s.withTenant(r)
        lines, value, err := s.buildLines(r.Context(), tenant, in)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create order failed", err.Error(), r.URL.Path)
            return
        }
        exp, err := s.computeExpectation(r.Context(), tenant, lines, value)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Expectation failed", err.Error(), r.URL.Path)
            return
        }
        o, err := s.Store.CreateOrder(r.Context(), tenant, in, lines, value, exp)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create order failed", err.Error(), r.URL.Path)
            return
        }
        s.Pub.Emit(r.Context(), tenant, webhooks.EventExpectedComputed, map[string]any{
            "orderId": o.ID, "expectedGrams": o.ExpectedG, "matchedRules": exp.Matched,
        })
        writeJSON(w, http.StatusCreated, o)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListOrders(r.Context(), tenant, status, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrderByIDHandler handles GET /v1/orders/{id} plus the weighing
// subresources: /recalculate, /weigh, /weigh/draft, /weigh/stream.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/orders/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 1 {
        switch strings.Join(parts[1:], "/") {
        case "recalculate":
            s.recalculateOrder(w, r, id)
            return
        case "weigh":
            s.weighCommit(w, r, id)
            return
        case "weigh/draft":
            s.weighDraft(w, r, id)
            return
        case "weigh/stream":
            s.weighStream(w, r, id)
            return
        }
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    o, err := s.Store.GetOrder(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, o)
}

// recalculateOrder recomputes the expectation against the current rule
// set and catalog. POST /v1/orders/{id}/recalculate
func (s *Server) recalculateOrder(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.CanAuthor() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    _, tenant := s.withTenant(r)
    o, err := s.Store.GetOrder(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
        return
    }
    exp, err := s.computeExpectation(r.Context(), tenant, o.Lines, o.OrderValue)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Recalculate failed", err.Error(), r.URL.Path)
        return
    }
    if err := s.Store.SaveExpectation(r.Context(), tenant, id, exp); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Recalculate failed", err.Error(), r.URL.Path)
        return
    }
    data := map[string]any{"orderId": id, "expectedGrams": exp.ExpectedG, "matchedRules": exp.Matched}
    s.Pub.Emit(r.Context(), tenant, webhooks.EventExpectedRecalculated, data)
    s.Broker.Publish(id, SSEEvent{Type: webhooks.EventExpectedRecalculated, Data: data})
    o, _ = s.Store.GetOrder(r.Context(), tenant, id)
    writeJSON(w, http.StatusOK, o)
}

// AdminRecalculateHandler recomputes expectations for every order of
// the tenant, e.g. after a catalog weight correction.
// POST /v1/admin/orders/recalculate
func (s *Server) AdminRecalculateHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/orders/recalculate" || r.Method != http.MethodPost { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    ids, err := s.Store.ListOrderIDs(r.Context(), p.Tenant)
    if err != nil { writeProblem(w, 500, "Recalculate failed", err.Error(), r.URL.Path); return }

    var mu sync.Mutex
    updated, failed := 0, 0
    sem := make(chan struct{}, 8)
    var wg sync.WaitGroup
    for _, id := range ids {
        wg.Add(1)
        sem <- struct{}{}
        go func(orderID string) {
            defer wg.Done()
            defer func() { <-sem }()
            o, err := s.Store.GetOrder(r.Context(), p.Tenant, orderID)
            if err != nil { mu.Lock(); failed++; mu.Unlock(); return }
            exp, err := s.computeExpectation(r.Context(), p.Tenant, o.Lines, o.OrderValue)
            if err == nil { err = s.Store.SaveExpectation(r.Context(), p.Tenant, orderID, exp) }
            mu.Lock()
            if err != nil { failed++ } else { updated++ }
            mu.Unlock()
        }(id)
    }
    wg.Wait()
    writeJSON(w, http.StatusOK, map[string]int{"updated": updated, "failed": failed})
}

// RulesHandler handles GET/POST /v1/rules
func (s *Server) RulesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/rules" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    pr := s.getPrincipal(r)
    switch r.Method {
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListRules(r.Context(), pr.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List rules failed", err.Error(), r.URL.Path); return }
        // Derived display text, computed on read so edits never leave
        // stale summaries behind.
        summaries := map[string]string{}
        for _, rule := range items { summaries[rule.ID] = engine.DescribeRule(rule) }
        writeJSON(w, 200, map[string]any{"items": items, "summaries": summaries, "nextCursor": next})
    case http.MethodPost:
        if !pr.CanAuthor() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
        var rule engine.Rule
        if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateRule(&rule); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid rule", err.Error(), r.URL.Path)
            return
        }
        created, err := s.Store.CreateRule(r.Context(), pr.Tenant, rule)
        if err != nil { writeProblem(w, 500, "Create rule failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, created)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// RuleByIDHandler handles GET/PUT/DELETE /v1/rules/{id}
func (s *Server) RuleByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/rules/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/rules/")
    pr := s.getPrincipal(r)
    switch r.Method {
    case http.MethodGet:
        rule, err := s.Store.GetRule(r.Context(), pr.Tenant, id)
        if err != nil { writeProblem(w, 404, "Rule not found", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, rule)
    case http.MethodPut:
        if !pr.CanAuthor() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
        var rule engine.Rule
        if err := json.NewDecoder(r.Body).Decode(&rule); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        rule.ID = id
        if err := validateRule(&rule); err != nil { writeProblem(w, 400, "Invalid rule", err.Error(), r.URL.Path); return }
        updated, err := s.Store.UpdateRule(r.Context(), pr.Tenant, rule)
        if err != nil {
            if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Rule not found", "", r.URL.Path); return }
            writeProblem(w, 500, "Update rule failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, 200, updated)
    case http.MethodDelete:
        if !pr.CanAuthor() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
        if err := s.Store.DeleteRule(r.Context(), pr.Tenant, id); err != nil {
            if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Rule not found", "", r.URL.Path); return }
            writeProblem(w, 500, "Delete rule failed", err.Error(), r.URL.Path)
            return
        }
        w.WriteHeader(204)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ProductsHandler handles GET/POST /v1/products
func (s *Server) ProductsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/products" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    pr := s.getPrincipal(r)
    switch r.Method {
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListProducts(r.Context(), pr.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List products failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    case http.MethodPost:
        if !pr.CanAuthor() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
        var in model.ProductIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if in.Name == "" { writeProblem(w, 400, "Invalid product", "name required", r.URL.Path); return }
        if in.WeightG < 0 || in.WeightOz < 0 { writeProblem(w, 400, "Invalid product", "weight must be >= 0", r.URL.Path); return }
        p, err := s.Store.CreateProduct(r.Context(), pr.Tenant, in)
        if err != nil { writeProblem(w, 500, "Create product failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 201, p)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// PackagingHandler handles GET/POST /v1/packaging
func (s *Server) PackagingHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/packaging" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    pr := s.getPrincipal(r)
    switch r.Method {
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListPackaging(r.Context(), pr.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List packaging failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    case http.MethodPost:
        if !pr.CanAuthor() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
        var in model.PackagingIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if in.Name == "" { writeProblem(w, 400, "Invalid packaging", "name required", r.URL.Path); return }
        if in.WeightG < 0 || in.WeightOz < 0 { writeProblem(w, 400, "Invalid packaging", "weight must be >= 0", r.URL.Path); return }
        p, err := s.Store.CreatePackaging(r.Context(), pr.Tenant, in)
        if err != nil { writeProblem(w, 500, "Create packaging failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 201, p)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// AdminWeighingConfigHandler gets/sets the tenant tolerance config.
func (s *Server) AdminWeighingConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/weighing/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetWeighingConfig(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Config read failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, cfg)
    case http.MethodPut:
        var cfg model.WeighingConfig
        if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if cfg.ToleranceG < 0 { writeProblem(w, 400, "Invalid config", "toleranceGrams must be >= 0", r.URL.Path); return }
        if cfg.DisplayUnit != "" && cfg.DisplayUnit != "g" && cfg.DisplayUnit != "oz" { writeProblem(w, 400, "Invalid config", "displayUnit must be g or oz", r.URL.Path); return }
        if err := s.Store.SaveWeighingConfig(r.Context(), p.Tenant, cfg); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// RuleMetricsHandler reports per-rule evaluation counters.
// GET /v1/admin/rule-metrics
func (s *Server) RuleMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/rule-metrics" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"rules": engine.GetStats(p.Tenant)})
}

// WeighAuditsHandler lists committed weighings including overrides.
// GET /v1/admin/weigh-audits
func (s *Server) WeighAuditsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/weigh-audits" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWeighAudits(r.Context(), p.Tenant, cursor, limit)
    if err != nil { writeProblem(w, 500, "List audits failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { req.TenantID = p.Tenant }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        eventType := r.URL.Query().Get("eventType")
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, eventType, cursor, limit)
        if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
        return
    }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodDelete {
        n, err := s.Store.PurgeWebhookDLQ(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Purge failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]int{"purged": n})
        return
    }
    if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
        id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Requeue failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
