package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "weighgate/internal/engine"
    "weighgate/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    products map[string]model.Product   // id -> product
    prodTen  map[string][]string        // tenant -> product ids
    packs    map[string]model.Packaging // id -> packaging
    packTen  map[string][]string        // tenant -> packaging ids
    rules    map[string]engine.Rule     // id -> rule
    ruleTen  map[string][]string        // tenant -> rule ids (authoring order)
    orders   map[string]model.OrderOut  // id -> order
    ordTen   map[string][]string        // tenant -> order ids
    cfg      map[string]model.WeighingConfig
    audits   map[string][]model.WeighAudit // tenant -> audits
    subs     map[string][]model.Subscription
    // Webhook queue state
    deliveries         map[string]*memDelivery
    deliveriesByTenant map[string][]string
    dlq                []map[string]any
}

func NewMemory() *Memory {
    return &Memory{
        products: map[string]model.Product{},
        prodTen: map[string][]string{},
        packs: map[string]model.Packaging{},
        packTen: map[string][]string{},
        rules: map[string]engine.Rule{},
        ruleTen: map[string][]string{},
        orders: map[string]model.OrderOut{},
        ordTen: map[string][]string{},
        cfg: map[string]model.WeighingConfig{},
        audits: map[string][]model.WeighAudit{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dlq: []map[string]any{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

// Catalog

func (m *Memory) CreateProduct(ctx context.Context, tenantID string, in model.ProductIn) (model.Product, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    g := in.WeightG
    if g == 0 && in.WeightOz > 0 { g = engine.OuncesToGrams(in.WeightOz) }
    p := model.Product{ID: uuid.New().String(), TenantID: tenantID, Name: in.Name, CategoryID: in.CategoryID, WeightG: g, PriceUnits: in.PriceUnits, ExternalRef: in.ExternalRef}
    m.products[p.ID] = p
    m.prodTen[tenantID] = append(m.prodTen[tenantID], p.ID)
    return p, nil
}

func (m *Memory) GetProduct(ctx context.Context, tenantID, id string) (model.Product, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    p, ok := m.products[id]
    if !ok || p.TenantID != tenantID { return model.Product{}, ErrNotFound }
    return p, nil
}

func (m *Memory) ListProducts(ctx context.Context, tenantID, cursor string, limit int) ([]model.Product, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.prodTen[tenantID]
    start := cursorIndex(ids, cursor)
    if limit <= 0 { limit = 100 }
    out := []model.Product{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        out = append(out, m.products[ids[i]])
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) ProductTable(ctx context.Context, tenantID string) (map[string]model.Product, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := map[string]model.Product{}
    for _, id := range m.prodTen[tenantID] {
        out[id] = m.products[id]
    }
    return out, nil
}

func (m *Memory) CreatePackaging(ctx context.Context, tenantID string, in model.PackagingIn) (model.Packaging, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    g := in.WeightG
    if g == 0 && in.WeightOz > 0 { g = engine.OuncesToGrams(in.WeightOz) }
    p := model.Packaging{ID: uuid.New().String(), TenantID: tenantID, Name: in.Name, WeightG: g}
    m.packs[p.ID] = p
    m.packTen[tenantID] = append(m.packTen[tenantID], p.ID)
    return p, nil
}

func (m *Memory) ListPackaging(ctx context.Context, tenantID, cursor string, limit int) ([]model.Packaging, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.packTen[tenantID]
    start := cursorIndex(ids, cursor)
    if limit <= 0 { limit = 100 }
    out := []model.Packaging{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        out = append(out, m.packs[ids[i]])
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) PackagingTable(ctx context.Context, tenantID string) (map[string]model.Packaging, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := map[string]model.Packaging{}
    for _, id := range m.packTen[tenantID] {
        out[id] = m.packs[id]
    }
    return out, nil
}

// Rules

func (m *Memory) CreateRule(ctx context.Context, tenantID string, r engine.Rule) (engine.Rule, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if r.ID == "" { r.ID = uuid.New().String() }
    m.rules[r.ID] = r
    m.ruleTen[tenantID] = append(m.ruleTen[tenantID], r.ID)
    return r, nil
}

func (m *Memory) GetRule(ctx context.Context, tenantID, id string) (engine.Rule, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, rid := range m.ruleTen[tenantID] {
        if rid == id { return m.rules[id], nil }
    }
    return engine.Rule{}, ErrNotFound
}

func (m *Memory) ListRules(ctx context.Context, tenantID, cursor string, limit int) ([]engine.Rule, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.ruleTen[tenantID]
    start := cursorIndex(ids, cursor)
    if limit <= 0 { limit = 100 }
    out := []engine.Rule{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        out = append(out, m.rules[ids[i]])
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) UpdateRule(ctx context.Context, tenantID string, r engine.Rule) (engine.Rule, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, rid := range m.ruleTen[tenantID] {
        if rid == r.ID {
            m.rules[r.ID] = r
            return r, nil
        }
    }
    return engine.Rule{}, ErrNotFound
}

func (m *Memory) DeleteRule(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.ruleTen[tenantID]
    out := make([]string, 0, len(ids))
    found := false
    for _, rid := range ids {
        if rid == id { found = true; continue }
        out = append(out, rid)
    }
    if !found { return ErrNotFound }
    m.ruleTen[tenantID] = out
    delete(m.rules, id)
    return nil
}

func (m *Memory) ActiveRules(ctx context.Context, tenantID string) ([]engine.Rule, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []engine.Rule{}
    for _, id := range m.ruleTen[tenantID] {
        r := m.rules[id]
        if r.Active { out = append(out, r) }
    }
    return out, nil
}

// Orders

func (m *Memory) CreateOrder(ctx context.Context, tenantID string, in model.OrderIn, lines []engine.OrderLine, orderValue float64, exp model.Expectation) (model.OrderOut, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o := model.OrderOut{
        ID: uuid.New().String(), TenantID: tenantID, ExternalRef: in.ExternalRef,
        Status: "pending", Lines: lines, OrderValue: orderValue,
        ExpectedG: exp.ExpectedG, Additions: exp.Additions, Notes: exp.Notes,
    }
    m.orders[o.ID] = o
    m.ordTen[tenantID] = append(m.ordTen[tenantID], o.ID)
    return o, nil
}

func (m *Memory) GetOrder(ctx context.Context, tenantID, id string) (model.OrderOut, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok || o.TenantID != tenantID { return model.OrderOut{}, ErrNotFound }
    return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.OrderOut, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.ordTen[tenantID]
    start := cursorIndex(ids, cursor)
    if limit <= 0 { limit = 100 }
    out := []model.OrderOut{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        o := m.orders[ids[i]]
        if status == "" || o.Status == status { out = append(out, o) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) ListOrderIDs(ctx context.Context, tenantID string) ([]string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]string(nil), m.ordTen[tenantID]...), nil
}

func (m *Memory) SaveExpectation(ctx context.Context, tenantID, orderID string, exp model.Expectation) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok || o.TenantID != tenantID { return ErrNotFound }
    o.ExpectedG = exp.ExpectedG
    o.Additions = exp.Additions
    o.Notes = exp.Notes
    m.orders[orderID] = o
    return nil
}

func (m *Memory) CommitWeighing(ctx context.Context, tenantID, orderID string, res model.WeighResult) (model.OrderOut, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok || o.TenantID != tenantID { return model.OrderOut{}, ErrNotFound }
    o.ActualG = res.ActualG
    o.DeltaG = res.DeltaG
    o.Verdict = res.Verdict
    o.Overridden = res.Overridden
    o.Status = res.Status
    m.orders[orderID] = o
    return o, nil
}

// Weighing config & audit

func (m *Memory) GetWeighingConfig(ctx context.Context, tenantID string) (model.WeighingConfig, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if c, ok := m.cfg[tenantID]; ok { return c, nil }
    return model.WeighingConfig{ToleranceG: model.DefaultToleranceG, DisplayUnit: "g"}, nil
}

func (m *Memory) SaveWeighingConfig(ctx context.Context, tenantID string, cfg model.WeighingConfig) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.cfg[tenantID] = cfg
    return nil
}

func (m *Memory) InsertWeighAudit(ctx context.Context, tenantID string, a model.WeighAudit) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if a.ID == "" { a.ID = uuid.New().String() }
    m.audits[tenantID] = append(m.audits[tenantID], a)
    return nil
}

func (m *Memory) ListWeighAudits(ctx context.Context, tenantID, cursor string, limit int) ([]model.WeighAudit, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.audits[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i + 1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.WeighAudit(nil), list[start:end]...)
    next := ""
    if end < len(list) && end > 0 { next = list[end-1].ID }
    return items, next, nil
}

// Subscriptions

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i + 1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) && end > 0 { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, ids := range m.deliveriesByTenant {
        for _, id := range ids {
            d := m.deliveries[id]
            if d == nil { continue }
            if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
                out = append(out, d.WebhookDelivery)
                if limit > 0 && len(out) >= limit { return out, nil }
            }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil { d.Status = "failed" }
    item := map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs}
    if d != nil { item["eventType"] = d.EventType; item["tenantId"] = d.TenantID }
    m.dlq = append(m.dlq, item)
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.deliveriesByTenant[tenantID] {
        d := m.deliveries[id]
        if d == nil { continue }
        if status == "" || d.Status == status {
            item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
            if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
            if d.LastError != "" { item["lastError"] = d.LastError }
            out = append(out, item)
        }
    }
    return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil && d.TenantID == tenantID {
        d.Status = "pending"
        d.NextAttemptAt = time.Now()
    }
    return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, it := range m.dlq {
        if t, _ := it["tenantId"].(string); t != "" && t != tenantID { continue }
        if eventType != "" {
            if et, _ := it["eventType"].(string); et != eventType { continue }
        }
        out = append(out, it)
    }
    return out, "", nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil && d.TenantID == tenantID {
        d.Status = "pending"
        d.NextAttemptAt = time.Now()
    }
    kept := m.dlq[:0]
    for _, it := range m.dlq {
        if v, _ := it["id"].(string); v == id { continue }
        kept = append(kept, it)
    }
    m.dlq = kept
    return nil
}

func (m *Memory) PurgeWebhookDLQ(ctx context.Context, tenantID string) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    kept := m.dlq[:0]
    removed := 0
    for _, it := range m.dlq {
        if t, _ := it["tenantId"].(string); t == "" || t == tenantID { removed++; continue }
        kept = append(kept, it)
    }
    m.dlq = kept
    return removed, nil
}

// helper: index after cursor in an id list
func cursorIndex(ids []string, cursor string) int {
    if cursor == "" { return 0 }
    for i, id := range ids {
        if id == cursor { return i + 1 }
    }
    return 0
}
