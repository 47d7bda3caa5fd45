package api

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
    t.Helper()
    var rd *bytes.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { t.Fatalf("marshal: %v", err) }
        rd = bytes.NewReader(b)
    } else {
        rd = bytes.NewReader(nil)
    }
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(method, path, rd)
    req.Header.Set("Content-Type", "application/json")
    h(rr, req)
    return rr
}

func doJSONAs(t *testing.T, h http.HandlerFunc, method, path, tenant string, body any) *httptest.ResponseRecorder {
    t.Helper()
    var b []byte
    if body != nil {
        var err error
        b, err = json.Marshal(body)
        if err != nil { t.Fatalf("marshal: %v", err) }
    }
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(method, path, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Tenant-Id", tenant)
    h(rr, req)
    return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
    t.Helper()
    if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
        t.Fatalf("decode %q: %v", rr.Body.String(), err)
    }
}

func createProduct(t *testing.T, s *Server, name, category string, grams, price float64) string {
    t.Helper()
    rr := doJSON(t, s.ProductsHandler, http.MethodPost, "/v1/products", map[string]any{
        "name": name, "categoryId": category, "weightGrams": grams, "price": price,
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create product: %d %s", rr.Code, rr.Body.String()) }
    var p struct{ ID string `json:"id"` }
    decode(t, rr, &p)
    return p.ID
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestProductOunceEntryConverted(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.ProductsHandler, http.MethodPost, "/v1/products", map[string]any{
        "name": "Filter Papers", "weightOunces": 2.0,
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create: %d", rr.Code) }
    var p struct{ WeightG float64 `json:"weightGrams"` }
    decode(t, rr, &p)
    if p.WeightG < 56 || p.WeightG > 57 { t.Fatalf("2oz should convert to ~56.7g, got %v", p.WeightG) }
}

func TestOrderCreateComputesExpectation(t *testing.T) {
    s := newTestServer(t)
    pid := createProduct(t, s, "Coffee Beans 1kg", "cat_coffee", 1000, 18.5)

    // Rule: bubble wrap per fragile item should NOT fire for coffee
    rr := doJSON(t, s.RulesHandler, http.MethodPost, "/v1/rules", map[string]any{
        "name": "Fragile padding", "isActive": true,
        "conditions": []map[string]any{{"type": "category_quantity", "categoryId": "cat_fragile", "operator": "every", "value": 1}},
        "actions":    []map[string]any{{"type": "add_weight", "weightGrams": 60}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create rule: %d %s", rr.Code, rr.Body.String()) }

    // Rule: divider every 3 items
    rr = doJSON(t, s.RulesHandler, http.MethodPost, "/v1/rules", map[string]any{
        "name": "Carton divider", "isActive": true,
        "conditions": []map[string]any{{"type": "total_items", "operator": "every", "value": 3}},
        "actions":    []map[string]any{{"type": "add_weight", "weightGrams": 25}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create rule: %d %s", rr.Code, rr.Body.String()) }

    rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
        "lines": []map[string]any{{"productId": pid, "quantity": 7}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create order: %d %s", rr.Code, rr.Body.String()) }
    var o struct {
        ID        string `json:"id"`
        Status    string `json:"status"`
        ExpectedG int64  `json:"expectedGrams"`
    }
    decode(t, rr, &o)
    // 7000g base + floor(7/3)=2 dividers at 25g
    if o.ExpectedG != 7050 { t.Fatalf("expected 7050g, got %d", o.ExpectedG) }
    if o.Status != "pending" { t.Fatalf("status: %s", o.Status) }

    // GET by id
    rr2 := httptest.NewRecorder()
    s.OrderByIDHandler(rr2, httptest.NewRequest(http.MethodGet, "/v1/orders/"+o.ID, nil))
    if rr2.Code != 200 { t.Fatalf("get order: %d", rr2.Code) }
}

func TestOrderRecalculatePicksUpNewRules(t *testing.T) {
    s := newTestServer(t)
    pid := createProduct(t, s, "Mug", "cat_fragile", 340, 9)
    rr := doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
        "lines": []map[string]any{{"productId": pid, "quantity": 2}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create order: %d", rr.Code) }
    var o struct {
        ID        string `json:"id"`
        ExpectedG int64  `json:"expectedGrams"`
    }
    decode(t, rr, &o)
    if o.ExpectedG != 680 { t.Fatalf("base expectation: got %d", o.ExpectedG) }

    rr = doJSON(t, s.RulesHandler, http.MethodPost, "/v1/rules", map[string]any{
        "name": "Fragile padding", "isActive": true,
        "conditions": []map[string]any{{"type": "category_quantity", "categoryId": "cat_fragile", "operator": "every", "value": 1}},
        "actions":    []map[string]any{{"type": "add_weight", "weightGrams": 60}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create rule: %d", rr.Code) }

    rr = doJSON(t, s.OrderByIDHandler, http.MethodPost, fmt.Sprintf("/v1/orders/%s/recalculate", o.ID), nil)
    if rr.Code != 200 { t.Fatalf("recalculate: %d %s", rr.Code, rr.Body.String()) }
    var o2 struct{ ExpectedG int64 `json:"expectedGrams"` }
    decode(t, rr, &o2)
    if o2.ExpectedG != 800 { t.Fatalf("recalculated expectation: got %d, want 800", o2.ExpectedG) }
}

func TestRulesCRUDAndValidation(t *testing.T) {
    s := newTestServer(t)

    // Missing conditions rejected
    rr := doJSON(t, s.RulesHandler, http.MethodPost, "/v1/rules", map[string]any{
        "name": "bad", "actions": []map[string]any{{"type": "add_weight", "weightGrams": 5}},
    })
    if rr.Code != http.StatusBadRequest { t.Fatalf("want 400, got %d", rr.Code) }

    // Bad operator list rejected
    rr = doJSON(t, s.RulesHandler, http.MethodPost, "/v1/rules", map[string]any{
        "name": "bad ops",
        "conditions": []map[string]any{{"type": "total_items", "operator": "every", "value": 1}},
        "operators":  []string{"XOR"},
        "actions":    []map[string]any{{"type": "add_weight", "weightGrams": 5}},
    })
    if rr.Code != http.StatusBadRequest { t.Fatalf("want 400, got %d", rr.Code) }

    rr = doJSON(t, s.RulesHandler, http.MethodPost, "/v1/rules", map[string]any{
        "name": "ok", "isActive": true,
        "conditions": []map[string]any{{"type": "total_items", "operator": "greater_than", "value": 5}},
        "actions":    []map[string]any{{"type": "add_note", "note": "big order"}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create: %d %s", rr.Code, rr.Body.String()) }
    var rule struct{ ID string `json:"id"` }
    decode(t, rr, &rule)

    // Update
    rr = doJSON(t, s.RuleByIDHandler, http.MethodPut, "/v1/rules/"+rule.ID, map[string]any{
        "name": "ok renamed", "isActive": false,
        "conditions": []map[string]any{{"type": "total_items", "operator": "greater_than", "value": 5}},
        "actions":    []map[string]any{{"type": "add_note", "note": "big order"}},
    })
    if rr.Code != 200 { t.Fatalf("update: %d %s", rr.Code, rr.Body.String()) }

    // Delete then 404
    rr = doJSON(t, s.RuleByIDHandler, http.MethodDelete, "/v1/rules/"+rule.ID, nil)
    if rr.Code != 204 { t.Fatalf("delete: %d", rr.Code) }
    rr2 := httptest.NewRecorder()
    s.RuleByIDHandler(rr2, httptest.NewRequest(http.MethodGet, "/v1/rules/"+rule.ID, nil))
    if rr2.Code != 404 { t.Fatalf("get deleted: %d", rr2.Code) }
}

func TestRBACOperatorCannotAuthor(t *testing.T) {
    s := newTestServer(t)
    body, _ := json.Marshal(map[string]any{
        "name": "nope",
        "conditions": []map[string]any{{"type": "total_items", "operator": "every", "value": 1}},
        "actions":    []map[string]any{{"type": "add_weight", "weightGrams": 5}},
    })
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/rules", bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Role", "operator")
    s.RulesHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("want 403, got %d", rr.Code) }
}

func TestWeighingConfigRoundTrip(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.AdminWeighingConfigHandler, http.MethodGet, "/v1/admin/weighing/config", nil)
    if rr.Code != 200 { t.Fatalf("get config: %d", rr.Code) }
    var cfg struct{ ToleranceG float64 `json:"toleranceGrams"` }
    decode(t, rr, &cfg)
    if cfg.ToleranceG != 100 { t.Fatalf("default tolerance: got %v", cfg.ToleranceG) }

    rr = doJSON(t, s.AdminWeighingConfigHandler, http.MethodPut, "/v1/admin/weighing/config", map[string]any{"toleranceGrams": 25, "displayUnit": "oz"})
    if rr.Code != 200 { t.Fatalf("put config: %d %s", rr.Code, rr.Body.String()) }

    rr = doJSON(t, s.AdminWeighingConfigHandler, http.MethodPut, "/v1/admin/weighing/config", map[string]any{"toleranceGrams": -1})
    if rr.Code != http.StatusBadRequest { t.Fatalf("negative tolerance: want 400, got %d", rr.Code) }

    rr = doJSON(t, s.AdminWeighingConfigHandler, http.MethodGet, "/v1/admin/weighing/config", nil)
    decode(t, rr, &cfg)
    if cfg.ToleranceG != 25 { t.Fatalf("saved tolerance: got %v", cfg.ToleranceG) }
}

func TestAdminBatchRecalculate(t *testing.T) {
    s := newTestServer(t)
    pid := createProduct(t, s, "Beans", "cat_coffee", 500, 10)
    for i := 0; i < 3; i++ {
        rr := doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
            "lines": []map[string]any{{"productId": pid, "quantity": 1}},
        })
        if rr.Code != http.StatusCreated { t.Fatalf("create order: %d", rr.Code) }
    }
    rr := doJSON(t, s.AdminRecalculateHandler, http.MethodPost, "/v1/admin/orders/recalculate", nil)
    if rr.Code != 200 { t.Fatalf("batch recalc: %d %s", rr.Code, rr.Body.String()) }
    var res struct{ Updated, Failed int }
    decode(t, rr, &res)
    if res.Updated != 3 || res.Failed != 0 { t.Fatalf("batch recalc: %+v", res) }
}

func TestRuleMetricsCounters(t *testing.T) {
    s := newTestServer(t)
    // Isolated tenant so counters from other tests stay out of view.
    tenant := "t_metrics"
    rr := doJSONAs(t, s.ProductsHandler, http.MethodPost, "/v1/products", tenant, map[string]any{
        "name": "Mug", "categoryId": "cat_fragile", "weightGrams": 340,
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create product: %d", rr.Code) }
    var p struct{ ID string `json:"id"` }
    decode(t, rr, &p)
    rr = doJSONAs(t, s.RulesHandler, http.MethodPost, "/v1/rules", tenant, map[string]any{
        "name": "Fragile padding", "isActive": true,
        "conditions": []map[string]any{{"type": "category_quantity", "categoryId": "cat_fragile", "operator": "every", "value": 1}},
        "actions":    []map[string]any{{"type": "add_weight", "weightGrams": 60}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create rule: %d", rr.Code) }
    rr = doJSONAs(t, s.OrdersHandler, http.MethodPost, "/v1/orders", tenant, map[string]any{
        "lines": []map[string]any{{"productId": p.ID, "quantity": 2}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create order: %d", rr.Code) }

    rr = doJSONAs(t, s.RuleMetricsHandler, http.MethodGet, "/v1/admin/rule-metrics", tenant, nil)
    if rr.Code != 200 { t.Fatalf("rule metrics: %d", rr.Code) }
    var res struct {
        Rules map[string]struct {
            Evaluations  int     `json:"evaluations"`
            Matches      int     `json:"matches"`
            TriggerTotal int64   `json:"triggerTotal"`
            WeightAddedG float64 `json:"weightAddedGrams"`
        } `json:"rules"`
    }
    decode(t, rr, &res)
    if len(res.Rules) != 1 { t.Fatalf("rule counters: got %d entries", len(res.Rules)) }
    for _, c := range res.Rules {
        if c.Evaluations != 1 || c.Matches != 1 { t.Fatalf("counts: %+v", c) }
        if c.TriggerTotal != 2 { t.Fatalf("triggers: got %d, want 2", c.TriggerTotal) }
        if c.WeightAddedG != 120 { t.Fatalf("weight added: got %v, want 120", c.WeightAddedG) }
    }
}

func TestSubscriptionsLifecycle(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", map[string]any{
        "url": "https://example.com/hook", "events": []string{"order.weighed"}, "secret": "sh",
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String()) }
    var sub struct{ ID string `json:"id"` }
    decode(t, rr, &sub)

    rr = doJSON(t, s.SubscriptionsHandler, http.MethodGet, "/v1/subscriptions", nil)
    if rr.Code != 200 { t.Fatalf("list subs: %d", rr.Code) }

    rr = doJSON(t, s.SubscriptionByIDHandler, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
    if rr.Code != 204 { t.Fatalf("delete sub: %d", rr.Code) }
}
