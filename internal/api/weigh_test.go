package api

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"
)

// weighFixture creates a product, packaging entry and an order of two
// units (expected 2000g with default tolerance 100g).
func weighFixture(t *testing.T, s *Server) (orderID, packagingID string) {
    t.Helper()
    pid := createProduct(t, s, "Coffee Beans 1kg", "cat_coffee", 1000, 18.5)
    rr := doJSON(t, s.PackagingHandler, http.MethodPost, "/v1/packaging", map[string]any{
        "name": "Small Box", "weightGrams": 120,
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create packaging: %d %s", rr.Code, rr.Body.String()) }
    var pk struct{ ID string `json:"id"` }
    decode(t, rr, &pk)
    rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
        "lines": []map[string]any{{"productId": pid, "quantity": 2}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create order: %d %s", rr.Code, rr.Body.String()) }
    var o struct{ ID string `json:"id"` }
    decode(t, rr, &o)
    return o.ID, pk.ID
}

func TestAnalyzeClassifies(t *testing.T) {
    s := newTestServer(t)
    orderID, pkID := weighFixture(t, s)

    // 1880g net + 120g box = 2000g, perfect
    rr := doJSON(t, s.AnalyzeHandler, http.MethodPost, "/v1/weigh/analyze", map[string]any{
        "orderId": orderID,
        "bags":    []map[string]any{{"id": "bag1", "weightGrams": 1880}},
        "packaging": map[string]any{
            "bag1": []map[string]any{{"packagingId": pkID, "quantity": 1}},
        },
    })
    if rr.Code != 200 { t.Fatalf("analyze: %d %s", rr.Code, rr.Body.String()) }
    var res struct {
        Status      string `json:"status"`
        ActualG     int64  `json:"actualGrams"`
        DeltaG      int64  `json:"deltaGrams"`
        OK          bool   `json:"ok"`
    }
    decode(t, rr, &res)
    if !res.OK || res.Status != "perfect" { t.Fatalf("got %+v", res) }
    if res.ActualG != 2000 || res.DeltaG != 0 { t.Fatalf("got %+v", res) }

    // 900g is far under, and the 1000g line can explain the gap
    rr = doJSON(t, s.AnalyzeHandler, http.MethodPost, "/v1/weigh/analyze", map[string]any{
        "orderId": orderID,
        "bags":    []map[string]any{{"id": "bag1", "weightGrams": 900}},
    })
    var res2 struct {
        Status   string `json:"status"`
        Suspects []struct {
            Name      string  `json:"name"`
            UnitGrams float64 `json:"unitGrams"`
        } `json:"suspects"`
    }
    decode(t, rr, &res2)
    if res2.Status != "underweight" { t.Fatalf("got %+v", res2) }
    if len(res2.Suspects) != 1 || res2.Suspects[0].UnitGrams != 1000 { t.Fatalf("suspects: %+v", res2.Suspects) }
}

func TestAnalyzeRejectsMissingInput(t *testing.T) {
    s := newTestServer(t)
    rr := doJSON(t, s.AnalyzeHandler, http.MethodPost, "/v1/weigh/analyze", map[string]any{"orderId": "o_missing"})
    if rr.Code != http.StatusBadRequest { t.Fatalf("no bags: want 400, got %d", rr.Code) }
    rr = doJSON(t, s.AnalyzeHandler, http.MethodPost, "/v1/weigh/analyze", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 10}},
    })
    if rr.Code != http.StatusBadRequest { t.Fatalf("no orderId: want 400, got %d", rr.Code) }
    rr = doJSON(t, s.AnalyzeHandler, http.MethodPost, "/v1/weigh/analyze", map[string]any{
        "orderId": "o_missing",
        "bags":    []map[string]any{{"id": "bag1", "weightGrams": 10}},
    })
    if rr.Code != http.StatusNotFound { t.Fatalf("unknown order: want 404, got %d", rr.Code) }
}

func TestWeighCommitPerfect(t *testing.T) {
    s := newTestServer(t)
    orderID, _ := weighFixture(t, s)

    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/weigh", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 1990}},
    })
    if rr.Code != 200 { t.Fatalf("weigh: %d %s", rr.Code, rr.Body.String()) }
    var o struct {
        Status  string `json:"status"`
        ActualG int64  `json:"actualGrams"`
        Verdict string `json:"verdict"`
    }
    decode(t, rr, &o)
    if o.Status != "weighed" || o.Verdict != "perfect" || o.ActualG != 1990 { t.Fatalf("got %+v", o) }
}

func TestWeighUnderweightBlocksWithoutOverride(t *testing.T) {
    s := newTestServer(t)
    orderID, _ := weighFixture(t, s)

    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/weigh", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 800}},
    })
    if rr.Code != http.StatusConflict { t.Fatalf("want 409, got %d %s", rr.Code, rr.Body.String()) }
    var prob struct {
        Title  string `json:"title"`
        DeltaG int64  `json:"deltaGrams"`
    }
    decode(t, rr, &prob)
    if prob.Title != "Underweight" { t.Fatalf("got %+v", prob) }
    if prob.DeltaG != -1200 { t.Fatalf("delta: got %d", prob.DeltaG) }

    // Order is untouched
    rr2 := httptest.NewRecorder()
    s.OrderByIDHandler(rr2, httptest.NewRequest(http.MethodGet, "/v1/orders/"+orderID, nil))
    var o struct{ Status string `json:"status"` }
    decode(t, rr2, &o)
    if o.Status != "pending" { t.Fatalf("order status after blocked weigh: %s", o.Status) }
}

func TestWeighOverrideCommitsAndAudits(t *testing.T) {
    s := newTestServer(t)
    orderID, _ := weighFixture(t, s)

    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/weigh", map[string]any{
        "bags":     []map[string]any{{"id": "bag1", "weightGrams": 800}},
        "override": true,
        "complete": true,
        "station":  "scale-7",
    })
    if rr.Code != 200 { t.Fatalf("override weigh: %d %s", rr.Code, rr.Body.String()) }
    var o struct {
        Status     string `json:"status"`
        Verdict    string `json:"verdict"`
        Overridden bool   `json:"overridden"`
    }
    decode(t, rr, &o)
    if o.Status != "completed" || o.Verdict != "underweight" || !o.Overridden { t.Fatalf("got %+v", o) }

    rr = doJSON(t, s.WeighAuditsHandler, http.MethodGet, "/v1/admin/weigh-audits", nil)
    if rr.Code != 200 { t.Fatalf("audits: %d", rr.Code) }
    var audits struct {
        Items []struct {
            OrderID    string `json:"orderId"`
            Station    string `json:"station"`
            Overridden bool   `json:"overridden"`
        } `json:"items"`
    }
    decode(t, rr, &audits)
    if len(audits.Items) != 1 { t.Fatalf("audit count: %d", len(audits.Items)) }
    a := audits.Items[0]
    if a.OrderID != orderID || a.Station != "scale-7" || !a.Overridden { t.Fatalf("audit: %+v", a) }
}

func TestWeighWithoutExpectationStillCommits(t *testing.T) {
    s := newTestServer(t)
    // Product with no configured weight -> expectation 0 -> no verdict
    rr := doJSON(t, s.ProductsHandler, http.MethodPost, "/v1/products", map[string]any{"name": "Mystery Item"})
    if rr.Code != http.StatusCreated { t.Fatalf("create product: %d", rr.Code) }
    var p struct{ ID string `json:"id"` }
    decode(t, rr, &p)
    rr = doJSON(t, s.OrdersHandler, http.MethodPost, "/v1/orders", map[string]any{
        "lines": []map[string]any{{"productId": p.ID, "quantity": 1}},
    })
    if rr.Code != http.StatusCreated { t.Fatalf("create order: %d", rr.Code) }
    var o struct{ ID string `json:"id"` }
    decode(t, rr, &o)

    rr = doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+o.ID+"/weigh", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 450}},
    })
    if rr.Code != 200 { t.Fatalf("weigh: %d %s", rr.Code, rr.Body.String()) }
    var res struct {
        Status  string `json:"status"`
        Verdict string `json:"verdict"`
        ActualG int64  `json:"actualGrams"`
    }
    decode(t, rr, &res)
    if res.Status != "weighed" || res.Verdict != "" || res.ActualG != 450 { t.Fatalf("got %+v", res) }
}

func TestWeighDraftLifecycle(t *testing.T) {
    s := newTestServer(t)
    orderID, _ := weighFixture(t, s)

    // No draft yet
    rr := doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/"+orderID+"/weigh/draft", nil)
    if rr.Code != http.StatusNotFound { t.Fatalf("empty draft: want 404, got %d", rr.Code) }

    rr = doJSON(t, s.OrderByIDHandler, http.MethodPut, "/v1/orders/"+orderID+"/weigh/draft?station=scale-1", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 1200}},
    })
    if rr.Code != 200 { t.Fatalf("save draft: %d %s", rr.Code, rr.Body.String()) }

    // Exact station match
    rr = doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/"+orderID+"/weigh/draft?station=scale-1", nil)
    if rr.Code != 200 { t.Fatalf("load draft: %d", rr.Code) }
    var d struct {
        Station string `json:"station"`
        Bags    []struct{ Grams float64 `json:"weightGrams"` } `json:"bags"`
    }
    decode(t, rr, &d)
    if d.Station != "scale-1" || len(d.Bags) != 1 || d.Bags[0].Grams != 1200 { t.Fatalf("draft: %+v", d) }

    // Another station falls back to the existing draft
    rr = doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/"+orderID+"/weigh/draft?station=scale-2", nil)
    if rr.Code != 200 { t.Fatalf("fallback draft: %d", rr.Code) }

    // Committing clears drafts
    rr = doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/weigh", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 2000}},
    })
    if rr.Code != 200 { t.Fatalf("weigh: %d %s", rr.Code, rr.Body.String()) }
    rr = doJSON(t, s.OrderByIDHandler, http.MethodGet, "/v1/orders/"+orderID+"/weigh/draft?station=scale-1", nil)
    if rr.Code != http.StatusNotFound { t.Fatalf("draft after commit: want 404, got %d", rr.Code) }
}

func TestWeighPublishesEvent(t *testing.T) {
    s := newTestServer(t)
    orderID, _ := weighFixture(t, s)

    ch := s.Broker.Subscribe(orderID)
    defer s.Broker.Unsubscribe(orderID, ch)

    rr := doJSON(t, s.OrderByIDHandler, http.MethodPost, "/v1/orders/"+orderID+"/weigh", map[string]any{
        "bags": []map[string]any{{"id": "bag1", "weightGrams": 2000}},
    })
    if rr.Code != 200 { t.Fatalf("weigh: %d", rr.Code) }

    select {
    case evt := <-ch:
        if evt.Type != "order.weighed" { t.Fatalf("event type: %s", evt.Type) }
        b, _ := json.Marshal(evt.Data)
        var data struct{ Verdict string `json:"verdict"` }
        _ = json.Unmarshal(b, &data)
        if data.Verdict != "perfect" { t.Fatalf("event data: %+v", evt.Data) }
    case <-time.After(500 * time.Millisecond):
        t.Fatal("no event published")
    }
}
