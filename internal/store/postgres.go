package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "weighgate/internal/engine"
    "weighgate/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Ping reports database connectivity for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS etc).
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if e.IsDir() { continue }
        if strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", n, err)
        }
    }
    return nil
}

// Catalog

func (p *Postgres) CreateProduct(ctx context.Context, tenantID string, in model.ProductIn) (model.Product, error) {
    g := in.WeightG
    if g == 0 && in.WeightOz > 0 { g = engine.OuncesToGrams(in.WeightOz) }
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO products (id, tenant_id, name, category_id, weight_g, price, external_ref) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
        id, tenantID, in.Name, nullIfEmpty(in.CategoryID), g, in.PriceUnits, nullIfEmpty(in.ExternalRef))
    if err != nil { return model.Product{}, err }
    return model.Product{ID: id, TenantID: tenantID, Name: in.Name, CategoryID: in.CategoryID, WeightG: g, PriceUnits: in.PriceUnits, ExternalRef: in.ExternalRef}, nil
}

func (p *Postgres) GetProduct(ctx context.Context, tenantID, id string) (model.Product, error) {
    var pr model.Product
    var cat, ext sql.NullString
    row := p.db.QueryRowContext(ctx, `SELECT id::text, name, category_id, weight_g, price, external_ref FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err := row.Scan(&pr.ID, &pr.Name, &cat, &pr.WeightG, &pr.PriceUnits, &ext); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return pr, ErrNotFound }
        return pr, err
    }
    pr.TenantID = tenantID
    pr.CategoryID = cat.String
    pr.ExternalRef = ext.String
    return pr, nil
}

func (p *Postgres) ListProducts(ctx context.Context, tenantID, cursor string, limit int) ([]model.Product, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, category_id, weight_g, price, external_ref FROM products WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, category_id, weight_g, price, external_ref FROM products WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Product{}
    var last string
    for rows.Next() {
        var pr model.Product
        var cat, ext sql.NullString
        if err := rows.Scan(&pr.ID, &pr.Name, &cat, &pr.WeightG, &pr.PriceUnits, &ext); err != nil { return nil, "", err }
        pr.TenantID = tenantID
        pr.CategoryID = cat.String
        pr.ExternalRef = ext.String
        out = append(out, pr)
        last = pr.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) ProductTable(ctx context.Context, tenantID string) (map[string]model.Product, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, category_id, weight_g, price, external_ref FROM products WHERE tenant_id=$1`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := map[string]model.Product{}
    for rows.Next() {
        var pr model.Product
        var cat, ext sql.NullString
        if err := rows.Scan(&pr.ID, &pr.Name, &cat, &pr.WeightG, &pr.PriceUnits, &ext); err != nil { return nil, err }
        pr.TenantID = tenantID
        pr.CategoryID = cat.String
        pr.ExternalRef = ext.String
        out[pr.ID] = pr
    }
    return out, nil
}

func (p *Postgres) CreatePackaging(ctx context.Context, tenantID string, in model.PackagingIn) (model.Packaging, error) {
    g := in.WeightG
    if g == 0 && in.WeightOz > 0 { g = engine.OuncesToGrams(in.WeightOz) }
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO packaging (id, tenant_id, name, weight_g) VALUES ($1,$2,$3,$4)`, id, tenantID, in.Name, g)
    if err != nil { return model.Packaging{}, err }
    return model.Packaging{ID: id, TenantID: tenantID, Name: in.Name, WeightG: g}, nil
}

func (p *Postgres) ListPackaging(ctx context.Context, tenantID, cursor string, limit int) ([]model.Packaging, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, weight_g FROM packaging WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, weight_g FROM packaging WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Packaging{}
    var last string
    for rows.Next() {
        var pk model.Packaging
        if err := rows.Scan(&pk.ID, &pk.Name, &pk.WeightG); err != nil { return nil, "", err }
        pk.TenantID = tenantID
        out = append(out, pk)
        last = pk.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) PackagingTable(ctx context.Context, tenantID string) (map[string]model.Packaging, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, weight_g FROM packaging WHERE tenant_id=$1`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := map[string]model.Packaging{}
    for rows.Next() {
        var pk model.Packaging
        if err := rows.Scan(&pk.ID, &pk.Name, &pk.WeightG); err != nil { return nil, err }
        pk.TenantID = tenantID
        out[pk.ID] = pk
    }
    return out, nil
}

// Rules. The full rule document (conditions, operators, actions) is
// stored as JSONB; is_active and priority are mirrored into columns
// for filtering and ordering.

func (p *Postgres) CreateRule(ctx context.Context, tenantID string, r engine.Rule) (engine.Rule, error) {
    if r.ID == "" { r.ID = uuid.New().String() }
    doc, err := json.Marshal(r)
    if err != nil { return engine.Rule{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO rules (id, tenant_id, doc, is_active, priority) VALUES ($1,$2,$3,$4,$5)`, r.ID, tenantID, doc, r.Active, r.Priority)
    if err != nil { return engine.Rule{}, err }
    return r, nil
}

func (p *Postgres) GetRule(ctx context.Context, tenantID, id string) (engine.Rule, error) {
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT doc FROM rules WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&doc)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return engine.Rule{}, ErrNotFound }
        return engine.Rule{}, err
    }
    var r engine.Rule
    if err := json.Unmarshal(doc, &r); err != nil { return engine.Rule{}, err }
    return r, nil
}

func (p *Postgres) ListRules(ctx context.Context, tenantID, cursor string, limit int) ([]engine.Rule, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM rules WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, doc FROM rules WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []engine.Rule{}
    var last string
    for rows.Next() {
        var id string
        var doc []byte
        if err := rows.Scan(&id, &doc); err != nil { return nil, "", err }
        var r engine.Rule
        if err := json.Unmarshal(doc, &r); err != nil { return nil, "", err }
        out = append(out, r)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) UpdateRule(ctx context.Context, tenantID string, r engine.Rule) (engine.Rule, error) {
    doc, err := json.Marshal(r)
    if err != nil { return engine.Rule{}, err }
    res, err := p.db.ExecContext(ctx, `UPDATE rules SET doc=$1, is_active=$2, priority=$3, updated_at=now() WHERE tenant_id=$4 AND id=$5`, doc, r.Active, r.Priority, tenantID, r.ID)
    if err != nil { return engine.Rule{}, err }
    if n, _ := res.RowsAffected(); n == 0 { return engine.Rule{}, ErrNotFound }
    return r, nil
}

func (p *Postgres) DeleteRule(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM rules WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) ActiveRules(ctx context.Context, tenantID string) ([]engine.Rule, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT doc FROM rules WHERE tenant_id=$1 AND is_active ORDER BY priority, created_at`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []engine.Rule{}
    for rows.Next() {
        var doc []byte
        if err := rows.Scan(&doc); err != nil { return nil, err }
        var r engine.Rule
        if err := json.Unmarshal(doc, &r); err != nil { return nil, err }
        out = append(out, r)
    }
    return out, nil
}

// Orders

func (p *Postgres) CreateOrder(ctx context.Context, tenantID string, in model.OrderIn, lines []engine.OrderLine, orderValue float64, exp model.Expectation) (model.OrderOut, error) {
    id := uuid.New().String()
    linesDoc, err := json.Marshal(lines)
    if err != nil { return model.OrderOut{}, err }
    addDoc, err := json.Marshal(exp.Additions)
    if err != nil { return model.OrderOut{}, err }
    notesDoc, err := json.Marshal(exp.Notes)
    if err != nil { return model.OrderOut{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO orders (id, tenant_id, external_ref, status, lines, order_value, expected_g, additions, notes)
        VALUES ($1,$2,$3,'pending',$4,$5,$6,$7,$8)`,
        id, tenantID, nullIfEmpty(in.ExternalRef), linesDoc, orderValue, exp.ExpectedG, addDoc, notesDoc)
    if err != nil { return model.OrderOut{}, err }
    return model.OrderOut{ID: id, TenantID: tenantID, ExternalRef: in.ExternalRef, Status: "pending", Lines: lines, OrderValue: orderValue, ExpectedG: exp.ExpectedG, Additions: exp.Additions, Notes: exp.Notes}, nil
}

func (p *Postgres) GetOrder(ctx context.Context, tenantID, id string) (model.OrderOut, error) {
    var o model.OrderOut
    var ext, verdict sql.NullString
    var linesDoc, addDoc, notesDoc []byte
    row := p.db.QueryRowContext(ctx, `SELECT id::text, external_ref, status, lines, order_value, expected_g, additions, notes, COALESCE(actual_g,0), COALESCE(delta_g,0), verdict, COALESCE(overridden,false)
        FROM orders WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err := row.Scan(&o.ID, &ext, &o.Status, &linesDoc, &o.OrderValue, &o.ExpectedG, &addDoc, &notesDoc, &o.ActualG, &o.DeltaG, &verdict, &o.Overridden); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return o, ErrNotFound }
        return o, err
    }
    o.TenantID = tenantID
    o.ExternalRef = ext.String
    o.Verdict = verdict.String
    _ = json.Unmarshal(linesDoc, &o.Lines)
    _ = json.Unmarshal(addDoc, &o.Additions)
    _ = json.Unmarshal(notesDoc, &o.Notes)
    return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.OrderOut, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if status != "" {
        if cursor != "" {
            rows, err = p.db.QueryContext(ctx, `SELECT id::text, external_ref, status, expected_g, COALESCE(actual_g,0), COALESCE(delta_g,0), verdict, COALESCE(overridden,false) FROM orders WHERE tenant_id=$1 AND status=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
        } else {
            rows, err = p.db.QueryContext(ctx, `SELECT id::text, external_ref, status, expected_g, COALESCE(actual_g,0), COALESCE(delta_g,0), verdict, COALESCE(overridden,false) FROM orders WHERE tenant_id=$1 AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
        }
    } else {
        if cursor != "" {
            rows, err = p.db.QueryContext(ctx, `SELECT id::text, external_ref, status, expected_g, COALESCE(actual_g,0), COALESCE(delta_g,0), verdict, COALESCE(overridden,false) FROM orders WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
        } else {
            rows, err = p.db.QueryContext(ctx, `SELECT id::text, external_ref, status, expected_g, COALESCE(actual_g,0), COALESCE(delta_g,0), verdict, COALESCE(overridden,false) FROM orders WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
        }
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.OrderOut{}
    var last string
    for rows.Next() {
        var o model.OrderOut
        var ext, verdict sql.NullString
        if err := rows.Scan(&o.ID, &ext, &o.Status, &o.ExpectedG, &o.ActualG, &o.DeltaG, &verdict, &o.Overridden); err != nil { return nil, "", err }
        o.TenantID = tenantID
        o.ExternalRef = ext.String
        o.Verdict = verdict.String
        out = append(out, o)
        last = o.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) ListOrderIDs(ctx context.Context, tenantID string) ([]string, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text FROM orders WHERE tenant_id=$1 ORDER BY id`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []string{}
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil { return nil, err }
        out = append(out, id)
    }
    return out, nil
}

func (p *Postgres) SaveExpectation(ctx context.Context, tenantID, orderID string, exp model.Expectation) error {
    addDoc, err := json.Marshal(exp.Additions)
    if err != nil { return err }
    notesDoc, err := json.Marshal(exp.Notes)
    if err != nil { return err }
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET expected_g=$1, additions=$2, notes=$3, updated_at=now() WHERE tenant_id=$4 AND id=$5`, exp.ExpectedG, addDoc, notesDoc, tenantID, orderID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) CommitWeighing(ctx context.Context, tenantID, orderID string, res model.WeighResult) (model.OrderOut, error) {
    r, err := p.db.ExecContext(ctx, `UPDATE orders SET actual_g=$1, delta_g=$2, verdict=$3, overridden=$4, status=$5, weighed_at=now(), updated_at=now() WHERE tenant_id=$6 AND id=$7`,
        res.ActualG, res.DeltaG, nullIfEmpty(res.Verdict), res.Overridden, res.Status, tenantID, orderID)
    if err != nil { return model.OrderOut{}, err }
    if n, _ := r.RowsAffected(); n == 0 { return model.OrderOut{}, ErrNotFound }
    return p.GetOrder(ctx, tenantID, orderID)
}

// Weighing config & audit

func (p *Postgres) GetWeighingConfig(ctx context.Context, tenantID string) (model.WeighingConfig, error) {
    var cfg model.WeighingConfig
    var unit sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT tolerance_g, display_unit FROM weighing_config WHERE tenant_id=$1`, tenantID).Scan(&cfg.ToleranceG, &unit)
    if errors.Is(err, sql.ErrNoRows) {
        return model.WeighingConfig{ToleranceG: model.DefaultToleranceG, DisplayUnit: "g"}, nil
    }
    if err != nil { return cfg, err }
    cfg.DisplayUnit = unit.String
    if cfg.DisplayUnit == "" { cfg.DisplayUnit = "g" }
    return cfg, nil
}

func (p *Postgres) SaveWeighingConfig(ctx context.Context, tenantID string, cfg model.WeighingConfig) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO weighing_config (tenant_id, tolerance_g, display_unit, updated_at) VALUES ($1,$2,$3,now())
        ON CONFLICT (tenant_id) DO UPDATE SET tolerance_g=EXCLUDED.tolerance_g, display_unit=EXCLUDED.display_unit, updated_at=now()`, tenantID, cfg.ToleranceG, nullIfEmpty(cfg.DisplayUnit))
    return err
}

func (p *Postgres) InsertWeighAudit(ctx context.Context, tenantID string, a model.WeighAudit) error {
    if a.ID == "" { a.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO weigh_audits (id, tenant_id, order_id, actor, station, actual_g, expected_g, delta_g, verdict, overridden, ts)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
        a.ID, tenantID, a.OrderID, nullIfEmpty(a.Actor), nullIfEmpty(a.Station), a.ActualG, a.ExpectedG, a.DeltaG, nullIfEmpty(a.Verdict), a.Overridden, a.TS)
    return err
}

func (p *Postgres) ListWeighAudits(ctx context.Context, tenantID, cursor string, limit int) ([]model.WeighAudit, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, order_id::text, COALESCE(actor,''), COALESCE(station,''), actual_g, expected_g, delta_g, COALESCE(verdict,''), overridden, ts FROM weigh_audits WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, order_id::text, COALESCE(actor,''), COALESCE(station,''), actual_g, expected_g, delta_g, COALESCE(verdict,''), overridden, ts FROM weigh_audits WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.WeighAudit{}
    var last string
    for rows.Next() {
        var a model.WeighAudit
        if err := rows.Scan(&a.ID, &a.OrderID, &a.Actor, &a.Station, &a.ActualG, &a.ExpectedG, &a.DeltaG, &a.Verdict, &a.Overridden, &a.TS); err != nil { return nil, "", err }
        out = append(out, a)
        last = a.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, fmt.Sprintf("[\"%s\"]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events any
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        if b, ok := events.([]byte); ok { _ = json.Unmarshal(b, &s.Events) }
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload []byte
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = payload
        out = append(out, d)
    }
    return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    if err != nil { return err }
    // move to DLQ
    _, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT gen_random_uuid(), tenant_id, id, event_type, url, secret, payload, attempts+1, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
    var rows *sql.Rows
    var err error
    if status != "" {
        q += ` AND status=$2 ORDER BY id LIMIT $3`
        rows, err = p.db.QueryContext(ctx, q, tenantID, status, limit)
    } else {
        q += ` ORDER BY id LIMIT $2`
        rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, typ, st, lastErr, url string
        var attempts int
        var nextAt sql.NullTime
        if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
        m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { m["nextAttemptAt"] = nextAt.Time }
        if lastErr != "" { m["lastError"] = lastErr }
        out = append(out, m)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    base := `SELECT id::text, delivery_id::text, event_type, url, COALESCE(last_error,''), attempts, created_at, COALESCE(response_code,0), COALESCE(latency_ms,0) FROM webhook_dlq WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if eventType != "" { base += ` AND event_type=$` + fmt.Sprint(idx); args = append(args, eventType); idx++ }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        q := base + ` AND id::text > $` + fmt.Sprint(idx) + ` ORDER BY id LIMIT $` + fmt.Sprint(idx+1)
        args = append(args, cursor, limit)
        rows, err = p.db.QueryContext(ctx, q, args...)
    } else {
        q := base + ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
        args = append(args, limit)
        rows, err = p.db.QueryContext(ctx, q, args...)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, delID, et, url, errStr string
        var attempts int
        var created time.Time
        var code, latency int
        if err := rows.Scan(&id, &delID, &et, &url, &errStr, &attempts, &created, &code, &latency); err != nil { return nil, "", err }
        out = append(out, map[string]any{"id": id, "deliveryId": delID, "eventType": et, "url": url, "lastError": errStr, "attempts": attempts, "createdAt": created, "responseCode": code, "latencyMs": latency})
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    var delID, et, url, secret string
    var payload []byte
    err := p.db.QueryRowContext(ctx, `SELECT COALESCE(delivery_id::text,''), event_type, url, COALESCE(secret,''), payload FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&delID, &et, &url, &secret, &payload)
    if err != nil { return err }
    if _, err := p.EnqueueWebhook(ctx, tenantID, delID, et, url, secret, payload); err != nil { return err }
    _, err = p.db.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

func (p *Postgres) PurgeWebhookDLQ(ctx context.Context, tenantID string) (int, error) {
    res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1`, tenantID)
    if err != nil { return 0, err }
    n, _ := res.RowsAffected()
    return int(n), nil
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}
