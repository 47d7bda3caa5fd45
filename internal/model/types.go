package model

import "weighgate/internal/engine"

// Catalog records. Weights are stored in grams; ounce entry is
// converted at the API boundary.

type ProductIn struct {
    Name        string  `json:"name"`
    CategoryID  string  `json:"categoryId,omitempty"`
    WeightG     float64 `json:"weightGrams,omitempty"`
    WeightOz    float64 `json:"weightOunces,omitempty"` // alternative entry unit
    PriceUnits  float64 `json:"price,omitempty"`
    ExternalRef string  `json:"externalRef,omitempty"`
}

type Product struct {
    ID          string  `json:"id"`
    TenantID    string  `json:"tenantId"`
    Name        string  `json:"name"`
    CategoryID  string  `json:"categoryId,omitempty"`
    WeightG     float64 `json:"weightGrams"`
    PriceUnits  float64 `json:"price,omitempty"`
    ExternalRef string  `json:"externalRef,omitempty"`
}

type PackagingIn struct {
    Name     string  `json:"name"`
    WeightG  float64 `json:"weightGrams,omitempty"`
    WeightOz float64 `json:"weightOunces,omitempty"`
}

type Packaging struct {
    ID       string  `json:"id"`
    TenantID string  `json:"tenantId"`
    Name     string  `json:"name"`
    WeightG  float64 `json:"weightGrams"`
}

// Orders

type OrderLineIn struct {
    ProductID string  `json:"productId"`
    Quantity  int64   `json:"quantity"`
    UnitPrice float64 `json:"unitPrice,omitempty"` // catalog price used when 0
}

type OrderIn struct {
    ExternalRef string        `json:"externalRef,omitempty"`
    Lines       []OrderLineIn `json:"lines"`
}

// Expectation is the rule-engine output stored on an order.
type Expectation struct {
    ExpectedG int64            `json:"expectedGrams"`
    Additions []engine.Applied `json:"additions,omitempty"`
    Notes     []string         `json:"notes,omitempty"`
    Matched   []string         `json:"matchedRules,omitempty"`
}

// WeighResult is the committed outcome of one weighing.
type WeighResult struct {
    ActualG    int64  `json:"actualGrams"`
    DeltaG     int64  `json:"deltaGrams"`
    Verdict    string `json:"verdict,omitempty"` // perfect, underweight, overweight; empty when no expectation
    Overridden bool   `json:"overridden,omitempty"`
    Status     string `json:"status"` // weighed, completed
    TS         string `json:"ts"`
}

type OrderOut struct {
    ID          string             `json:"id"`
    TenantID    string             `json:"tenantId"`
    ExternalRef string             `json:"externalRef,omitempty"`
    Status      string             `json:"status"` // pending, weighed, completed
    Lines       []engine.OrderLine `json:"lines,omitempty"`
    OrderValue  float64            `json:"orderValue,omitempty"`
    ExpectedG   int64              `json:"expectedGrams,omitempty"`
    Additions   []engine.Applied   `json:"additions,omitempty"`
    Notes       []string           `json:"notes,omitempty"`
    ActualG     int64              `json:"actualGrams,omitempty"`
    DeltaG      int64              `json:"deltaGrams,omitempty"`
    Verdict     string             `json:"verdict,omitempty"`
    Overridden  bool               `json:"overridden,omitempty"`
}

// Rules

type RuleRecord struct {
    TenantID string      `json:"tenantId"`
    Rule     engine.Rule `json:"rule"`
}

// Weighing surfaces

type WeighEntry struct {
    Bags      []engine.BagWeight                     `json:"bags"`
    Packaging map[string][]engine.PackagingSelection `json:"packaging,omitempty"` // bagId -> selections
}

type AnalyzeRequest struct {
    OrderID string `json:"orderId"`
    WeighEntry
}

type WeighRequest struct {
    WeighEntry
    Override bool   `json:"override,omitempty"`
    Complete bool   `json:"complete,omitempty"` // commit as completed instead of weighed
    Station  string `json:"station,omitempty"`
}

// Draft is the explicit in-progress weighing state, replacing ad-hoc
// browser storage. Keyed per order and station.
type Draft struct {
    OrderID string `json:"orderId"`
    Station string `json:"station,omitempty"`
    WeighEntry
    UpdatedAt string `json:"updatedAt"`
}

// WeighingConfig is the organization's tolerance configuration.
type WeighingConfig struct {
    ToleranceG  float64 `json:"toleranceGrams"`
    DisplayUnit string  `json:"displayUnit,omitempty"` // g or oz
}

// DefaultToleranceG applies when a tenant has no stored config.
const DefaultToleranceG = 100

// WeighAudit records a committed weighing, including explicit
// overrides of an underweight verdict.
type WeighAudit struct {
    ID         string `json:"id"`
    OrderID    string `json:"orderId"`
    Actor      string `json:"actor,omitempty"`
    Station    string `json:"station,omitempty"`
    ActualG    int64  `json:"actualGrams"`
    ExpectedG  int64  `json:"expectedGrams"`
    DeltaG     int64  `json:"deltaGrams"`
    Verdict    string `json:"verdict,omitempty"`
    Overridden bool   `json:"overridden"`
    TS         string `json:"ts"`
}

// Webhook subscriptions (event fanout to external systems)

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
