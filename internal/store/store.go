package store

import (
    "context"
    "errors"
    "time"

    "weighgate/internal/engine"
    "weighgate/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Catalog
    CreateProduct(ctx context.Context, tenantID string, in model.ProductIn) (model.Product, error)
    GetProduct(ctx context.Context, tenantID, id string) (model.Product, error)
    ListProducts(ctx context.Context, tenantID, cursor string, limit int) ([]model.Product, string, error)
    ProductTable(ctx context.Context, tenantID string) (map[string]model.Product, error)
    CreatePackaging(ctx context.Context, tenantID string, in model.PackagingIn) (model.Packaging, error)
    ListPackaging(ctx context.Context, tenantID, cursor string, limit int) ([]model.Packaging, string, error)
    PackagingTable(ctx context.Context, tenantID string) (map[string]model.Packaging, error)

    // Rules
    CreateRule(ctx context.Context, tenantID string, r engine.Rule) (engine.Rule, error)
    GetRule(ctx context.Context, tenantID, id string) (engine.Rule, error)
    ListRules(ctx context.Context, tenantID, cursor string, limit int) ([]engine.Rule, string, error)
    UpdateRule(ctx context.Context, tenantID string, r engine.Rule) (engine.Rule, error)
    DeleteRule(ctx context.Context, tenantID, id string) error
    ActiveRules(ctx context.Context, tenantID string) ([]engine.Rule, error)

    // Orders
    CreateOrder(ctx context.Context, tenantID string, in model.OrderIn, lines []engine.OrderLine, orderValue float64, exp model.Expectation) (model.OrderOut, error)
    GetOrder(ctx context.Context, tenantID, id string) (model.OrderOut, error)
    ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.OrderOut, string, error)
    ListOrderIDs(ctx context.Context, tenantID string) ([]string, error)
    SaveExpectation(ctx context.Context, tenantID, orderID string, exp model.Expectation) error
    CommitWeighing(ctx context.Context, tenantID, orderID string, res model.WeighResult) (model.OrderOut, error)

    // Weighing config & audit
    GetWeighingConfig(ctx context.Context, tenantID string) (model.WeighingConfig, error)
    SaveWeighingConfig(ctx context.Context, tenantID string, cfg model.WeighingConfig) error
    InsertWeighAudit(ctx context.Context, tenantID string, a model.WeighAudit) error
    ListWeighAudits(ctx context.Context, tenantID, cursor string, limit int) ([]model.WeighAudit, string, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    // Dead-letter queue
    ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
    RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error
    PurgeWebhookDLQ(ctx context.Context, tenantID string) (int, error)
}

var ErrNotFound = errors.New("not found")
