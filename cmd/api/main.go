package main

import (
    "fmt"
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "weighgate/internal/api"
    "weighgate/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Orders and weighing
    mux.HandleFunc("/v1/orders", srvDeps.OrdersHandler)
    mux.HandleFunc("/v1/orders/", srvDeps.OrderByIDHandler) // includes /recalculate, /weigh, /weigh/draft, /weigh/stream
    mux.HandleFunc("/v1/weigh/analyze", srvDeps.AnalyzeHandler)
    mux.HandleFunc("/v1/weigh/ws", srvDeps.WeighWSHandler)

    // Rules
    mux.HandleFunc("/v1/rules", srvDeps.RulesHandler)
    mux.HandleFunc("/v1/rules/", srvDeps.RuleByIDHandler)

    // Catalog
    mux.HandleFunc("/v1/products", srvDeps.ProductsHandler)
    mux.HandleFunc("/v1/packaging", srvDeps.PackagingHandler)

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/weighing/config", srvDeps.AdminWeighingConfigHandler)
    mux.HandleFunc("/v1/admin/orders/recalculate", srvDeps.AdminRecalculateHandler)
    mux.HandleFunc("/v1/admin/rule-metrics", srvDeps.RuleMetricsHandler)
    mux.HandleFunc("/v1/admin/weigh-audits", srvDeps.WeighAuditsHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq", srvDeps.WebhookDLQHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq/", srvDeps.WebhookDLQHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Observability and docs
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/docs", srvDeps.DocsHandler)
    mux.HandleFunc("/swagger", srvDeps.SwaggerHandler)
    mux.HandleFunc("/static/", srvDeps.StaticHandler)
    mux.HandleFunc("/station", srvDeps.StaticHandler)
    mux.HandleFunc("/debug", srvDeps.DebugJSON)

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    handler := logMiddleware(metricsMiddleware(mux))
    handler = api.RateLimitMiddleware(handler)

    srv := &http.Server{
        Addr:              addr,
        Handler:           handler,
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    // Start webhook worker
    if srvDeps.Pub != nil {
        worker := srvDeps.NewWebhookWorker()
        worker.Start()
    }
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (rec *statusRecorder) WriteHeader(code int) {
    rec.status = code
    rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Flush() {
    if f, ok := rec.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        status := strconv.Itoa(rec.status)
        path := routeLabel(r.URL.Path)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
    })
}

// routeLabel collapses id segments so metric cardinality stays bounded.
func routeLabel(p string) string {
    switch {
    case len(p) > len("/v1/orders/") && p[:len("/v1/orders/")] == "/v1/orders/":
        return "/v1/orders/{id}"
    case len(p) > len("/v1/rules/") && p[:len("/v1/rules/")] == "/v1/rules/":
        return "/v1/rules/{id}"
    case len(p) > len("/v1/subscriptions/") && p[:len("/v1/subscriptions/")] == "/v1/subscriptions/":
        return "/v1/subscriptions/{id}"
    case len(p) > len("/v1/admin/webhook-deliveries/") && p[:len("/v1/admin/webhook-deliveries/")] == "/v1/admin/webhook-deliveries/":
        return "/v1/admin/webhook-deliveries/{id}"
    case len(p) > len("/v1/admin/webhook-dlq/") && p[:len("/v1/admin/webhook-dlq/")] == "/v1/admin/webhook-dlq/":
        return "/v1/admin/webhook-dlq/{id}"
    }
    return p
}

// Helper to satisfy reference and avoid unused imports in stubs
var _ = fmt.Sprintf
