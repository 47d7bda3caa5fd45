package engine

import "sync"

// Per-tenant rule evaluation counters for the admin stats endpoint.

type Stats struct {
    Evaluations  int     `json:"evaluations"`
    Matches      int     `json:"matches"`
    TriggerTotal int64   `json:"triggerTotal"`
    WeightAddedG float64 `json:"weightAddedGrams"`
}

type statsKey struct {
    Tenant string
    RuleID string
}

var (
    statsMu sync.Mutex
    stats   = map[statsKey]Stats{}
)

// RecordStats accumulates one rule evaluation outcome.
func RecordStats(tenant, ruleID string, triggers int64, weightAddedG float64) {
    statsMu.Lock()
    k := statsKey{Tenant: tenant, RuleID: ruleID}
    s := stats[k]
    s.Evaluations++
    if triggers > 0 {
        s.Matches++
        s.TriggerTotal += triggers
        s.WeightAddedG += weightAddedG
    }
    stats[k] = s
    statsMu.Unlock()
}

// GetStats returns counters for a tenant keyed by rule id.
func GetStats(tenant string) map[string]Stats {
    statsMu.Lock()
    defer statsMu.Unlock()
    out := map[string]Stats{}
    for k, v := range stats {
        if k.Tenant == tenant {
            out[k.RuleID] = v
        }
    }
    return out
}
