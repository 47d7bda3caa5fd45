package engine

import (
    "fmt"
    "math"
    "strings"
)

type Status string

const (
    StatusPerfect     Status = "perfect"
    StatusUnderweight Status = "underweight"
    StatusOverweight  Status = "overweight"
)

// Suspect is an order line whose total weight (unit weight times
// quantity) is large enough to plausibly explain the gap between
// measured and expected weight on its own.
type Suspect struct {
    ProductID string  `json:"productId"`
    Name      string  `json:"name,omitempty"`
    UnitGrams float64 `json:"unitGrams"`
}

// AnalysisResult is derived, never persisted on its own; it is
// recomputed from current inputs on every change.
type AnalysisResult struct {
    Status     Status    `json:"status"`
    Message    string    `json:"message"`
    DeltaGrams float64   `json:"deltaGrams"`
    Suspects   []Suspect `json:"suspects,omitempty"`
}

// Analyze compares actual vs expected weight against a tolerance and
// classifies the order. The tolerance boundary is inclusive: |delta| ==
// tolerance is still perfect. Returns ok=false when expectedGrams <= 0,
// meaning no expectation is available and callers should skip the
// verdict entirely (the order can still be weighed and completed).
//
// Analyze mutates nothing and is safe to call on every keystroke of the
// weighing workflow.
func Analyze(actualGrams, expectedGrams float64, lines []OrderLine, toleranceGrams float64) (AnalysisResult, bool) {
    if expectedGrams <= 0 {
        return AnalysisResult{}, false
    }
    if toleranceGrams < 0 { toleranceGrams = 0 }
    delta := actualGrams - expectedGrams
    res := AnalysisResult{DeltaGrams: delta}
    switch {
    case math.Abs(delta) <= toleranceGrams:
        res.Status = StatusPerfect
        res.Message = fmt.Sprintf("measured %.0fg matches expected %.0fg within %.0fg tolerance (delta %+.0fg)",
            actualGrams, expectedGrams, toleranceGrams, delta)
        return res, true
    case delta < 0:
        res.Status = StatusUnderweight
    default:
        res.Status = StatusOverweight
    }
    gap := math.Abs(delta)
    for _, l := range lines {
        if l.WeightG > 0 && l.WeightG*float64(l.Quantity) >= gap {
            res.Suspects = append(res.Suspects, Suspect{ProductID: l.ProductID, Name: l.Name, UnitGrams: l.WeightG})
        }
    }
    verb := "below"
    hint := "likely missing"
    if res.Status == StatusOverweight {
        verb = "above"
        hint = "possibly extra"
    }
    msg := fmt.Sprintf("measured %.0fg is %.0fg %s expected %.0fg (tolerance %.0fg)",
        actualGrams, gap, verb, expectedGrams, toleranceGrams)
    if len(res.Suspects) > 0 {
        names := make([]string, 0, len(res.Suspects))
        for _, sp := range res.Suspects {
            n := sp.Name
            if n == "" { n = sp.ProductID }
            names = append(names, fmt.Sprintf("%s (%.0fg)", n, sp.UnitGrams))
        }
        msg += "; " + hint + ": " + strings.Join(names, ", ")
    }
    res.Message = msg
    return res, true
}
