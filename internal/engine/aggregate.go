package engine

// BagWeight is one physical container's net content weight as entered
// by the operator.
type BagWeight struct {
    ID    string  `json:"id"`
    Grams float64 `json:"weightGrams"`
}

// PackagingSelection references a packaging catalog entry with a count.
type PackagingSelection struct {
    PackagingID string `json:"packagingId"`
    Quantity    int64  `json:"quantity"`
}

// PackagingCatalog resolves fixed tare weights for packaging entries.
type PackagingCatalog interface {
    PackagingWeight(packagingID string) (grams float64, ok bool)
}

// PackagingWeights adapts a plain id->grams map to PackagingCatalog.
type PackagingWeights map[string]float64

func (m PackagingWeights) PackagingWeight(id string) (float64, bool) {
    g, ok := m[id]
    return g, ok
}

// Aggregate sums bag weights plus each bag's packaging tare into one
// actual-weight figure. An unresolved packaging id contributes 0; the
// selector UI is expected to prevent it, but the aggregator must not
// fail. No intermediate rounding, so precision does not drift across
// many bags.
func Aggregate(bags []BagWeight, packaging map[string][]PackagingSelection, catalog PackagingCatalog) float64 {
    var total float64
    for _, b := range bags {
        if b.Grams > 0 { total += b.Grams }
        for _, sel := range packaging[b.ID] {
            if sel.Quantity < 1 { continue }
            if catalog == nil { continue }
            g, ok := catalog.PackagingWeight(sel.PackagingID)
            if !ok || g <= 0 { continue }
            total += g * float64(sel.Quantity)
        }
    }
    return total
}
