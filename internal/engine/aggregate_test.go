package engine

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestAggregateBagsAndPackaging(t *testing.T) {
    bags := []BagWeight{{ID: "b1", Grams: 227}, {ID: "b2", Grams: 340}}
    packaging := map[string][]PackagingSelection{
        "b1": {{PackagingID: "pk_wrap", Quantity: 2}},
    }
    catalog := PackagingWeights{"pk_wrap": 15}

    got := Aggregate(bags, packaging, catalog)
    assert.Equal(t, 227.0+30.0+340.0, got)
}

func TestAggregateUnresolvedPackagingContributesZero(t *testing.T) {
    bags := []BagWeight{{ID: "b1", Grams: 100}}
    packaging := map[string][]PackagingSelection{
        "b1": {{PackagingID: "pk_ghost", Quantity: 4}},
    }
    assert.Equal(t, 100.0, Aggregate(bags, packaging, PackagingWeights{}))
    assert.Equal(t, 100.0, Aggregate(bags, packaging, nil))
}

func TestAggregateIgnoresNonPositiveEntries(t *testing.T) {
    bags := []BagWeight{{ID: "b1", Grams: -5}, {ID: "b2", Grams: 50}}
    packaging := map[string][]PackagingSelection{
        "b2": {{PackagingID: "pk", Quantity: 0}},
    }
    assert.Equal(t, 50.0, Aggregate(bags, packaging, PackagingWeights{"pk": 10}))
}

func TestAggregateNoIntermediateRounding(t *testing.T) {
    // Many fractional bags must not drift the way per-bag rounding would.
    bags := make([]BagWeight, 0, 100)
    for i := 0; i < 100; i++ {
        bags = append(bags, BagWeight{ID: "b", Grams: 0.005})
    }
    got := Aggregate(bags, nil, nil)
    assert.InDelta(t, 0.5, got, 1e-9)
}
