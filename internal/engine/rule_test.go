package engine

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

var testCatalog = ProductWeights{
    "p_espresso": 250,
    "p_filter":   80,
    "p_mug":      310,
    "p_icepack":  120,
}

func TestApplyAddWeight(t *testing.T) {
    snap := snackOrder()
    rules := []Rule{{
        ID: "r1", Name: "box padding", Active: true, Priority: 1,
        Conditions: []Condition{{Subject: TotalItems{}, Operator: OpGreaterThan, Value: 5}},
        Actions:    []Action{AddWeight{ID: "a1", Grams: 40}},
    }}
    out := Apply(rules, snap, testCatalog, 1000)
    assert.Equal(t, 1040.0, out.ExpectedGrams)
    require.Len(t, out.Additions, 1)
    assert.Equal(t, "weight", out.Additions[0].Kind)
    assert.Equal(t, []string{"r1"}, out.Matched)
}

func TestApplyEveryMultipliesActions(t *testing.T) {
    snap := snackOrder() // 7 items -> every 3 triggers twice
    rules := []Rule{{
        ID: "r_ice", Name: "ice pack per 3 items", Active: true, Priority: 1,
        Conditions: []Condition{{Subject: TotalItems{}, Operator: OpEvery, Value: 3}},
        Actions: []Action{
            AddCatalogProduct{ID: "a1", ProductID: "p_icepack", Quantity: 1},
            AddNote{ID: "a2", Note: "keep refrigerated"},
        },
    }}
    out := Apply(rules, snap, testCatalog, 0)
    assert.Equal(t, 240.0, out.ExpectedGrams, "120g ice pack twice")
    require.Len(t, out.Additions, 1)
    assert.Equal(t, int64(2), out.Additions[0].Quantity)
    assert.Equal(t, []string{"keep refrigerated"}, out.Notes, "note appended once, not per trigger")
}

func TestApplyAdHocProduct(t *testing.T) {
    snap := snackOrder()
    rules := []Rule{{
        ID: "r_gift", Active: true, Priority: 1,
        Conditions: []Condition{{Subject: OrderValue{}, Operator: OpGreaterThan, Value: 50}},
        Actions:    []Action{AddAdHocProduct{ID: "a1", Name: "Gift Sticker", Grams: 5, Quantity: 2}},
    }}
    out := Apply(rules, snap, testCatalog, 0)
    assert.Equal(t, 10.0, out.ExpectedGrams)
    require.Len(t, out.Additions, 1)
    assert.Equal(t, "Gift Sticker", out.Additions[0].Name)
    assert.Empty(t, out.Additions[0].ProductID, "ad-hoc products have no catalog reference")
}

func TestApplyPriorityOrderStable(t *testing.T) {
    snap := snackOrder()
    cond := []Condition{{Subject: TotalItems{}, Operator: OpGreaterThan, Value: 1}}
    rules := []Rule{
        {ID: "r_late", Active: true, Priority: 10, Conditions: cond, Actions: []Action{AddWeight{ID: "w3", Grams: 3}}},
        {ID: "r_first", Active: true, Priority: 1, Conditions: cond, Actions: []Action{AddWeight{ID: "w1", Grams: 1}}},
        {ID: "r_tie", Active: true, Priority: 10, Conditions: cond, Actions: []Action{AddWeight{ID: "w2", Grams: 2}}},
    }
    out := Apply(rules, snap, testCatalog, 0)
    assert.Equal(t, []string{"r_first", "r_late", "r_tie"}, out.Matched,
        "lower priority value first, ties keep authoring order")
}

func TestApplySkipsInactiveRules(t *testing.T) {
    snap := snackOrder()
    rules := []Rule{{
        ID: "r_off", Active: false, Priority: 1,
        Conditions: []Condition{{Subject: TotalItems{}, Operator: OpGreaterThan, Value: 1}},
        Actions:    []Action{AddWeight{ID: "a", Grams: 999}},
    }}
    out := Apply(rules, snap, testCatalog, 100)
    assert.Equal(t, 100.0, out.ExpectedGrams)
    assert.Empty(t, out.Matched)
}

func TestApplyIdempotent(t *testing.T) {
    snap := snackOrder()
    rules := []Rule{{
        ID: "r1", Active: true, Priority: 1,
        Conditions: []Condition{
            {Subject: CategoryQuantity{CategoryID: "c_coffee"}, Operator: OpEvery, Value: 2},
            {Subject: OrderValue{}, Operator: OpGreaterThan, Value: 10},
        },
        Operators: []LogicOp{LogicAnd},
        Actions:   []Action{AddWeight{ID: "a", Grams: 25}, AddNote{ID: "n", Note: "fragile"}},
    }}
    first := Apply(rules, snap, testCatalog, 500)
    second := Apply(rules, snap, testCatalog, 500)
    assert.Equal(t, first, second)
}

func TestApplyDanglingProductContributesNothing(t *testing.T) {
    snap := snackOrder()
    rules := []Rule{{
        ID: "r1", Active: true, Priority: 1,
        Conditions: []Condition{{Subject: TotalItems{}, Operator: OpGreaterThan, Value: 1}},
        Actions:    []Action{AddCatalogProduct{ID: "a", ProductID: "p_missing", Quantity: 3}},
    }}
    out := Apply(rules, snap, testCatalog, 200)
    assert.Equal(t, 200.0, out.ExpectedGrams)
    require.Len(t, out.Additions, 1, "line still recorded for display")
    assert.Zero(t, out.Additions[0].TotalGrams)
}

func TestBaseWeight(t *testing.T) {
    assert.Equal(t, 3*250.0+2*80.0+2*310.0, BaseWeight(snackOrder()))
    assert.Zero(t, BaseWeight(Snapshot{}))
}

func TestRuleJSONRoundTrip(t *testing.T) {
    in := Rule{
        ID: "r1", Name: "cold chain", Active: true, Priority: 2,
        Conditions: []Condition{
            {ID: "c1", Subject: CategoryQuantity{CategoryID: "c_frozen"}, Operator: OpEvery, Value: 4},
            {ID: "c2", Subject: OrderValue{}, Operator: OpLessThan, Value: 200},
        },
        Operators: []LogicOp{LogicOr},
        Actions: []Action{
            AddCatalogProduct{ID: "a1", ProductID: "p_icepack", Quantity: 1},
            AddAdHocProduct{ID: "a2", Name: "Foam Liner", Grams: 60, Quantity: 1},
            AddWeight{ID: "a3", Grams: 12},
            AddNote{ID: "a4", Note: "insulated box"},
        },
    }
    b, err := json.Marshal(in)
    require.NoError(t, err)

    var out Rule
    require.NoError(t, json.Unmarshal(b, &out))
    assert.Equal(t, in.Conditions, out.Conditions)
    assert.Equal(t, in.Actions, out.Actions)
    assert.Equal(t, in.Operators, out.Operators)
    assert.True(t, out.Active)
}

func TestRuleJSONSkipsUnknownActions(t *testing.T) {
    raw := `{"name":"x","isActive":true,"priority":1,
        "conditions":[{"type":"total_items","operator":"equal_to","value":1}],
        "actions":[{"type":"send_email","note":"hi"},{"type":"add_weight","weightGrams":9}]}`
    var r Rule
    require.NoError(t, json.Unmarshal([]byte(raw), &r))
    require.Len(t, r.Actions, 1)
    assert.Equal(t, AddWeight{Grams: 9}, r.Actions[0])
}

func TestDescribeRule(t *testing.T) {
    r := Rule{
        Name: "padding",
        Conditions: []Condition{
            {Subject: TotalItems{}, Operator: OpEvery, Value: 3},
            {Subject: OrderValue{}, Operator: OpGreaterThan, Value: 50},
        },
        Operators: []LogicOp{LogicAnd},
        Actions:   []Action{AddWeight{Grams: 40}},
    }
    got := DescribeRule(r)
    assert.Contains(t, got, "every 3 total items")
    assert.Contains(t, got, "AND")
    assert.Contains(t, got, "add 40g")
}
