package engine

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func snackOrder() Snapshot {
    return Snapshot{
        Lines: []OrderLine{
            {ProductID: "p_espresso", CategoryID: "c_coffee", Name: "Espresso Beans", Quantity: 3, WeightG: 250, UnitPrice: 12},
            {ProductID: "p_filter", CategoryID: "c_coffee", Name: "Filter Pack", Quantity: 2, WeightG: 80, UnitPrice: 4},
            {ProductID: "p_mug", CategoryID: "c_ware", Name: "Mug", Quantity: 2, WeightG: 310, UnitPrice: 9},
        },
        OrderValue: 3*12 + 2*4 + 2*9,
    }
}

func TestEvaluateEveryMultiplier(t *testing.T) {
    cond := Condition{Subject: TotalItems{}, Operator: OpEvery, Value: 3}
    cases := []struct {
        items int64
        want  int64
    }{
        {7, 2},
        {9, 3},
        {2, 0},
    }
    for _, tc := range cases {
        snap := Snapshot{Lines: []OrderLine{{ProductID: "p", Quantity: tc.items}}}
        assert.Equal(t, tc.want, Evaluate(cond, snap), "every 3 on %d items", tc.items)
    }
}

func TestEvaluateComparisonOperators(t *testing.T) {
    snap := snackOrder() // 7 total items, order value 62

    assert.Equal(t, int64(1), Evaluate(Condition{Subject: TotalItems{}, Operator: OpGreaterThan, Value: 6}, snap))
    assert.Equal(t, int64(0), Evaluate(Condition{Subject: TotalItems{}, Operator: OpGreaterThan, Value: 7}, snap))
    assert.Equal(t, int64(1), Evaluate(Condition{Subject: TotalItems{}, Operator: OpEqualTo, Value: 7}, snap))
    assert.Equal(t, int64(1), Evaluate(Condition{Subject: TotalItems{}, Operator: OpLessThan, Value: 8}, snap))
    assert.Equal(t, int64(0), Evaluate(Condition{Subject: TotalItems{}, Operator: OpLessThan, Value: 7}, snap))
}

func TestEvaluateSubjects(t *testing.T) {
    snap := snackOrder()

    assert.Equal(t, int64(1), Evaluate(Condition{Subject: CategoryQuantity{CategoryID: "c_coffee"}, Operator: OpEqualTo, Value: 5}, snap))
    assert.Equal(t, int64(1), Evaluate(Condition{Subject: ProductQuantity{ProductID: "p_mug"}, Operator: OpEqualTo, Value: 2}, snap))
    assert.Equal(t, int64(1), Evaluate(Condition{Subject: OrderValue{}, Operator: OpGreaterThan, Value: 50}, snap))
    assert.Equal(t, int64(0), Evaluate(Condition{Subject: OrderValue{}, Operator: OpGreaterThan, Value: 62}, snap))
}

func TestEvaluateDanglingReferenceDegrades(t *testing.T) {
    snap := snackOrder()
    for _, op := range []Operator{OpEvery, OpGreaterThan, OpEqualTo, OpLessThan} {
        got := Evaluate(Condition{Subject: CategoryQuantity{CategoryID: "c_ghost"}, Operator: op, Value: 1}, snap)
        if op == OpLessThan {
            // q=0 < 1 legitimately fires once
            assert.Equal(t, int64(1), got)
            continue
        }
        assert.Equal(t, int64(0), got, "operator %s", op)
    }
}

func TestEvaluateMalformedCondition(t *testing.T) {
    snap := snackOrder()
    assert.Zero(t, Evaluate(Condition{Subject: nil, Operator: OpEqualTo, Value: 1}, snap))
    assert.Zero(t, Evaluate(Condition{Subject: TotalItems{}, Operator: OpEvery, Value: 0}, snap))
    assert.Zero(t, Evaluate(Condition{Subject: TotalItems{}, Operator: Operator("between"), Value: 1}, snap))
}

func TestConditionJSONRoundTrip(t *testing.T) {
    in := Condition{ID: "c1", Subject: CategoryQuantity{CategoryID: "c_coffee"}, Operator: OpEvery, Value: 3}
    b, err := json.Marshal(in)
    require.NoError(t, err)
    assert.Contains(t, string(b), `"type":"category_quantity"`)

    var out Condition
    require.NoError(t, json.Unmarshal(b, &out))
    assert.Equal(t, in.Subject, out.Subject)
    assert.Equal(t, in.Operator, out.Operator)
    assert.Equal(t, in.Value, out.Value)
}

func TestConditionJSONUnknownType(t *testing.T) {
    var c Condition
    require.NoError(t, json.Unmarshal([]byte(`{"type":"basket_color","operator":"equal_to","value":2}`), &c))
    assert.Nil(t, c.Subject)
    assert.Zero(t, Evaluate(c, snackOrder()))
}

func TestValidateCondition(t *testing.T) {
    assert.Error(t, ValidateCondition(Condition{Subject: ProductQuantity{}, Operator: OpEqualTo, Value: 1}))
    assert.Error(t, ValidateCondition(Condition{Subject: TotalItems{}, Operator: OpEqualTo, Value: 0}))
    assert.Error(t, ValidateCondition(Condition{Subject: TotalItems{}, Operator: Operator("near"), Value: 1}))
    assert.NoError(t, ValidateCondition(Condition{Subject: CategoryQuantity{CategoryID: "c1"}, Operator: OpEvery, Value: 2}))
}
