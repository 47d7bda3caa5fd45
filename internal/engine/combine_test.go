package engine

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestCombineAndOr(t *testing.T) {
    assert.Equal(t, int64(0), Combine([]int64{2, 0}, []LogicOp{LogicAnd}), "AND collapses on a zero side")
    assert.Equal(t, int64(2), Combine([]int64{2, 0}, []LogicOp{LogicOr}), "OR takes the strongest side")
    assert.Equal(t, int64(1), Combine([]int64{3, 1}, []LogicOp{LogicAnd}), "AND is bounded by the weakest link")
}

func TestCombineLeftToRightFold(t *testing.T) {
    // (2 AND 3) OR 1 -> max(min(2,3), 1) = 2; no precedence, pure fold.
    assert.Equal(t, int64(2), Combine([]int64{2, 3, 1}, []LogicOp{LogicAnd, LogicOr}))
    // (0 OR 5) AND 4 -> min(max(0,5), 4) = 4
    assert.Equal(t, int64(4), Combine([]int64{0, 5, 4}, []LogicOp{LogicOr, LogicAnd}))
}

func TestCombineDefaultsToAnd(t *testing.T) {
    assert.Equal(t, int64(1), Combine([]int64{3, 1, 2}, nil))
    assert.Equal(t, int64(0), Combine([]int64{3, 0, 2}, []LogicOp{LogicAnd}), "missing trailing op is AND")
}

func TestCombineEdges(t *testing.T) {
    assert.Zero(t, Combine(nil, nil))
    assert.Equal(t, int64(5), Combine([]int64{5}, nil))
    assert.Zero(t, Combine([]int64{-2}, nil), "negative counts clamp to zero")
}
