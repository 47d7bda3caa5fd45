package engine

type LogicOp string

const (
    LogicAnd LogicOp = "AND"
    LogicOr  LogicOp = "OR"
)

// Combine folds evaluated trigger counts left-to-right with the
// per-pair operators stored alongside the rule. AND takes the minimum
// (bounded by the weakest link; one zero collapses the chain), OR takes
// the maximum. When ops is shorter than counts-1 the missing operators
// default to AND. There is no precedence beyond the left-to-right fold,
// matching the flat list structure of authored rules.
func Combine(counts []int64, ops []LogicOp) int64 {
    if len(counts) == 0 {
        return 0
    }
    acc := counts[0]
    for i := 1; i < len(counts); i++ {
        op := LogicAnd
        if i-1 < len(ops) { op = ops[i-1] }
        if op == LogicOr {
            if counts[i] > acc { acc = counts[i] }
        } else {
            if counts[i] < acc { acc = counts[i] }
        }
    }
    if acc < 0 { acc = 0 }
    return acc
}
