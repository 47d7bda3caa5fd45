package engine

import (
    "fmt"
    "strings"
)

// Derived display strings for authored rules. These are computed from
// the data on demand, never stored, so edits cannot leave stale text.

func DescribeCondition(c Condition) string {
    if c.Description != "" { return c.Description }
    subject := "?"
    switch s := c.Subject.(type) {
    case CategoryQuantity:
        subject = "items in category " + s.CategoryID
    case ProductQuantity:
        subject = "units of product " + s.ProductID
    case TotalItems:
        subject = "total items"
    case OrderValue:
        subject = "order value"
    }
    switch c.Operator {
    case OpEvery:
        return fmt.Sprintf("every %d %s", c.Value, subject)
    case OpGreaterThan:
        return fmt.Sprintf("%s > %d", subject, c.Value)
    case OpEqualTo:
        return fmt.Sprintf("%s = %d", subject, c.Value)
    case OpLessThan:
        return fmt.Sprintf("%s < %d", subject, c.Value)
    }
    return subject
}

func DescribeAction(a Action) string {
    switch v := a.(type) {
    case AddWeight:
        if v.Description != "" { return v.Description }
        return fmt.Sprintf("add %.0fg", v.Grams)
    case AddCatalogProduct:
        if v.Description != "" { return v.Description }
        return fmt.Sprintf("add %dx product %s", v.Quantity, v.ProductID)
    case AddAdHocProduct:
        if v.Description != "" { return v.Description }
        return fmt.Sprintf("add %dx %s (%.0fg)", v.Quantity, v.Name, v.Grams)
    case AddNote:
        if v.Description != "" { return v.Description }
        return "note: " + v.Note
    }
    return ""
}

// DescribeRule renders "when <conditions> then <actions>" for list
// views and audit output.
func DescribeRule(r Rule) string {
    if r.Description != "" { return r.Description }
    conds := make([]string, 0, len(r.Conditions))
    for i, c := range r.Conditions {
        if i > 0 {
            op := LogicAnd
            if i-1 < len(r.Operators) { op = r.Operators[i-1] }
            conds = append(conds, string(op))
        }
        conds = append(conds, DescribeCondition(c))
    }
    acts := make([]string, 0, len(r.Actions))
    for _, a := range r.Actions {
        acts = append(acts, DescribeAction(a))
    }
    return "when " + strings.Join(conds, " ") + " then " + strings.Join(acts, "; ")
}
