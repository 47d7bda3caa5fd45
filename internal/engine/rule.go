package engine

import (
    "encoding/json"
    "sort"
)

// Rule is an authored condition/action bundle. Rules are created and
// edited externally; the engine only reads them. Lower Priority values
// evaluate first; ties keep authoring order.
type Rule struct {
    ID          string
    Name        string
    Description string
    Conditions  []Condition
    Operators   []LogicOp // between adjacent conditions; missing entries mean AND
    Actions     []Action
    Active      bool
    Priority    int
}

type ruleJSON struct {
    ID          string            `json:"id,omitempty"`
    Name        string            `json:"name"`
    Description string            `json:"description,omitempty"`
    Conditions  []Condition       `json:"conditions"`
    Operators   []LogicOp         `json:"operators,omitempty"`
    Actions     []json.RawMessage `json:"actions"`
    Active      bool              `json:"isActive"`
    Priority    int               `json:"priority"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
    out := ruleJSON{ID: r.ID, Name: r.Name, Description: r.Description, Conditions: r.Conditions, Operators: r.Operators, Active: r.Active, Priority: r.Priority}
    for _, a := range r.Actions {
        b, err := MarshalAction(a)
        if err != nil { return nil, err }
        out.Actions = append(out.Actions, b)
    }
    return json.Marshal(out)
}

func (r *Rule) UnmarshalJSON(data []byte) error {
    var in ruleJSON
    if err := json.Unmarshal(data, &in); err != nil {
        return err
    }
    r.ID = in.ID
    r.Name = in.Name
    r.Description = in.Description
    r.Conditions = in.Conditions
    r.Operators = in.Operators
    r.Active = in.Active
    r.Priority = in.Priority
    r.Actions = r.Actions[:0]
    for _, raw := range in.Actions {
        a, err := UnmarshalAction(raw)
        if err != nil {
            // Skip unknown action types rather than reject the rule;
            // one malformed action must not block the rest.
            continue
        }
        r.Actions = append(r.Actions, a)
    }
    return nil
}

// RuleFromMap decodes a generic document (e.g. one parsed from YAML)
// through the JSON wire format so polymorphic conditions and actions
// get the same treatment as API payloads.
func RuleFromMap(doc map[string]any) (Rule, error) {
    b, err := json.Marshal(doc)
    if err != nil { return Rule{}, err }
    var r Rule
    if err := json.Unmarshal(b, &r); err != nil { return Rule{}, err }
    return r, nil
}

// ProductCatalog resolves configured unit weights for catalog products
// referenced by add_product actions.
type ProductCatalog interface {
    ProductWeight(productID string) (grams float64, ok bool)
}

// ProductWeights adapts a plain id->grams map to ProductCatalog.
type ProductWeights map[string]float64

func (m ProductWeights) ProductWeight(id string) (float64, bool) {
    g, ok := m[id]
    return g, ok
}

// Applied is one synthetic line entry recorded per action application,
// for downstream display and audit ("what was auto-added").
type Applied struct {
    RuleID     string  `json:"ruleId"`
    ActionID   string  `json:"actionId,omitempty"`
    Kind       string  `json:"kind"` // product | weight
    ProductID  string  `json:"productId,omitempty"`
    Name       string  `json:"name,omitempty"`
    Quantity   int64   `json:"quantity,omitempty"`
    UnitGrams  float64 `json:"unitGrams"`
    TotalGrams float64 `json:"totalGrams"`
}

// Outcome is the rule engine result for one order snapshot.
type Outcome struct {
    ExpectedGrams float64   `json:"expectedGrams"`
    Additions     []Applied `json:"additions,omitempty"`
    Notes         []string  `json:"notes,omitempty"`
    Matched       []string  `json:"matched,omitempty"` // rule ids that fired, in application order

    // Triggers holds the trigger count per matched rule id. Not part of
    // the wire shape; used for counters.
    Triggers map[string]int64 `json:"-"`
}

// BaseWeight computes the order's own catalog weight, Σ line weight ×
// quantity. Callers pass it to Apply as the running total; the engine
// itself is purely additive.
func BaseWeight(s Snapshot) float64 {
    var g float64
    for _, l := range s.Lines {
        if l.WeightG > 0 && l.Quantity > 0 {
            g += l.WeightG * float64(l.Quantity)
        }
    }
    return g
}

// Apply evaluates the active rules against a snapshot in ascending
// priority order (stable for ties) and accumulates action effects onto
// baseGrams. Weight-bearing actions multiply by the rule's trigger
// count; notes append once per matching rule. Identical inputs always
// yield identical outcomes.
func Apply(rules []Rule, snap Snapshot, products ProductCatalog, baseGrams float64) Outcome {
    ordered := make([]Rule, 0, len(rules))
    for _, r := range rules {
        if r.Active { ordered = append(ordered, r) }
    }
    sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

    out := Outcome{ExpectedGrams: baseGrams, Triggers: map[string]int64{}}
    for _, r := range ordered {
        counts := make([]int64, len(r.Conditions))
        for i, c := range r.Conditions {
            counts[i] = Evaluate(c, snap)
        }
        triggers := Combine(counts, r.Operators)
        if triggers <= 0 {
            continue
        }
        out.Matched = append(out.Matched, r.ID)
        out.Triggers[r.ID] = triggers
        for _, a := range r.Actions {
            applyAction(&out, r.ID, a, triggers, products)
        }
    }
    return out
}

func applyAction(out *Outcome, ruleID string, a Action, triggers int64, products ProductCatalog) {
    switch v := a.(type) {
    case AddWeight:
        if v.Grams <= 0 { return }
        total := v.Grams * float64(triggers)
        out.ExpectedGrams += total
        out.Additions = append(out.Additions, Applied{
            RuleID: ruleID, ActionID: v.ID, Kind: "weight",
            Quantity: triggers, UnitGrams: v.Grams, TotalGrams: total,
        })
    case AddCatalogProduct:
        unit, ok := float64(0), false
        if products != nil { unit, ok = products.ProductWeight(v.ProductID) }
        if !ok || unit <= 0 {
            // Dangling reference or unweighted product contributes
            // nothing; still record the line for display.
            unit = 0
        }
        qty := v.Quantity
        if qty < 1 { qty = 1 }
        total := unit * float64(qty) * float64(triggers)
        out.ExpectedGrams += total
        out.Additions = append(out.Additions, Applied{
            RuleID: ruleID, ActionID: v.ID, Kind: "product", ProductID: v.ProductID,
            Quantity: qty * triggers, UnitGrams: unit, TotalGrams: total,
        })
    case AddAdHocProduct:
        qty := v.Quantity
        if qty < 1 { qty = 1 }
        unit := v.Grams
        if unit < 0 { unit = 0 }
        total := unit * float64(qty) * float64(triggers)
        out.ExpectedGrams += total
        out.Additions = append(out.Additions, Applied{
            RuleID: ruleID, ActionID: v.ID, Kind: "product", Name: v.Name,
            Quantity: qty * triggers, UnitGrams: unit, TotalGrams: total,
        })
    case AddNote:
        // One note regardless of trigger count; repeating an identical
        // string adds nothing.
        if v.Note != "" { out.Notes = append(out.Notes, v.Note) }
    }
}

// ValidateRule reports authoring errors for the storage surface. The
// evaluator never needs this; malformed pieces degrade to zero effect.
func ValidateRule(r Rule) error {
    for _, c := range r.Conditions {
        if err := ValidateCondition(c); err != nil { return err }
    }
    for _, a := range r.Actions {
        if err := ValidateAction(a); err != nil { return err }
    }
    return nil
}
