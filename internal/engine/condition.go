// Package engine implements the computation core of weighgate: rule
// evaluation producing an expected order weight, aggregation of
// measured bag/packaging weights, and reconciliation of the two into a
// verification verdict. Evaluation, aggregation, and analysis are pure
// functions of their inputs with no I/O, so they may be called
// concurrently for different orders. The one piece of mutable state is
// the opt-in evaluation counter store in stats.go, which callers feed
// explicitly and which guards itself with a mutex.
package engine

import (
    "encoding/json"
    "fmt"
    "math"
)

// OrderLine is one line of an order snapshot. WeightG is the catalog
// unit weight resolved by the caller; 0 when the product has no
// configured weight.
type OrderLine struct {
    ProductID  string  `json:"productId"`
    CategoryID string  `json:"categoryId,omitempty"`
    Name       string  `json:"name,omitempty"`
    Quantity   int64   `json:"quantity"`
    UnitPrice  float64 `json:"unitPrice,omitempty"`
    WeightG    float64 `json:"weightGrams,omitempty"`
}

// Snapshot is the read-only order view the engine evaluates against.
// The engine never mutates it.
type Snapshot struct {
    Lines      []OrderLine `json:"lines"`
    OrderValue float64     `json:"orderValue"`
}

// TotalItems sums quantities across all lines.
func (s Snapshot) TotalItems() int64 {
    var n int64
    for _, l := range s.Lines { n += l.Quantity }
    return n
}

type Operator string

const (
    OpEvery       Operator = "every"
    OpGreaterThan Operator = "greater_than"
    OpEqualTo     Operator = "equal_to"
    OpLessThan    Operator = "less_than"
)

// Subject is the quantity a condition measures. Each variant carries
// exactly the reference it needs, so a product_quantity condition
// without a product id is unrepresentable.
type Subject interface {
    Kind() string
    Quantity(s Snapshot) int64
}

// CategoryQuantity measures the summed quantity of lines in a category.
type CategoryQuantity struct {
    CategoryID string `json:"categoryId"`
}

func (c CategoryQuantity) Kind() string { return "category_quantity" }

func (c CategoryQuantity) Quantity(s Snapshot) int64 {
    var n int64
    for _, l := range s.Lines {
        if l.CategoryID == c.CategoryID { n += l.Quantity }
    }
    return n
}

// ProductQuantity measures the summed quantity of lines for one product.
type ProductQuantity struct {
    ProductID string `json:"productId"`
}

func (p ProductQuantity) Kind() string { return "product_quantity" }

func (p ProductQuantity) Quantity(s Snapshot) int64 {
    var n int64
    for _, l := range s.Lines {
        if l.ProductID == p.ProductID { n += l.Quantity }
    }
    return n
}

// TotalItems measures the quantity across all lines.
type TotalItems struct{}

func (TotalItems) Kind() string             { return "total_items" }
func (TotalItems) Quantity(s Snapshot) int64 { return s.TotalItems() }

// OrderValue measures the order total. The currency amount is treated
// as an integer unit for threshold comparison.
type OrderValue struct{}

func (OrderValue) Kind() string { return "order_value" }
func (OrderValue) Quantity(s Snapshot) int64 {
    return int64(math.Round(s.OrderValue))
}

// Condition is one authored threshold check. A dangling reference (a
// category or product id no line carries) resolves to quantity 0 and
// therefore trigger count 0; it is never an error.
type Condition struct {
    ID          string
    Subject     Subject
    Operator    Operator
    Value       int64
    Description string
}

// Evaluate returns the trigger count for one condition against a
// snapshot. greater_than/equal_to/less_than yield 0 or 1; every yields
// floor(q/value), a repeat multiplier ("every 3 items" on 7 items
// triggers twice). Malformed conditions (nil subject, value < 1)
// contribute nothing.
func Evaluate(c Condition, s Snapshot) int64 {
    if c.Subject == nil || c.Value < 1 {
        return 0
    }
    q := c.Subject.Quantity(s)
    switch c.Operator {
    case OpGreaterThan:
        if q > c.Value { return 1 }
        return 0
    case OpEqualTo:
        if q == c.Value { return 1 }
        return 0
    case OpLessThan:
        if q < c.Value { return 1 }
        return 0
    case OpEvery:
        if q < 0 { return 0 }
        return q / c.Value
    default:
        return 0
    }
}

// conditionJSON is the stored wire form of a condition.
type conditionJSON struct {
    ID          string   `json:"id,omitempty"`
    Type        string   `json:"type"`
    Operator    Operator `json:"operator"`
    Value       int64    `json:"value"`
    CategoryID  string   `json:"categoryId,omitempty"`
    ProductID   string   `json:"productId,omitempty"`
    Description string   `json:"description,omitempty"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
    out := conditionJSON{ID: c.ID, Operator: c.Operator, Value: c.Value, Description: c.Description}
    switch sub := c.Subject.(type) {
    case CategoryQuantity:
        out.Type = sub.Kind()
        out.CategoryID = sub.CategoryID
    case ProductQuantity:
        out.Type = sub.Kind()
        out.ProductID = sub.ProductID
    case nil:
        out.Type = ""
    default:
        out.Type = sub.Kind()
    }
    return json.Marshal(out)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
    var in conditionJSON
    if err := json.Unmarshal(data, &in); err != nil {
        return err
    }
    c.ID = in.ID
    c.Operator = in.Operator
    c.Value = in.Value
    c.Description = in.Description
    switch in.Type {
    case "category_quantity":
        c.Subject = CategoryQuantity{CategoryID: in.CategoryID}
    case "product_quantity":
        c.Subject = ProductQuantity{ProductID: in.ProductID}
    case "total_items":
        c.Subject = TotalItems{}
    case "order_value":
        c.Subject = OrderValue{}
    default:
        // Unknown type: leave Subject nil so the condition evaluates
        // to zero instead of failing the whole rule set.
        c.Subject = nil
    }
    return nil
}

// ValidateCondition reports authoring errors. The evaluator itself
// degrades gracefully; this is for the storage surface.
func ValidateCondition(c Condition) error {
    if c.Subject == nil {
        return fmt.Errorf("condition %s: unknown type", c.ID)
    }
    if c.Value < 1 {
        return fmt.Errorf("condition %s: value must be >= 1", c.ID)
    }
    switch c.Operator {
    case OpEvery, OpGreaterThan, OpEqualTo, OpLessThan:
    default:
        return fmt.Errorf("condition %s: invalid operator %q", c.ID, c.Operator)
    }
    switch sub := c.Subject.(type) {
    case CategoryQuantity:
        if sub.CategoryID == "" { return fmt.Errorf("condition %s: categoryId required", c.ID) }
    case ProductQuantity:
        if sub.ProductID == "" { return fmt.Errorf("condition %s: productId required", c.ID) }
    }
    return nil
}
