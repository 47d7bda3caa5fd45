package engine

import (
    "encoding/json"
    "fmt"
)

// Action is a weight or line-item mutation applied when a rule matches.
// Variants:
//   - AddWeight: flat grams per trigger.
//   - AddCatalogProduct: a catalog product, weight resolved at apply time.
//   - AddAdHocProduct: name + weight supplied directly, no catalog lookup.
//   - AddNote: display/audit note, no weight effect.
type Action interface {
    actionKind() string
}

type AddWeight struct {
    ID          string
    Grams       float64
    Description string
}

func (AddWeight) actionKind() string { return "add_weight" }

type AddCatalogProduct struct {
    ID          string
    ProductID   string
    Quantity    int64
    Description string
}

func (AddCatalogProduct) actionKind() string { return "add_product" }

type AddAdHocProduct struct {
    ID          string
    Name        string
    Grams       float64
    Quantity    int64
    Description string
}

func (AddAdHocProduct) actionKind() string { return "add_product" }

type AddNote struct {
    ID          string
    Note        string
    Description string
}

func (AddNote) actionKind() string { return "add_note" }

// actionJSON is the stored wire form. add_product is polymorphic: a set
// productId means catalog-referenced, productName + weight means ad-hoc.
type actionJSON struct {
    ID          string  `json:"id,omitempty"`
    Type        string  `json:"type"`
    ProductID   string  `json:"productId,omitempty"`
    ProductName string  `json:"productName,omitempty"`
    WeightG     float64 `json:"weightGrams,omitempty"`
    Quantity    int64   `json:"quantity,omitempty"`
    Note        string  `json:"note,omitempty"`
    Description string  `json:"description,omitempty"`
}

func MarshalAction(a Action) ([]byte, error) {
    switch v := a.(type) {
    case AddWeight:
        return json.Marshal(actionJSON{ID: v.ID, Type: "add_weight", WeightG: v.Grams, Description: v.Description})
    case AddCatalogProduct:
        return json.Marshal(actionJSON{ID: v.ID, Type: "add_product", ProductID: v.ProductID, Quantity: v.Quantity, Description: v.Description})
    case AddAdHocProduct:
        return json.Marshal(actionJSON{ID: v.ID, Type: "add_product", ProductName: v.Name, WeightG: v.Grams, Quantity: v.Quantity, Description: v.Description})
    case AddNote:
        return json.Marshal(actionJSON{ID: v.ID, Type: "add_note", Note: v.Note, Description: v.Description})
    default:
        return nil, fmt.Errorf("unknown action variant %T", a)
    }
}

func UnmarshalAction(data []byte) (Action, error) {
    var in actionJSON
    if err := json.Unmarshal(data, &in); err != nil {
        return nil, err
    }
    switch in.Type {
    case "add_weight":
        return AddWeight{ID: in.ID, Grams: in.WeightG, Description: in.Description}, nil
    case "add_product":
        qty := in.Quantity
        if qty < 1 { qty = 1 }
        if in.ProductID != "" {
            return AddCatalogProduct{ID: in.ID, ProductID: in.ProductID, Quantity: qty, Description: in.Description}, nil
        }
        return AddAdHocProduct{ID: in.ID, Name: in.ProductName, Grams: in.WeightG, Quantity: qty, Description: in.Description}, nil
    case "add_note":
        return AddNote{ID: in.ID, Note: in.Note, Description: in.Description}, nil
    default:
        return nil, fmt.Errorf("unknown action type %q", in.Type)
    }
}

// ValidateAction reports authoring errors for the storage surface.
func ValidateAction(a Action) error {
    switch v := a.(type) {
    case AddWeight:
        if v.Grams < 0 { return fmt.Errorf("action %s: weight must be >= 0", v.ID) }
    case AddCatalogProduct:
        if v.ProductID == "" { return fmt.Errorf("action %s: productId required", v.ID) }
        if v.Quantity < 1 { return fmt.Errorf("action %s: quantity must be >= 1", v.ID) }
    case AddAdHocProduct:
        if v.Name == "" { return fmt.Errorf("action %s: productName required", v.ID) }
        if v.Grams < 0 { return fmt.Errorf("action %s: weight must be >= 0", v.ID) }
        if v.Quantity < 1 { return fmt.Errorf("action %s: quantity must be >= 1", v.ID) }
    case AddNote:
        if v.Note == "" { return fmt.Errorf("action %s: note required", v.ID) }
    case nil:
        return fmt.Errorf("nil action")
    }
    return nil
}
