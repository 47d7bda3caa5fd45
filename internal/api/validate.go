package api

import (
	"fmt"

	"weighgate/internal/engine"
	"weighgate/internal/model"
)

func validateRule(r *engine.Rule) error {
	if r.Name == "" {
		return fmt.Errorf("name required")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("at least one condition required")
	}
	for _, op := range r.Operators {
		if op != engine.LogicAnd && op != engine.LogicOr {
			return fmt.Errorf("invalid operator: %s (allowed: AND, OR)", op)
		}
	}
	if len(r.Operators) > len(r.Conditions)-1 {
		return fmt.Errorf("too many operators: %d for %d conditions", len(r.Operators), len(r.Conditions))
	}
	return engine.ValidateRule(*r)
}

func validateWeighEntry(e *model.WeighEntry) error {
	if len(e.Bags) == 0 {
		return fmt.Errorf("at least one bag weight required")
	}
	for _, b := range e.Bags {
		if b.Grams < 0 {
			return fmt.Errorf("bag %s: weight must be >= 0", b.ID)
		}
	}
	for bagID, sels := range e.Packaging {
		for _, sel := range sels {
			if sel.PackagingID == "" {
				return fmt.Errorf("bag %s: packagingId required", bagID)
			}
		}
	}
	return nil
}
