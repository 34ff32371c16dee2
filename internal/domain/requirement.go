package domain

import "sort"

// BudgetRange is an optional price window attached to a requirement
type BudgetRange struct {
	Min float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// RequirementSpec is the canonical procurement requirement consumed by discovery
type RequirementSpec struct {
	ProductType      string            `json:"product_type" yaml:"product_type"`
	Quantity         float64           `json:"quantity,omitempty" yaml:"quantity,omitempty"`         // 0 when absent
	QuantityUnit     string            `json:"quantity_unit,omitempty" yaml:"quantity_unit,omitempty"` // e.g. "kg", "pcs"
	Specifications   map[string]string `json:"specifications,omitempty" yaml:"specifications,omitempty"`
	DeliveryTimeline string            `json:"delivery_timeline,omitempty" yaml:"delivery_timeline,omitempty"`
	Budget           *BudgetRange      `json:"budget_range,omitempty" yaml:"budget_range,omitempty"`
	Location         string            `json:"location,omitempty" yaml:"location,omitempty"` // preferred sourcing location
	DeliveryLocation string            `json:"delivery_location,omitempty" yaml:"delivery_location,omitempty"`
	Certifications   []string          `json:"certifications,omitempty" yaml:"certifications,omitempty"`
	SessionID        string            `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// SpecificationKeys returns the specification keys in sorted order
func (r *RequirementSpec) SpecificationKeys() []string {
	keys := make([]string, 0, len(r.Specifications))
	for k := range r.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasQuantity reports whether a quantity was supplied
func (r *RequirementSpec) HasQuantity() bool {
	return r.Quantity > 0
}
