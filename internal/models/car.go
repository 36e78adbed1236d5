package models

import "strings"

// CarRecord is one vehicle from the dealership inventory. The dialogue engine never mutates it.
type CarRecord struct {
	ID                 int64  `json:"id"`
	Brand              string `json:"brand"`
	Model              string `json:"model"`
	Variant            string `json:"variant,omitempty"`
	Type               string `json:"type,omitempty"`
	Fuel               string `json:"fuel,omitempty"`
	Transmission       string `json:"transmission,omitempty"`
	Year               int    `json:"year,omitempty"`
	KmsDriven          int    `json:"kms_driven,omitempty"`
	Owner              string `json:"owner,omitempty"`
	Color              string `json:"color,omitempty"`
	Price              int64  `json:"price"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	ImageURL           string `json:"image_url,omitempty"`
}

// Title returns "Brand Model Variant" without empty parts.
func (c CarRecord) Title() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Brand, c.Model, c.Variant} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// PriceRange is a half-open price bracket [Min, Max). Max == 0 means unbounded.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max,omitempty"`
}

// Contains reports whether price falls inside the bracket.
func (r PriceRange) Contains(price int64) bool {
	if price < r.Min {
		return false
	}
	return r.Max == 0 || price < r.Max
}

// InventoryFilter narrows an inventory query. Empty fields do not filter.
type InventoryFilter struct {
	Budget *PriceRange `json:"budget,omitempty"`
	Type   string      `json:"type,omitempty"`
	Brand  string      `json:"brand,omitempty"`
	Limit  int         `json:"limit,omitempty"`
}

// Matches reports whether car satisfies the filter. String fields compare case-insensitively.
func (f InventoryFilter) Matches(car CarRecord) bool {
	if f.Budget != nil && !f.Budget.Contains(car.Price) {
		return false
	}
	if f.Type != "" && !strings.EqualFold(f.Type, car.Type) {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(f.Brand, car.Brand) {
		return false
	}
	return true
}

// InventoryField names a column that can be listed distinctly.
type InventoryField string

const (
	FieldBrand InventoryField = "brand"
	FieldType  InventoryField = "type"
)
