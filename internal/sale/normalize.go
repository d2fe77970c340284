package sale

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartrecipe/internal/llm"
)

// Shape identifies which of the two payload layouts a model returned.
type Shape int

const (
	// ShapeFlat is the legacy layout: a single items list.
	ShapeFlat Shape = iota
	// ShapeGrouped nests items inside boundary groups.
	ShapeGrouped
)

func (s Shape) String() string {
	if s == ShapeGrouped {
		return "grouped"
	}
	return "flat"
}

// Extraction is a decoded model payload before normalization. Exactly one of
// Items or Groups is meaningful, as selected by Shape.
type Extraction struct {
	Shape              Shape
	StoreName          string
	SalePeriod         Period
	LayoutAnalysis     string
	HierarchyStructure string
	Items              []Item
	Groups             []Group
}

// InvalidDateError reports a sale-period date that is a template placeholder
// or not a calendar date.
type InvalidDateError struct {
	Field string
	Value string
}

func (e *InvalidDateError) Error() string {
	if hasTemplateToken(e.Value) {
		return fmt.Sprintf("sale period %s contains a date template: %q", e.Field, e.Value)
	}
	return fmt.Sprintf("sale period %s is not a calendar date: %q", e.Field, e.Value)
}

var templateTokens = []string{"YYYY", "MM", "DD"}

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006.1.2",
	"2006年1月2日",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Decode resolves a raw model payload into the flat or grouped variant. A
// "groups" array selects the grouped shape regardless of any "items" present.
func Decode(raw json.RawMessage) (*Extraction, error) {
	var payload struct {
		StoreName  json.RawMessage `json:"store_name"`
		SalePeriod         json.RawMessage `json:"sale_period"`
		LayoutAnalysis     json.RawMessage `json:"layout_analysis"`
		HierarchyStructure json.RawMessage `json:"hierarchy_structure"`
		Items              []Item          `json:"items"`
		Groups             json.RawMessage `json:"groups"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &llm.ResponseFormatError{Raw: string(raw), Err: fmt.Errorf("decode sale payload: %w", err)}
	}

	ext := &Extraction{
		Shape:              ShapeFlat,
		StoreName:          text(payload.StoreName),
		LayoutAnalysis:     text(payload.LayoutAnalysis),
		HierarchyStructure: text(payload.HierarchyStructure),
		Items:              payload.Items,
	}
	ext.SalePeriod = period(payload.SalePeriod)

	groups := bytes.TrimSpace(payload.Groups)
	if len(groups) > 0 && groups[0] == '[' {
		if err := json.Unmarshal(groups, &ext.Groups); err != nil {
			return nil, &llm.ResponseFormatError{Raw: string(raw), Err: fmt.Errorf("decode sale groups: %w", err)}
		}
		ext.Shape = ShapeGrouped
		ext.Items = nil
	}
	return ext, nil
}

// period reads start and end from an object. Any other form yields an empty
// period, which the orchestrator repairs.
func period(raw json.RawMessage) Period {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Period{}
	}
	var p struct {
		Start json.RawMessage `json:"start"`
		End   json.RawMessage `json:"end"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Period{}
	}
	return Period{Start: text(p.Start), End: text(p.End)}
}

// Normalize validates the sale period and reconciles the extraction into the
// canonical StructureData. Dates are checked before any shape conversion and
// an invalid date is returned as *InvalidDateError.
func Normalize(ext *Extraction) (*StructureData, error) {
	if err := ValidatePeriod(ext.SalePeriod); err != nil {
		return nil, err
	}

	data := &StructureData{
		StoreName:          ext.StoreName,
		SalePeriod:         ext.SalePeriod,
		LayoutAnalysis:     ext.LayoutAnalysis,
		HierarchyStructure: ext.HierarchyStructure,
	}

	switch ext.Shape {
	case ShapeGrouped:
		data.Groups = ext.Groups
		data.Items = flatten(ext.Groups)
	default:
		data.Items = ext.Items
	}
	if data.Items == nil {
		data.Items = []Item{}
	}
	return data, nil
}

// NormalizeJSON decodes and normalizes a raw payload in one step.
func NormalizeJSON(raw json.RawMessage) (*StructureData, error) {
	ext, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(ext)
}

// ValidatePeriod checks both ends of a sale period. Empty values are not
// checked here.
func ValidatePeriod(p Period) error {
	if err := validateDate("start", p.Start); err != nil {
		return err
	}
	return validateDate("end", p.End)
}

// ParseDate parses a sale-period date in any of the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if hasTemplateToken(value) {
		return &InvalidDateError{Field: field, Value: value}
	}
	if _, err := ParseDate(value); err != nil {
		return &InvalidDateError{Field: field, Value: value}
	}
	return nil
}

func hasTemplateToken(s string) bool {
	for _, tok := range templateTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// flatten copies every group's items into one list. A missing sale price is
// taken from the enclosing group only; the groups themselves are not modified.
func flatten(groups []Group) []Item {
	items := make([]Item, 0)
	for _, g := range groups {
		for _, it := range g.Items {
			if it.SalePrice == nil && g.GroupPrice != nil {
				p := *g.GroupPrice
				it.SalePrice = &p
			}
			if it.DiscountRate == nil {
				it.DiscountRate = discountRate(it.OriginalPrice, it.SalePrice)
			}
			items = append(items, it)
		}
	}
	return items
}

func discountRate(original, sale *float64) *float64 {
	if original == nil || sale == nil || *original <= 0 || *sale < 0 {
		return nil
	}
	rate := 1 - *sale / *original
	if rate < 0 {
		return nil
	}
	return &rate
}
