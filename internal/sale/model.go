// Package sale models structured supermarket flyer data and reconciles the
// shapes a model may return into one canonical form.
package sale

import (
	"encoding/json"
	"strings"

	"smartrecipe/internal/llm"
)

// Item is one product line on a flyer.
type Item struct {
	Name          string   `json:"name"`
	OriginalPrice *float64 `json:"original_price"`
	SalePrice     *float64 `json:"sale_price"`
	// DiscountRate is a fraction in [0, 1].
	DiscountRate       *float64 `json:"discount_rate"`
	Category           string   `json:"category"`
	Unit               string   `json:"unit,omitempty"`
	PriceProximity     string   `json:"price_proximity,omitempty"`
	GroupRelevance     string   `json:"group_relevance,omitempty"`
	CrossSellPotential string   `json:"cross_sell_potential,omitempty"`
}

// UnmarshalJSON accepts prices written as strings ("¥198") and discounts
// written as percentages (25 or "25%").
func (i *Item) UnmarshalJSON(data []byte) error {
	type Alias Item
	aux := &struct {
		Name          json.RawMessage `json:"name"`
		Category      json.RawMessage `json:"category"`
		Unit          json.RawMessage `json:"unit"`
		OriginalPrice json.RawMessage `json:"original_price"`
		SalePrice     json.RawMessage `json:"sale_price"`
		DiscountRate  json.RawMessage `json:"discount_rate"`

		PriceProximity     json.RawMessage `json:"price_proximity"`
		GroupRelevance     json.RawMessage `json:"group_relevance"`
		CrossSellPotential json.RawMessage `json:"cross_sell_potential"`
		*Alias
	}{
		Alias: (*Alias)(i),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	i.Name = text(aux.Name)
	i.Category = text(aux.Category)
	i.Unit = text(aux.Unit)
	i.PriceProximity = text(aux.PriceProximity)
	i.GroupRelevance = text(aux.GroupRelevance)
	i.CrossSellPotential = text(aux.CrossSellPotential)
	i.OriginalPrice = price(aux.OriginalPrice)
	i.SalePrice = price(aux.SalePrice)
	i.DiscountRate = nil
	if rate, ok := llm.ParseNumber(aux.DiscountRate); ok {
		if rate > 1 && rate <= 100 {
			rate /= 100
		}
		// Out of range rates are recomputed from the prices.
		if rate >= 0 && rate <= 1 {
			i.DiscountRate = &rate
		}
	}
	return nil
}

// Group is a cluster of items sharing a visual boundary on the flyer. The
// descriptive fields are model-produced labels kept for display.
type Group struct {
	GroupName           string   `json:"group_name"`
	GroupPrice          *float64 `json:"group_price"`
	GroupType           string   `json:"group_type,omitempty"`
	SemanticMeaning     string   `json:"semantic_meaning,omitempty"`
	BoundaryType        string   `json:"boundary_type,omitempty"`
	BoundaryDescription string   `json:"boundary_description,omitempty"`
	HierarchyLevel      string   `json:"hierarchy_level,omitempty"`
	PriceSource         string   `json:"price_source,omitempty"`
	SaleStrategy        string   `json:"sale_strategy,omitempty"`
	TargetCustomer      string   `json:"target_customer,omitempty"`
	ContextualInfo      string   `json:"contextual_info,omitempty"`
	Items               []Item   `json:"items"`
}

// UnmarshalJSON accepts a group price written as a string and labels of any
// JSON type.
func (g *Group) UnmarshalJSON(data []byte) error {
	type Alias Group
	aux := &struct {
		GroupName           json.RawMessage `json:"group_name"`
		GroupPrice          json.RawMessage `json:"group_price"`
		GroupType           json.RawMessage `json:"group_type"`
		SemanticMeaning     json.RawMessage `json:"semantic_meaning"`
		BoundaryType        json.RawMessage `json:"boundary_type"`
		BoundaryDescription json.RawMessage `json:"boundary_description"`
		HierarchyLevel      json.RawMessage `json:"hierarchy_level"`
		PriceSource         json.RawMessage `json:"price_source"`
		SaleStrategy        json.RawMessage `json:"sale_strategy"`
		TargetCustomer      json.RawMessage `json:"target_customer"`
		ContextualInfo      json.RawMessage `json:"contextual_info"`
		*Alias
	}{
		Alias: (*Alias)(g),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	g.GroupName = text(aux.GroupName)
	g.GroupPrice = price(aux.GroupPrice)
	g.GroupType = text(aux.GroupType)
	g.SemanticMeaning = text(aux.SemanticMeaning)
	g.BoundaryType = text(aux.BoundaryType)
	g.BoundaryDescription = text(aux.BoundaryDescription)
	g.HierarchyLevel = text(aux.HierarchyLevel)
	g.PriceSource = text(aux.PriceSource)
	g.SaleStrategy = text(aux.SaleStrategy)
	g.TargetCustomer = text(aux.TargetCustomer)
	g.ContextualInfo = text(aux.ContextualInfo)
	return nil
}

// Period is the validity window printed on a flyer.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StructureData is the canonical structured form of one flyer. Items is
// always the flattened view; Groups is kept when the model grouped items.
type StructureData struct {
	StoreName          string  `json:"store_name"`
	SalePeriod         Period  `json:"sale_period"`
	LayoutAnalysis     string  `json:"layout_analysis,omitempty"`
	HierarchyStructure string  `json:"hierarchy_structure,omitempty"`
	Items              []Item  `json:"items"`
	Groups             []Group `json:"groups"`
}

func price(raw json.RawMessage) *float64 {
	v, ok := llm.ParseNumber(raw)
	if !ok {
		return nil
	}
	return &v
}

func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
