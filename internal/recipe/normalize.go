package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"smartrecipe/internal/llm"
)

// SchemaError reports a generated recipe missing a required field.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("recipe %s %s", e.Field, e.Reason)
}

var sourceAliases = map[string]Source{
	"inventory": SourceInventory,
	"fridge":    SourceInventory,
	"owned":     SourceInventory,
	"pantry":    SourceInventory,
	"冷蔵庫":       SourceInventory,
	"sale":      SourceSale,
	"sale_item": SourceSale,
	"sale item": SourceSale,
	"セール商品":     SourceSale,
	"purchase":  SourcePurchase,
	"buy":       SourcePurchase,
	"must-buy":  SourcePurchase,
	"must_buy":  SourcePurchase,
	"追加購入":      SourcePurchase,
}

// Normalize turns an extracted model payload into a GeneratedRecipe. Title,
// ingredients and instructions are required; absent or unreadable numbers
// become 0. Difficulty, cooking time and servings are clamped to sane ranges.
func Normalize(raw json.RawMessage) (*GeneratedRecipe, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &llm.ResponseFormatError{Raw: string(raw), Err: err}
	}

	r := &GeneratedRecipe{
		Title:       strings.TrimSpace(text(fields["title"])),
		Description: text(fields["description"]),
		Difficulty:  bounded(fields["difficulty"], 1, 5),
		CookingTime: bounded(fields["cooking_time"], 0, maxCookingMinutes),
		Servings:    bounded(fields["servings"], 0, maxServings),
		TotalCost:   number(fields["total_cost"]),
		SaleSavings: number(fields["sale_savings"]),
		Tips:        stringList(fields["tips"]),
		Categories:  stringList(fields["categories"]),
		Tags:        stringList(fields["tags"]),
	}
	if r.Title == "" {
		return nil, &SchemaError{Field: "title", Reason: "is required"}
	}

	if !isArray(fields["ingredients"]) {
		return nil, &SchemaError{Field: "ingredients", Reason: "must be a list"}
	}
	var ingredients []json.RawMessage
	if err := json.Unmarshal(fields["ingredients"], &ingredients); err != nil {
		return nil, &SchemaError{Field: "ingredients", Reason: "must be a list"}
	}
	r.Ingredients = make([]Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		r.Ingredients = append(r.Ingredients, ingredient(ing))
	}

	if !isArray(fields["instructions"]) {
		return nil, &SchemaError{Field: "instructions", Reason: "must be a list"}
	}
	if err := json.Unmarshal(fields["instructions"], &r.Instructions); err != nil {
		return nil, &SchemaError{Field: "instructions", Reason: "must be a list of strings"}
	}

	if info := fields["nutritional_info"]; isObject(info) {
		var n map[string]json.RawMessage
		if err := json.Unmarshal(info, &n); err == nil {
			r.NutritionalInfo = NutritionalInfo{
				CaloriesPerServing: text(n["calories_per_serving"]),
				Protein:            text(n["protein"]),
				Carbs:              text(n["carbs"]),
				Fat:                text(n["fat"]),
			}
		}
	}
	return r, nil
}

// NormalizeSource maps the many ways a model names an ingredient source onto
// the three canonical values. Unrecognized values are returned unchanged.
func NormalizeSource(s string) Source {
	key := strings.ToLower(strings.TrimSpace(s))
	if src, ok := sourceAliases[key]; ok {
		return src
	}
	return Source(strings.TrimSpace(s))
}

func ingredient(raw json.RawMessage) Ingredient {
	if !isObject(raw) {
		return Ingredient{Name: text(raw)}
	}
	var f map[string]json.RawMessage
	if err := json.Unmarshal(raw, &f); err != nil {
		return Ingredient{}
	}
	return Ingredient{
		Name:   text(f["name"]),
		Amount: text(f["amount"]),
		Source: NormalizeSource(text(f["source"])),
		Cost:   number(f["cost"]),
	}
}

const (
	maxCookingMinutes = 24 * 60
	maxServings       = 100
)

// bounded reads an integer clamped to [lo, hi]. An absent or unreadable
// value is 0.
func bounded(raw json.RawMessage, lo, hi float64) int {
	n, ok := llm.ParseNumber(raw)
	if !ok {
		return 0
	}
	return int(math.Max(lo, math.Min(hi, n)))
}

func number(raw json.RawMessage) float64 {
	n, _ := llm.ParseNumber(raw)
	return n
}

func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// stringList reads an optional list of strings; anything else yields an empty list.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if !isArray(raw) {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, it := range items {
		if s := text(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
