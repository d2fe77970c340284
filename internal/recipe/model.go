package recipe

import (
	"errors"
	"fmt"
	"time"
)

// MaxSaleItems caps how many sale items are offered to the model.
const MaxSaleItems = 20

// Source tells where an ingredient comes from.
type Source string

// Ingredient sources.
const (
	SourceInventory Source = "inventory"
	SourceSale      Source = "sale"
	SourcePurchase  Source = "purchase"
)

// InventoryEntry is one owned ingredient offered to the model.
type InventoryEntry struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	ExpiryDate string  `json:"expiry_date,omitempty"`
}

// SaleEntry is one discounted item offered to the model.
type SaleEntry struct {
	Name          string   `json:"name"`
	OriginalPrice *float64 `json:"original_price"`
	SalePrice     *float64 `json:"sale_price"`
	DiscountRate  *float64 `json:"discount_rate"`
}

// Constraints are the user's requirements for a generated recipe.
type Constraints struct {
	Difficulty          int      `json:"difficulty" jsonschema:"minimum=1,maximum=5"`
	CookingTime         int      `json:"cookingTime" jsonschema:"description=Maximum cooking time in minutes"`
	Servings            int      `json:"servings"`
	Budget              float64  `json:"budget"`
	Allergies           []string `json:"allergies"`
	DietaryRestrictions []string `json:"dietaryRestrictions"`
}

// DefaultConstraints apply to any field the caller leaves at zero.
var DefaultConstraints = Constraints{
	Difficulty:  3,
	CookingTime: 30,
	Servings:    2,
	Budget:      1000,
}

// WithDefaults fills unset fields from DefaultConstraints and clamps the
// difficulty into 1..5.
func (c Constraints) WithDefaults() Constraints {
	if c.Difficulty <= 0 {
		c.Difficulty = DefaultConstraints.Difficulty
	}
	if c.Difficulty > 5 {
		c.Difficulty = 5
	}
	if c.CookingTime <= 0 {
		c.CookingTime = DefaultConstraints.CookingTime
	}
	if c.Servings <= 0 {
		c.Servings = DefaultConstraints.Servings
	}
	if c.Budget <= 0 {
		c.Budget = DefaultConstraints.Budget
	}
	if c.Allergies == nil {
		c.Allergies = []string{}
	}
	if c.DietaryRestrictions == nil {
		c.DietaryRestrictions = []string{}
	}
	return c
}

// Summary is the audit string stored as generation_prompt.
func (c Constraints) Summary() string {
	return fmt.Sprintf("difficulty:%d, time:%d, servings:%d, budget:%g", c.Difficulty, c.CookingTime, c.Servings, c.Budget)
}

// GenerationParams is the full context for one generation request.
type GenerationParams struct {
	Inventory   []InventoryEntry
	SaleItems   []SaleEntry
	Constraints Constraints
}

// Ingredient is one line of a generated recipe.
type Ingredient struct {
	Name   string  `json:"name"`
	Amount string  `json:"amount"`
	Source Source  `json:"source"`
	Cost   float64 `json:"cost"`
}

// NutritionalInfo is the model's per-serving estimate.
type NutritionalInfo struct {
	CaloriesPerServing string `json:"calories_per_serving"`
	Protein            string `json:"protein"`
	Carbs              string `json:"carbs"`
	Fat                string `json:"fat"`
}

// GeneratedRecipe is a normalized model-generated recipe.
type GeneratedRecipe struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Difficulty      int             `json:"difficulty"`
	CookingTime     int             `json:"cooking_time"`
	Servings        int             `json:"servings"`
	TotalCost       float64         `json:"total_cost"`
	SaleSavings     float64         `json:"sale_savings"`
	Ingredients     []Ingredient    `json:"ingredients"`
	Instructions    []string        `json:"instructions"`
	Tips            []string        `json:"tips"`
	NutritionalInfo NutritionalInfo `json:"nutritional_info"`
	Categories      []string        `json:"categories"`
	Tags            []string        `json:"tags"`
}

// ErrSavingsOutOfRange is returned by CheckSavings.
var ErrSavingsOutOfRange = errors.New("sale savings outside [0, total_cost]")

// CheckSavings reports whether sale_savings lies within [0, total_cost].
func (r *GeneratedRecipe) CheckSavings() error {
	if r.SaleSavings < 0 || r.SaleSavings > r.TotalCost {
		return fmt.Errorf("%w: savings %g, total %g", ErrSavingsOutOfRange, r.SaleSavings, r.TotalCost)
	}
	return nil
}

// Record is a persisted recipe.
type Record struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	GeneratedRecipe
	AIGenerated      bool      `json:"ai_generated"`
	GenerationPrompt string    `json:"generation_prompt"`
	CreatedAt        time.Time `json:"created_at"`
}

// Rating is one cooking-history entry attached to a recipe.
type Rating struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	RecipeID       string    `db:"recipe_id" json:"recipe_id"`
	Rating         int       `db:"rating" json:"rating"`
	Notes          *string   `db:"notes" json:"notes"`
	Modifications  *string   `db:"modifications" json:"modifications"`
	ActualCost     *float64  `db:"actual_cost" json:"actual_cost"`
	WouldCookAgain *bool     `db:"would_cook_again" json:"would_cook_again"`
	CookedAt       time.Time `db:"cooked_at" json:"cooked_at"`
}
