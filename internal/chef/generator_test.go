package chef

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartrecipe/internal/inventory"
	"smartrecipe/internal/llm"
	"smartrecipe/internal/recipe"
	"smartrecipe/internal/sale"
)

type fakeInventory struct {
	items []inventory.Item
	err   error
}

func (f *fakeInventory) List(_ context.Context, _ string) ([]inventory.Item, error) {
	return f.items, f.err
}

type fakeSales struct {
	items     []sale.Item
	err       error
	gotLimit  int
	gotUserID string
}

func (f *fakeSales) ActiveItems(_ context.Context, userID string, _ time.Time, limit int) ([]sale.Item, error) {
	f.gotUserID = userID
	f.gotLimit = limit
	return f.items, f.err
}

type fakeRecipes struct {
	saved []*recipe.Record
	err   error
}

func (f *fakeRecipes) Save(_ context.Context, r *recipe.Record) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r)
	return nil
}

func f64(v float64) *float64 { return &v }

const recipeResponse = `Here is your recipe:
{
	"title": "Salmon Teriyaki",
	"description": "Sweet and savoury",
	"difficulty": 2,
	"cooking_time": "25",
	"servings": 2,
	"total_cost": 800,
	"sale_savings": 200,
	"ingredients": [
		{"name": "Salmon", "amount": "2 fillets", "source": "sale", "cost": 500},
		{"name": "Soy sauce", "amount": "2 tbsp", "source": "fridge", "cost": 0}
	],
	"instructions": ["Marinate", "Grill"],
	"tags": ["quick"]
}`

func newTestGenerator(response string) (*Generator, *fakeInventory, *fakeSales, *fakeRecipes, *[]llm.Request) {
	var requests []llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (string, error) {
		requests = append(requests, req)
		return response, nil
	})
	expiry := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	inv := &fakeInventory{items: []inventory.Item{
		{IngredientName: "Soy sauce", Quantity: 1, Unit: "bottle"},
		{IngredientName: "Spinach", Quantity: 200, Unit: "g", ExpiryDate: &expiry},
	}}
	sales := &fakeSales{items: []sale.Item{
		{Name: "Salmon", OriginalPrice: f64(400), SalePrice: f64(300), DiscountRate: f64(0.25)},
	}}
	recipes := &fakeRecipes{}
	g := NewGenerator(client, inv, sales, recipes, llm.DefaultRetryPolicy, zerolog.Nop())
	return g, inv, sales, recipes, &requests
}

func TestGenerate(t *testing.T) {
	g, _, sales, recipes, requests := newTestGenerator(recipeResponse)

	rec, err := g.Generate(context.Background(), "user-1", recipe.Constraints{Difficulty: 2, CookingTime: 30})
	require.NoError(t, err)

	assert.Equal(t, "Salmon Teriyaki", rec.Title)
	assert.Equal(t, 25, rec.CookingTime)
	assert.True(t, rec.AIGenerated)
	assert.Equal(t, "difficulty:2, time:30, servings:2, budget:1000", rec.GenerationPrompt)
	assert.Equal(t, "user-1", rec.UserID)
	assert.NotEmpty(t, rec.ID)
	require.Len(t, rec.Ingredients, 2)
	assert.Equal(t, recipe.SourceInventory, rec.Ingredients[1].Source)

	assert.Equal(t, "user-1", sales.gotUserID)
	assert.Equal(t, recipe.MaxSaleItems, sales.gotLimit)
	require.Len(t, recipes.saved, 1)

	require.Len(t, *requests, 1)
	p := (*requests)[0].Prompt
	assert.Contains(t, p, "- Spinach (200g, expires: 2025-03-12)")
	assert.Contains(t, p, "- Soy sauce (1bottle, expires: unknown)")
	assert.Contains(t, p, "- Salmon: 300 yen (regular 400 yen, 25% off)")
	assert.Nil(t, (*requests)[0].Image)
}

func TestParams_CapsSaleItems(t *testing.T) {
	g, _, sales, _, _ := newTestGenerator(recipeResponse)
	sales.items = nil
	for i := 0; i < 30; i++ {
		sales.items = append(sales.items, sale.Item{Name: fmt.Sprintf("item-%d", i)})
	}

	params, err := g.Params(context.Background(), "user-1", recipe.Constraints{})
	require.NoError(t, err)
	assert.Len(t, params.SaleItems, recipe.MaxSaleItems)
	assert.Equal(t, recipe.DefaultConstraints.Difficulty, params.Constraints.Difficulty)
	assert.Equal(t, "item-0", params.SaleItems[0].Name)
}

func TestGenerate_SavingsAnomalyIsNotFatal(t *testing.T) {
	g, _, _, recipes, _ := newTestGenerator(`{"title": "T", "total_cost": 100, "sale_savings": 300, "ingredients": [], "instructions": ["Cook"]}`)

	rec, err := g.Generate(context.Background(), "user-1", recipe.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, 300.0, rec.SaleSavings)
	assert.Len(t, recipes.saved, 1)
}

func TestGenerate_Failures(t *testing.T) {
	t.Run("unparsable response", func(t *testing.T) {
		g, _, _, recipes, _ := newTestGenerator("I can't help with that")
		_, err := g.Generate(context.Background(), "user-1", recipe.Constraints{})

		var formatErr *llm.ResponseFormatError
		require.ErrorAs(t, err, &formatErr)
		assert.Empty(t, recipes.saved)
	})

	t.Run("schema violation", func(t *testing.T) {
		g, _, _, recipes, _ := newTestGenerator(`{"description": "no title"}`)
		_, err := g.Generate(context.Background(), "user-1", recipe.Constraints{})

		var schemaErr *recipe.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Empty(t, recipes.saved)
	})

	t.Run("inventory error", func(t *testing.T) {
		g, inv, _, _, requests := newTestGenerator(recipeResponse)
		inv.err = errors.New("db down")
		_, err := g.Generate(context.Background(), "user-1", recipe.Constraints{})
		require.Error(t, err)
		assert.Empty(t, *requests)
	})

	t.Run("save error", func(t *testing.T) {
		g, _, _, recipes, _ := newTestGenerator(recipeResponse)
		recipes.err = errors.New("db down")
		_, err := g.Generate(context.Background(), "user-1", recipe.Constraints{})
		require.Error(t, err)
	})
}
