// Package chef generates recipes from what a user owns and what is on sale.
package chef

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"smartrecipe/internal/inventory"
	"smartrecipe/internal/llm"
	"smartrecipe/internal/prompt"
	"smartrecipe/internal/recipe"
	"smartrecipe/internal/sale"
)

var (
	recipesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartrecipe_recipes_generated_total",
		Help: "Recipes generated and saved",
	})
	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartrecipe_recipe_generation_failures_total",
		Help: "Recipe generation failures, by stage",
	}, []string{"stage"})
	savingsAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartrecipe_recipe_savings_anomalies_total",
		Help: "Generated recipes whose sale_savings fell outside [0, total_cost]",
	})
)

// InventoryLister reads a user's ingredients.
type InventoryLister interface {
	List(ctx context.Context, userID string) ([]inventory.Item, error)
}

// SaleItems reads items from a user's currently valid flyers.
type SaleItems interface {
	ActiveItems(ctx context.Context, userID string, today time.Time, limit int) ([]sale.Item, error)
}

// RecipeSaver persists generated recipes.
type RecipeSaver interface {
	Save(ctx context.Context, r *recipe.Record) error
}

// Generator runs the recipe pipeline: gather context, prompt, call the model,
// normalize and persist.
type Generator struct {
	llm       llm.Client
	inventory InventoryLister
	sales     SaleItems
	recipes   RecipeSaver
	retry     llm.RetryPolicy
	clock     func() time.Time
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewGenerator creates a Generator.
func NewGenerator(client llm.Client, inv InventoryLister, sales SaleItems, recipes RecipeSaver, retry llm.RetryPolicy, logger zerolog.Logger) *Generator {
	return &Generator{
		llm:       client,
		inventory: inv,
		sales:     sales,
		recipes:   recipes,
		retry:     retry,
		clock:     time.Now,
		logger:    logger.With().Str("component", "chef").Logger(),
		tracer:    otel.Tracer("smartrecipe/chef"),
	}
}

// Params gathers the user's inventory and up to recipe.MaxSaleItems active
// sale items, and applies default constraints.
func (g *Generator) Params(ctx context.Context, userID string, c recipe.Constraints) (recipe.GenerationParams, error) {
	items, err := g.inventory.List(ctx, userID)
	if err != nil {
		return recipe.GenerationParams{}, fmt.Errorf("failed to load inventory: %w", err)
	}
	saleItems, err := g.sales.ActiveItems(ctx, userID, g.clock(), recipe.MaxSaleItems)
	if err != nil {
		return recipe.GenerationParams{}, fmt.Errorf("failed to load active sales: %w", err)
	}

	params := recipe.GenerationParams{
		Inventory:   make([]recipe.InventoryEntry, 0, len(items)),
		SaleItems:   make([]recipe.SaleEntry, 0, len(saleItems)),
		Constraints: c.WithDefaults(),
	}
	for _, it := range items {
		entry := recipe.InventoryEntry{Name: it.IngredientName, Quantity: it.Quantity, Unit: it.Unit}
		if it.ExpiryDate != nil {
			entry.ExpiryDate = it.ExpiryDate.Format("2006-01-02")
		}
		params.Inventory = append(params.Inventory, entry)
	}
	for i, it := range saleItems {
		if i == recipe.MaxSaleItems {
			break
		}
		params.SaleItems = append(params.SaleItems, recipe.SaleEntry{
			Name:          it.Name,
			OriginalPrice: it.OriginalPrice,
			SalePrice:     it.SalePrice,
			DiscountRate:  it.DiscountRate,
		})
	}
	return params, nil
}

// Generate produces, normalizes and saves one recipe for userID.
func (g *Generator) Generate(ctx context.Context, userID string, c recipe.Constraints) (*recipe.Record, error) {
	ctx, span := g.tracer.Start(ctx, "chef.Generate", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()
	logger := g.logger.With().Str("user_id", userID).Logger()

	fail := func(stage string, err error) (*recipe.Record, error) {
		generationFailures.WithLabelValues(stage).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		logger.Error().Err(err).Str("stage", stage).Msg("recipe generation failed")
		return nil, err
	}

	params, err := g.Params(ctx, userID, c)
	if err != nil {
		return fail("context", err)
	}
	span.SetAttributes(
		attribute.Int("recipe.inventory_items", len(params.Inventory)),
		attribute.Int("recipe.sale_items", len(params.SaleItems)),
	)

	text, err := g.retry.Generate(ctx, g.llm, prompt.Recipe(params), logger)
	if err != nil {
		return fail("llm", fmt.Errorf("failed to generate recipe: %w", err))
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return fail("extract", fmt.Errorf("failed to generate recipe: %w", err))
	}

	generated, err := recipe.Normalize(raw)
	if err != nil {
		return fail("normalize", fmt.Errorf("failed to generate recipe: %w", err))
	}
	if err := generated.CheckSavings(); err != nil {
		savingsAnomalies.Inc()
		logger.Warn().Err(err).Str("title", generated.Title).Msg("recipe savings out of range")
	}

	rec := &recipe.Record{
		ID:               uuid.New().String(),
		UserID:           userID,
		GeneratedRecipe:  *generated,
		AIGenerated:      true,
		GenerationPrompt: params.Constraints.Summary(),
	}
	if err := g.recipes.Save(ctx, rec); err != nil {
		return fail("persist", err)
	}

	recipesGenerated.Inc()
	span.SetAttributes(attribute.String("recipe.id", rec.ID))
	logger.Info().Str("recipe_id", rec.ID).Str("title", rec.Title).Msg("recipe generated")
	return rec, nil
}
