package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smartrecipe/internal/auth"
	"smartrecipe/internal/recipe"
)

type ratingRequest struct {
	Rating         int      `json:"rating"`
	Notes          *string  `json:"notes"`
	Modifications  *string  `json:"modifications"`
	ActualCost     *float64 `json:"actual_cost"`
	WouldCookAgain *bool    `json:"would_cook_again"`
}

// ListRecipes returns the caller's saved recipes.
func (h *Handler) ListRecipes(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	recipes, err := h.recipeStore.List(ctx, auth.UserID(c))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, recipes)
}

// GenerateRecipe asks the model for a recipe built from the caller's
// inventory and current sale items.
func (h *Handler) GenerateRecipe(c *gin.Context) {
	var constraints recipe.Constraints
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&constraints); err != nil {
			h.respondError(c, invalid("", "Invalid request body"), "")
			return
		}
	}
	if constraints.Difficulty < 0 || constraints.Difficulty > 5 {
		h.respondError(c, invalid("difficulty", "difficulty must be between 1 and 5"), "")
		return
	}
	if constraints.CookingTime < 0 || constraints.Servings < 0 || constraints.Budget < 0 {
		h.respondError(c, invalid("", "cookingTime, servings and budget must not be negative"), "")
		return
	}

	ctx, cancel := h.pipelineContext(c)
	defer cancel()

	rec, err := h.recipes.Generate(ctx, auth.UserID(c), constraints)
	if err != nil {
		h.respondError(c, err, "GENERATION_FAILED")
		return
	}
	respondOK(c, http.StatusOK, rec)
}

// GetRecipe returns one recipe.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	rec, err := h.recipeStore.Get(ctx, auth.UserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, rec)
}

// RateRecipe records a cooking-history entry for a recipe.
func (h *Handler) RateRecipe(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("", "Invalid request body"), "")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.respondError(c, invalid("rating", "rating must be between 1 and 5"), "")
		return
	}

	rating := &recipe.Rating{
		ID:             uuid.NewString(),
		UserID:         auth.UserID(c),
		RecipeID:       c.Param("id"),
		Rating:         req.Rating,
		Notes:          req.Notes,
		Modifications:  req.Modifications,
		ActualCost:     req.ActualCost,
		WouldCookAgain: req.WouldCookAgain,
	}

	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	if err := h.recipeStore.AddRating(ctx, rating); err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusCreated, rating)
}
