package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smartrecipe/internal/auth"
	"smartrecipe/internal/inventory"
)

const (
	dateLayout          = "2006-01-02"
	defaultExpiringDays = 7
)

type inventoryRequest struct {
	IngredientName *string  `json:"ingredient_name"`
	Quantity       *float64 `json:"quantity"`
	Unit           *string  `json:"unit"`
	ExpiryDate     *string  `json:"expiry_date"`
	PurchaseDate   *string  `json:"purchase_date"`
	Category       *string  `json:"category"`
	Notes          *string  `json:"notes"`
}

func parseDateField(field string, v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, invalid(field, field+" must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}

func (r inventoryRequest) update() (inventory.Update, error) {
	expiry, err := parseDateField("expiry_date", r.ExpiryDate)
	if err != nil {
		return inventory.Update{}, err
	}
	purchase, err := parseDateField("purchase_date", r.PurchaseDate)
	if err != nil {
		return inventory.Update{}, err
	}
	if r.IngredientName != nil && strings.TrimSpace(*r.IngredientName) == "" {
		return inventory.Update{}, invalid("ingredient_name", "ingredient_name must not be empty")
	}
	if r.Quantity != nil && *r.Quantity < 0 {
		return inventory.Update{}, invalid("quantity", "quantity must not be negative")
	}
	return inventory.Update{
		IngredientName: r.IngredientName,
		Quantity:       r.Quantity,
		Unit:           r.Unit,
		ExpiryDate:     expiry,
		PurchaseDate:   purchase,
		Category:       r.Category,
		Notes:          r.Notes,
	}, nil
}

// ListInventory returns the caller's inventory.
func (h *Handler) ListInventory(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	items, err := h.inventory.List(ctx, auth.UserID(c))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, items)
}

// CreateInventory adds an ingredient.
func (h *Handler) CreateInventory(c *gin.Context) {
	var req inventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("", "Invalid request body"), "")
		return
	}
	if req.IngredientName == nil || strings.TrimSpace(*req.IngredientName) == "" {
		h.respondError(c, invalid("ingredient_name", "ingredient_name is required"), "")
		return
	}
	if req.Quantity == nil {
		h.respondError(c, invalid("quantity", "quantity is required"), "")
		return
	}
	u, err := req.update()
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	item := &inventory.Item{
		ID:             uuid.NewString(),
		UserID:         auth.UserID(c),
		IngredientName: strings.TrimSpace(*u.IngredientName),
		Quantity:       *u.Quantity,
		ExpiryDate:     u.ExpiryDate,
		PurchaseDate:   u.PurchaseDate,
		Category:       u.Category,
		Notes:          u.Notes,
	}
	if u.Unit != nil {
		item.Unit = *u.Unit
	}

	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	if err := h.inventory.Create(ctx, item); err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusCreated, item)
}

// UpdateInventory applies a partial update to one item.
func (h *Handler) UpdateInventory(c *gin.Context) {
	var req inventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("", "Invalid request body"), "")
		return
	}
	u, err := req.update()
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	item, err := h.inventory.Update(ctx, auth.UserID(c), c.Param("id"), u)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, item)
}

// DeleteInventory removes one item.
func (h *Handler) DeleteInventory(c *gin.Context) {
	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	if err := h.inventory.Delete(ctx, auth.UserID(c), c.Param("id")); err != nil {
		h.respondError(c, err, "")
		return
	}
	respondMessage(c, "Inventory item deleted")
}

// ExpiringInventory lists items expiring within ?days (default 7).
func (h *Handler) ExpiringInventory(c *gin.Context) {
	days := defaultExpiringDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(c, invalid("days", "days must be a non-negative integer"), "")
			return
		}
		days = n
	}

	now := h.clock()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	ctx, cancel := contextWithDBTimeout(c)
	defer cancel()

	items, err := h.inventory.Expiring(ctx, auth.UserID(c), today.AddDate(0, 0, days))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	respondOK(c, http.StatusOK, items)
}
