package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"smartrecipe/internal/auth"
	"smartrecipe/internal/flyer"
	"smartrecipe/internal/inventory"
	"smartrecipe/internal/llm"
	"smartrecipe/internal/recipe"
	"smartrecipe/internal/sale"
)

// dbTimeout bounds plain database requests.
const dbTimeout = 5 * time.Second

// SaleProcessor defines the flyer pipeline operations.
type SaleProcessor interface {
	Process(ctx context.Context, userID string, image []byte) (*flyer.Result, error)
	Upload(ctx context.Context, userID string, image []byte, contentType string) (*sale.Record, error)
}

// RecipeGenerator defines the recipe pipeline.
type RecipeGenerator interface {
	Generate(ctx context.Context, userID string, c recipe.Constraints) (*recipe.Record, error)
}

// SaleStore defines the sale record queries used by the API.
type SaleStore interface {
	List(ctx context.Context, userID string) ([]sale.Record, error)
	GetStatus(ctx context.Context, userID, id string) (*sale.Status, error)
	Delete(ctx context.Context, userID, id string) error
}

// RecipeStore defines the recipe queries used by the API.
type RecipeStore interface {
	List(ctx context.Context, userID string) ([]recipe.Record, error)
	Get(ctx context.Context, userID, id string) (*recipe.Record, error)
	AddRating(ctx context.Context, rating *recipe.Rating) error
}

// InventoryStore defines the inventory operations used by the API.
type InventoryStore interface {
	List(ctx context.Context, userID string) ([]inventory.Item, error)
	Create(ctx context.Context, item *inventory.Item) error
	Update(ctx context.Context, userID, id string, u inventory.Update) (*inventory.Item, error)
	Delete(ctx context.Context, userID, id string) error
	Expiring(ctx context.Context, userID string, until time.Time) ([]inventory.Item, error)
}

// AuthService defines the identity operations used by the API.
type AuthService interface {
	auth.Verifier
	SignUp(ctx context.Context, email, password, displayName string) (*auth.User, *auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.User, *auth.Session, error)
	SignOut(ctx context.Context, token string) error
	Me(ctx context.Context, userID string) (*auth.User, error)
}

// Options configures a Handler.
type Options struct {
	Sales          SaleProcessor
	SaleStore      SaleStore
	Recipes        RecipeGenerator
	RecipeStore    RecipeStore
	Inventory      InventoryStore
	Auth           AuthService
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	MaxUploadBytes int64
	Clock          func() time.Time
}

// Handler handles HTTP requests.
type Handler struct {
	sales          SaleProcessor
	saleStore      SaleStore
	recipes        RecipeGenerator
	recipeStore    RecipeStore
	inventory      InventoryStore
	auth           AuthService
	logger         zerolog.Logger
	requestTimeout time.Duration
	maxUploadBytes int64
	clock          func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Handler{
		sales:          opts.Sales,
		saleStore:      opts.SaleStore,
		recipes:        opts.Recipes,
		recipeStore:    opts.RecipeStore,
		inventory:      opts.Inventory,
		auth:           opts.Auth,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		maxUploadBytes: opts.MaxUploadBytes,
		clock:          opts.Clock,
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": h.clock().UTC().Format(time.RFC3339)})
}

// pipelineContext bounds an LLM-backed request when a request timeout is configured.
func (h *Handler) pipelineContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.requestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// validationError reports a malformed request.
type validationError struct {
	field   string
	message string
}

func (e *validationError) Error() string { return e.message }

func invalid(field, message string) error {
	return &validationError{field: field, message: message}
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// respondError maps err onto a status code and error code. Errors without a
// specific mapping become 500 with fallbackCode and a generic message; their
// details are only logged.
func (h *Handler) respondError(c *gin.Context, err error, fallbackCode string) {
	status, body := classify(err, fallbackCode)
	if status >= http.StatusInternalServerError || status == http.StatusRequestTimeout {
		h.logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("user_id", auth.UserID(c)).
			Msg("request failed")
	} else {
		h.logger.Debug().Err(err).Str("path", c.FullPath()).Msg("request rejected")
	}
	c.JSON(status, body)
}

func classify(err error, fallbackCode string) (int, gin.H) {
	body := func(msg, code string) gin.H {
		return gin.H{"success": false, "error": msg, "code": code}
	}

	var (
		verr     *validationError
		authVerr *auth.ValidationError
		imgErr   *flyer.ImageProcessingError
		fmtErr   *llm.ResponseFormatError
		schema   *recipe.SchemaError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, body("Request timed out", "TIMEOUT")
	case errors.As(err, &verr):
		b := body(verr.message, "VALIDATION_ERROR")
		if verr.field != "" {
			b["field"] = verr.field
		}
		return http.StatusBadRequest, b
	case errors.As(err, &authVerr):
		b := body(authVerr.Reason, "VALIDATION_ERROR")
		b["field"] = authVerr.Field
		return http.StatusBadRequest, b
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, body("Email already registered", "EMAIL_TAKEN")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, body("Invalid email or password", "INVALID_CREDENTIALS")
	case errors.Is(err, auth.ErrAuthenticationRequired):
		return http.StatusUnauthorized, body("Authentication required", "AUTH_REQUIRED")
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, body("Invalid token", "INVALID_TOKEN")
	case errors.Is(err, sale.ErrNotFound):
		return http.StatusNotFound, body("Sales info not found", "NOT_FOUND")
	case errors.Is(err, recipe.ErrNotFound):
		return http.StatusNotFound, body("Recipe not found", "NOT_FOUND")
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, body("Inventory item not found", "NOT_FOUND")
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, body("User not found", "NOT_FOUND")
	case errors.As(err, &imgErr):
		return http.StatusBadRequest, body("Image could not be processed", "INVALID_IMAGE")
	case errors.As(err, &fmtErr), errors.As(err, &schema):
		return http.StatusBadGateway, body("The model returned an unusable response", fallbackCode)
	}

	switch fallbackCode {
	case "PROCESSING_FAILED":
		return http.StatusInternalServerError, body("Sale processing failed", fallbackCode)
	case "GENERATION_FAILED":
		return http.StatusInternalServerError, body("Recipe generation failed", fallbackCode)
	}
	return http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"}
}

func contextWithDBTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), dbTimeout)
}
