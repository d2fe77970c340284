package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a recipe does not exist for the user.
var ErrNotFound = errors.New("recipe not found")

// Schema creates the recipes and cooking_history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS recipes (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT,
	ingredients JSONB NOT NULL,
	instructions TEXT[] NOT NULL,
	tips TEXT[],
	difficulty_level INTEGER,
	cooking_time INTEGER,
	servings INTEGER,
	total_cost NUMERIC(10,2),
	sale_savings NUMERIC(10,2),
	categories TEXT[],
	tags TEXT[],
	nutritional_info JSONB,
	ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
	generation_prompt TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS recipes_user_created_idx ON recipes (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS cooking_history (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	recipe_id UUID NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
	rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	notes TEXT,
	modifications TEXT,
	actual_cost NUMERIC(10,2),
	would_cook_again BOOLEAN,
	cooked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store defines the persistence operations for recipes.
type Store interface {
	Save(ctx context.Context, r *Record) error
	List(ctx context.Context, userID string) ([]Record, error)
	Get(ctx context.Context, userID, id string) (*Record, error)
	AddRating(ctx context.Context, rating *Rating) error
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore on an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// row mirrors the recipes table.
type row struct {
	ID               string          `db:"id"`
	UserID           string          `db:"user_id"`
	Title            string          `db:"title"`
	Description      sql.NullString  `db:"description"`
	Ingredients      []byte          `db:"ingredients"`
	Instructions     pq.StringArray  `db:"instructions"`
	Tips             pq.StringArray  `db:"tips"`
	DifficultyLevel  sql.NullInt64   `db:"difficulty_level"`
	CookingTime      sql.NullInt64   `db:"cooking_time"`
	Servings         sql.NullInt64   `db:"servings"`
	TotalCost        sql.NullFloat64 `db:"total_cost"`
	SaleSavings      sql.NullFloat64 `db:"sale_savings"`
	Categories       pq.StringArray  `db:"categories"`
	Tags             pq.StringArray  `db:"tags"`
	NutritionalInfo  []byte          `db:"nutritional_info"`
	AIGenerated      bool            `db:"ai_generated"`
	GenerationPrompt sql.NullString  `db:"generation_prompt"`
	CreatedAt        time.Time       `db:"created_at"`
}

const columns = `id, user_id, title, description, ingredients, instructions, tips, difficulty_level,
	cooking_time, servings, total_cost, sale_savings, categories, tags, nutritional_info,
	ai_generated, generation_prompt, created_at`

// Save inserts a recipe. ID must be set by the caller; CreatedAt is filled in.
func (s *PostgresStore) Save(ctx context.Context, r *Record) error {
	ingredientsJSON, err := json.Marshal(r.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	nutritionJSON, err := json.Marshal(r.NutritionalInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal nutritional info: %w", err)
	}

	query := `
	INSERT INTO recipes (id, user_id, title, description, ingredients, instructions, tips,
		difficulty_level, cooking_time, servings, total_cost, sale_savings, categories, tags,
		nutritional_info, ai_generated, generation_prompt)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	RETURNING created_at`

	err = s.db.QueryRowContext(ctx, query,
		r.ID, r.UserID, r.Title, r.Description, ingredientsJSON,
		pq.Array(r.Instructions), pq.Array(r.Tips),
		r.Difficulty, r.CookingTime, r.Servings, r.TotalCost, r.SaleSavings,
		pq.Array(r.Categories), pq.Array(r.Tags),
		nutritionJSON, r.AIGenerated, r.GenerationPrompt,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

// List returns the user's recipes, newest first.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]Record, error) {
	var rows []row
	query := `SELECT ` + columns + ` FROM recipes WHERE user_id = $1 ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, rw := range rows {
		rec, err := rw.record()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Get returns one recipe.
func (s *PostgresStore) Get(ctx context.Context, userID, id string) (*Record, error) {
	var rw row
	query := `SELECT ` + columns + ` FROM recipes WHERE id = $1 AND user_id = $2`
	if err := s.db.GetContext(ctx, &rw, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return rw.record()
}

// AddRating appends a cooking-history entry. The recipe must belong to the
// rating's user.
func (s *PostgresStore) AddRating(ctx context.Context, rating *Rating) error {
	query := `
	INSERT INTO cooking_history (id, user_id, recipe_id, rating, notes, modifications, actual_cost, would_cook_again)
	SELECT $1::uuid, $2::uuid, r.id, $4::integer, $5::text, $6::text, $7::numeric, $8::boolean
	FROM recipes r WHERE r.id = $3::uuid AND r.user_id = $2::uuid
	RETURNING cooked_at`

	err := s.db.QueryRowContext(ctx, query,
		rating.ID, rating.UserID, rating.RecipeID, rating.Rating,
		rating.Notes, rating.Modifications, rating.ActualCost, rating.WouldCookAgain,
	).Scan(&rating.CookedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save rating: %w", err)
	}
	return nil
}

func (rw row) record() (*Record, error) {
	rec := &Record{
		ID:     rw.ID,
		UserID: rw.UserID,
		GeneratedRecipe: GeneratedRecipe{
			Title:        rw.Title,
			Description:  rw.Description.String,
			Difficulty:   int(rw.DifficultyLevel.Int64),
			CookingTime:  int(rw.CookingTime.Int64),
			Servings:     int(rw.Servings.Int64),
			TotalCost:    rw.TotalCost.Float64,
			SaleSavings:  rw.SaleSavings.Float64,
			Instructions: nonNil(rw.Instructions),
			Tips:         nonNil(rw.Tips),
			Categories:   nonNil(rw.Categories),
			Tags:         nonNil(rw.Tags),
		},
		AIGenerated:      rw.AIGenerated,
		GenerationPrompt: rw.GenerationPrompt.String,
		CreatedAt:        rw.CreatedAt,
	}

	if err := json.Unmarshal(rw.Ingredients, &rec.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	if len(rw.NutritionalInfo) > 0 {
		if err := json.Unmarshal(rw.NutritionalInfo, &rec.NutritionalInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nutritional info: %w", err)
		}
	}
	return rec, nil
}

func nonNil(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}
