// Package inventory stores the ingredients a user has at home.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when an inventory item does not exist for the user.
var ErrNotFound = errors.New("inventory item not found")

// DefaultUnit is used when an item is created without a unit.
const DefaultUnit = "pieces"

// Schema creates the inventory table.
const Schema = `
CREATE TABLE IF NOT EXISTS inventory (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	ingredient_name TEXT NOT NULL,
	quantity NUMERIC(10,2) NOT NULL,
	unit TEXT NOT NULL DEFAULT 'pieces',
	expiry_date DATE,
	purchase_date DATE,
	category TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS inventory_user_expiry_idx ON inventory (user_id, expiry_date);
`

// Item is one ingredient in a user's fridge or pantry.
type Item struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	IngredientName string     `db:"ingredient_name" json:"ingredient_name"`
	Quantity       float64    `db:"quantity" json:"quantity"`
	Unit           string     `db:"unit" json:"unit"`
	ExpiryDate     *time.Time `db:"expiry_date" json:"expiry_date"`
	PurchaseDate   *time.Time `db:"purchase_date" json:"purchase_date"`
	Category       *string    `db:"category" json:"category"`
	Notes          *string    `db:"notes" json:"notes"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Update is a partial modification; nil fields are left unchanged.
type Update struct {
	IngredientName *string    `json:"ingredient_name"`
	Quantity       *float64   `json:"quantity"`
	Unit           *string    `json:"unit"`
	ExpiryDate     *time.Time `json:"expiry_date"`
	PurchaseDate   *time.Time `json:"purchase_date"`
	Category       *string    `json:"category"`
	Notes          *string    `json:"notes"`
}

// Store defines the persistence operations for inventory items.
type Store interface {
	List(ctx context.Context, userID string) ([]Item, error)
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, userID, id string, u Update) (*Item, error)
	Delete(ctx context.Context, userID, id string) error
	Expiring(ctx context.Context, userID string, until time.Time) ([]Item, error)
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

const columns = `id, user_id, ingredient_name, quantity, unit, expiry_date, purchase_date,
	category, notes, created_at, updated_at`

// List returns the user's items ordered by expiry date, undated items last.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]Item, error) {
	items := []Item{}
	query := `SELECT ` + columns + ` FROM inventory WHERE user_id = $1 ORDER BY expiry_date ASC NULLS LAST, created_at DESC`
	if err := s.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	return items, nil
}

// Create inserts item. ID must be set; an empty unit becomes DefaultUnit.
func (s *PostgresStore) Create(ctx context.Context, item *Item) error {
	if strings.TrimSpace(item.Unit) == "" {
		item.Unit = DefaultUnit
	}

	query := `
	INSERT INTO inventory (id, user_id, ingredient_name, quantity, unit, expiry_date, purchase_date, category, notes)
	VALUES (:id, :user_id, :ingredient_name, :quantity, :unit, :expiry_date, :purchase_date, :category, :notes)
	RETURNING created_at, updated_at`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare inventory insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, item).Scan(&item.CreatedAt, &item.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create inventory item: %w", err)
	}
	return nil
}

// Update applies u to one item and returns the result.
func (s *PostgresStore) Update(ctx context.Context, userID, id string, u Update) (*Item, error) {
	query := `
	UPDATE inventory SET
		ingredient_name = COALESCE($3, ingredient_name),
		quantity = COALESCE($4, quantity),
		unit = COALESCE($5, unit),
		expiry_date = COALESCE($6, expiry_date),
		purchase_date = COALESCE($7, purchase_date),
		category = COALESCE($8, category),
		notes = COALESCE($9, notes),
		updated_at = NOW()
	WHERE id = $1 AND user_id = $2
	RETURNING ` + columns

	var item Item
	err := s.db.GetContext(ctx, &item, query, id, userID,
		u.IngredientName, u.Quantity, u.Unit, u.ExpiryDate, u.PurchaseDate, u.Category, u.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update inventory item: %w", err)
	}
	return &item, nil
}

// Delete removes one item.
func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete inventory item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete inventory item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Expiring returns items whose expiry date is on or before until.
func (s *PostgresStore) Expiring(ctx context.Context, userID string, until time.Time) ([]Item, error) {
	items := []Item{}
	query := `SELECT ` + columns + ` FROM inventory
	WHERE user_id = $1 AND expiry_date IS NOT NULL AND expiry_date <= $2
	ORDER BY expiry_date ASC`
	if err := s.db.SelectContext(ctx, &items, query, userID, until.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("failed to list expiring inventory: %w", err)
	}
	return items, nil
}
