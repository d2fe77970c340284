package sale

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a sale record does not exist for the user.
var ErrNotFound = errors.New("sale record not found")

// ProcessingStatus tracks a flyer through the pipeline.
type ProcessingStatus string

// Processing statuses stored in sales_info.processing_status.
const (
	StatusUploaded      ProcessingStatus = "uploaded"
	StatusOCRProcessing ProcessingStatus = "ocr_processing"
	StatusAIProcessing  ProcessingStatus = "ai_processing"
	StatusStructured    ProcessingStatus = "structured"
	StatusError         ProcessingStatus = "error"
)

// Schema creates the sales_info table.
const Schema = `
CREATE TABLE IF NOT EXISTS sales_info (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	image_url TEXT NOT NULL,
	ocr_text TEXT,
	structured_data JSONB,
	processing_status TEXT NOT NULL DEFAULT 'uploaded'
		CHECK (processing_status IN ('uploaded', 'ocr_processing', 'ai_processing', 'structured', 'error')),
	processing_method TEXT,
	store_name TEXT,
	sale_period_start DATE,
	sale_period_end DATE,
	items_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS sales_info_user_created_idx ON sales_info (user_id, created_at DESC);
`

// Record is one persisted flyer submission.
type Record struct {
	ID               string           `db:"id" json:"id"`
	UserID           string           `db:"user_id" json:"user_id"`
	ImageURL         string           `db:"image_url" json:"image_url"`
	OCRText          *string          `db:"ocr_text" json:"ocr_text"`
	StructuredData   json.RawMessage  `db:"structured_data" json:"structured_data"`
	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	ProcessingMethod *string          `db:"processing_method" json:"processing_method"`
	StoreName        *string          `db:"store_name" json:"store_name"`
	SalePeriodStart  *time.Time       `db:"sale_period_start" json:"sale_period_start"`
	SalePeriodEnd    *time.Time       `db:"sale_period_end" json:"sale_period_end"`
	ItemsCount       int              `db:"items_count" json:"items_count"`
	ErrorMessage     *string          `db:"error_message" json:"error_message"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Status is the lightweight projection returned by the status endpoint.
type Status struct {
	ID               string           `db:"id" json:"id"`
	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	ProcessingMethod *string          `db:"processing_method" json:"processing_method"`
	StoreName        *string          `db:"store_name" json:"store_name"`
	ItemsCount       int              `db:"items_count" json:"items_count"`
	ErrorMessage     *string          `db:"error_message" json:"error_message"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Store defines the persistence operations for sale records. Every method is
// scoped to a single user.
type Store interface {
	Create(ctx context.Context, r *Record) error
	List(ctx context.Context, userID string) ([]Record, error)
	Get(ctx context.Context, userID, id string) (*Record, error)
	GetStatus(ctx context.Context, userID, id string) (*Status, error)
	Delete(ctx context.Context, userID, id string) error
	ActiveItems(ctx context.Context, userID string, today time.Time, limit int) ([]Item, error)
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

const recordColumns = `id, user_id, image_url, ocr_text, structured_data, processing_status,
	processing_method, store_name, sale_period_start, sale_period_end, items_count,
	error_message, created_at, updated_at`

// Create inserts r. ID must be set by the caller; timestamps are filled in.
func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	query := `
	INSERT INTO sales_info (id, user_id, image_url, ocr_text, structured_data, processing_status,
		processing_method, store_name, sale_period_start, sale_period_end, items_count, error_message)
	VALUES (:id, :user_id, :image_url, :ocr_text, :structured_data, :processing_status,
		:processing_method, :store_name, :sale_period_start, :sale_period_end, :items_count, :error_message)
	RETURNING created_at, updated_at`

	if len(r.StructuredData) == 0 {
		r.StructuredData = json.RawMessage("null")
	}

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare sale insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, r).Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save sale record: %w", err)
	}
	return nil
}

// List returns the user's sale records, newest first.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]Record, error) {
	records := []Record{}
	query := `SELECT ` + recordColumns + ` FROM sales_info WHERE user_id = $1 ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list sale records: %w", err)
	}
	return records, nil
}

// Get returns one sale record.
func (s *PostgresStore) Get(ctx context.Context, userID, id string) (*Record, error) {
	var r Record
	query := `SELECT ` + recordColumns + ` FROM sales_info WHERE id = $1 AND user_id = $2`
	if err := s.db.GetContext(ctx, &r, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sale record: %w", err)
	}
	return &r, nil
}

// GetStatus returns the processing status of one sale record.
func (s *PostgresStore) GetStatus(ctx context.Context, userID, id string) (*Status, error) {
	var st Status
	query := `SELECT id, processing_status, processing_method, store_name, items_count, error_message, updated_at
	FROM sales_info WHERE id = $1 AND user_id = $2`
	if err := s.db.GetContext(ctx, &st, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sale status: %w", err)
	}
	return &st, nil
}

// Delete removes one sale record.
func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales_info WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete sale record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete sale record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveItems returns up to limit items from the user's structured sales
// whose period has not ended, newest flyer first.
func (s *PostgresStore) ActiveItems(ctx context.Context, userID string, today time.Time, limit int) ([]Item, error) {
	var payloads []json.RawMessage
	query := `
	SELECT structured_data FROM sales_info
	WHERE user_id = $1 AND processing_status = $2 AND sale_period_end >= $3 AND structured_data IS NOT NULL
	ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &payloads, query, userID, StatusStructured, today.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("failed to query active sales: %w", err)
	}

	items := []Item{}
	for _, raw := range payloads {
		var data StructureData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structured data: %w", err)
		}
		for _, it := range data.Items {
			if limit > 0 && len(items) >= limit {
				return items, nil
			}
			items = append(items, it)
		}
	}
	return items, nil
}
