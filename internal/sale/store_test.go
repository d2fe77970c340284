package sale

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartrecipe/internal/auth"
	"smartrecipe/internal/platform/postgres/postgrestest"
)

func createUser(t *testing.T, db *sqlx.DB) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`, id, id+"@example.com")
	require.NoError(t, err)
	return id
}

func structuredRecord(t *testing.T, userID, end string, names ...string) *Record {
	t.Helper()
	data := StructureData{StoreName: "Fresh Mart", SalePeriod: Period{Start: "2025-03-01", End: end}}
	for _, n := range names {
		data.Items = append(data.Items, Item{Name: n})
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	endDate, err := time.Parse("2006-01-02", end)
	require.NoError(t, err)
	store := "Fresh Mart"
	return &Record{
		ID:               uuid.NewString(),
		UserID:           userID,
		ImageURL:         userID + "/1.jpg",
		StructuredData:   raw,
		ProcessingStatus: StatusStructured,
		StoreName:        &store,
		SalePeriodEnd:    &endDate,
		ItemsCount:       len(names),
	}
}

func TestPostgresStore(t *testing.T) {
	db := postgrestest.New(t, auth.Schema, Schema)
	store := NewPostgresStore(db)
	ctx := context.Background()

	owner := createUser(t, db)
	other := createUser(t, db)

	uploaded := &Record{ID: uuid.NewString(), UserID: owner, ImageURL: owner + "/0.jpg", ProcessingStatus: StatusUploaded}
	require.NoError(t, store.Create(ctx, uploaded))
	assert.Equal(t, "null", string(uploaded.StructuredData))

	current := structuredRecord(t, owner, "2025-03-20", "Salmon", "Tofu")
	require.NoError(t, store.Create(ctx, current))
	expired := structuredRecord(t, owner, "2025-03-05", "Old bread")
	require.NoError(t, store.Create(ctx, expired))
	foreign := structuredRecord(t, other, "2025-03-20", "Not yours")
	require.NoError(t, store.Create(ctx, foreign))

	t.Run("list", func(t *testing.T) {
		records, err := store.List(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("status", func(t *testing.T) {
		st, err := store.GetStatus(ctx, owner, current.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusStructured, st.ProcessingStatus)
		assert.Equal(t, 2, st.ItemsCount)

		_, err = store.GetStatus(ctx, owner, foreign.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("active items", func(t *testing.T) {
		today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		items, err := store.ActiveItems(ctx, owner, today, 20)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "Salmon", items[0].Name)

		items, err = store.ActiveItems(ctx, owner, today, 1)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("delete", func(t *testing.T) {
		assert.ErrorIs(t, store.Delete(ctx, other, current.ID), ErrNotFound)
		require.NoError(t, store.Delete(ctx, owner, current.ID))
		_, err := store.Get(ctx, owner, current.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
