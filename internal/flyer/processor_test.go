package flyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartrecipe/internal/llm"
	"smartrecipe/internal/platform/objectstore"
	"smartrecipe/internal/sale"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type fakePreprocessor struct {
	err   error
	calls int
}

func (f *fakePreprocessor) Preprocess(_ context.Context, data []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("jpeg:"), data...), nil
}

type fakeObjects struct {
	putErrs   []error
	createErr error
	puts      []string
	creates   int
}

func (f *fakeObjects) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.puts = append(f.puts, key)
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return key, nil
}

func (f *fakeObjects) CreateBucket(_ context.Context) error {
	f.creates++
	return f.createErr
}

type fakeStore struct {
	records []*sale.Record
	err     error
}

func (f *fakeStore) Create(_ context.Context, r *sale.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

type fakeLLM struct {
	response string
	err      error
	requests []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

type fixture struct {
	llm     *fakeLLM
	pre     *fakePreprocessor
	objects *fakeObjects
	store   *fakeStore
	proc    *Processor
}

func newFixture(response string) *fixture {
	f := &fixture{
		llm:     &fakeLLM{response: response},
		pre:     &fakePreprocessor{},
		objects: &fakeObjects{},
		store:   &fakeStore{},
	}
	f.proc = NewProcessor(Deps{
		LLM:          f.llm,
		Store:        f.store,
		Objects:      f.objects,
		Preprocessor: f.pre,
		Clock:        func() time.Time { return fixedNow },
		Logger:       zerolog.Nop(),
	})
	return f
}

const groupedResponse = "```json\n" + `{
	"store_name": "Fresh Mart",
	"sale_period": {"start": "2025-03-08", "end": "2025-03-14"},
	"layout_analysis": "two columns",
	"groups": [
		{"group_name": "Produce", "group_price": 150, "items": [
			{"name": "Apple", "original_price": 200, "category": "fruit"},
			{"name": "Pear", "sale_price": 120, "original_price": 160, "category": "fruit"}
		]},
		{"group_name": "Dairy", "items": [
			{"name": "Milk", "original_price": 250, "category": "dairy"}
		]}
	]
}` + "\n```"

func TestProcess_GroupedFlyer(t *testing.T) {
	f := newFixture(groupedResponse)

	res, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "Fresh Mart", res.StoreName)
	assert.Equal(t, 3, res.ItemsCount)
	assert.Equal(t, "gemini_vision_direct", res.ProcessingMethod)
	assert.False(t, res.PeriodRepaired)

	apple := res.StructuredData.Items[0]
	require.NotNil(t, apple.SalePrice)
	assert.Equal(t, 150.0, *apple.SalePrice)
	assert.InDelta(t, 0.25, *apple.DiscountRate, 1e-9)
	assert.Nil(t, res.StructuredData.Items[2].SalePrice, "milk must not borrow another group's price")

	expectedKey := fmt.Sprintf("user-1/%d.jpg", fixedNow.UnixMilli())
	assert.Equal(t, []string{expectedKey}, f.objects.puts)
	assert.Equal(t, expectedKey, res.ImagePath)

	require.Len(t, f.llm.requests, 1)
	req := f.llm.requests[0]
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/jpeg", req.Image.MIMEType)
	assert.Equal(t, []byte("jpeg:raw"), req.Image.Data)

	require.Len(t, f.store.records, 1)
	rec := f.store.records[0]
	assert.Equal(t, res.SaleID, rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, sale.StatusStructured, rec.ProcessingStatus)
	assert.Equal(t, "gemini_vision_direct", *rec.ProcessingMethod)
	assert.Equal(t, "Fresh Mart", *rec.StoreName)
	assert.Equal(t, 3, rec.ItemsCount)
	assert.Nil(t, rec.OCRText)
	assert.Equal(t, "2025-03-08", rec.SalePeriodStart.Format("2006-01-02"))
	assert.Equal(t, "2025-03-14", rec.SalePeriodEnd.Format("2006-01-02"))

	var stored sale.StructureData
	require.NoError(t, json.Unmarshal(rec.StructuredData, &stored))
	assert.Len(t, stored.Items, 3)
	assert.Len(t, stored.Groups, 2)
}

func TestProcess_RepairsTemplateDates(t *testing.T) {
	f := newFixture(`{
		"store_name": "Fresh Mart",
		"sale_period": {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD"},
		"items": [{"name": "Egg", "sale_price": 198, "category": "dairy"}]
	}`)

	res, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))
	require.NoError(t, err)

	assert.True(t, res.PeriodRepaired)
	assert.Equal(t, sale.Period{Start: "2025-03-10", End: "2025-03-17"}, res.StructuredData.SalePeriod)

	require.Len(t, f.store.records, 1)
	rec := f.store.records[0]
	assert.Equal(t, "2025-03-10", rec.SalePeriodStart.Format("2006-01-02"))
	assert.Equal(t, "2025-03-17", rec.SalePeriodEnd.Format("2006-01-02"))
	assert.Contains(t, string(rec.StructuredData), `"start":"2025-03-10"`)
}

func TestProcess_RepairsMissingOrUnparsableDates(t *testing.T) {
	tests := []struct {
		name   string
		period string
	}{
		{"missing period", ``},
		{"missing end", `"sale_period": {"start": "2025-03-01"},`},
		{"not a date", `"sale_period": {"start": "this week", "end": "2025-03-20"},`},
		{"period as text", `"sale_period": "3/8-3/14",`},
		{"period as list", `"sale_period": ["2025-03-08", "2025-03-14"],`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(`{"store_name": "S", ` + tt.period + ` "items": []}`)

			res, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))
			require.NoError(t, err)
			assert.True(t, res.PeriodRepaired)
			assert.Equal(t, sale.Period{Start: "2025-03-10", End: "2025-03-17"}, res.StructuredData.SalePeriod)
			assert.Equal(t, 0, res.ItemsCount)
			assert.Len(t, f.store.records, 1)
		})
	}
}

func TestProcess_CreatesMissingBucketOnce(t *testing.T) {
	f := newFixture(groupedResponse)
	f.objects.putErrs = []error{fmt.Errorf("%w: sale-images", objectstore.ErrBucketNotFound)}

	_, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.objects.creates)
	assert.Len(t, f.objects.puts, 2)
	assert.Len(t, f.store.records, 1)
}

func TestProcess_UploadFailures(t *testing.T) {
	missing := fmt.Errorf("%w: sale-images", objectstore.ErrBucketNotFound)
	tests := []struct {
		name        string
		putErrs     []error
		createErr   error
		wantCreates int
	}{
		{"still missing after create", []error{missing, missing}, nil, 1},
		{"create fails", []error{missing}, errors.New("access denied"), 1},
		{"other put error", []error{errors.New("timeout")}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(groupedResponse)
			f.objects.putErrs = tt.putErrs
			f.objects.createErr = tt.createErr

			_, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))

			var uploadErr *UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, tt.wantCreates, f.objects.creates)
			assert.Empty(t, f.llm.requests)
			assert.Empty(t, f.store.records)
		})
	}
}

func TestProcess_ImageProcessingError(t *testing.T) {
	f := newFixture(groupedResponse)
	f.pre.err = errors.New("unknown format")

	_, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))

	var imgErr *ImageProcessingError
	require.ErrorAs(t, err, &imgErr)
	assert.Empty(t, f.objects.puts)
	assert.Empty(t, f.store.records)
}

func TestProcess_ModelFailures(t *testing.T) {
	t.Run("prose response", func(t *testing.T) {
		f := newFixture("Sorry, I cannot read this flyer.")

		_, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))

		var formatErr *llm.ResponseFormatError
		require.ErrorAs(t, err, &formatErr)
		assert.Equal(t, "Sorry, I cannot read this flyer.", formatErr.Raw)
		assert.Empty(t, f.store.records)
	})

	t.Run("client error", func(t *testing.T) {
		f := newFixture("")
		f.llm.err = errors.New("quota exceeded")

		_, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
		assert.Empty(t, f.store.records)
	})

	t.Run("store error", func(t *testing.T) {
		f := newFixture(groupedResponse)
		f.store.err = errors.New("connection refused")

		_, err := f.proc.Process(context.Background(), "user-1", []byte("raw"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist sale record")
	})
}

func TestProcess_ProviderTag(t *testing.T) {
	f := newFixture(groupedResponse)
	proc := NewProcessor(Deps{
		LLM:          f.llm,
		Provider:     "local",
		Store:        f.store,
		Objects:      f.objects,
		Preprocessor: f.pre,
		Clock:        func() time.Time { return fixedNow },
		Logger:       zerolog.Nop(),
	})

	res, err := proc.Process(context.Background(), "user-1", []byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "local_vision_direct", res.ProcessingMethod)
}

func TestUpload(t *testing.T) {
	f := newFixture("")

	rec, err := f.proc.Upload(context.Background(), "user-1", []byte("raw"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, sale.StatusUploaded, rec.ProcessingStatus)
	assert.Equal(t, fmt.Sprintf("user-1/%d.png", fixedNow.UnixMilli()), rec.ImageURL)
	assert.Zero(t, f.pre.calls)
	assert.Empty(t, f.llm.requests)
	require.Len(t, f.store.records, 1)

	_, err = f.proc.Upload(context.Background(), "user-1", nil, "image/png")
	var imgErr *ImageProcessingError
	assert.ErrorAs(t, err, &imgErr)
}

func TestUpload_KeyExtensionFollowsContentType(t *testing.T) {
	tests := []struct {
		contentType string
		ext         string
	}{
		{"image/png", "png"},
		{"image/webp", "webp"},
		{"image/jpeg", "jpg"},
		{"application/octet-stream", "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			f := newFixture("")

			_, err := f.proc.Upload(context.Background(), "user-1", []byte("raw"), tt.contentType)
			require.NoError(t, err)
			require.Len(t, f.objects.puts, 1)
			assert.Equal(t, fmt.Sprintf("user-1/%d.%s", fixedNow.UnixMilli(), tt.ext), f.objects.puts[0])
		})
	}
}

func TestStructureText(t *testing.T) {
	f := newFixture(`{"store_name": "S", "sale_period": {"start": "2025-03-01", "end": "2025-03-31"}, "items": [{"name": "Rice", "sale_price": "980"}]}`)

	data, repaired, err := f.proc.StructureText(context.Background(), "Rice 980 yen")
	require.NoError(t, err)
	assert.False(t, repaired)
	require.Len(t, data.Items, 1)
	assert.Equal(t, 980.0, *data.Items[0].SalePrice)

	require.Len(t, f.llm.requests, 1)
	assert.Nil(t, f.llm.requests[0].Image)
	assert.Contains(t, f.llm.requests[0].Prompt, "Rice 980 yen")
	assert.Empty(t, f.store.records)
	assert.Empty(t, f.objects.puts)
}

func TestStructureImage(t *testing.T) {
	f := newFixture(groupedResponse)

	data, _, err := f.proc.StructureImage(context.Background(), []byte("raw"))
	require.NoError(t, err)
	assert.Len(t, data.Items, 3)
	assert.Equal(t, 1, f.pre.calls)
	assert.Empty(t, f.store.records)
}
