// Package flyer turns a photographed supermarket flyer into persisted,
// structured sale data.
package flyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"smartrecipe/internal/llm"
	"smartrecipe/internal/platform/objectstore"
	"smartrecipe/internal/prompt"
	"smartrecipe/internal/sale"
)

// DefaultPeriodDays is the length of the sale window assumed when the model
// returns no usable dates.
const DefaultPeriodDays = 7

// State is a step of the processing pipeline.
type State string

const (
	StateReceived     State = "received"
	StatePreprocessed State = "preprocessed"
	StateUploaded     State = "uploaded"
	StateStructuring  State = "structuring"
	StateStructured   State = "structured"
	StateFailed       State = "failed"
)

// Preprocessor prepares raw image bytes for the vision model.
type Preprocessor interface {
	Preprocess(ctx context.Context, data []byte) ([]byte, error)
}

// ObjectStore persists uploaded images.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	CreateBucket(ctx context.Context) error
}

// Store persists sale records.
type Store interface {
	Create(ctx context.Context, r *sale.Record) error
}

// Deps are the collaborators of a Processor.
type Deps struct {
	LLM          llm.Client
	Provider     string
	Store        Store
	Objects      ObjectStore
	Preprocessor Preprocessor
	Clock        func() time.Time
	Logger       zerolog.Logger
	Retry        llm.RetryPolicy
}

// Processor runs the flyer pipeline. It holds no per-request state and is
// safe for concurrent use.
type Processor struct {
	llm          llm.Client
	method       string
	store        Store
	objects      ObjectStore
	preprocessor Preprocessor
	clock        func() time.Time
	logger       zerolog.Logger
	retry        llm.RetryPolicy
	tracer       trace.Tracer
}

// NewProcessor creates a Processor. Provider defaults to "gemini" and Clock to time.Now.
func NewProcessor(d Deps) *Processor {
	provider := d.Provider
	if provider == "" {
		provider = "gemini"
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Processor{
		llm:          d.LLM,
		method:       provider + "_vision_direct",
		store:        d.Store,
		objects:      d.Objects,
		preprocessor: d.Preprocessor,
		clock:        clock,
		logger:       d.Logger.With().Str("component", "flyer").Logger(),
		retry:        d.Retry,
		tracer:       otel.Tracer("smartrecipe/flyer"),
	}
}

// Result is what Process reports back to the caller.
type Result struct {
	SaleID           string              `json:"sale_id"`
	StoreName        string              `json:"store_name"`
	ItemsCount       int                 `json:"items_count"`
	StructuredData   *sale.StructureData `json:"structured_data"`
	ProcessingMethod string              `json:"processing_method"`
	ImagePath        string              `json:"-"`
	PeriodRepaired   bool                `json:"-"`
}

// Process preprocesses, uploads, structures and persists one flyer image for
// userID. Nothing is persisted when any step fails.
func (p *Processor) Process(ctx context.Context, userID string, image []byte) (*Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "flyer.Process", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	logger := p.logger.With().Str("user_id", userID).Logger()
	logger.Info().Str("state", string(StateReceived)).Int("bytes", len(image)).Msg("flyer state")

	res, stage, err := p.process(ctx, userID, image, logger)
	if err != nil {
		flyerFailures.WithLabelValues(stage).Inc()
		processingDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		logger.Error().Err(err).Str("state", string(StateFailed)).Str("stage", stage).Msg("flyer state")
		return nil, err
	}

	flyersProcessed.WithLabelValues(p.method).Inc()
	processingDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("sale.id", res.SaleID),
		attribute.Int("sale.items", res.ItemsCount),
		attribute.Bool("sale.period_repaired", res.PeriodRepaired),
	)
	logger.Info().
		Str("state", string(StateStructured)).
		Str("sale_id", res.SaleID).
		Int("items", res.ItemsCount).
		Dur("elapsed", time.Since(start)).
		Msg("flyer state")
	return res, nil
}

func (p *Processor) process(ctx context.Context, userID string, image []byte, logger zerolog.Logger) (*Result, string, error) {
	optimized, err := p.preprocess(ctx, image)
	if err != nil {
		return nil, "preprocess", err
	}
	logger.Debug().Str("state", string(StatePreprocessed)).Int("bytes", len(optimized)).Msg("flyer state")

	now := p.clock()
	key := fmt.Sprintf("%s/%d.jpg", userID, now.UnixMilli())
	path, err := p.upload(ctx, key, optimized, "image/jpeg", logger)
	if err != nil {
		return nil, "upload", err
	}
	logger.Debug().Str("state", string(StateUploaded)).Str("path", path).Msg("flyer state")

	logger.Debug().Str("state", string(StateStructuring)).Msg("flyer state")
	data, repaired, err := p.structure(ctx, prompt.StructureFromImage(llm.Image{MIMEType: "image/jpeg", Data: optimized}, now), logger)
	if err != nil {
		return nil, "structure", err
	}

	record, err := p.record(userID, path, data)
	if err != nil {
		return nil, "persist", err
	}
	if err := p.persist(ctx, record); err != nil {
		return nil, "persist", err
	}

	return &Result{
		SaleID:           record.ID,
		StoreName:        data.StoreName,
		ItemsCount:       len(data.Items),
		StructuredData:   data,
		ProcessingMethod: p.method,
		ImagePath:        path,
		PeriodRepaired:   repaired,
	}, "", nil
}

// Upload stores the raw image and records it with status "uploaded" for
// later processing.
func (p *Processor) Upload(ctx context.Context, userID string, image []byte, contentType string) (*sale.Record, error) {
	ctx, span := p.tracer.Start(ctx, "flyer.Upload", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	logger := p.logger.With().Str("user_id", userID).Logger()
	if len(image) == 0 {
		return nil, &ImageProcessingError{Err: errors.New("empty image")}
	}

	key := fmt.Sprintf("%s/%d.%s", userID, p.clock().UnixMilli(), extension(contentType))
	path, err := p.upload(ctx, key, image, contentType, logger)
	if err != nil {
		span.RecordError(err)
		flyerFailures.WithLabelValues("upload").Inc()
		return nil, err
	}

	record := &sale.Record{
		ID:               uuid.New().String(),
		UserID:           userID,
		ImageURL:         path,
		ProcessingStatus: sale.StatusUploaded,
	}
	if err := p.persist(ctx, record); err != nil {
		span.RecordError(err)
		flyerFailures.WithLabelValues("persist").Inc()
		return nil, err
	}
	logger.Info().Str("sale_id", record.ID).Str("path", path).Msg("flyer uploaded")
	return record, nil
}

func extension(contentType string) string {
	img := llm.Image{MIMEType: contentType}
	if f := img.Format(); f != "jpeg" {
		return f
	}
	return "jpg"
}

// StructureImage preprocesses and structures an image without uploading or
// persisting anything. The bool reports whether the sale period was repaired.
func (p *Processor) StructureImage(ctx context.Context, image []byte) (*sale.StructureData, bool, error) {
	optimized, err := p.preprocess(ctx, image)
	if err != nil {
		return nil, false, err
	}
	req := prompt.StructureFromImage(llm.Image{MIMEType: "image/jpeg", Data: optimized}, p.clock())
	return p.structure(ctx, req, p.logger)
}

// StructureText structures OCR text without persisting anything.
func (p *Processor) StructureText(ctx context.Context, text string) (*sale.StructureData, bool, error) {
	return p.structure(ctx, prompt.StructureFromText(text, p.clock()), p.logger)
}

func (p *Processor) preprocess(ctx context.Context, image []byte) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "flyer.preprocess")
	defer span.End()

	out, err := p.preprocessor.Preprocess(ctx, image)
	if err != nil {
		span.RecordError(err)
		return nil, &ImageProcessingError{Err: err}
	}
	return out, nil
}

// upload puts the object, creating the bucket and retrying exactly once if
// the bucket does not exist.
func (p *Processor) upload(ctx context.Context, key string, data []byte, contentType string, logger zerolog.Logger) (string, error) {
	ctx, span := p.tracer.Start(ctx, "flyer.upload", trace.WithAttributes(attribute.String("object.key", key)))
	defer span.End()

	path, err := p.objects.Put(ctx, key, data, contentType)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, objectstore.ErrBucketNotFound) {
		span.RecordError(err)
		return "", &UploadError{Key: key, Err: err}
	}

	logger.Warn().Str("key", key).Msg("bucket not found, creating it")
	bucketCreations.Inc()
	if err := p.objects.CreateBucket(ctx); err != nil {
		span.RecordError(err)
		return "", &UploadError{Key: key, Err: fmt.Errorf("failed to create bucket: %w", err)}
	}

	path, err = p.objects.Put(ctx, key, data, contentType)
	if err != nil {
		span.RecordError(err)
		return "", &UploadError{Key: key, Err: err}
	}
	return path, nil
}

// structure calls the model, extracts the JSON object and normalizes it,
// repairing the sale period when needed.
func (p *Processor) structure(ctx context.Context, req llm.Request, logger zerolog.Logger) (*sale.StructureData, bool, error) {
	ctx, span := p.tracer.Start(ctx, "flyer.structure", trace.WithAttributes(attribute.Bool("llm.image", req.Image != nil)))
	defer span.End()

	text, err := p.retry.Generate(ctx, p.llm, req, logger)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to structure flyer: %w", err)
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to structure flyer: %w", err)
	}

	ext, err := sale.Decode(raw)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to structure flyer: %w", err)
	}

	data, repaired, err := p.repairDates(ext, logger)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to normalize sale data: %w", err)
	}
	span.SetAttributes(attribute.String("sale.shape", ext.Shape.String()), attribute.Int("sale.items", len(data.Items)))
	return data, repaired, nil
}

// repairDates normalizes ext. When the sale period is a template, unparsable
// or incomplete, both ends are replaced by today and today+7 days and the
// extraction is normalized again.
func (p *Processor) repairDates(ext *sale.Extraction, logger zerolog.Logger) (*sale.StructureData, bool, error) {
	data, err := sale.Normalize(ext)
	var dateErr *sale.InvalidDateError
	switch {
	case errors.As(err, &dateErr):
	case err != nil:
		return nil, false, err
	case data.SalePeriod.Start != "" && data.SalePeriod.End != "":
		return data, false, nil
	}

	original := ext.SalePeriod
	ext.SalePeriod = defaultPeriod(p.clock())
	dateRepairs.Inc()
	logger.Warn().
		Str("start", original.Start).
		Str("end", original.End).
		Str("repaired_start", ext.SalePeriod.Start).
		Str("repaired_end", ext.SalePeriod.End).
		Msg("sale period invalid, using default window")

	data, err = sale.Normalize(ext)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func defaultPeriod(now time.Time) sale.Period {
	return sale.Period{
		Start: now.Format("2006-01-02"),
		End:   now.AddDate(0, 0, DefaultPeriodDays).Format("2006-01-02"),
	}
}

func (p *Processor) record(userID, path string, data *sale.StructureData) (*sale.Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal structured data: %w", err)
	}

	start, err := sale.ParseDate(data.SalePeriod.Start)
	if err != nil {
		return nil, err
	}
	end, err := sale.ParseDate(data.SalePeriod.End)
	if err != nil {
		return nil, err
	}

	method := p.method
	r := &sale.Record{
		ID:               uuid.New().String(),
		UserID:           userID,
		ImageURL:         path,
		StructuredData:   payload,
		ProcessingStatus: sale.StatusStructured,
		ProcessingMethod: &method,
		SalePeriodStart:  &start,
		SalePeriodEnd:    &end,
		ItemsCount:       len(data.Items),
	}
	if data.StoreName != "" {
		name := data.StoreName
		r.StoreName = &name
	}
	return r, nil
}

func (p *Processor) persist(ctx context.Context, r *sale.Record) error {
	ctx, span := p.tracer.Start(ctx, "flyer.persist")
	defer span.End()

	if err := p.store.Create(ctx, r); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to persist sale record: %w", err)
	}
	return nil
}
