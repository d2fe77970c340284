package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"smartrecipe/internal/api"
	"smartrecipe/internal/auth"
	"smartrecipe/internal/chef"
	"smartrecipe/internal/config"
	"smartrecipe/internal/flyer"
	"smartrecipe/internal/inventory"
	"smartrecipe/internal/llm"
	"smartrecipe/internal/platform/gemini"
	"smartrecipe/internal/platform/imaging"
	"smartrecipe/internal/platform/localllm"
	"smartrecipe/internal/platform/objectstore"
	"smartrecipe/internal/platform/postgres"
	"smartrecipe/internal/platform/telemetry"
	"smartrecipe/internal/recipe"
	"smartrecipe/internal/sale"
)

// schemas in dependency order.
var schemas = []string{auth.Schema, inventory.Schema, sale.Schema, recipe.Schema}

func serveCmd() *cobra.Command {
	var port int
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the database schema on startup")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("provider", cfg.LLM.Provider).Msg("Starting smartrecipe")

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("Database connected")

	if migrate {
		if err := postgres.Migrate(ctx, db, schemas...); err != nil {
			return err
		}
	}

	objects, err := objectstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	client, closeClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	handler, err := buildHandler(cfg, db, objects, client)
	if err != nil {
		return err
	}

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handler, cfg.CORS.AllowedOrigins, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

type llmClient interface {
	llm.Client
	Provider() string
}

// newLLMClient builds the configured provider. The returned func releases it.
func newLLMClient(ctx context.Context, cfg *config.Config) (llmClient, func(), error) {
	switch cfg.LLM.Provider {
	case config.ProviderLocal:
		return localllm.NewClient(cfg.LLM.Local, log), func() {}, nil
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model, log)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating gemini client: %w", err)
		}
		return client, func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close gemini client")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func newPreprocessor(cfg config.ImagingConfig) *imaging.Preprocessor {
	p := imaging.NewPreprocessor()
	if cfg.MaxWidth > 0 {
		p.MaxWidth = cfg.MaxWidth
	}
	if cfg.MaxHeight > 0 {
		p.MaxHeight = cfg.MaxHeight
	}
	if cfg.Quality > 0 {
		p.Quality = cfg.Quality
	}
	p.Sharpen = cfg.Sharpen
	return p
}

func buildHandler(cfg *config.Config, db *sqlx.DB, objects flyer.ObjectStore, client llmClient) (*api.Handler, error) {
	saleStore := sale.NewPostgresStore(db)
	recipeStore := recipe.NewPostgresStore(db)
	inventoryStore := inventory.NewPostgresStore(db)

	authService, err := auth.NewService(auth.NewPostgresRepository(db), cfg.Auth, log)
	if err != nil {
		return nil, fmt.Errorf("error creating auth service: %w", err)
	}

	processor := flyer.NewProcessor(flyer.Deps{
		LLM:          client,
		Provider:     client.Provider(),
		Store:        saleStore,
		Objects:      objects,
		Preprocessor: newPreprocessor(cfg.Imaging),
		Logger:       log,
		Retry:        cfg.LLM.Retry,
	})
	generator := chef.NewGenerator(client, inventoryStore, saleStore, recipeStore, cfg.LLM.Retry, log)

	return api.NewHandler(api.Options{
		Sales:          processor,
		SaleStore:      saleStore,
		Recipes:        generator,
		RecipeStore:    recipeStore,
		Inventory:      inventoryStore,
		Auth:           authService,
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}), nil
}
