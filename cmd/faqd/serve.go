package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"faqd/internal/api"
	"faqd/internal/config"
	"faqd/internal/embedding"
	"faqd/internal/pipeline"
	"faqd/internal/store"
	"faqd/internal/synth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FAQ query server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectors, _, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := vectors.Close(); err != nil {
			slog.Warn("closing vector store", "error", err)
		}
	}()

	if err := vectors.EnsureSchema(ctx); err != nil {
		return err
	}

	synthesizer, err := synth.NewLLM(synth.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.ChatModel,
		Timeout: cfg.OpenAI.ChatTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating synthesizer: %w", err)
	}

	orchestrator := pipeline.New(vectors, synthesizer, cfg.Retrieval.TopK)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(orchestrator),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("faqd listening", "addr", addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildStore opens the configured backend and wraps it with the embedding
// client. The client is returned as well for callers that embed outside the
// store (the ingest pipeline).
func buildStore(ctx context.Context, cfg config.Config) (*store.Store, *embedding.Client, error) {
	embedder, err := embedding.NewClient(embedding.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.EmbeddingModel,
		Dimensions: cfg.Vectors.Dimensions,
		Timeout:    cfg.OpenAI.EmbedTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding client: %w", err)
	}

	var backend store.Backend
	switch cfg.Database.Driver {
	case "postgres":
		backend, err = store.OpenPostgres(ctx, store.PostgresConfig{
			URL:        cfg.Database.URL,
			Table:      cfg.Vectors.Table,
			Dimensions: cfg.Vectors.Dimensions,
			IndexLists: cfg.Vectors.IndexLists,
		})
	default:
		backend, err = store.OpenSQLite(cfg.Database.DataDir)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s backend: %w", cfg.Database.Driver, err)
	}

	return store.New(backend, embedder, cfg.Vectors.Dimensions), embedder, nil
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
