package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"faqd/internal/config"
	"faqd/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a FAQ dataset into the vector store",
	Long: `Ingest a delimiter-separated FAQ dataset into the vector store.

The file must carry a header row with "question" and "answer" columns;
a "category" column is attached as metadata when present.

Example:
  faqd ingest --file ./data/faq_dataset.csv --separator ";"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		sep, _ := cmd.Flags().GetString("separator")

		separator, size := utf8.DecodeRuneInString(sep)
		if size == 0 || len(sep) != size {
			return fmt.Errorf("separator must be a single character, got %q", sep)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		vectors, embedder, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer vectors.Close()

		summary, err := ingest.New(vectors, embedder).Run(ctx, path, separator)
		if err != nil {
			term.errorf("ingest failed after %d rows: %v", summary.RowsRead, err)
			return err
		}

		if summary.RowsSkipped > 0 {
			term.warnf("%d rows skipped (embedding failures)", summary.RowsSkipped)
		}
		term.successf("Stored %d of %d rows (%d total in store)",
			summary.RowsStored, summary.RowsRead, summary.TotalStored)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "path to the delimiter-separated dataset (required)")
	ingestCmd.Flags().String("separator", ";", "field separator")
	ingestCmd.MarkFlagRequired("file")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show faqd service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			term.errorf("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}
		healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
		resp, err := client.Get(healthURL)
		if err != nil {
			term.statusf("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				term.statusf("Server", "running on port %d", cfg.Server.Port)
			} else {
				term.statusf("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		term.statusf("Driver", "%s", cfg.Database.Driver)
		term.statusf("Embedding model", "%s", cfg.OpenAI.EmbeddingModel)
		term.statusf("Chat model", "%s", cfg.OpenAI.ChatModel)
		term.statusf("Dimensions", "%d", cfg.Vectors.Dimensions)
		return nil
	},
}
