package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinaxlabs/organizer/internal/batch"
	"github.com/pinaxlabs/organizer/internal/entity"
	"github.com/pinaxlabs/organizer/internal/llm"
	"github.com/pinaxlabs/organizer/internal/logger"
	"github.com/pinaxlabs/organizer/internal/organize"
	"github.com/pinaxlabs/organizer/internal/server"
	"github.com/pinaxlabs/organizer/internal/telemetry"
	"github.com/pinaxlabs/organizer/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP organization service",
	Long: `Starts the HTTP service: single-request organization on POST /organize,
batch processing on POST /process with progress on GET /status, and
callbacks to the orchestrator when batches finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg := GetConfig()
	setupLogging()
	logger.SetBasePath(cfg.Batch.DataDir)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(cfg.Telemetry.Enabled, cfg.Telemetry.APIKey, version)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		tel = &telemetry.NoopClient{}
	}
	defer tel.Close()

	store, err := batch.NewStore(cfg.Batch.DataDir)
	if err != nil {
		return fmt.Errorf("open batch store: %w", err)
	}
	defer store.Close()

	storeClient := entity.NewClient(cfg.EntityStore.BaseURL,
		time.Duration(cfg.EntityStore.TimeoutSeconds)*time.Second)
	fetcher := entity.NewFetcher(storeClient)
	publisher := entity.NewPublisher(storeClient)

	organizer := &trackedOrganizer{
		next: organize.NewService(llm.NewClient(cfg.LLM), cfg.LLM),
		tel:  tel,
	}

	callback := &trackedCallbackSender{
		next: batch.NewHTTPCallbackSender(cfg.Orchestrator.BaseURL,
			time.Duration(cfg.EntityStore.TimeoutSeconds)*time.Second),
		tel: tel,
	}

	manager := batch.NewManager(cfg.Batch, store, fetcher, organizer, publisher, callback)
	if err := manager.Resume(ctx); err != nil {
		slog.Warn("resume unfinished batches", "error", err)
	}

	srv := server.New(ctx, cfg.Server.Port, organizer, manager)

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	srv.Start(&wg, errChan)
	slog.Info("organizer listening", "port", cfg.Server.Port, "version", version)

	select {
	case err := <-errChan:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	wg.Wait()
	return nil
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// trackedOrganizer emits telemetry around each organization run. Only
// counters and timings are tracked, never file names or content.
type trackedOrganizer struct {
	next *organize.Service
	tel  telemetry.Client
}

func (t *trackedOrganizer) Organize(ctx context.Context, req *types.OrganizeRequest) (*types.OrganizePlan, error) {
	start := time.Now()
	plan, err := t.next.Organize(ctx, req)
	if err != nil {
		t.tel.Track(telemetry.EventOrganizeFailed, telemetry.Properties{
			"files":       len(req.Files),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	props := telemetry.Properties{
		"files":       len(req.Files),
		"groups":      len(plan.Groups),
		"ungrouped":   len(plan.Ungrouped),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if plan.Tokens != nil {
		props["prompt_tokens"] = plan.Tokens.PromptTokens
		props["completion_tokens"] = plan.Tokens.CompletionTokens
		props["cost_usd"] = plan.Cost
	}
	if plan.Truncation != nil {
		props["truncated"] = plan.Truncation.Applied
	}
	t.tel.Track(telemetry.EventOrganizeCompleted, props)
	return plan, nil
}

// trackedCallbackSender emits one batch_completed event per delivered
// callback.
type trackedCallbackSender struct {
	next batch.CallbackSender
	tel  telemetry.Client
}

func (t *trackedCallbackSender) Send(ctx context.Context, payload *types.CallbackPayload) error {
	if err := t.next.Send(ctx, payload); err != nil {
		return err
	}
	t.tel.Track(telemetry.EventBatchCompleted, telemetry.Properties{
		"status":    payload.Status,
		"items":     payload.Summary.Total,
		"succeeded": payload.Summary.Succeeded,
		"failed":    payload.Summary.Failed,
		"groups":    len(payload.NewPIs),
	})
	return nil
}
