// Command batch-results polls unfinished batch jobs and applies the
// results of every ended, unprocessed one. Intended to be invoked by an
// external cron job after batch-submit.
//
// Flags:
//
//	--job  process a single job by ID instead of all awaiting ones
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearthkeep/chronicle/internal/adapter/postgres"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/batchjob"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/chapter"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/event"
	refrepo "github.com/hearthkeep/chronicle/internal/adapter/postgres/reference"
	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/app"
	"github.com/hearthkeep/chronicle/internal/attribution"
	"github.com/hearthkeep/chronicle/internal/config"
	"github.com/hearthkeep/chronicle/internal/domain"
	"github.com/hearthkeep/chronicle/internal/reference"
	"github.com/hearthkeep/chronicle/internal/service/bulk"
)

func main() {
	jobFlag := flag.Int64("job", 0, "process a single job by ID")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)
	logger.Info("starting", slog.String("version", app.BuildVersion()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	svc := newBulkService(logger, pool, cfg)

	var stats domain.AttributionStats
	if *jobFlag != 0 {
		if _, err := svc.Poll(ctx, *jobFlag); err != nil {
			logger.Error("poll failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		stats, err = svc.ProcessResults(ctx, *jobFlag)
	} else {
		if _, err := svc.PollUnfinished(ctx); err != nil {
			logger.Error("poll failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		stats, err = svc.ProcessAwaiting(ctx)
	}
	if err != nil {
		logger.Error("result processing failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("results processed",
		slog.Int("processed", stats.Processed),
		slog.Int("auto_accepted", stats.AutoAccepted),
		slog.Int("needs_review", stats.NeedsReview),
		slog.Int("errored", stats.Errored),
	)
}

func newBulkService(logger *slog.Logger, pool *pgxpool.Pool, cfg *config.Config) *bulk.Service {
	validator := reference.NewValidator(logger, refrepo.New(pool))
	prompts := ai.NewPromptBuilder(validator, cfg.Pipeline)
	engine := attribution.NewEngine(logger, validator, cfg.Pipeline.AutoAcceptThreshold)
	api := ai.NewBatchClient(logger, cfg.Classifier, cfg.Batch.MaxRequests)
	txm := postgres.NewTxManager(pool)

	return bulk.NewService(logger, chapter.New(pool), event.New(pool), batchjob.New(pool),
		api, prompts, engine, validator, txm,
		cfg.Batch.PollInterval, cfg.Batch.PollTimeout)
}
