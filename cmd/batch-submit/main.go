// Command batch-submit collects events needing attribution and submits
// them as one Message Batches job, one request per chapter. With --wait
// it then polls until the job ends.
//
// Flags:
//
//	--from  first chapter order index (default 1)
//	--to    last chapter order index (0 = no upper bound)
//	--wait  poll until the job ends before exiting
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"errors"
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
	"github.com/hearthkeep/chronicle/internal/reference"
	"github.com/hearthkeep/chronicle/internal/service/bulk"
)

func main() {
	fromFlag := flag.Int("from", 1, "first chapter order index")
	toFlag := flag.Int("to", 0, "last chapter order index (0 = no upper bound)")
	waitFlag := flag.Bool("wait", false, "poll until the job ends before exiting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)
	logger.Info("starting", slog.String("version", app.BuildVersion()))

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Hour)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	svc := newBulkService(logger, pool, cfg)

	job, err := svc.Submit(ctx, *fromFlag, *toFlag)
	if err != nil {
		logger.Error("batch submission failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("batch submitted",
		slog.Int64("job_id", job.ID),
		slog.String("batch_id", job.BatchID),
		slog.Int("requests", job.TotalRequests),
	)

	if !*waitFlag {
		return
	}

	job, err = svc.Wait(ctx, job.ID)
	if err != nil {
		if errors.Is(err, bulk.ErrWaitTimeout) {
			logger.Warn("wait timed out; job left for a later poll",
				slog.Int64("job_id", job.ID),
				slog.String("status", string(job.Status)),
			)
			os.Exit(1)
		}
		logger.Error("wait failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("batch ended",
		slog.Int64("job_id", job.ID),
		slog.Int("succeeded", job.Counts.Succeeded),
		slog.Int("errored", job.Counts.Errored),
		slog.Int("canceled", job.Counts.Canceled),
		slog.Int("expired", job.Counts.Expired),
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
