// Command attribute runs synchronous attribution over events that need
// it, one classification request per event batch.
//
// Flags:
//
//	--chapter  attribute a single chapter by ID
//	--from     first chapter order index (default 1; ignored with --chapter)
//	--to       last chapter order index (0 = no upper bound)
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

	"github.com/hearthkeep/chronicle/internal/adapter/postgres"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/airequest"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/chapter"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/event"
	refrepo "github.com/hearthkeep/chronicle/internal/adapter/postgres/reference"
	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/app"
	"github.com/hearthkeep/chronicle/internal/attribution"
	"github.com/hearthkeep/chronicle/internal/config"
	"github.com/hearthkeep/chronicle/internal/domain"
	"github.com/hearthkeep/chronicle/internal/reference"
	"github.com/hearthkeep/chronicle/internal/service/attribute"
)

func main() {
	chapterFlag := flag.Int64("chapter", 0, "attribute a single chapter by ID")
	fromFlag := flag.Int("from", 1, "first chapter order index")
	toFlag := flag.Int("to", 0, "last chapter order index (0 = no upper bound)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)
	logger.Info("starting", slog.String("version", app.BuildVersion()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	validator := reference.NewValidator(logger, refrepo.New(pool))
	client := ai.NewClient(logger, cfg.Classifier)
	prompts := ai.NewPromptBuilder(validator, cfg.Pipeline)
	engine := attribution.NewEngine(logger, validator, cfg.Pipeline.AutoAcceptThreshold)

	svc := attribute.NewService(logger, chapter.New(pool), event.New(pool),
		client, prompts, engine, validator, airequest.New(pool), cfg.Pipeline.EventBatchSize)

	var stats domain.AttributionStats
	if *chapterFlag != 0 {
		stats, err = svc.AttributeChapter(ctx, *chapterFlag)
	} else {
		stats, err = svc.AttributeRange(ctx, *fromFlag, *toFlag)
	}
	if err != nil {
		logger.Error("attribution failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("attribution completed",
		slog.Int("processed", stats.Processed),
		slog.Int("auto_accepted", stats.AutoAccepted),
		slog.Int("needs_review", stats.NeedsReview),
		slog.Int("errored", stats.Errored),
	)
}
