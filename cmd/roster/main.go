// Command roster extracts per-chapter character rosters via the
// classification service and stores them on the chapters. Chapters that
// already carry a roster stamp are skipped in range mode; --chapter
// always re-extracts.
//
// Flags:
//
//	--chapter  extract a single chapter by ID
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
	refrepo "github.com/hearthkeep/chronicle/internal/adapter/postgres/reference"
	"github.com/hearthkeep/chronicle/internal/ai"
	"github.com/hearthkeep/chronicle/internal/app"
	"github.com/hearthkeep/chronicle/internal/config"
	"github.com/hearthkeep/chronicle/internal/reference"
	"github.com/hearthkeep/chronicle/internal/service/roster"
)

func main() {
	chapterFlag := flag.Int64("chapter", 0, "extract a single chapter by ID")
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

	refs := refrepo.New(pool)
	validator := reference.NewValidator(logger, refs)
	client := ai.NewClient(logger, cfg.Classifier)
	prompts := ai.NewPromptBuilder(validator, cfg.Pipeline)

	svc := roster.NewService(logger, chapter.New(pool), refs,
		client, prompts, validator, airequest.New(pool))

	var report roster.Report
	if *chapterFlag != 0 {
		report, err = svc.ExtractChapter(ctx, *chapterFlag)
	} else {
		report, err = svc.ExtractRange(ctx, *fromFlag, *toFlag)
	}
	if err != nil {
		logger.Error("roster extraction failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("roster extraction completed",
		slog.Int("chapters_processed", report.ChaptersProcessed),
		slog.Int("chapters_skipped", report.ChaptersSkipped),
		slog.Int("chapters_failed", report.ChaptersFailed),
		slog.Int("characters_found", report.CharactersFound),
		slog.Int("new_characters", report.NewCharacters),
	)

	if report.ChaptersFailed > 0 {
		os.Exit(1)
	}
}
