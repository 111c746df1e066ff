// Command scan runs the extraction pipeline over stored chapters and
// replaces their raw events. With --import it first ingests chapter
// text files from a directory; file names follow
// "<number>.txt" or "<number> - <title>.txt" and are ordered lexically.
//
// Flags:
//
//	--from    first chapter order index to scan (default 1)
//	--to      last chapter order index to scan (0 = no upper bound)
//	--import  directory of chapter .txt files to ingest before scanning
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hearthkeep/chronicle/internal/adapter/postgres"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/chapter"
	"github.com/hearthkeep/chronicle/internal/adapter/postgres/event"
	"github.com/hearthkeep/chronicle/internal/app"
	"github.com/hearthkeep/chronicle/internal/config"
	"github.com/hearthkeep/chronicle/internal/domain"
	"github.com/hearthkeep/chronicle/internal/parser"
	"github.com/hearthkeep/chronicle/internal/service/ingest"
)

func main() {
	fromFlag := flag.Int("from", 1, "first chapter order index to scan")
	toFlag := flag.Int("to", 0, "last chapter order index to scan (0 = no upper bound)")
	importFlag := flag.String("import", "", "directory of chapter .txt files to ingest before scanning")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)
	logger.Info("starting", slog.String("version", app.BuildVersion()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	pipeline := parser.NewPipeline(logger, parser.ScannerConfig{
		ContextBefore:    cfg.Pipeline.ContextBefore,
		ContextAfter:     cfg.Pipeline.ContextAfter,
		MaxBracketLength: cfg.Pipeline.MaxBracketLength,
	}, parser.FilterConfig{
		IndicatorWords: cfg.Pipeline.IndicatorWords,
	})
	svc := ingest.NewService(logger, chapter.New(pool), event.New(pool), txm, pipeline, cfg.Pipeline.IngestWorkers)

	if *importFlag != "" {
		if err := importChapters(ctx, logger, svc, *importFlag); err != nil {
			logger.Error("chapter import failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	report, err := svc.ScanRange(ctx, *fromFlag, *toFlag)
	if err != nil {
		logger.Error("scan failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("scan completed",
		slog.Int("chapters_scanned", report.ChaptersScanned),
		slog.Int("chapters_failed", report.ChaptersFailed),
		slog.Int("candidates", report.Candidates),
		slog.Int("excluded", report.Excluded),
		slog.Int("events", report.Events),
		slog.Int("dropped", report.Dropped),
		slog.Int("incomplete", report.Incomplete),
	)

	if report.ChaptersFailed > 0 {
		os.Exit(1)
	}
}

// importChapters ingests every .txt file in dir. The lexical file order
// defines the chapter order indexes, so re-imports are deterministic.
func importChapters(ctx context.Context, logger *slog.Logger, svc *ingest.Service, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for i, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}

		number, title := splitChapterName(strings.TrimSuffix(name, ".txt"))
		ch := domain.Chapter{
			OrderIndex:    i + 1,
			ChapterNumber: number,
			Content:       string(content),
		}
		if title != "" {
			ch.Title = &title
		}

		if _, err := svc.ImportChapter(ctx, ch); err != nil {
			return err
		}
	}

	logger.Info("chapters imported", slog.Int("count", len(names)))
	return nil
}

// splitChapterName splits "1.07 - The Horns of Hammerad" into number
// and title; a bare "1.07" has no title.
func splitChapterName(base string) (number, title string) {
	number, title, found := strings.Cut(base, " - ")
	if !found {
		return strings.TrimSpace(base), ""
	}
	return strings.TrimSpace(number), strings.TrimSpace(title)
}
