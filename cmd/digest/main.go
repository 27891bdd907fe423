package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/delivery"
	"digestbot/internal/fetcher"
	"digestbot/internal/llm"
	"digestbot/internal/pipeline"
	"digestbot/internal/post"
	"digestbot/internal/scheduler"
	"digestbot/internal/scoring"
	"digestbot/internal/search"
	"digestbot/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML config (default $DIGEST_CONFIG or "+config.DefaultPath+")")
	loop := flag.Bool("loop", false, "keep running and re-run the pipeline on every tick")
	tick := flag.Duration("tick", 5*time.Minute, "interval between runs with -loop")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		return 1
	}

	log := newLogger(cfg.LogLevel)
	for _, w := range cfg.Warnings() {
		log.Warn("config", "warning", w)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			return 1
		}
	}

	store, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		log.Error("open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	tg, err := delivery.NewTelegram(cfg.Telegram)
	if err != nil {
		log.Error("connect telegram", "error", err)
		return 1
	}

	p := newPipeline(cfg, store, tg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *loop {
		log.Info("starting digest loop", "tick", *tick)
		sched := scheduler.New(p, log)
		sched.SetTickInterval(*tick)
		sched.Run(ctx)
		log.Info("digest loop stopped")
		return 0
	}

	state, err := p.Run(ctx)
	if err != nil {
		log.Error("pipeline failed", "run_id", state.RunID, "error", err)
		return 1
	}
	return 0
}

func newPipeline(cfg *config.Config, store storage.Storage, sender delivery.Sender, log *slog.Logger) *pipeline.Pipeline {
	httpClient := &http.Client{Timeout: cfg.Search.Timeout}
	client := llm.New(cfg.LLM)

	deps := pipeline.Deps{
		Fetcher: fetcher.New(http.DefaultClient, log.With("component", "fetcher")),
		Store:   store,
		Search: search.NewCycle(
			search.NewSerpAPI(httpClient, cfg.Search),
			store,
			client,
			cfg.Search,
			log.With("component", "search"),
		),
		Scorer: scoring.New(
			client.WithModel(cfg.Scoring.Model, cfg.Scoring.Temperature),
			cfg.Scoring,
			log.With("component", "scoring"),
		),
		Composer: post.NewComposer(
			client.WithModel(cfg.Post.Model, cfg.Post.Temperature),
			cfg.Post,
			cfg.Telegram.ParseMode,
			log.With("component", "post"),
		),
		Deliverer: delivery.NewRecorder(sender, store, log.With("component", "delivery")),
	}
	return pipeline.New(deps, pipeline.OptionsFromConfig(cfg), log)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
