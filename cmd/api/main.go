package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/ragline-platform/ragline/internal/api"
	"github.com/ragline-platform/ragline/internal/config"
	"github.com/ragline-platform/ragline/internal/database"
	"github.com/ragline-platform/ragline/internal/events"
	"github.com/ragline-platform/ragline/internal/line"
	"github.com/ragline-platform/ragline/internal/llm"
	"github.com/ragline-platform/ragline/internal/memory"
	"github.com/ragline-platform/ragline/internal/middleware"
	"github.com/ragline-platform/ragline/internal/rag"
	"github.com/ragline-platform/ragline/internal/redis"
	"github.com/ragline-platform/ragline/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := os.Stat("migrations"); err == nil {
		if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	gateway := llm.NewClient(cfg.Ollama)

	repo := memory.NewPostgresRepository(pool)
	store := memory.NewStore(repo, gateway)
	if err := store.Seed(ctx); err != nil {
		slog.Error("seeding memory store", "error", err)
		os.Exit(1)
	}

	models, err := gateway.ListModels(ctx)
	if err != nil {
		slog.Warn("listing models at startup, continuing with default", "error", err)
	}
	session := rag.NewSession(cfg.Ollama.DefaultModel, models, cfg.RAG.HistoryEnabled)

	var exchangeSink rag.EventsSink
	var ingestSink rag.IngestSink
	if cfg.NATS.URL != "" {
		publisher, err := events.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		exchangeSink = publisher
		ingestSink = publisher
	}

	summarizer := rag.NewSummarizer(gateway, session)
	retriever := rag.NewRetriever(store, session, summarizer, cfg.RAG.TopK, cfg.RAG.SummaryThreshold)
	engine := rag.NewEngine(retriever, gateway, session, store, exchangeSink)
	ingestor := rag.NewIngestor(store, ingestSink, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)

	ragHandler := rag.NewHandler(engine, session, ingestor, cfg.RAG.UploadDir)
	memHandler := memory.NewHandler(store)

	handlers := api.HandlerSet{
		Ask:            ragHandler.Ask,
		ListModels:     ragHandler.Models,
		SwitchModel:    ragHandler.SwitchModel,
		GetHistory:     ragHandler.GetHistory,
		SetHistory:     ragHandler.SetHistory,
		UploadDocument: ragHandler.UploadDocument,
		ListMemories:   memHandler.List,
		DeleteMemory:   memHandler.Delete,
		AskRateLimiter: middleware.NewRateLimiter(rdb, 30, 60),
	}

	if cfg.Line.Enabled() {
		tokens, err := line.NewTokenSource(rdb, cfg.Line.ChannelID, cfg.Line.KeyID, cfg.Line.PrivateKeyPath)
		if err != nil {
			slog.Error("setting up line token source", "error", err)
			os.Exit(1)
		}
		handlers.LineWebhook = line.NewWebhookHandler(cfg.Line.ChannelSecret, tokens, lineAsker{engine})
		slog.Info("line webhook enabled", "channel_id", cfg.Line.ChannelID)
	}

	router := api.NewRouter(cfg, pool, handlers)

	if err := server.New(cfg.Server, router).Start(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// lineAsker adapts the engine's blocking answer path to the webhook's
// question/answer shape.
type lineAsker struct {
	engine *rag.Engine
}

func (a lineAsker) Ask(ctx context.Context, question, userID string) (string, error) {
	answer, _, err := a.engine.Ask(ctx, question, userID)
	return answer, err
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
