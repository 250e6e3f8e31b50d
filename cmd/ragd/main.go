package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docuvault/ragcore/internal/api"
	"github.com/docuvault/ragcore/internal/chatbot"
	"github.com/docuvault/ragcore/internal/common"
	"github.com/docuvault/ragcore/internal/config"
	"github.com/docuvault/ragcore/internal/embedding"
	"github.com/docuvault/ragcore/internal/generate"
	"github.com/docuvault/ragcore/internal/llm"
	"github.com/docuvault/ragcore/internal/rewrite"
	"github.com/docuvault/ragcore/internal/session"
	"github.com/docuvault/ragcore/internal/vector"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("ragd: .env file not loaded", "error", err)
	} else {
		logger.Info("ragd: environment loaded from .env")
	}

	addr := flag.String("addr", ":8082", "listen address")
	journalPath := flag.String("journal", defaultJournalPath(), "path to the SQLite transcript journal (empty to disable)")
	reset := flag.Bool("reset", false, "drop and recreate the vector collection at startup")
	lightweight := flag.Bool("lightweight", false, "use the constrained-deployment configuration profile")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("ragd: config load failed", "error", err)
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	if *lightweight {
		base := config.Lightweight()
		cfg.UseHybridSearch = base.UseHybridSearch
		cfg.NResults = base.NResults
		cfg.MaxNewTokens = base.MaxNewTokens
		logger.Info("ragd: lightweight profile active")
	}

	logger.Info("ragd: startup initiated", "addr", *addr, "collection", cfg.CollectionName)

	embedder := buildEmbedder(cfg)
	provider := llm.NewProvider(cfg.LLMModel)
	logger.Info("ragd: llm provider ready", "provider", provider.Name())

	vectorCfg, err := vector.LoadConfig()
	if err != nil {
		logger.Error("ragd: vector config load failed", "error", err)
		fmt.Println("vector config error:", err)
		os.Exit(1)
	}
	vectorCfg.Collection = cfg.CollectionName
	store, err := vector.New(ctx, vectorCfg)
	if err != nil {
		logger.Error("ragd: vector store initialization failed", "error", err)
		fmt.Println("vector store error:", err)
		os.Exit(1)
	}
	if store.Available() {
		logger.Info("ragd: chromadb available", "collection", store.Collection())
	} else {
		logger.Warn("ragd: chromadb unreachable", "collection", store.Collection())
	}

	sessionOpts := []session.Option{}
	if trimmed := strings.TrimSpace(*journalPath); trimmed != "" {
		journal, err := session.OpenJournal(trimmed)
		if err != nil {
			logger.Warn("ragd: transcript journal unavailable", "path", trimmed, "error", err)
		} else {
			defer journal.Close()
			sessionOpts = append(sessionOpts, session.WithJournal(journal))
		}
	}
	sessions := session.NewManager(cfg.MaxHistoryTurns, sessionOpts...)

	bot := chatbot.New(
		cfg,
		embedder,
		store,
		generate.NewGenerator(provider, cfg),
		rewrite.NewRewriter(provider, cfg),
		sessions,
	)
	if err := bot.Initialize(ctx, *reset); err != nil {
		logger.Error("ragd: pipeline initialization failed", "error", err)
		fmt.Println("initialization error:", err)
		os.Exit(1)
	}

	server, err := api.NewServer(bot, cfg)
	if err != nil {
		logger.Error("ragd: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	httpServer := &http.Server{Addr: *addr, Handler: server}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ragd: server listening", "addr", *addr, "health", "/healthz")
		fmt.Printf("Serving on %s\n", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("ragd: shutdown signal received", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("ragd: shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("ragd: server stopped", "error", err)
			fmt.Println("server stopped:", err)
		}
	}
}

// buildEmbedder prefers the OpenAI embedding API and falls back to the
// deterministic hash embedder for keyless runs.
func buildEmbedder(cfg config.Config) embedding.Provider {
	logger := common.Logger()
	if client := llm.NewOpenAIClient(); client != nil {
		logger.Info("ragd: openai embedder ready", "model", cfg.EmbeddingModel)
		return embedding.NewOpenAI(client, cfg.EmbeddingModel)
	}
	logger.Warn("ragd: OPENAI_API_KEY not set; using deterministic hash embedder")
	return embedding.NewHash(0)
}

func defaultJournalPath() string {
	return filepath.Join("data", "transcripts.db")
}
