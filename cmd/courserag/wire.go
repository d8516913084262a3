package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"courserag/internal/chunker"
	"courserag/internal/config"
	"courserag/internal/domain"
	"courserag/internal/embedding"
	"courserag/internal/embedding/hashing"
	"courserag/internal/embedding/openai"
	"courserag/internal/reasoning"
	"courserag/internal/reasoning/anthropic"
	"courserag/internal/service"
	"courserag/internal/session"
	"courserag/internal/store"
	"courserag/internal/summarizer"
	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/memory"
	"courserag/internal/vectorstore/pgvector"
	"courserag/internal/vectorstore/qdrant"
	"courserag/internal/vectorstore/sqlite"
)

// app holds the assembled components for one command run.
type app struct {
	cfg     *config.AppConfig
	log     *zap.Logger
	storage vectorstore.Storage
	store   *store.Store
	svc     *service.RAGService
}

func (a *app) Close() error {
	return a.storage.Close()
}

// errNoEngine is returned by commands that only ingest or list courses if
// something still tries to reach the reasoning engine.
var errNoEngine = errors.New("reasoning engine not configured for this command")

type noEngine struct{}

func (noEngine) Complete(context.Context, reasoning.Request) (reasoning.Response, error) {
	return nil, errNoEngine
}

func newApp(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, withEngine bool) (*app, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	storage, err := buildStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st := store.New(emb, storage, store.Config{
		MaxResults:         cfg.Search.MaxResults,
		ResolveMaxDistance: cfg.Search.ResolveMaxDistance,
	}, log.Named("store"))
	if err := st.Init(ctx); err != nil {
		storage.Close()
		return nil, err
	}

	var engine reasoning.Engine = noEngine{}
	if withEngine {
		eng, err := anthropic.New(anthropic.Config{
			APIKeyEnv:   cfg.Anthropic.APIKeyEnv,
			Model:       cfg.Anthropic.Model,
			BaseURL:     cfg.Anthropic.BaseURL,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
			Timeout:     time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
			MaxRetries:  cfg.Anthropic.MaxRetries,
		})
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("reasoning engine: %w", err)
		}
		engine = eng
	}

	svc := service.NewRAGService(
		st,
		chunker.NewSentenceChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap),
		summarizer.NewFrequencySummarizer(),
		reasoning.NewOrchestrator(engine, cfg.Conversation.MaxToolRounds, log.Named("reasoning")),
		session.New(cfg.Conversation.MaxHistory, time.Duration(cfg.Conversation.SessionTTLMins)*time.Minute),
		log.Named("service"),
	)
	log.Debug("components assembled",
		zap.String("embedder", emb.Name()),
		zap.Int("dimension", emb.Dimension()),
		zap.String("vector_store", cfg.VectorStore.Type))
	return &app{cfg: cfg, log: log, storage: storage, store: st, svc: svc}, nil
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Dimension:  cfg.Embedder.Dimension,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	if cfg.Embedder.CacheSize <= 0 {
		return emb, nil
	}
	return embedding.NewCached(emb, cfg.Embedder.CacheSize)
}

func buildStorage(ctx context.Context, cfg *config.AppConfig) (vectorstore.Storage, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		if vs.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		return sqlite.NewStorage(vs.SQLite.Path)
	case "qdrant":
		if vs.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		var key string
		if vs.Qdrant.APIKeyEnv != "" {
			key = os.Getenv(vs.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:              vs.Qdrant.URL,
			APIKey:           key,
			CollectionPrefix: vs.Qdrant.CollectionPrefix,
			Timeout:          time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		if vs.PGVector == nil {
			return nil, errors.New("pgvector config missing")
		}
		dsn := os.Getenv(vs.PGVector.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("missing Postgres DSN in env %s", vs.PGVector.DSNEnv)
		}
		return pgvector.NewStorage(ctx, dsn, vs.PGVector.Table)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}
