package main

import (
	"context"
	"fmt"
	"log"

	"data-sculptor/application"
	"data-sculptor/config"
	"data-sculptor/domain"
	"data-sculptor/infrastructure/analyzer"
	"data-sculptor/infrastructure/embedding"
	"data-sculptor/infrastructure/llm"
	"data-sculptor/infrastructure/store"
	"data-sculptor/infrastructure/syntax"
	"data-sculptor/infrastructure/vectorstore"
)

// services holds everything built from the configuration, plus what must be closed.
type services struct {
	feedback *application.FeedbackService
	chat     *application.ChatService
	closers  []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newLLMClient(cfg *config.Config) (domain.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(cfg.LLM)
	default:
		return llm.NewOpenAIClient(cfg.LLM)
	}
}

func newTokenizer(cfg *config.Config) domain.CodeTokenizer {
	if cfg.Feedback.Tokenizer == "lexical" {
		return domain.LexicalTokenizer{}
	}
	return syntax.NewPythonTokenizer()
}

func newDriftPolicy(cfg *config.Config) domain.DriftPolicy {
	if cfg.Feedback.DriftPolicy == "diff" {
		return domain.DiffDrift{MaxChangedRatio: cfg.Feedback.MaxChangedRatio}
	}
	return domain.LineCountDrift{Threshold: cfg.Feedback.DriftThreshold}
}

func newSessionStore(ctx context.Context, cfg *config.Config) (domain.SessionStore, func(), error) {
	switch cfg.Store.Driver {
	case "file":
		s, err := store.NewFileStore(cfg.Store.Dir)
		return s, func() {}, err
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func newSectionRepository(ctx context.Context, cfg *config.Config) (*vectorstore.QdrantClient, error) {
	return vectorstore.NewQdrantClient(ctx, cfg.Qdrant)
}

// buildServices wires the HTTP-facing services. The analyzer and the section
// repository are optional; the services skip what is missing.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	out := &services{}

	model, err := newLLMClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	var static domain.StaticAnalyzer
	if cfg.Analyzer.URL != "" {
		a, err := analyzer.NewHTTPClient(cfg.Analyzer)
		if err != nil {
			return nil, err
		}
		static = a
	}

	var sections domain.SectionRepository
	if repo, err := newSectionRepository(ctx, cfg); err != nil {
		log.Printf("Profile sections unavailable, feedback runs without reference material: %v\n", err)
	} else {
		sections = repo
		out.closers = append(out.closers, func() { _ = repo.Close() })
	}

	sessions, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	out.closers = append(out.closers, closeStore)

	out.feedback = application.NewFeedbackService(cfg, model, static, sections, newTokenizer(cfg))
	out.chat = application.NewChatService(cfg, sessions, model, newDriftPolicy(cfg), nil)
	return out, nil
}

// newIndexingService wires the profile indexer.
func newIndexingService(ctx context.Context, cfg *config.Config) (*application.IndexingService, func(), error) {
	embedder, err := embedding.NewOpenAIEmbeddingClient(cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	repo, err := newSectionRepository(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return application.NewIndexingService(cfg, embedder, repo), func() { _ = repo.Close() }, nil
}
