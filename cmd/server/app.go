package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ashureev/classgrade/internal/api"
	"github.com/ashureev/classgrade/internal/cache"
	"github.com/ashureev/classgrade/internal/config"
	"github.com/ashureev/classgrade/internal/orchestrator"
	"github.com/ashureev/classgrade/internal/research"
	"github.com/ashureev/classgrade/internal/research/llm/gemini"
	"github.com/ashureev/classgrade/internal/research/llm/openai"
	"github.com/ashureev/classgrade/internal/research/search"
	"github.com/ashureev/classgrade/internal/research/trace"
	"github.com/ashureev/classgrade/internal/research/transcript"
	"github.com/ashureev/classgrade/internal/store"
)

// refreshGrace is added to the research timeout to bound background refreshes.
const refreshGrace = 5 * time.Second

// app holds the wired dependencies shared by serve, research and seed.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	repo       *store.SQLiteStore
	cache      *cache.Cache
	cacheProbe api.Pinger
	orch       *orchestrator.Orchestrator

	closeTranscripts func() error
	closers          []func() error // run in reverse order
}

// wire builds the store and cache. When withResearch is set it also builds
// the research agent and the orchestrator on top of them.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, withResearch bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, closeTranscripts: func() error { return nil }}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	logger.Info("Database connected", "path", cfg.DBPath)

	backend, err := a.cacheBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = cache.New(backend, cfg.Cache.TTL)
	logger.Info("Assessment cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)

	if !withResearch {
		return a, nil
	}

	if err := cfg.ValidateResearch(); err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	agent, err := a.researchAgent(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orchestrator.New(agent, a.cache,
		orchestrator.WithLogger(logger),
		orchestrator.WithRefreshTimeout(agent.Policy().Timeout+refreshGrace),
	)
	return a, nil
}

func (a *app) cacheBackend(ctx context.Context) (cache.Backend, error) {
	switch a.cfg.Cache.Backend {
	case "memory":
		return cache.NewMemory(a.cfg.Cache.Capacity), nil
	case "postgres":
		pg, err := cache.OpenPostgres(ctx, a.cfg.Cache.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres cache: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.cacheProbe = pg
		return pg, nil
	default:
		return cache.NewSQLite(a.repo.DB()), nil
	}
}

func (a *app) researchAgent(ctx context.Context) (*research.Agent, error) {
	var provider research.Provider
	switch a.cfg.LLM.Provider {
	case "gemini":
		engine, err := gemini.New(ctx, a.cfg.LLM.GeminiKey, a.cfg.LLM.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initialize gemini: %w", err)
		}
		a.closers = append(a.closers, engine.Close)
		provider = engine
	default:
		provider = openai.New(a.cfg.LLM.OpenAIKey, a.cfg.LLM.Model, a.cfg.LLM.OpenAIBaseURL)
	}

	var searcher research.Searcher
	switch a.cfg.Search.Provider {
	case "brave":
		searcher = search.NewBrave(a.cfg.Search.BraveKey)
	default:
		searcher = search.NewTavily(a.cfg.Search.TavilyKey, a.cfg.Search.TavilyDepth)
	}

	recorder, closeTranscripts, err := transcript.New(transcript.Config{
		Enabled:   a.cfg.Transcript.Enabled,
		Dir:       a.cfg.Transcript.Dir,
		QueueSize: a.cfg.Transcript.QueueSize,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize transcript logger: %w", err)
	}
	a.closeTranscripts = closeTranscripts

	opts := []research.Option{
		research.WithLogger(a.logger),
		research.WithTranscripts(recorder),
	}
	if a.cfg.TraceEnabled {
		opts = append(opts, research.WithTracer(trace.NewWriterTracer(os.Stderr)))
	}

	policy := research.Policy{
		MaxRounds:           a.cfg.Agent.MaxRounds,
		Timeout:             a.cfg.Agent.Timeout,
		SearchRetries:       a.cfg.Agent.SearchRetries,
		SearchBackoff:       a.cfg.Agent.SearchBackoff,
		MaxSearchesPerRound: a.cfg.Agent.MaxSearchesPerRound,
	}
	agent := research.NewAgent(provider, searcher, policy, opts...)
	a.logger.Info("Research agent ready",
		"provider", provider.Name(),
		"search", a.cfg.Search.Provider,
		"max_rounds", agent.Policy().MaxRounds,
		"timeout", agent.Policy().Timeout,
		"trace", a.cfg.TraceEnabled,
	)
	return agent, nil
}

// Close drains background refreshes, flushes transcripts and closes the
// databases, in that order.
func (a *app) Close() error {
	if a.orch != nil {
		a.orch.Wait()
	}
	errs := []error{a.closeTranscripts()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
