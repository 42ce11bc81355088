// Package app wires the driven adapters and core services into the driving
// ports used by the command-line interface.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/docqa/internal/adapters/driven/ai"
	configfile "github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	filestore "github.com/custodia-labs/docqa/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/docqa/internal/connectors/filesystem"
	"github.com/custodia-labs/docqa/internal/connectors/web"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/core/services"
	"github.com/custodia-labs/docqa/internal/logger"
	"github.com/custodia-labs/docqa/internal/normalisers"
	"github.com/custodia-labs/docqa/internal/postprocessors"
)

// corpusStore is a durable corpus with a backend name.
type corpusStore interface {
	driven.CorpusStore
	Name() string
	Close() error
}

// App builds services on demand. The zero value uses $DOCQA_HOME.
type App struct {
	// Home overrides the docqa home directory.
	Home string

	settings driving.SettingsService
}

// New creates an App.
func New() *App {
	return &App{}
}

func (a *App) home() (string, error) {
	if a.Home != "" {
		return a.Home, nil
	}
	return configfile.HomeDir()
}

// Settings returns the settings service. Ephemeral settings start from
// defaults and are never written to disk.
func (a *App) Settings(opts cli.Options) (driving.SettingsService, error) {
	if a.settings != nil {
		return a.settings, nil
	}

	var store driven.ConfigStore
	if opts.Ephemeral {
		store = memory.NewConfigStore()
	} else {
		home, err := a.home()
		if err != nil {
			return nil, err
		}
		fileStore, err := configfile.NewConfigStore(home)
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		store = fileStore
	}

	a.settings = services.NewSettingsService(store, ai.NewConfigValidator())
	return a.settings, nil
}

// Runtime opens the corpus and builds the ingestion, query and index
// services. The corpus is verified on open and rebuilt if inconsistent.
func (a *App) Runtime(ctx context.Context, opts cli.Options) (*cli.Runtime, error) {
	settingsSvc, err := a.Settings(opts)
	if err != nil {
		return nil, err
	}
	s, err := settingsSvc.Get()
	if err != nil {
		return nil, err
	}

	aiRes, err := ai.Init(s)
	if err != nil {
		return nil, err
	}

	closers := []func() error{func() error { aiRes.Close(); return nil }}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	rt, err := a.build(ctx, opts, s, aiRes, &closers)
	if err != nil {
		_ = closeAll()
		return nil, err
	}
	rt.Warnings = aiRes.Warnings
	rt.Close = closeAll
	return rt, nil
}

func (a *App) build(
	ctx context.Context,
	opts cli.Options,
	s *domain.Settings,
	aiRes *ai.InitResult,
	closers *[]func() error,
) (*cli.Runtime, error) {
	pipeline, err := postprocessors.NewDefaultPipeline(s.Chunking)
	if err != nil {
		return nil, fmt.Errorf("%w: chunking: %w", domain.ErrInvalidConfig, err)
	}

	corpus, err := a.openCorpus(opts, s.Storage.Backend)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, corpus.Close)
	logger.Debug("Corpus backend: %s", corpus.Name())

	store := services.NewEmbeddingStore(corpus, aiRes.EmbeddingService, pipeline,
		services.WithEmbedConcurrency(s.Embedding.Concurrency),
		services.WithChunkingFingerprint(s.Chunking.Fingerprint()),
	)
	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}

	var prompts driven.PromptStore
	if !opts.Ephemeral {
		home, err := a.home()
		if err != nil {
			return nil, err
		}
		promptStore, err := configfile.NewPromptStore(filepath.Join(home, "prompts"), services.DefaultPrompts())
		if err != nil {
			return nil, fmt.Errorf("opening prompts: %w", err)
		}
		prompts = promptStore
	}

	orchestrator := services.NewOrchestrator(
		store,
		aiRes.EmbeddingService,
		aiRes.LLMService,
		services.NewRanker(services.RankOptionsFor(s.Retrieval)),
		services.NewAssembler(services.AssembleOptionsFor(s.Context, s.Retrieval)),
		services.NewPromptBuilder(s.Project, prompts),
		services.WithGenerationRetry(services.RetryPolicyFor(s.Generation)),
		services.WithGenerationTimeout(s.Generation.Timeout),
		services.WithPromptTurns(s.History.PromptTurns),
		services.WithStreaming(s.LLM.Stream),
	)

	source := filesystem.New()
	*closers = append(*closers, source.Close)

	ingestion := services.NewIngestionService(store, normalisers.NewDefaultRegistry(), pipeline, source)
	ingestion.SetFetcher(web.New())

	return &cli.Runtime{
		Ingestion: ingestion,
		Query:     services.NewQueryService(orchestrator, services.NewSessionRegistry(s.History)),
		Index:     services.NewIndexService(store, corpus.Name()),
	}, nil
}

func (a *App) openCorpus(opts cli.Options, backend domain.StorageBackend) (corpusStore, error) {
	if opts.Ephemeral {
		return memory.NewCorpusStore(), nil
	}

	home, err := a.home()
	if err != nil {
		return nil, err
	}

	switch backend {
	case domain.StorageFile:
		store, err := filestore.NewCorpusStore(filepath.Join(home, "corpus"))
		if err != nil {
			return nil, fmt.Errorf("opening file corpus: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.NewStore(filepath.Join(home, "data"))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite corpus: %w", err)
		}
		return store, nil
	}
}
