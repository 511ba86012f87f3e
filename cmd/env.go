package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/artifact"
	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/config"
	"github.com/aalabel/aalabel-cli/internal/cost"
	"github.com/aalabel/aalabel-cli/internal/embedding"
	"github.com/aalabel/aalabel-cli/internal/generation"
	"github.com/aalabel/aalabel-cli/internal/harmonize"
	"github.com/aalabel/aalabel-cli/internal/retrieval"
	"github.com/aalabel/aalabel-cli/internal/store"
)

// engineEnv owns every collaborator a command needs. Close releases them.
type engineEnv struct {
	Store        store.Store
	Encoder      embedding.Encoder
	Retriever    *retrieval.Retriever
	Generator    *generation.Generator
	Catalog      catalog.Source
	Harmonizer   *harmonize.SectionHarmonizer
	Orchestrator *harmonize.Orchestrator
	Sink         artifact.Sink
	Params       harmonize.Params
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initStore opens and migrates the configured evidence store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// openEngine validates cfg for mode and builds the engine. Retrieval-only
// modes skip the generation backend, catalog and artifact sink.
func openEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &engineEnv{
		Store:  st,
		Params: harmonize.Params{TopK: cfg.Retrieval.TopK, Threshold: cfg.Retrieval.Threshold},
	}
	fail := func(err error) (*engineEnv, error) {
		env.Close()
		return nil, err
	}

	env.Encoder, err = embedding.New(ctx, cfg)
	if err != nil {
		return fail(eris.Wrap(err, "init encoder"))
	}
	env.Retriever = retrieval.New(env.Encoder, st)

	if mode == "retrieve" {
		return env, nil
	}

	env.Generator, err = generation.New(ctx, cfg)
	if err != nil {
		return fail(eris.Wrap(err, "init generator"))
	}

	env.Catalog, err = catalog.New(cfg, st)
	if err != nil {
		return fail(err)
	}

	overrides, err := harmonize.LoadOverrides(cfg.Retrieval.OverridesFile)
	if err != nil {
		return fail(err)
	}

	env.Harmonizer = harmonize.NewSectionHarmonizer(env.Retriever, env.Generator, env.Params,
		harmonize.WithOverrides(overrides))
	env.Orchestrator = harmonize.NewOrchestrator(env.Harmonizer, env.Catalog,
		harmonize.WithRunRecorder(st),
		harmonize.WithCalculator(cost.NewCalculator(ratesFromConfig(cfg.Pricing))),
	)

	env.Sink, err = artifact.New(ctx, cfg.Artifacts)
	if err != nil {
		return fail(err)
	}

	zap.L().Debug("engine ready",
		zap.String("mode", mode),
		zap.String("embedding_model", env.Encoder.Model()),
		zap.String("generation_backend", env.Generator.Backend()),
		zap.String("catalog", cfg.Catalog.Source),
		zap.Int("overrides", len(overrides)),
	)
	return env, nil
}

// ratesFromConfig applies configured prices over the built-in table.
func ratesFromConfig(p config.PricingConfig) cost.Rates {
	override := cost.Rates{
		Generation: make(map[string]cost.ModelRate, len(p.Generation)),
		Embedding:  p.Embedding,
	}
	for name, mp := range p.Generation {
		override.Generation[name] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	return cost.Merge(cost.DefaultRates(), override)
}
