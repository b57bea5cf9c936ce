package main

import (
	"os"
	"path/filepath"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/config"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/db"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/engine"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

// openStore opens the configured task store. Flag values override config.
func openStore(cfg config.Config) (task.Store, func(), error) {
	if inMemory || cfg.Store.InMemory {
		return task.NewMemStore(), func() {}, nil
	}
	path := dbPath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		if err := os.MkdirAll(".atlas", 0o755); err != nil {
			return nil, func() {}, err
		}
		path = filepath.Join(".atlas", "tasks.db")
	}
	storeDB, err := db.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	return task.NewSQLStore(storeDB), func() { _ = storeDB.Close() }, nil
}

type services struct {
	validator   *engine.Validator
	transitions *engine.TransitionService
	processor   *engine.Processor
	mode        engine.Mode
}

// newServices constructs the engine services from config, injecting the
// store explicitly.
func newServices(cfg config.Config, store task.Store) services {
	e := cfg.Engine
	validator := engine.NewValidator(store, engine.Options{
		MaxDependencies:     e.MaxDependencies,
		SimilarityThreshold: e.SimilarityThreshold,
		MaxSuggestions:      e.MaxSuggestions,
		CycleDepthLimit:     e.CycleDepthLimit,
		SuggestSimilar:      e.SuggestSimilar,
		ValidateStatus:      e.ValidateStatus,
	})
	transitions := engine.NewTransitionService(store)
	processor := engine.NewProcessor(store, validator, transitions, engine.ProcessorOptions{
		MaxBatchSize: e.MaxBatchSize,
		Mode:         engine.Mode(e.Mode),
		StopOnError:  e.StopOnError,
		MaxRetries:   e.MaxRetries,
		RetryDelay:   e.RetryDelay(),
	})
	return services{
		validator:   validator,
		transitions: transitions,
		processor:   processor,
		mode:        engine.Mode(e.Mode),
	}
}
