package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

func seedStore(t *testing.T, tasks ...*task.Task) *task.MemStore {
	t.Helper()
	store := task.NewMemStore()
	for _, tk := range tasks {
		require.NoError(t, store.CreateTask(context.Background(), tk))
	}
	return store
}

func TestValidateDependenciesExistingDependencyValid(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "proj/a"},
		&task.Task{Path: "proj/dep", Status: task.StatusPending},
	)
	v := NewValidator(store, DefaultOptions())

	for _, mode := range []Mode{ModeStrict, ModeLenient, ModeDeferred} {
		res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"proj/dep"}, mode)
		require.NoError(t, err, "mode %s", mode)
		require.NotNil(t, res, "mode %s", mode)
		require.True(t, res.Valid, "mode %s", mode)
		require.Empty(t, res.Errors, "mode %s", mode)
	}
}

func TestNewValidatorDefaultsPerField(t *testing.T) {
	v := NewValidator(task.NewMemStore(), Options{SuggestSimilar: false, MaxSuggestions: 0})
	require.Equal(t, 50, v.opts.MaxDependencies)
	require.Equal(t, 1000, v.opts.CycleDepthLimit)
	require.False(t, v.opts.SuggestSimilar)
	require.Zero(t, v.opts.MaxSuggestions)
}

func TestValidateDependenciesMissingStrict(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "proj/a"})
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"proj/b"}, ModeStrict)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	require.Equal(t, DependencyMissing, res.Errors[0].Type)
	require.Equal(t, "proj/b", res.Errors[0].Path)
	require.Equal(t, []string{"proj/b"}, res.Details.MissingDependencies)
}

func TestValidateDependenciesMissingLenientBecomesWarning(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "proj/a"})
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"proj/b"}, ModeLenient)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "will need to be created")
}

func TestValidateDependenciesMissingDeferredSurfacesDetailsOnly(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "proj/a"})
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"proj/b"}, ModeDeferred)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)
	require.Empty(t, res.Warnings)
	require.Equal(t, []string{"proj/b"}, res.Details.MissingDependencies)
}

func TestValidateDependenciesCancelledConflict(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "proj/a"},
		&task.Task{Path: "proj/dead", Status: task.StatusCancelled},
	)
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"proj/dead"}, ModeStrict)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	require.Equal(t, DependencyStatus, res.Errors[0].Type)
	require.Contains(t, res.Errors[0].Message, "cancelled")
	require.Equal(t, []string{"proj/dead"}, res.Details.StatusConflicts)

	res, err = v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"proj/dead"}, ModeLenient)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
}

func TestValidateDependenciesCycleFailsEveryMode(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "a", Dependencies: []string{"b"}},
		&task.Task{Path: "b", Dependencies: []string{"c"}},
		&task.Task{Path: "c", Dependencies: []string{"a"}},
	)
	v := NewValidator(store, DefaultOptions())

	for _, mode := range []Mode{ModeStrict, ModeLenient, ModeDeferred} {
		res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "a"}, []string{"b"}, mode)
		require.NoError(t, err, "mode %s", mode)
		require.False(t, res.Valid, "mode %s", mode)
		found := false
		for _, ve := range res.Errors {
			if ve.Type == DependencyCircular {
				found = true
				require.Contains(t, ve.Message, "a -> b -> c -> a")
			}
		}
		require.True(t, found, "mode %s must report the cycle", mode)
	}
}

func TestValidateDependenciesSelfDependency(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "a"})
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "a"}, []string{"a"}, ModeDeferred)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, DependencyCircular, res.Errors[0].Type)
}

func TestValidateDependenciesTooManyIsInputError(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "a"})
	v := NewValidator(store, DefaultOptions())

	deps := make([]string, 51)
	for i := range deps {
		deps[i] = fmt.Sprintf("dep/%d", i)
	}
	_, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "a"}, deps, ModeStrict)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInput))
}

func TestValidateDependenciesNilTaskFailsFast(t *testing.T) {
	v := NewValidator(task.NewMemStore(), DefaultOptions())
	_, err := v.ValidateDependencies(context.Background(), nil, nil, ModeStrict)
	require.True(t, IsKind(err, KindInput))
}

func TestValidateDependenciesEmptyPathIsInvalid(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "a"})
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "a"}, []string{"  "}, ModeLenient)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, DependencyInvalid, res.Errors[0].Type)
}

func TestValidateDependenciesSuggestions(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "proj/a"},
		&task.Task{Path: "tasks/setup-envs"},
		&task.Task{Path: "infra/db"},
	)
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"tasks/setup-env"}, ModeStrict)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "tasks/setup-envs", res.Errors[0].Suggestion)
	require.Equal(t, []string{"tasks/setup-envs"}, res.Details.Suggestions["tasks/setup-env"])
}

func TestValidateDependenciesNoSuggestionBelowThreshold(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "proj/a"},
		&task.Task{Path: "infra/db"},
	)
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "proj/a"}, []string{"tasks/setup-env"}, ModeStrict)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Empty(t, res.Errors[0].Suggestion)
	require.Empty(t, res.Details.Suggestions)
}

func TestValidateDependenciesDeduplicates(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "a"})
	v := NewValidator(store, DefaultOptions())

	res, err := v.ValidateDependencies(context.Background(), &task.Task{Path: "a"}, []string{"b", "b", "b"}, ModeStrict)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	require.Len(t, res.Details.MissingDependencies, 1)
}
