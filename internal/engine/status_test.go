package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

func TestValidateTransitionTableRejection(t *testing.T) {
	store := seedStore(t)
	svc := NewTransitionService(store)

	tk := &task.Task{Path: "a", Status: task.StatusPending}
	_, err := svc.ValidateTransition(context.Background(), tk, task.StatusCompleted)
	require.Error(t, err)
	require.True(t, IsKind(err, KindStatus))

	engErr, ok := AsError(err)
	require.True(t, ok)
	require.NotNil(t, engErr.Status)
	require.Equal(t, task.StatusPending, engErr.Status.Current)
	require.Equal(t, task.StatusCompleted, engErr.Status.Requested)
	require.ElementsMatch(t,
		[]task.Status{task.StatusInProgress, task.StatusBlocked, task.StatusCancelled},
		engErr.Status.Allowed)
}

func TestValidateTransitionCompleteListsAllBlockers(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "dep/pending", Status: task.StatusPending},
		&task.Task{Path: "dep/active", Status: task.StatusInProgress, Metadata: map[string]any{task.MetaProgress: 50}},
	)
	svc := NewTransitionService(store)

	tk := &task.Task{
		Path:         "a",
		Status:       task.StatusInProgress,
		Dependencies: []string{"dep/pending", "dep/active", "dep/gone"},
	}
	_, err := svc.ValidateTransition(context.Background(), tk, task.StatusCompleted)
	require.Error(t, err)
	require.True(t, IsKind(err, KindStatus))

	engErr, ok := AsError(err)
	require.True(t, ok)
	require.Len(t, engErr.Status.Blocking, 3)
	require.Contains(t, engErr.Msg, "dep/pending [pending] (Not started)")
	require.Contains(t, engErr.Msg, "dep/active [in_progress] (In progress (50% complete))")
	require.Contains(t, engErr.Msg, "dep/gone (Dependency does not exist)")
}

func TestValidateTransitionCompleteWithClosedDeps(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "dep/done", Status: task.StatusCompleted})
	svc := NewTransitionService(store)

	tk := &task.Task{Path: "a", Status: task.StatusInProgress, Dependencies: []string{"dep/done"}}
	tr, err := svc.ValidateTransition(context.Background(), tk, task.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, Transition{Status: task.StatusCompleted}, tr)
}

func TestValidateTransitionAutoDowngradeToBlocked(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "dep/dead", Status: task.StatusCancelled})
	svc := NewTransitionService(store)

	tk := &task.Task{Path: "a", Status: task.StatusPending, Dependencies: []string{"dep/dead"}}
	tr, err := svc.ValidateTransition(context.Background(), tk, task.StatusInProgress)
	require.NoError(t, err)
	require.Equal(t, Transition{Status: task.StatusBlocked, AutoTransition: true}, tr)
}

func TestValidateTransitionStartIgnoresMissingDeps(t *testing.T) {
	store := seedStore(t)
	svc := NewTransitionService(store)

	tk := &task.Task{Path: "a", Status: task.StatusPending, Dependencies: []string{"dep/gone"}}
	tr, err := svc.ValidateTransition(context.Background(), tk, task.StatusInProgress)
	require.NoError(t, err)
	require.Equal(t, Transition{Status: task.StatusInProgress}, tr)
}

func TestValidateTransitionUnblockStillBlocked(t *testing.T) {
	store := seedStore(t, &task.Task{
		Path:     "dep/stuck",
		Status:   task.StatusBlocked,
		Metadata: map[string]any{task.MetaBlockReason: "waiting on review"},
	})
	svc := NewTransitionService(store)

	tk := &task.Task{Path: "a", Status: task.StatusBlocked, Dependencies: []string{"dep/stuck"}}
	_, err := svc.ValidateTransition(context.Background(), tk, task.StatusPending)
	require.Error(t, err)
	require.True(t, IsKind(err, KindStatus))
	engErr, ok := AsError(err)
	require.True(t, ok)
	require.Contains(t, engErr.Msg, "waiting on review")
}

func TestValidateTransitionUnblockClearedDeps(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "dep/done", Status: task.StatusCompleted})
	svc := NewTransitionService(store)

	tk := &task.Task{Path: "a", Status: task.StatusBlocked, Dependencies: []string{"dep/done"}}
	tr, err := svc.ValidateTransition(context.Background(), tk, task.StatusPending)
	require.NoError(t, err)
	require.Equal(t, Transition{Status: task.StatusPending}, tr)
}

func TestValidateTransitionInputErrors(t *testing.T) {
	svc := NewTransitionService(task.NewMemStore())

	_, err := svc.ValidateTransition(context.Background(), nil, task.StatusPending)
	require.True(t, IsKind(err, KindInput))

	_, err = svc.ValidateTransition(context.Background(), &task.Task{Path: "a"}, task.Status("bogus"))
	require.True(t, IsKind(err, KindInput))
}

func TestApplyTransitionStampsAuditMetadata(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "a", Status: task.StatusPending})
	svc := NewTransitionService(store)

	tk, err := store.GetTask(context.Background(), "a")
	require.NoError(t, err)

	updated, err := svc.ApplyTransition(context.Background(), tk, Transition{Status: task.StatusInProgress}, "picked up", "")
	require.NoError(t, err)
	require.Equal(t, task.StatusInProgress, updated.Status)
	require.Equal(t, "pending", updated.Metadata[task.MetaPreviousStatus])
	require.Equal(t, "picked up", updated.Metadata[task.MetaStatusReason])
	require.Equal(t, false, updated.Metadata[task.MetaAutoTransition])
	require.NotEmpty(t, updated.Metadata[task.MetaStatusChangedAt])
}

func TestApplyTransitionBlockedRecordsBlockReason(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "a", Status: task.StatusPending})
	svc := NewTransitionService(store)

	tk, err := store.GetTask(context.Background(), "a")
	require.NoError(t, err)

	updated, err := svc.ApplyTransition(context.Background(), tk,
		Transition{Status: task.StatusBlocked, AutoTransition: true}, "Blocked by dependencies", "batch-1")
	require.NoError(t, err)
	require.Equal(t, "Blocked by dependencies", updated.Metadata[task.MetaBlockReason])
	require.Equal(t, true, updated.Metadata[task.MetaAutoTransition])
	require.Equal(t, "batch-1", updated.Metadata[task.MetaBatchID])
}

func TestValidateParentChildStatusWarnings(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "proj", Status: task.StatusInProgress},
		&task.Task{Path: "proj/a", Status: task.StatusInProgress},
		&task.Task{Path: "proj/b", Status: task.StatusBlocked},
	)
	svc := NewTransitionService(store)

	tk, err := store.GetTask(context.Background(), "proj/a")
	require.NoError(t, err)

	warnings, pu, err := svc.ValidateParentChildStatus(context.Background(), tk, task.StatusCompleted)
	require.NoError(t, err)
	require.Nil(t, pu)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "sibling proj/b is blocked")
}

func TestValidateParentChildStatusPropagatesCompletion(t *testing.T) {
	store := seedStore(t,
		&task.Task{Path: "proj", Status: task.StatusInProgress},
		&task.Task{Path: "proj/a", Status: task.StatusInProgress},
		&task.Task{Path: "proj/b", Status: task.StatusCompleted},
	)
	svc := NewTransitionService(store)

	tk, err := store.GetTask(context.Background(), "proj/a")
	require.NoError(t, err)

	warnings, pu, err := svc.ValidateParentChildStatus(context.Background(), tk, task.StatusCompleted)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.NotNil(t, pu)
	require.Equal(t, ParentUpdate{Path: "proj", Status: task.StatusCompleted}, *pu)

	updated, effect, err := svc.ApplyParentUpdate(context.Background(), *pu)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, updated.Status)
	require.NotNil(t, effect)
	require.Equal(t, "all child tasks completed", effect.Reason)
	require.Equal(t, task.StatusInProgress, effect.From)
}

func TestApplyParentUpdateNoOpWhenAlreadyCompleted(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "proj", Status: task.StatusCompleted})
	svc := NewTransitionService(store)

	updated, effect, err := svc.ApplyParentUpdate(context.Background(),
		ParentUpdate{Path: "proj", Status: task.StatusCompleted})
	require.NoError(t, err)
	require.Nil(t, effect)
	require.Equal(t, task.StatusCompleted, updated.Status)
}

func TestValidateParentChildStatusTopLevelTask(t *testing.T) {
	store := seedStore(t, &task.Task{Path: "solo", Status: task.StatusInProgress})
	svc := NewTransitionService(store)

	tk, err := store.GetTask(context.Background(), "solo")
	require.NoError(t, err)

	warnings, pu, err := svc.ValidateParentChildStatus(context.Background(), tk, task.StatusCompleted)
	require.NoError(t, err)
	require.Nil(t, pu)
	require.Empty(t, warnings)
}
