package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

// BatchItem is one proposed mutation against one task path. Ephemeral;
// lives only for the duration of one Execute call.
type BatchItem struct {
	ID           string   `json:"id"`
	Data         ItemData `json:"data"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ItemData carries the partial task fields an item applies. A nil field is
// left unchanged; Metadata entries are merged.
type ItemData struct {
	Title        *string        `json:"title,omitempty"`
	Status       *string        `json:"status,omitempty"`
	Dependencies *[]string      `json:"dependencies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// depList returns the dependencies the item declares, falling back to the
// ones inferred from its data.
func (i BatchItem) depList() []string {
	if i.Dependencies != nil {
		return i.Dependencies
	}
	if i.Data.Dependencies != nil {
		return *i.Data.Dependencies
	}
	return nil
}

// BatchItemResult is the per-item outcome, one per input item.
type BatchItemResult struct {
	Path          string              `json:"path"`
	Success       bool                `json:"success"`
	Task          *task.Task          `json:"task,omitempty"`
	Err           *Error              `json:"error,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
	Suggestions   map[string][]string `json:"suggestions,omitempty"`
	StatusEffects []StatusEffect      `json:"status_effects,omitempty"`
}

// BatchMetadata summarizes one batch call.
type BatchMetadata struct {
	BatchID          string `json:"batch_id"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	SuccessCount     int    `json:"success_count"`
	ErrorCount       int    `json:"error_count"`
}

// BatchSummary buckets the accumulated problems and derives
// recommendations for the caller.
type BatchSummary struct {
	DependencyIssues []string `json:"dependency_issues,omitempty"`
	StatusIssues     []string `json:"status_issues,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// BatchResult aggregates per-item results, batch-level validation errors,
// and summary counters. Callers must treat it as partial-success-capable.
type BatchResult struct {
	Results  []BatchItemResult `json:"results"`
	Errors   []string          `json:"errors,omitempty"`
	Metadata BatchMetadata     `json:"metadata"`
	Summary  BatchSummary      `json:"summary"`
}

// baseProcessor is the execution-layer scaffolding under the unified
// processor: per-item retries and panic capture. Retries never change
// validation semantics; only execution-kind failures are retried.
type baseProcessor struct {
	maxRetries int
	delay      time.Duration
	log        zerolog.Logger
}

// runItem executes fn, retrying execution failures with linearly
// increasing delay. The result of the final attempt is returned alongside
// its error so partially filled warnings survive a failure.
func (b *baseProcessor) runItem(ctx context.Context, id string, fn func(context.Context) (BatchItemResult, error)) (BatchItemResult, error) {
	var (
		res BatchItemResult
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = b.runOnce(ctx, id, fn)
		if err == nil {
			return res, nil
		}
		if !IsKind(err, KindExecution) || attempt >= b.maxRetries {
			return res, err
		}
		wait := time.Duration(attempt+1) * b.delay
		b.log.Debug().
			Str("item", id).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Err(err).
			Msg("retrying batch item")
		select {
		case <-ctx.Done():
			return res, executionError(ctx.Err(), "process %s", id)
		case <-time.After(wait):
		}
	}
}

func (b *baseProcessor) runOnce(ctx context.Context, id string, fn func(context.Context) (BatchItemResult, error)) (res BatchItemResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = executionError(fmt.Errorf("panic: %v", rec), "process %s", id)
		}
	}()
	return fn(ctx)
}
