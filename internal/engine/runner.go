package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/logging"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

// ProcessorOptions configures the unified batch processor.
type ProcessorOptions struct {
	MaxBatchSize int
	Mode         Mode
	StopOnError  bool
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultProcessorOptions returns the built-in batch limits.
func DefaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{
		MaxBatchSize: 100,
		Mode:         ModeStrict,
		MaxRetries:   3,
		RetryDelay:   100 * time.Millisecond,
	}
}

// Processor orchestrates multi-task batch operations: shape validation,
// dependency-respecting ordering, per-item execution with isolation, and
// result aggregation.
type Processor struct {
	store       task.Store
	validator   *Validator
	transitions *TransitionService
	opts        ProcessorOptions
	base        baseProcessor
	log         zerolog.Logger
}

// NewProcessor wires the processor from its collaborators. Non-positive
// limits fall back field by field to the defaults; MaxRetries zero is
// meaningful and kept.
func NewProcessor(store task.Store, validator *Validator, transitions *TransitionService, opts ProcessorOptions) *Processor {
	def := DefaultProcessorOptions()
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = def.MaxBatchSize
	}
	if opts.Mode == "" {
		opts.Mode = def.Mode
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	logger := logging.Component("batch")
	return &Processor{
		store:       store,
		validator:   validator,
		transitions: transitions,
		opts:        opts,
		base: baseProcessor{
			maxRetries: opts.MaxRetries,
			delay:      opts.RetryDelay,
			log:        logger,
		},
		log: logger,
	}
}

// Execute runs the batch. Shape violations (empty or oversized batch,
// items without an id, duplicate ids, a cycle among the batch's own items)
// fail the whole call; everything else is isolated per item and reported
// in the result.
func (p *Processor) Execute(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	start := time.Now()

	if err := validateShape(items, p.opts.MaxBatchSize); err != nil {
		return nil, err
	}

	res := &BatchResult{
		Metadata: BatchMetadata{BatchID: uuid.NewString()},
	}
	p.prevalidate(ctx, items, res)

	sorted, err := sortItems(items)
	if err != nil {
		return nil, err
	}

	for _, item := range sorted {
		itemRes, itemErr := p.base.runItem(ctx, item.ID, func(ctx context.Context) (BatchItemResult, error) {
			return p.applyItem(ctx, res.Metadata.BatchID, item)
		})
		if itemErr != nil {
			if e, ok := AsError(itemErr); ok {
				itemRes.Err = e
			} else {
				itemRes.Err = executionError(itemErr, "process %s", item.ID)
			}
			itemRes.Success = false
			itemRes.Path = item.ID
		}
		res.Results = append(res.Results, itemRes)
		if !itemRes.Success && p.opts.StopOnError {
			p.log.Warn().Str("item", item.ID).Msg("stopping batch on first error")
			break
		}
	}

	p.aggregate(res)
	res.Metadata.ProcessingTimeMS = time.Since(start).Milliseconds()
	return res, nil
}

// validateShape rejects batches the processor cannot meaningfully order or
// attribute results to. All shape problems are reported at once.
func validateShape(items []BatchItem, maxSize int) *Error {
	if len(items) == 0 {
		return inputErrorf("batch is empty")
	}
	if len(items) > maxSize {
		return inputErrorf("batch size %d exceeds maximum of %d", len(items), maxSize)
	}
	var problems []string
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			problems = append(problems, fmt.Sprintf("item %d has no id", i))
			continue
		}
		if seen[item.ID] {
			problems = append(problems, fmt.Sprintf("duplicate item id %s", item.ID))
		}
		seen[item.ID] = true
	}
	if len(problems) > 0 {
		return inputErrorf("invalid batch: %s", strings.Join(problems, "; "))
	}
	return nil
}

// prevalidate runs dependency validation for every item referencing an
// existing task, accumulating all error strings instead of stopping at the
// first.
func (p *Processor) prevalidate(ctx context.Context, items []BatchItem, res *BatchResult) {
	for _, item := range items {
		t, err := p.store.GetTask(ctx, item.ID)
		if err != nil {
			if !errors.Is(err, task.ErrNotFound) {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			}
			continue
		}
		deps := item.depList()
		if deps == nil {
			deps = t.Dependencies
		}
		vr, err := p.validator.ValidateDependencies(ctx, t, deps, p.opts.Mode)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			continue
		}
		for _, ve := range vr.Errors {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", item.ID, ve.Message))
		}
	}
}

// sortItems orders the batch so every item runs after the items it depends
// on. Dependencies pointing outside the batch are ignored; a back-edge
// among the batch's own items is an ordering error for the whole call,
// distinct from persisted-graph cycle detection. Items with no ordering
// relationship keep input order.
func sortItems(items []BatchItem) ([]BatchItem, *Error) {
	const (
		white = iota
		gray
		black
	)
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}
	color := make([]int, len(items))
	order := make([]BatchItem, 0, len(items))
	var trail []string

	var visit func(i int) *Error
	visit = func(i int) *Error {
		color[i] = gray
		trail = append(trail, items[i].ID)
		for _, dep := range items[i].depList() {
			j, ok := index[dep]
			if !ok {
				continue
			}
			switch color[j] {
			case gray:
				cycle := append(append([]string{}, trail...), dep)
				return dependencyError(DependencyDetail{
					Type:  DependencyCircular,
					Path:  dep,
					Cycle: cycle,
				}, "circular dependency within batch: %s", strings.Join(cycle, " -> "))
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		trail = trail[:len(trail)-1]
		color[i] = black
		order = append(order, items[i])
		return nil
	}

	for i := range items {
		if color[i] == white {
			if err := visit(i); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// applyItem validates and applies one batch item. Errors are returned for
// the caller to attach to the item's result; warnings and suggestions
// gathered before the failure stay on the returned result.
func (p *Processor) applyItem(ctx context.Context, batchID string, item BatchItem) (BatchItemResult, error) {
	res := BatchItemResult{Path: item.ID}

	t, err := p.store.GetTask(ctx, item.ID)
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			return res, executionError(err, "look up task %s", item.ID)
		}
		return p.createItem(ctx, batchID, item)
	}

	deps := item.depList()
	if deps == nil {
		deps = t.Dependencies
	}
	vr, err := p.validator.ValidateDependencies(ctx, t, deps, p.opts.Mode)
	if err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, vr.Warnings...)
	res.Suggestions = vr.Details.Suggestions
	if !vr.Valid {
		return res, validationFailure(item.ID, vr)
	}

	if item.Data.Status == nil {
		updated, err := p.store.UpdateTask(ctx, item.ID, fieldUpdate(item))
		if err != nil {
			return res, executionError(err, "update task %s", item.ID)
		}
		res.Task = updated
		res.Success = true
		return res, nil
	}

	requested, err := task.ParseStatus(*item.Data.Status)
	if err != nil {
		return res, inputErrorf("item %s: %v", item.ID, err)
	}
	tr, err := p.transitions.ValidateTransition(ctx, t, requested)
	if err != nil {
		return res, err
	}

	warnings, parentUpdate, err := p.transitions.ValidateParentChildStatus(ctx, t, tr.Status)
	if err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, warnings...)

	reason := item.Data.Reason
	if reason == "" && tr.AutoTransition {
		reason = "Blocked by dependencies"
	}
	update := fieldUpdate(item)
	status := tr.Status
	update.Status = &status
	if update.Metadata == nil {
		update.Metadata = map[string]any{}
	}
	for k, v := range AuditMetadata(t, tr, reason, batchID) {
		update.Metadata[k] = v
	}
	updated, err := p.store.UpdateTask(ctx, item.ID, update)
	if err != nil {
		return res, executionError(err, "update task %s", item.ID)
	}
	res.Task = updated
	res.StatusEffects = append(res.StatusEffects, StatusEffect{
		Path:   item.ID,
		From:   t.Status,
		To:     tr.Status,
		Reason: reason,
	})

	if parentUpdate != nil {
		_, effect, err := p.transitions.ApplyParentUpdate(ctx, *parentUpdate)
		if err != nil {
			p.log.Warn().Err(err).Str("parent", parentUpdate.Path).Msg("parent completion propagation failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("failed to propagate completion to parent %s", parentUpdate.Path))
		} else if effect != nil {
			res.StatusEffects = append(res.StatusEffects, *effect)
		}
	}

	res.Success = true
	return res, nil
}

// createItem handles a batch item whose path does not exist yet. Creation
// requires a title; dependency validation runs in deferred mode because
// referenced paths may be created later in the same batch.
func (p *Processor) createItem(ctx context.Context, batchID string, item BatchItem) (BatchItemResult, error) {
	res := BatchItemResult{Path: item.ID}
	if item.Data.Title == nil {
		return res, inputErrorf("task %s does not exist", item.ID)
	}

	newTask := &task.Task{
		Path:         item.ID,
		Title:        *item.Data.Title,
		Status:       task.StatusPending,
		Dependencies: item.depList(),
		Metadata:     map[string]any{task.MetaBatchID: batchID},
	}
	for k, v := range item.Data.Metadata {
		newTask.Metadata[k] = v
	}
	if item.Data.Status != nil {
		status, err := task.ParseStatus(*item.Data.Status)
		if err != nil {
			return res, inputErrorf("item %s: %v", item.ID, err)
		}
		newTask.Status = status
	}

	vr, err := p.validator.ValidateDependencies(ctx, newTask, newTask.Dependencies, ModeDeferred)
	if err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, vr.Warnings...)
	res.Suggestions = vr.Details.Suggestions
	if !vr.Valid {
		return res, validationFailure(item.ID, vr)
	}

	// An initial status is held to the same dependency preconditions as a
	// transition: a task cannot be minted completed over open dependencies,
	// and a started task with blocked or cancelled dependencies comes into
	// existence blocked.
	switch newTask.Status {
	case task.StatusCompleted:
		blocking, err := p.transitions.completionBlockers(ctx, newTask)
		if err != nil {
			return res, err
		}
		if len(blocking) > 0 {
			return res, statusError(StatusDetail{
				Current:   task.StatusPending,
				Requested: task.StatusCompleted,
				Blocking:  blocking,
			}, "cannot create task %s as completed: %s", item.ID, describeBlocking(blocking))
		}
	case task.StatusInProgress:
		blocking, err := p.transitions.startBlockers(ctx, newTask)
		if err != nil {
			return res, err
		}
		if len(blocking) > 0 {
			newTask.Status = task.StatusBlocked
			newTask.Metadata[task.MetaAutoTransition] = true
			newTask.Metadata[task.MetaBlockReason] = "Blocked by dependencies"
		}
	}

	if err := p.store.CreateTask(ctx, newTask); err != nil {
		return res, executionError(err, "create task %s", item.ID)
	}
	created, err := p.store.GetTask(ctx, item.ID)
	if err != nil {
		return res, executionError(err, "read created task %s", item.ID)
	}
	res.Task = created
	res.Success = true
	return res, nil
}

// validationFailure converts a failed ValidationResult into a
// dependency-kind error carrying every message.
func validationFailure(id string, vr *ValidationResult) *Error {
	msgs := make([]string, 0, len(vr.Errors))
	for _, ve := range vr.Errors {
		msgs = append(msgs, ve.Message)
	}
	first := vr.Errors[0]
	return dependencyError(DependencyDetail{
		Type:       first.Type,
		Path:       first.Path,
		Suggestion: first.Suggestion,
	}, "task %s failed dependency validation: %s", id, strings.Join(msgs, "; "))
}

func fieldUpdate(item BatchItem) task.Update {
	update := task.Update{
		Title:        item.Data.Title,
		Dependencies: item.Data.Dependencies,
	}
	if len(item.Data.Metadata) > 0 {
		update.Metadata = make(map[string]any, len(item.Data.Metadata))
		for k, v := range item.Data.Metadata {
			update.Metadata[k] = v
		}
	}
	return update
}

// aggregate fills counters, buckets the failures, and derives
// recommendations.
func (p *Processor) aggregate(res *BatchResult) {
	for _, r := range res.Results {
		if r.Success {
			res.Metadata.SuccessCount++
			continue
		}
		res.Metadata.ErrorCount++
		if r.Err == nil {
			continue
		}
		switch r.Err.Kind {
		case KindDependency:
			res.Summary.DependencyIssues = append(res.Summary.DependencyIssues, r.Err.Msg)
		case KindStatus:
			res.Summary.StatusIssues = append(res.Summary.StatusIssues, r.Err.Msg)
		}
	}

	if len(res.Summary.DependencyIssues) > 0 {
		res.Summary.Recommendations = append(res.Summary.Recommendations, "Review task dependencies before retrying bulk operations")
	}
	if len(res.Summary.StatusIssues) > 0 {
		res.Summary.Recommendations = append(res.Summary.Recommendations, "Check allowed status transitions before retrying")
	}
	if res.Metadata.ErrorCount > 1 {
		res.Summary.Recommendations = append(res.Summary.Recommendations, "Break large batches into smaller updates to isolate failures")
	}
}
