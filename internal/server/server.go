// Package server exposes the task engine over MCP. Thin glue only: decode
// tool arguments, call the engine, encode structured results.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/engine"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/logging"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

const serverName = "atlas-tasks"

// Server registers the task tools on an MCP server and serves them over
// stdio.
type Server struct {
	store       task.Store
	validator   *engine.Validator
	transitions *engine.TransitionService
	processor   *engine.Processor
	defaultMode engine.Mode
	version     string
	log         zerolog.Logger
}

// New wires a server from explicitly constructed services.
func New(store task.Store, validator *engine.Validator, transitions *engine.TransitionService, processor *engine.Processor, defaultMode engine.Mode, version string) *Server {
	return &Server{
		store:       store,
		validator:   validator,
		transitions: transitions,
		processor:   processor,
		defaultMode: defaultMode,
		version:     version,
		log:         logging.Component("server"),
	}
}

// Run serves the tools over stdio until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: s.version}, nil)
	s.register(srv)
	s.log.Info().Str("server", serverName).Msg("serving MCP tools on stdio")
	session, err := srv.Connect(ctx, &mcp.StdioTransport{}, nil)
	if err != nil {
		return fmt.Errorf("connect stdio session: %w", err)
	}
	return session.Wait()
}

func (s *Server) register(srv *mcp.Server) {
	srv.AddTool(&mcp.Tool{
		Name:        "atlas_task_validate",
		Description: "Validate a task's dependencies against existence, status, and cycles",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"path"},
			"properties": map[string]any{
				"path":         map[string]any{"type": "string"},
				"dependencies": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"mode":         map[string]any{"type": "string", "enum": []string{"strict", "lenient", "deferred"}},
			},
		},
	}, s.handleValidate)

	srv.AddTool(&mcp.Tool{
		Name:        "atlas_task_transition",
		Description: "Validate and apply a task status transition",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"path", "status"},
			"properties": map[string]any{
				"path":   map[string]any{"type": "string"},
				"status": map[string]any{"type": "string"},
				"reason": map[string]any{"type": "string"},
			},
		},
	}, s.handleTransition)

	srv.AddTool(&mcp.Tool{
		Name:        "atlas_task_batch",
		Description: "Apply a batch of task mutations in dependency order with per-item outcomes",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"items"},
			"properties": map[string]any{
				"items": map[string]any{"type": "array"},
			},
		},
	}, s.handleBatch)

	srv.AddTool(&mcp.Tool{
		Name:        "atlas_task_get",
		Description: "Fetch one task by path",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"path"},
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
	}, s.handleGet)

	srv.AddTool(&mcp.Tool{
		Name:        "atlas_task_list",
		Description: "List tasks matching a path pattern",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{"type": "string"},
			},
		},
	}, s.handleList)
}

type validateParams struct {
	Path         string   `json:"path"`
	Dependencies []string `json:"dependencies"`
	Mode         string   `json:"mode"`
}

func (s *Server) handleValidate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params validateParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	t, err := s.store.GetTask(ctx, params.Path)
	if err != nil {
		return nil, err
	}
	mode := s.defaultMode
	if params.Mode != "" {
		if mode, err = engine.ParseMode(params.Mode); err != nil {
			return nil, err
		}
	}
	deps := params.Dependencies
	if deps == nil {
		deps = t.Dependencies
	}
	result, err := s.validator.ValidateDependencies(ctx, t, deps, mode)
	if err != nil {
		return nil, err
	}
	return jsonResult(result)
}

type transitionParams struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *Server) handleTransition(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params transitionParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	t, err := s.store.GetTask(ctx, params.Path)
	if err != nil {
		return nil, err
	}
	status, err := task.ParseStatus(params.Status)
	if err != nil {
		return nil, err
	}
	tr, err := s.transitions.ValidateTransition(ctx, t, status)
	if err != nil {
		return nil, err
	}
	warnings, parentUpdate, err := s.transitions.ValidateParentChildStatus(ctx, t, tr.Status)
	if err != nil {
		return nil, err
	}
	updated, err := s.transitions.ApplyTransition(ctx, t, tr, params.Reason, "")
	if err != nil {
		return nil, err
	}
	out := struct {
		Transition   engine.Transition    `json:"transition"`
		Task         *task.Task           `json:"task"`
		Warnings     []string             `json:"warnings,omitempty"`
		ParentUpdate *engine.ParentUpdate `json:"parent_update,omitempty"`
	}{tr, updated, warnings, parentUpdate}
	if parentUpdate != nil {
		if _, _, err := s.transitions.ApplyParentUpdate(ctx, *parentUpdate); err != nil {
			s.log.Warn().Err(err).Str("parent", parentUpdate.Path).Msg("parent completion propagation failed")
		}
	}
	return jsonResult(out)
}

type batchParams struct {
	Items []engine.BatchItem `json:"items"`
}

func (s *Server) handleBatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := ValidateBatchPayload(req.Params.Arguments); err != nil {
		return nil, err
	}
	var params batchParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	result, err := s.processor.Execute(ctx, params.Items)
	if err != nil {
		return nil, err
	}
	return jsonResult(result)
}

type getParams struct {
	Path string `json:"path"`
}

func (s *Server) handleGet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params getParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	t, err := s.store.GetTask(ctx, params.Path)
	if err != nil {
		return nil, err
	}
	return jsonResult(t)
}

type listParams struct {
	Pattern string `json:"pattern"`
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params listParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	tasks, err := s.store.GetTasksByPattern(ctx, params.Pattern)
	if err != nil {
		return nil, err
	}
	return jsonResult(tasks)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}
