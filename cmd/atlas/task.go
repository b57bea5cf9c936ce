package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskStatusCmd())
	cmd.AddCommand(taskDepsCmd())
	cmd.AddCommand(taskDeleteCmd())
	return cmd
}

func taskAddCmd() *cobra.Command {
	var title string
	var deps []string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			if path == "" {
				return fmt.Errorf("task path is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			svc := newServices(cfg, store)
			ctx := cmd.Context()
			t := &task.Task{Path: path, Title: title, Dependencies: deps}
			result, err := svc.validator.ValidateDependencies(ctx, t, deps, svc.mode)
			if err != nil {
				return err
			}
			for _, w := range result.Warnings {
				log.Warn().Msg(w)
			}
			if !result.Valid {
				for _, ve := range result.Errors {
					log.Error().Str("path", ve.Path).Msg(ve.Message)
				}
				return fmt.Errorf("dependency validation failed for %s", path)
			}
			if err := store.CreateTask(ctx, t); err != nil {
				return err
			}
			log.Info().Msgf("task %s added", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringArrayVar(&deps, "dep", nil, "dependency task path (repeatable)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var pattern string
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := store.GetTasksByPattern(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				log.Info().Msg("no tasks")
				return nil
			}
			for _, item := range items {
				if status != "" && string(item.Status) != status {
					continue
				}
				deps := "-"
				if len(item.Dependencies) > 0 {
					deps = strings.Join(item.Dependencies, ",")
				}
				_, _ = io.WriteString(os.Stdout, fmt.Sprintf("%s\t%s\t%s\t%s\n", item.Path, item.Status, deps, item.Title))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "**", "path pattern filter")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|in_progress|completed|blocked|cancelled)")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <path>",
		Short: "Show a task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := store.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return fmt.Errorf("encode task: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func taskStatusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <path> <status>",
		Short: "Transition a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			svc := newServices(cfg, store)
			ctx := cmd.Context()
			t, err := store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			requested, err := task.ParseStatus(args[1])
			if err != nil {
				return err
			}
			tr, err := svc.transitions.ValidateTransition(ctx, t, requested)
			if err != nil {
				return err
			}
			warnings, parentUpdate, err := svc.transitions.ValidateParentChildStatus(ctx, t, tr.Status)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				log.Warn().Msg(w)
			}
			if _, err := svc.transitions.ApplyTransition(ctx, t, tr, reason, ""); err != nil {
				return err
			}
			if tr.AutoTransition {
				log.Warn().Msgf("task %s auto-transitioned to %s", t.Path, tr.Status)
			} else {
				log.Info().Msgf("task %s is now %s", t.Path, tr.Status)
			}
			if parentUpdate != nil {
				if _, effect, err := svc.transitions.ApplyParentUpdate(ctx, *parentUpdate); err != nil {
					log.Warn().Err(err).Msgf("failed to complete parent %s", parentUpdate.Path)
				} else if effect != nil {
					log.Info().Msgf("parent %s completed: %s", effect.Path, effect.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the status audit metadata")
	return cmd
}

func taskDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <path>",
		Short: "Show a task's dependencies and dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			t, err := store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			dependents, err := task.Dependents(ctx, store, args[0])
			if err != nil {
				return err
			}
			for _, dep := range t.Dependencies {
				status := "missing"
				if depTask, err := store.GetTask(ctx, dep); err == nil {
					status = string(depTask.Status)
				}
				_, _ = io.WriteString(os.Stdout, fmt.Sprintf("depends on\t%s\t%s\n", dep, status))
			}
			for _, dep := range dependents {
				_, _ = io.WriteString(os.Stdout, fmt.Sprintf("required by\t%s\n", dep))
			}
			if len(t.Dependencies) == 0 && len(dependents) == 0 {
				log.Info().Msgf("task %s has no dependency links", args[0])
			}
			return nil
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			if !force {
				dependents, err := task.Dependents(ctx, store, args[0])
				if err != nil {
					return err
				}
				if len(dependents) > 0 {
					return fmt.Errorf("task %s is a dependency of: %s (use --force to delete anyway)", args[0], strings.Join(dependents, ", "))
				}
			}
			if err := store.DeleteTask(ctx, args[0]); err != nil {
				return err
			}
			log.Info().Msgf("task %s deleted", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete even if other tasks depend on it")
	return cmd
}
