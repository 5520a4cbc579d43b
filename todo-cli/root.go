package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"prism-todo/client"
	"prism-todo/domain"
	"prism-todo/tui"
)

// app carries what the commands need from the environment.
type app struct {
	apiURL        string
	timeout       time.Duration
	isInteractive func() bool
	confirm       func(title string) (bool, error)
}

func (a *app) controller() *client.Controller {
	return client.NewController(client.New(a.apiURL))
}

// run executes fn with the request timeout and turns a failure into the
// message the controller recorded for it.
func (a *app) run(ctrl *client.Controller, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		if msg := ctrl.Snapshot().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "todo-cli",
		Short:         "Manage todos from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.isInteractive() {
				return listTodos(cmd.OutOrStdout(), a)
			}
			return tui.Run(context.Background(), a.controller())
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", a.apiURL, "Base URL of the todo API")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", a.timeout, "Request timeout for one-shot commands")

	root.AddCommand(
		newListCmd(a),
		newAddCmd(a),
		newDoneCmd(a),
		newEditCmd(a),
		newRmCmd(a),
	)
	return root
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List todos, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTodos(cmd.OutOrStdout(), a)
		},
	}
}

func listTodos(out io.Writer, a *app) error {
	ctrl := a.controller()
	if err := a.run(ctrl, ctrl.Refresh); err != nil {
		return err
	}
	state := ctrl.Snapshot()
	if len(state.Todos) == 0 {
		fmt.Fprintln(out, "No todos yet.")
		return nil
	}
	for _, t := range state.Todos {
		line := tui.Line(t.Completed, t.Title) + "  " + t.ID
		if t.Description != "" {
			line += "\n    " + t.Description
		}
		fmt.Fprintln(out, line)
	}
	done, _ := state.Stats()
	fmt.Fprintf(out, "\n%s %d/%d done\n", tui.ProgressBar(done, len(state.Todos), 20), done, len(state.Todos))
	return nil
}

func newAddCmd(a *app) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTitle(args[0]); err != nil {
				return err
			}
			ctrl := a.controller()
			var todo domain.Todo
			err := a.run(ctrl, func(ctx context.Context) (err error) {
				todo, err = ctrl.Create(ctx, args[0], description)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success("added "+todo.ID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Optional description")
	return cmd
}

func newDoneCmd(a *app) *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a todo completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			completed := !undo
			ctrl := a.controller()
			var todo domain.Todo
			err := a.run(ctrl, func(ctx context.Context) (err error) {
				todo, err = ctrl.Update(ctx, args[0], domain.TodoPatch{Completed: &completed})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Line(todo.Completed, todo.Title))
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark the todo pending again")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a todo's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.TodoPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if patch.Empty() {
				return errors.New("nothing to change: pass --title or --description")
			}
			if err := patch.Validate(); err != nil {
				return err
			}
			ctrl := a.controller()
			var todo domain.Todo
			err := a.run(ctrl, func(ctx context.Context) (err error) {
				todo, err = ctrl.Update(ctx, args[0], patch)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success("updated "+todo.Title))
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !yes {
				if !a.isInteractive() {
					return errors.New("refusing to delete without confirmation: pass --yes")
				}
				ok, err := a.confirm(fmt.Sprintf("Delete todo %s?", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
					return nil
				}
			}
			ctrl := a.controller()
			if err := a.run(ctrl, func(ctx context.Context) error { return ctrl.Delete(ctx, id) }); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success("deleted "+id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirmPrompt asks a yes/no question on the terminal.
func confirmPrompt(title string) (bool, error) {
	var result bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&result),
		),
	).WithShowHelp(false)
	if err := form.Run(); err != nil {
		return false, err
	}
	return result, nil
}
