package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lthms/bimscan/internal/history"
)

// HistoryCmd lists recent runs.
type HistoryCmd struct {
	Limit int `short:"n" default:"20" help:"Number of runs to list."`
}

// Run prints one line per run, newest first.
func (cmd *HistoryCmd) Run(ctx context.Context, env *runEnv) error {
	store, err := env.history()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	runs, err := store.Recent(cmd.Limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		env.console.Warn("No runs recorded yet.")
		return nil
	}
	for _, r := range runs {
		env.console.Line(formatRunLine(r))
	}
	return nil
}

func formatRunLine(r history.Run) string {
	status := r.Status
	if r.Status == "failed" {
		status = "FAILED"
	}
	return fmt.Sprintf("%s  %s  %-8s  %-6s  %4d  %q  %s",
		shortID(r.ID), r.CreatedAt.Local().Format(time.DateTime), r.Mode, status, r.Found, r.Term, r.Model)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ShowCmd prints a single run.
type ShowCmd struct {
	ID string `arg:"" help:"Run id or unique id prefix."`
}

// Run prints the run's details and stored report.
func (cmd *ShowCmd) Run(ctx context.Context, env *runEnv) error {
	store, err := env.history()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	r, err := store.Get(cmd.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "id:      %s\n", r.ID)
	fmt.Fprintf(&sb, "time:    %s\n", r.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&sb, "mode:    %s\n", r.Mode)
	fmt.Fprintf(&sb, "term:    %s\n", r.Term)
	fmt.Fprintf(&sb, "model:   %s\n", r.Model)
	fmt.Fprintf(&sb, "found:   %d\n", r.Found)
	if r.Output != "" {
		fmt.Fprintf(&sb, "output:  %s\n", r.Output)
	}
	fmt.Fprintf(&sb, "status:  %s", r.Status)
	if r.Error != "" {
		fmt.Fprintf(&sb, "\nerror:   %s", r.Error)
	}
	env.console.Line(sb.String())

	if r.Report != "" {
		env.console.Line("")
		env.console.Line(r.Report)
	}
	return nil
}
