package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lthms/bimscan/internal/history"
	"github.com/lthms/bimscan/internal/host"
	"github.com/lthms/bimscan/internal/review"
)

// AnalyzeCmd reports the hierarchy of elements matching a term.
type AnalyzeCmd struct {
	Term         string `arg:"" optional:"" help:"Substring to match against element names (default from config)."`
	JSON         bool   `name:"json" help:"Print the aggregated tree as JSON."`
	KeepTopLevel bool   `name:"keep-top-level" help:"Include the top-level container under the model root in each path."`
}

// Run opens the model, searches it and prints the report.
func (cmd *AnalyzeCmd) Run(ctx context.Context, env *runEnv) error {
	cfg := env.cfg
	term := firstNonEmpty(cmd.Term, cfg.Search.DefaultTerm)
	if cfg.Model == "" {
		return errNoModel
	}
	opts := review.Options{
		RootTitle: cfg.Search.RootTitle,
		Extract:   cfg.extractOptions(),
	}
	if cmd.KeepTopLevel {
		opts.Extract.KeepTopLevel = true
	}

	h, err := env.newHost(cfg)
	if err != nil {
		return err
	}

	env.console.Heading("Analyze: searching %q in %s", term, cfg.Model)

	var report *review.Report
	err = review.WithDocument(ctx, h, cfg.Model, func(doc host.Document) error {
		var err error
		report, err = review.Analyze(ctx, doc, term, opts)
		return err
	})

	run := history.Run{Mode: "analyze", Term: term, Model: cfg.Model, Status: "ok"}
	if err != nil {
		run.Status, run.Error = "failed", err.Error()
		env.record(run)
		return err
	}
	run.Found = report.Found
	run.Report = report.Text()
	env.record(run)

	if cmd.JSON {
		out, err := json.MarshalIndent(report.Tree, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		env.console.Line(string(out))
		return nil
	}

	if report.Found == 0 {
		env.console.Warn("No elements with a name containing %q were found.", term)
		return nil
	}
	env.console.Success("Found %d elements matching %q. Hierarchy:", report.Found, term)
	for _, line := range report.Lines {
		env.console.Line(line)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
