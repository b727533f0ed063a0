package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lthms/bimscan/internal/history"
	"github.com/lthms/bimscan/internal/host"
	"github.com/lthms/bimscan/internal/review"
)

var errNoModel = errors.New("no model file given: pass --model or set model in the config")

// OptimizeCmd hides elements matching a term and exports the model.
type OptimizeCmd struct {
	Term      string `arg:"" optional:"" help:"Substring to match against element names (default from config)."`
	Exporter  string `help:"Exporter plugin id (default from config)."`
	OutputDir string `name:"output-dir" type:"path" help:"Directory for the exported file (default: next to the model)."`
}

// Run hides matches, disables hidden-element export and exports to a
// timestamped file.
func (cmd *OptimizeCmd) Run(ctx context.Context, env *runEnv) error {
	cfg := env.cfg
	term := firstNonEmpty(cmd.Term, cfg.Search.DefaultTerm)
	if cfg.Model == "" {
		return errNoModel
	}
	opts := review.ExportOptions{
		Exporter: firstNonEmpty(cmd.Exporter, cfg.Export.Exporter),
		Output: review.OutputPath(cfg.Model,
			firstNonEmpty(cmd.OutputDir, cfg.Export.OutputDir),
			cfg.Export.Extension, time.Now()),
	}

	h, err := env.newHost(cfg)
	if err != nil {
		return err
	}

	env.console.Heading("Optimize: hiding %q in %s and exporting", term, cfg.Model)

	var res *review.ExportResult
	err = review.WithDocument(ctx, h, cfg.Model, func(doc host.Document) error {
		var err error
		res, err = review.Optimize(ctx, doc, term, opts)
		return err
	})

	run := history.Run{Mode: "optimize", Term: term, Model: cfg.Model, Output: opts.Output, Status: "ok"}
	if err != nil {
		run.Status, run.Error = "failed", err.Error()
		env.record(run)
		return err
	}
	run.Found = res.Hidden
	env.record(run)

	if res.Hidden > 0 {
		env.console.Line(fmt.Sprintf("Hid %d elements matching %q.", res.Hidden, term))
	} else {
		env.console.Warn("No elements matching %q; exported the original model.", term)
	}
	if !res.OptionsApplied {
		env.console.Warn("Could not set the exporter to skip hidden elements; the host's defaults apply.")
	}
	env.console.Success("Optimized model saved to %s", res.Output)
	return nil
}
