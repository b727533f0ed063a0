// Package review runs the two review operations against an opened model:
// reporting where matching elements sit in the hierarchy, and hiding them
// before exporting the rest.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lthms/bimscan/internal/hierarchy"
	"github.com/lthms/bimscan/internal/host"
)

// ErrModelNotFound is returned when the model file does not exist.
var ErrModelNotFound = errors.New("model file not found")

// Options controls report construction.
type Options struct {
	RootTitle string
	Extract   hierarchy.ExtractOptions
}

// Report is the result of Analyze.
type Report struct {
	Term  string
	Found int
	Tree  *hierarchy.Node
	Lines []string
}

// Text joins the rendered lines.
func (r *Report) Text() string {
	return strings.Join(r.Lines, "\n")
}

// WithDocument checks that model exists, opens it on h and calls fn. The
// host is closed afterwards regardless of the outcome.
func WithDocument(ctx context.Context, h host.Host, model string, fn func(host.Document) error) error {
	defer func() {
		if err := h.Close(); err != nil {
			slog.Warn("close host failed", "error", err)
		}
	}()

	if _, err := os.Stat(model); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, model)
		}
		return fmt.Errorf("stat model: %w", err)
	}

	slog.Info("opening model", "path", model)
	start := time.Now()
	doc, err := h.Open(ctx, model)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	slog.Info("model loaded", "elapsed", time.Since(start).Round(time.Millisecond))

	return fn(doc)
}

// Analyze searches doc for term and builds the hierarchy report.
func Analyze(ctx context.Context, doc host.Document, term string, opts Options) (*Report, error) {
	found, err := doc.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	slog.Debug("search complete", "term", term, "found", len(found))

	paths, err := hierarchy.ExtractAll(host.Items(found), opts.Extract)
	if err != nil {
		return nil, err
	}

	title := opts.RootTitle
	if title == "" {
		title = hierarchy.DefaultTitle
	}
	tree := hierarchy.Aggregate(title, paths)

	return &Report{
		Term:  term,
		Found: len(found),
		Tree:  tree,
		Lines: hierarchy.Render(tree),
	}, nil
}
