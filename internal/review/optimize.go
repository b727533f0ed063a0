package review

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lthms/bimscan/internal/host"
)

// DefaultExporter is the host's FBX exporter id.
const DefaultExporter = "lcfbx_exporter.fbx"

const exportHiddenKey = "export_hidden"

// ExportOptions controls Optimize.
type ExportOptions struct {
	Exporter string
	Output   string
}

// ExportResult describes a finished Optimize run.
type ExportResult struct {
	Term   string
	Hidden int
	Output string
	// OptionsApplied reports whether the exporter was told to skip hidden
	// elements. When false the host's own default is in effect.
	OptionsApplied bool
}

// Optimize hides every element matching term and exports the model. With
// no matches the model is exported unchanged.
func Optimize(ctx context.Context, doc host.Document, term string, opts ExportOptions) (*ExportResult, error) {
	exporter := opts.Exporter
	if exporter == "" {
		exporter = DefaultExporter
	}

	found, err := doc.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	if len(found) > 0 {
		if err := doc.SetHidden(ctx, found, true); err != nil {
			return nil, fmt.Errorf("hide %d elements: %w", len(found), err)
		}
		slog.Info("elements hidden", "term", term, "count", len(found))
	} else {
		slog.Info("no matching elements, exporting original model", "term", term)
	}

	ok, err := doc.HasExporter(ctx, exporter)
	if err != nil {
		return nil, fmt.Errorf("find exporter: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrExporterNotFound, exporter)
	}

	applied := configureExporter(ctx, doc, exporter)

	if err := doc.Export(ctx, opts.Output, exporter); err != nil {
		return nil, fmt.Errorf("export %s: %w", opts.Output, err)
	}

	return &ExportResult{
		Term:           term,
		Hidden:         len(found),
		Output:         opts.Output,
		OptionsApplied: applied,
	}, nil
}

// configureExporter turns off hidden-element export. Failures are logged
// and leave the host's defaults in place.
func configureExporter(ctx context.Context, doc host.Document, exporter string) bool {
	opts, err := doc.PluginOptions(ctx, exporter)
	if err != nil {
		slog.Warn("read exporter options failed, using host defaults", "exporter", exporter, "error", err)
		return false
	}
	updated, ok := DisableExportHidden(opts)
	if !ok {
		slog.Warn("exporter has no export_hidden option, using host defaults", "exporter", exporter)
		return false
	}
	if err := doc.SetPluginOptions(ctx, exporter, updated); err != nil {
		slog.Warn("set exporter options failed, using host defaults", "exporter", exporter, "error", err)
		return false
	}
	return true
}

// DisableExportHidden finds the first key containing "export_hidden"
// (case-insensitive) in a flat key/value list and sets the value after it
// to "0". It reports false when no such key has a value slot. opts is not
// modified.
func DisableExportHidden(opts []string) ([]string, bool) {
	for i := 0; i+1 < len(opts); i++ {
		if strings.Contains(strings.ToLower(opts[i]), exportHiddenKey) {
			out := append([]string(nil), opts...)
			out[i+1] = "0"
			return out, true
		}
	}
	return opts, false
}

// OutputPath returns <dir>/<model base>_Optimized_<yyyyMMddHHmmss><ext>.
// An empty dir means the model's own directory.
func OutputPath(model, dir, ext string, now time.Time) string {
	if dir == "" {
		dir = filepath.Dir(model)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	base := strings.TrimSuffix(filepath.Base(model), filepath.Ext(model))
	return filepath.Join(dir, fmt.Sprintf("%s_Optimized_%s%s", base, now.Format("20060102150405"), ext))
}
