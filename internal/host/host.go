// Package host describes the CAD/BIM review application as a set of
// capabilities: open a model, search it, hide elements and export.
package host

import (
	"context"
	"errors"

	"github.com/lthms/bimscan/internal/hierarchy"
)

var (
	// ErrExporterNotFound is returned when the host has no exporter with the
	// requested id.
	ErrExporterNotFound = errors.New("host: exporter not found")

	// ErrNotOpen is returned by documents whose host has been closed.
	ErrNotOpen = errors.New("host: document is not open")
)

// Host is a running review application.
type Host interface {
	// Open loads a model and blocks until the host reports it is ready.
	Open(ctx context.Context, path string) (Document, error)
	// Close shuts the host down. Safe to call more than once.
	Close() error
}

// Document is a loaded model.
type Document interface {
	// Search returns every element whose display name contains term.
	Search(ctx context.Context, term string) ([]*Element, error)
	SetHidden(ctx context.Context, elems []*Element, hidden bool) error
	HasExporter(ctx context.Context, id string) (bool, error)
	// PluginOptions returns the exporter's options as a flat
	// key, value, key, value list.
	PluginOptions(ctx context.Context, exporter string) ([]string, error)
	SetPluginOptions(ctx context.Context, exporter string, opts []string) error
	Export(ctx context.Context, path, exporter string) error
}

// Element is a model item as seen by the host. Elements link to their
// parent; the chain ends at the synthetic model root.
type Element struct {
	ID     string
	Name   string
	Root   bool
	parent *Element
}

// NewRoot returns the synthetic root element of a model.
func NewRoot(id, name string) *Element {
	return &Element{ID: id, Name: name, Root: true}
}

// NewElement returns an element attached under parent. parent may be nil.
func NewElement(id, name string, parent *Element) *Element {
	return &Element{ID: id, Name: name, parent: parent}
}

func (e *Element) DisplayName() string { return e.Name }
func (e *Element) IsRoot() bool        { return e.Root }

// Parent implements hierarchy.Item.
func (e *Element) Parent() hierarchy.Item {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// Items converts elements for use with the hierarchy package.
func Items(elems []*Element) []hierarchy.Item {
	items := make([]hierarchy.Item, len(elems))
	for i, e := range elems {
		items[i] = e
	}
	return items
}

// IDs returns the element ids in order.
func IDs(elems []*Element) []string {
	ids := make([]string, len(elems))
	for i, e := range elems {
		ids[i] = e.ID
	}
	return ids
}
