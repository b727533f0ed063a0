package hierarchy

import (
	"errors"
	"fmt"
	"slices"
)

// MaxDepth bounds the ancestry walk. A chain longer than this is treated as
// cyclic.
const MaxDepth = 4096

// ErrAncestryTooDeep is returned when an item's parent chain does not reach
// a root within MaxDepth steps.
var ErrAncestryTooDeep = errors.New("hierarchy: ancestry chain too deep")

// Item is a located model element.
//
// Parent must return an untyped nil when the element has no parent, not a
// typed nil pointer wrapped in the interface.
type Item interface {
	DisplayName() string
	Parent() Item
	IsRoot() bool
}

// ExtractOptions tunes the ancestry walk.
type ExtractOptions struct {
	// KeepTopLevel also records the name of the element directly under the
	// synthetic root. By default that name is dropped.
	KeepTopLevel bool
}

// Extract returns the names along item's ancestry, top-level first and item
// last.
//
// With default options a name is only recorded while the current element's
// parent exists and is not the root, so an item sitting directly under the
// root yields an empty path and the top-level container never appears.
func Extract(item Item, opts ExtractOptions) ([]string, error) {
	var parts []string
	current := item
	for steps := 0; current != nil; steps++ {
		if steps >= MaxDepth {
			return nil, fmt.Errorf("%w: gave up at %q after %d steps", ErrAncestryTooDeep, current.DisplayName(), steps)
		}

		parent := current.Parent()
		if opts.KeepTopLevel {
			if current.IsRoot() {
				break
			}
		} else if parent == nil || parent.IsRoot() {
			break
		}

		parts = append(parts, current.DisplayName())
		current = parent
	}
	slices.Reverse(parts)
	return parts, nil
}

// ExtractAll runs Extract over every item, preserving input order.
func ExtractAll(items []Item, opts ExtractOptions) ([][]string, error) {
	paths := make([][]string, 0, len(items))
	for i, item := range items {
		p, err := Extract(item, opts)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
