// Package snapshot implements a host over a YAML dump of a model's element
// tree. The top-level node of the file is the model itself and acts as the
// synthetic root.
//
//	name: site.nwd
//	children:
//	  - name: Site
//	    children:
//	      - name: Level 1
//	        children:
//	          - name: 电机-01
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lthms/bimscan/internal/host"
)

// DefaultExporters are the exporter ids a snapshot host accepts when none
// are configured.
var DefaultExporters = []string{"lcfbx_exporter.fbx"}

// Node is one element in a snapshot file.
type Node struct {
	Name     string  `yaml:"name"`
	ID       string  `yaml:"id,omitempty"`
	Hidden   bool    `yaml:"hidden,omitempty"`
	Children []*Node `yaml:"children,omitempty"`
}

// Host opens snapshot files. Every opened document keeps its own state.
type Host struct {
	exporters []string

	mu     sync.Mutex
	closed bool
}

// New returns a snapshot host accepting the given exporter ids.
func New(exporters ...string) *Host {
	if len(exporters) == 0 {
		exporters = DefaultExporters
	}
	return &Host{exporters: exporters}
}

// Open parses the snapshot at path.
func (h *Host) Open(ctx context.Context, path string) (host.Document, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, host.ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var root Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	doc := newDocument(h, &root, h.exporters)
	slog.Debug("snapshot opened", "path", path, "elements", len(doc.order))
	return doc, nil
}

// Close marks the host closed; documents stop answering afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Document is an opened snapshot.
type Document struct {
	host    *Host
	root    *Node
	nodes   map[string]*Node
	elems   map[string]*host.Element
	order   []string // element ids in pre-order, root excluded
	options map[string][]string
}

func newDocument(h *Host, root *Node, exporters []string) *Document {
	d := &Document{
		host:    h,
		root:    root,
		nodes:   make(map[string]*Node),
		elems:   make(map[string]*host.Element),
		options: make(map[string][]string),
	}
	for _, id := range exporters {
		d.options[id] = []string{"export_hidden", "1"}
	}

	if root.ID == "" {
		root.ID = "0"
	}
	rootElem := host.NewRoot(root.ID, root.Name)
	d.nodes[root.ID] = root
	d.elems[root.ID] = rootElem
	d.index(root, rootElem)
	return d
}

func (d *Document) index(n *Node, parent *host.Element) {
	for i, c := range n.Children {
		if c.ID == "" {
			c.ID = parent.ID + "/" + strconv.Itoa(i)
		}
		e := host.NewElement(c.ID, c.Name, parent)
		d.nodes[c.ID] = c
		d.elems[c.ID] = e
		d.order = append(d.order, c.ID)
		d.index(c, e)
	}
}

// Search returns elements whose name contains term, in document order.
func (d *Document) Search(ctx context.Context, term string) ([]*host.Element, error) {
	if d.host.isClosed() {
		return nil, host.ErrNotOpen
	}
	var found []*host.Element
	for _, id := range d.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.Contains(d.nodes[id].Name, term) {
			found = append(found, d.elems[id])
		}
	}
	return found, nil
}

// SetHidden flags the given elements. Hiding an element hides its subtree
// on export.
func (d *Document) SetHidden(ctx context.Context, elems []*host.Element, hidden bool) error {
	if d.host.isClosed() {
		return host.ErrNotOpen
	}
	for _, e := range elems {
		n, ok := d.nodes[e.ID]
		if !ok {
			return fmt.Errorf("unknown element %q", e.ID)
		}
		n.Hidden = hidden
	}
	return nil
}

func (d *Document) HasExporter(ctx context.Context, id string) (bool, error) {
	if d.host.isClosed() {
		return false, host.ErrNotOpen
	}
	_, ok := d.options[id]
	return ok, nil
}

func (d *Document) PluginOptions(ctx context.Context, exporter string) ([]string, error) {
	opts, ok := d.options[exporter]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrExporterNotFound, exporter)
	}
	return append([]string(nil), opts...), nil
}

func (d *Document) SetPluginOptions(ctx context.Context, exporter string, opts []string) error {
	if _, ok := d.options[exporter]; !ok {
		return fmt.Errorf("%w: %s", host.ErrExporterNotFound, exporter)
	}
	if len(opts)%2 != 0 {
		return fmt.Errorf("options must be key/value pairs, got %d entries", len(opts))
	}
	d.options[exporter] = append([]string(nil), opts...)
	return nil
}

// Export writes the model as YAML. Hidden subtrees are dropped when the
// exporter's export_hidden option is "0" and kept, flagged, otherwise.
func (d *Document) Export(ctx context.Context, path, exporter string) error {
	if d.host.isClosed() {
		return host.ErrNotOpen
	}
	opts, ok := d.options[exporter]
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrExporterNotFound, exporter)
	}

	out := d.root
	if !exportHidden(opts) {
		out = prune(d.root)
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func exportHidden(opts []string) bool {
	for i := 0; i+1 < len(opts); i += 2 {
		if strings.EqualFold(opts[i], "export_hidden") {
			return opts[i+1] != "0"
		}
	}
	return true
}

// prune copies n without hidden descendants.
func prune(n *Node) *Node {
	cp := &Node{Name: n.Name, ID: n.ID}
	for _, c := range n.Children {
		if c.Hidden {
			continue
		}
		cp.Children = append(cp.Children, prune(c))
	}
	return cp
}
