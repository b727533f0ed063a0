package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/lthms/bimscan/internal/hierarchy"
	"github.com/lthms/bimscan/internal/host"
)

const testModel = `name: site.nwd
children:
  - name: Site
    children:
      - name: Level 1
        children:
          - name: 电机-01
          - name: Pump
      - name: Level 2
        children:
          - name: 电机-02
            children:
              - name: Housing
`

func openTestDoc(t *testing.T) (*Host, host.Document) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	if err := os.WriteFile(path, []byte(testModel), 0600); err != nil {
		t.Fatal(err)
	}
	h := New()
	doc, err := h.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h, doc
}

func TestSearch(t *testing.T) {
	_, doc := openTestDoc(t)

	found, err := doc.Search(context.Background(), "电机")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if found[0].Name != "电机-01" || found[1].Name != "电机-02" {
		t.Errorf("unexpected matches: %q, %q", found[0].Name, found[1].Name)
	}

	path, err := hierarchy.Extract(found[0], hierarchy.ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(path, "/") != "Level 1/电机-01" {
		t.Errorf("path = %q", path)
	}
}

func TestSearchNoMatch(t *testing.T) {
	_, doc := openTestDoc(t)
	found, err := doc.Search(context.Background(), "valve")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no matches, got %d", len(found))
	}
}

func TestExportPrunesHidden(t *testing.T) {
	_, doc := openTestDoc(t)
	ctx := context.Background()

	found, _ := doc.Search(ctx, "电机")
	if err := doc.SetHidden(ctx, found, true); err != nil {
		t.Fatal(err)
	}
	if err := doc.SetPluginOptions(ctx, "lcfbx_exporter.fbx", []string{"export_hidden", "0"}); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "out.yaml")
	if err := doc.Export(ctx, out, "lcfbx_exporter.fbx"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "电机") || strings.Contains(string(data), "Housing") {
		t.Errorf("hidden elements leaked into export:\n%s", data)
	}
	var root Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		t.Fatal(err)
	}
	if root.Name != "site.nwd" || len(root.Children) != 1 {
		t.Errorf("unexpected export root: %+v", root)
	}
}

func TestExportKeepsHiddenByDefault(t *testing.T) {
	_, doc := openTestDoc(t)
	ctx := context.Background()

	found, _ := doc.Search(ctx, "Pump")
	doc.SetHidden(ctx, found, true)

	out := filepath.Join(t.TempDir(), "out.yaml")
	if err := doc.Export(ctx, out, "lcfbx_exporter.fbx"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(out)
	if !strings.Contains(string(data), "hidden: true") {
		t.Errorf("expected hidden flag in export:\n%s", data)
	}
}

func TestUnknownExporter(t *testing.T) {
	_, doc := openTestDoc(t)
	ctx := context.Background()

	ok, err := doc.HasExporter(ctx, "nope")
	if err != nil || ok {
		t.Fatalf("HasExporter = %v, %v", ok, err)
	}
	if err := doc.Export(ctx, filepath.Join(t.TempDir(), "x"), "nope"); !errors.Is(err, host.ErrExporterNotFound) {
		t.Fatalf("expected ErrExporterNotFound, got %v", err)
	}
}

func TestClosedHost(t *testing.T) {
	h, doc := openTestDoc(t)
	h.Close()
	if _, err := doc.Search(context.Background(), "x"); !errors.Is(err, host.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}
