package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lthms/bimscan/internal/hierarchy"
	"github.com/lthms/bimscan/internal/host"
)

// TestHelperProcess is not a real test. It runs a fake bridge when the test
// binary is re-executed by startFake.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("BIMSCAN_BRIDGE_HELPER") != "1" {
		return
	}
	runFakeBridge(os.Stdin, os.Stdout, os.Getenv("BIMSCAN_BRIDGE_MODE"))
	os.Exit(0)
}

type fakeElem struct {
	id, name, parent string
}

var fakeModel = []fakeElem{
	{"0", "site.nwd", ""},
	{"1", "Site", "0"},
	{"2", "Level 1", "1"},
	{"3", "电机-01", "2"},
	{"4", "Pump", "2"},
	{"5", "Level 2", "1"},
	{"6", "电机-02", "5"},
}

func runFakeBridge(r io.Reader, w io.Writer, mode string) {
	fmt.Fprintln(os.Stderr, "fake bridge up")

	byID := make(map[string]fakeElem)
	for _, e := range fakeModel {
		byID[e.id] = e
	}
	hidden := make(map[string]bool)
	options := map[string][]string{"lcfbx_exporter.fbx": {"Export_Hidden", "1", "units", "mm"}}
	opened := false
	busyPolls := 0

	enc := json.NewEncoder(w)
	reply := func(id uint64, result any, errMsg string) {
		resp := map[string]any{"id": id}
		if result != nil {
			resp["result"] = result
		}
		if errMsg != "" {
			resp["error"] = errMsg
		}
		enc.Encode(resp)
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			continue
		}

		switch req.Method {
		case methodOpen:
			var p openParams
			json.Unmarshal(req.Params, &p)
			if strings.HasSuffix(p.Path, "missing.nwd") {
				reply(req.ID, nil, "file not found")
				continue
			}
			opened = true
			reply(req.ID, nil, "")
		case methodBusy:
			busyPolls++
			reply(req.ID, mode == "hang" || busyPolls < 3, "")
		case methodSearch:
			if !opened {
				reply(req.ID, nil, "no document")
				continue
			}
			var p searchParams
			json.Unmarshal(req.Params, &p)
			found := []foundItem{}
			for _, e := range fakeModel {
				if e.parent == "" || !strings.Contains(e.name, p.Term) {
					continue
				}
				var chain []link
				for cur := e; ; cur = byID[cur.parent] {
					chain = append(chain, link{ID: cur.id, Name: cur.name, Root: cur.parent == ""})
					if cur.parent == "" {
						break
					}
				}
				found = append(found, foundItem{ID: e.id, Chain: chain})
			}
			reply(req.ID, found, "")
		case methodSetHidden:
			var p setHiddenParams
			json.Unmarshal(req.Params, &p)
			for _, id := range p.IDs {
				hidden[id] = p.Hidden
			}
			reply(req.ID, nil, "")
		case methodFindExporter:
			var p exporterParams
			json.Unmarshal(req.Params, &p)
			_, ok := options[p.Exporter]
			reply(req.ID, ok, "")
		case methodGetPluginOptions:
			var p exporterParams
			json.Unmarshal(req.Params, &p)
			reply(req.ID, options[p.Exporter], "")
		case methodSetPluginOptions:
			var p exporterParams
			json.Unmarshal(req.Params, &p)
			options[p.Exporter] = p.Options
			reply(req.ID, nil, "")
		case methodExport:
			var p exportParams
			json.Unmarshal(req.Params, &p)
			var lines []string
			for _, e := range fakeModel {
				if !hidden[e.id] {
					lines = append(lines, e.name)
				}
			}
			lines = append(lines, "options="+strings.Join(options[p.Exporter], ","))
			if err := os.WriteFile(p.Path, []byte(strings.Join(lines, "\n")), 0600); err != nil {
				reply(req.ID, nil, err.Error())
				continue
			}
			reply(req.ID, nil, "")
		case methodClose:
			reply(req.ID, nil, "")
			return
		default:
			reply(req.ID, nil, "unknown method "+req.Method)
		}
	}
}

func startFake(t *testing.T, mode string, openTimeout time.Duration) *Host {
	t.Helper()
	h, err := Start(Config{
		Command:      os.Args[0],
		Args:         []string{"-test.run=^TestHelperProcess$"},
		Env:          []string{"BIMSCAN_BRIDGE_HELPER=1", "BIMSCAN_BRIDGE_MODE=" + mode},
		PollInterval: 5 * time.Millisecond,
		OpenTimeout:  openTimeout,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestOpenWaitsForReady(t *testing.T) {
	h := startFake(t, "", 0)
	ctx := context.Background()

	doc, err := h.Open(ctx, "site.nwd")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	found, err := doc.Search(ctx, "电机")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if found[0].ID != "3" {
		t.Errorf("found[0].ID = %q, want 3", found[0].ID)
	}

	path, err := hierarchy.Extract(found[1], hierarchy.ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(path, "/") != "Level 2/电机-02" {
		t.Errorf("path = %q", path)
	}
}

func TestOpenError(t *testing.T) {
	h := startFake(t, "", 0)
	_, err := h.Open(context.Background(), "missing.nwd")
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("expected bridge error, got %v", err)
	}
}

func TestOpenTimeout(t *testing.T) {
	h := startFake(t, "hang", 50*time.Millisecond)
	_, err := h.Open(context.Background(), "site.nwd")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHideAndExport(t *testing.T) {
	h := startFake(t, "", 0)
	ctx := context.Background()

	doc, err := h.Open(ctx, "site.nwd")
	if err != nil {
		t.Fatal(err)
	}
	found, err := doc.Search(ctx, "Pump")
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.SetHidden(ctx, found, true); err != nil {
		t.Fatal(err)
	}

	ok, err := doc.HasExporter(ctx, "lcfbx_exporter.fbx")
	if err != nil || !ok {
		t.Fatalf("HasExporter = %v, %v", ok, err)
	}
	opts, err := doc.PluginOptions(ctx, "lcfbx_exporter.fbx")
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 4 {
		t.Fatalf("options = %q", opts)
	}
	opts[1] = "0"
	if err := doc.SetPluginOptions(ctx, "lcfbx_exporter.fbx", opts); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "out.fbx")
	if err := doc.Export(ctx, out, "lcfbx_exporter.fbx"); err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "Pump") {
		t.Errorf("hidden element exported:\n%s", data)
	}
	if !strings.Contains(string(data), "options=Export_Hidden,0,units,mm") {
		t.Errorf("options not applied:\n%s", data)
	}
}

func TestCallAfterClose(t *testing.T) {
	h := startFake(t, "", 0)
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	_, err := h.Open(context.Background(), "site.nwd")
	if !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed, got %v", err)
	}
}

func TestElementFromChain(t *testing.T) {
	e, err := elementFromChain(foundItem{
		ID: "9",
		Chain: []link{
			{Name: "Motor"},
			{Name: "Level"},
			{Name: "Site"},
			{Name: "model", Root: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "9" || e.Name != "Motor" {
		t.Errorf("element = %+v", e)
	}
	path, _ := hierarchy.Extract(e, hierarchy.ExtractOptions{KeepTopLevel: true})
	if strings.Join(path, "/") != "Site/Level/Motor" {
		t.Errorf("path = %q", path)
	}

	if _, err := elementFromChain(foundItem{ID: "x"}); err == nil {
		t.Error("expected error for empty chain")
	}
}

func TestStartWithoutCommand(t *testing.T) {
	if _, err := Start(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

var _ host.Host = (*Host)(nil)
