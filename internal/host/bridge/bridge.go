// Package bridge drives the review application through an external
// automation bridge process speaking newline-delimited JSON on stdin and
// stdout. The bridge's stderr is forwarded to the logger.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lthms/bimscan/internal/host"
)

// ErrBridgeClosed is returned once the bridge process has gone away.
var ErrBridgeClosed = errors.New("bridge: process closed")

const (
	defaultPollInterval = 100 * time.Millisecond
	shutdownGrace       = 5 * time.Second
	maxLineSize         = 64 << 20
)

// Config describes how to launch the bridge.
type Config struct {
	Command      string
	Args         []string
	Env          []string      // appended to the current environment
	PollInterval time.Duration // busy polling after open (default 100ms)
	OpenTimeout  time.Duration // 0 waits until ctx is done
}

// Host is a running bridge process.
type Host struct {
	cfg   Config
	cmd   *exec.Cmd
	stdin io.WriteCloser
	resps chan response
	group *errgroup.Group

	mu     sync.Mutex // serializes calls
	nextID uint64

	closeOnce sync.Once
	closeErr  error
}

// Start launches the bridge process.
func Start(cfg Config) (*Host, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("bridge: no command configured")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start bridge %s: %w", cfg.Command, err)
	}
	slog.Debug("bridge started", "command", cfg.Command, "pid", cmd.Process.Pid)

	h := &Host{
		cfg:   cfg,
		cmd:   cmd,
		stdin: stdin,
		resps: make(chan response),
		group: &errgroup.Group{},
	}
	h.group.Go(func() error { return h.readResponses(stdout) })
	h.group.Go(func() error { return pumpStderr(stderr) })
	return h, nil
}

func (h *Host) readResponses(r io.Reader) error {
	defer close(h.resps)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		var resp response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			slog.Warn("bridge: ignoring malformed line", "error", err)
			continue
		}
		h.resps <- resp
	}
	return sc.Err()
}

func pumpStderr(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Debug(sc.Text(), "source", "bridge")
	}
	return sc.Err()
}

// call sends one request and waits for the response with the same id.
// Responses to earlier, abandoned calls are dropped.
func (h *Host) call(ctx context.Context, method string, params, result any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	line, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	line = append(line, '\n')
	if _, err := h.stdin.Write(line); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrBridgeClosed, method, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-h.resps:
			if !ok {
				return fmt.Errorf("%w: awaiting %s", ErrBridgeClosed, method)
			}
			if resp.ID != id {
				slog.Debug("bridge: dropping stale response", "id", resp.ID, "want", id)
				continue
			}
			if resp.Error != "" {
				return fmt.Errorf("bridge %s: %s", method, resp.Error)
			}
			if result == nil || len(resp.Result) == 0 {
				return nil
			}
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
			return nil
		}
	}
}

// Open asks the bridge to load path, then polls until the bridge stops
// reporting busy.
func (h *Host) Open(ctx context.Context, path string) (host.Document, error) {
	if h.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.OpenTimeout)
		defer cancel()
	}

	if err := h.call(ctx, methodOpen, openParams{Path: path}, nil); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := h.waitReady(ctx); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", path, err)
	}
	return &document{h: h}, nil
}

func (h *Host) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		var busy bool
		if err := h.call(ctx, methodBusy, nil, &busy); err != nil {
			return err
		}
		polls++
		if !busy {
			slog.Debug("bridge ready", "polls", polls)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close asks the bridge to exit, then waits for it, killing it if it does
// not exit within a grace period.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := h.call(ctx, methodClose, nil, nil); err != nil {
			slog.Debug("bridge close request failed", "error", err)
		}
		cancel()
		h.stdin.Close()

		timer := time.AfterFunc(shutdownGrace, func() {
			slog.Warn("bridge did not exit, killing", "pid", h.cmd.Process.Pid)
			h.cmd.Process.Kill()
		})
		defer timer.Stop()

		// Drain any unread responses so the reader can reach EOF.
		go func() {
			for range h.resps {
			}
		}()
		if err := h.group.Wait(); err != nil {
			slog.Debug("bridge pipe error", "error", err)
		}
		if err := h.cmd.Wait(); err != nil {
			h.closeErr = fmt.Errorf("bridge exited: %w", err)
		}
	})
	return h.closeErr
}

type document struct {
	h *Host
}

func (d *document) Search(ctx context.Context, term string) ([]*host.Element, error) {
	var found []foundItem
	if err := d.h.call(ctx, methodSearch, searchParams{Term: term}, &found); err != nil {
		return nil, err
	}
	elems := make([]*host.Element, 0, len(found))
	for _, f := range found {
		e, err := elementFromChain(f)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return elems, nil
}

// elementFromChain links a found item to its ancestors. The chain lists
// the item first and the root last.
func elementFromChain(f foundItem) (*host.Element, error) {
	if len(f.Chain) == 0 {
		return nil, fmt.Errorf("bridge: item %q has an empty chain", f.ID)
	}
	var parent *host.Element
	for i := len(f.Chain) - 1; i >= 0; i-- {
		l := f.Chain[i]
		if l.Root {
			parent = host.NewRoot(l.ID, l.Name)
			continue
		}
		parent = host.NewElement(l.ID, l.Name, parent)
	}
	parent.ID = f.ID
	return parent, nil
}

func (d *document) SetHidden(ctx context.Context, elems []*host.Element, hidden bool) error {
	return d.h.call(ctx, methodSetHidden, setHiddenParams{IDs: host.IDs(elems), Hidden: hidden}, nil)
}

func (d *document) HasExporter(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := d.h.call(ctx, methodFindExporter, exporterParams{Exporter: id}, &ok)
	return ok, err
}

func (d *document) PluginOptions(ctx context.Context, exporter string) ([]string, error) {
	var opts []string
	if err := d.h.call(ctx, methodGetPluginOptions, exporterParams{Exporter: exporter}, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func (d *document) SetPluginOptions(ctx context.Context, exporter string, opts []string) error {
	return d.h.call(ctx, methodSetPluginOptions, exporterParams{Exporter: exporter, Options: opts}, nil)
}

func (d *document) Export(ctx context.Context, path, exporter string) error {
	return d.h.call(ctx, methodExport, exportParams{Path: path, Exporter: exporter}, nil)
}
