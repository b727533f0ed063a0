package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/lthms/bimscan/internal/history"
	"github.com/lthms/bimscan/internal/host"
	"github.com/lthms/bimscan/internal/host/bridge"
	"github.com/lthms/bimscan/internal/host/snapshot"
)

const version = "0.3.0"

// CLI is the top-level command structure for bimscan.
type CLI struct {
	Debug   bool   `env:"BIMSCAN_DEBUG" help:"Enable debug logging."`
	LogFile string `name:"log-file" type:"path" help:"Write debug logs to this file instead of stderr."`
	Config  string `name:"config" type:"path" env:"BIMSCAN_CONFIG" help:"User config file (default ~/.config/bimscan/config.toml)."`
	Backend string `name:"backend" help:"Host backend: bridge or snapshot."`
	Model   string `short:"m" name:"model" type:"path" help:"Model file to open."`
	Pause   bool   `help:"Wait for a key press before exiting."`

	Analyze  AnalyzeCmd  `cmd:"" help:"Report where elements matching a term sit in the model hierarchy."`
	Optimize OptimizeCmd `cmd:"" default:"withargs" help:"Hide elements matching a term and export the remaining model."`
	History  HistoryCmd  `cmd:"" help:"List recent runs."`
	Show     ShowCmd     `cmd:"" help:"Show a recorded run and its report."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve find_elements over MCP on stdio."`
}

// runEnv carries resolved configuration into command Run methods.
type runEnv struct {
	cfg     *Config
	console *console
	newHost func(*Config) (host.Host, error)
	history func() (*history.Store, error)
}

func main() {
	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("bimscan"),
		kong.Description("Search CAD/BIM models by element name, report their hierarchy, or hide them and export."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			os.Exit(code)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bimscan: %v\n", err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	setupLogger(cli.Debug)
	if cli.LogFile != "" {
		setupFileLogger(cli.LogFile)
	}

	env, err := cli.environment()
	parser.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(env)

	err = kctx.Run()
	if err != nil {
		env.console.Error("bimscan: %v", err)
	}
	if cli.Pause {
		waitForKey(env.console)
	}
	if err != nil {
		os.Exit(1)
	}
}

// environment loads configuration and applies global flag overrides.
func (cli *CLI) environment() (*runEnv, error) {
	userPath := cli.Config
	if userPath == "" {
		p, err := userConfigPath()
		if err != nil {
			return nil, err
		}
		userPath = p
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}

	cfg, err := loadConfig(userPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cli.Backend != "" {
		cfg.Host.Backend = cli.Backend
	}
	if cli.Model != "" {
		cfg.Model = cli.Model
	}
	slog.Debug("config loaded", "user", userPath, "backend", cfg.Host.Backend, "model", cfg.Model)

	return &runEnv{
		cfg:     cfg,
		console: newConsole(),
		newHost: newHost,
		history: openHistory(cfg),
	}, nil
}

// newHost starts the configured host backend.
func newHost(cfg *Config) (host.Host, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	switch cfg.Host.Backend {
	case "snapshot":
		return snapshot.New(cfg.Export.Exporter), nil
	default:
		poll, _ := cfg.pollInterval()
		timeout, _ := cfg.openTimeout()
		return bridge.Start(bridge.Config{
			Command:      cfg.Host.Command,
			Args:         cfg.Host.Args,
			PollInterval: poll,
			OpenTimeout:  timeout,
		})
	}
}

// openHistory returns a lazy opener for the history store.
func openHistory(cfg *Config) func() (*history.Store, error) {
	return func() (*history.Store, error) {
		path := cfg.History.Path
		if path == "" {
			dir, err := stateDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "history.db")
		}
		return history.Open(path)
	}
}

// record stores run in the history database. Failures are logged only.
func (env *runEnv) record(run history.Run) {
	if env.cfg.History.Disable || env.history == nil {
		return
	}
	store, err := env.history()
	if err != nil {
		slog.Warn("open history failed", "error", err)
		return
	}
	defer store.Close()
	id, err := store.Record(run)
	if err != nil {
		slog.Warn("record run failed", "error", err)
		return
	}
	slog.Debug("run recorded", "id", id)
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// setupFileLogger redirects slog to a file at debug level.
func setupFileLogger(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		slog.Warn("failed to open log file, keeping stderr", "path", path, "error", err)
		return
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)
}
