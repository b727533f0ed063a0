package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-git/gcfg/v2"

	"github.com/lthms/bimscan/internal/hierarchy"
	"github.com/lthms/bimscan/internal/review"
)

const (
	defaultTerm      = "电机"
	defaultExtension = ".fbx"
	projectConfigDir = ".bimscan"
)

// Config is the merged configuration: defaults, then the user TOML file,
// then the project file, then command-line flags.
type Config struct {
	Model   string        `toml:"model"`
	Host    HostConfig    `toml:"host"`
	Search  SearchConfig  `toml:"search"`
	Export  ExportConfig  `toml:"export"`
	History HistoryConfig `toml:"history"`
}

// HostConfig selects and tunes the host backend.
type HostConfig struct {
	Backend      string   `toml:"backend"` // "bridge" or "snapshot"
	Command      string   `toml:"command"`
	Args         []string `toml:"args"`
	PollInterval string   `toml:"poll_interval"`
	OpenTimeout  string   `toml:"open_timeout"`
}

// SearchConfig configures searching and report layout.
type SearchConfig struct {
	DefaultTerm  string `toml:"default_term"`
	RootTitle    string `toml:"root_title"`
	KeepTopLevel bool   `toml:"keep_top_level"`
}

// ExportConfig configures optimize output.
type ExportConfig struct {
	Exporter  string `toml:"exporter"`
	Extension string `toml:"extension"`
	OutputDir string `toml:"output_dir"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Path    string `toml:"path"`
	Disable bool   `toml:"disable"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills empty fields.
func (c *Config) applyDefaults() {
	if c.Host.Backend == "" {
		c.Host.Backend = "bridge"
	}
	if c.Host.PollInterval == "" {
		c.Host.PollInterval = "100ms"
	}
	if c.Search.DefaultTerm == "" {
		c.Search.DefaultTerm = defaultTerm
	}
	if c.Search.RootTitle == "" {
		c.Search.RootTitle = hierarchy.DefaultTitle
	}
	if c.Export.Exporter == "" {
		c.Export.Exporter = review.DefaultExporter
	}
	if c.Export.Extension == "" {
		c.Export.Extension = defaultExtension
	}
}

// validate checks enumerations and durations.
func (c *Config) validate() error {
	switch c.Host.Backend {
	case "bridge", "snapshot":
	default:
		return fmt.Errorf("host.backend: unknown backend %q (want bridge or snapshot)", c.Host.Backend)
	}
	if c.Host.Backend == "bridge" && c.Host.Command == "" {
		return fmt.Errorf("host.command is required for the bridge backend")
	}
	if _, err := c.pollInterval(); err != nil {
		return err
	}
	if _, err := c.openTimeout(); err != nil {
		return err
	}
	return nil
}

func (c *Config) pollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Host.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("host.poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("host.poll_interval must be positive, got %s", d)
	}
	return d, nil
}

func (c *Config) openTimeout() (time.Duration, error) {
	if c.Host.OpenTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Host.OpenTimeout)
	if err != nil {
		return 0, fmt.Errorf("host.open_timeout: %w", err)
	}
	return d, nil
}

func (c *Config) extractOptions() hierarchy.ExtractOptions {
	return hierarchy.ExtractOptions{KeepTopLevel: c.Search.KeepTopLevel}
}

// userConfigPath returns ~/.config/bimscan/config.toml.
func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "bimscan", "config.toml"), nil
}

// loadUserConfig reads the TOML file at path on top of the defaults. A
// missing file yields the defaults with no error.
func loadUserConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Re-apply defaults for fields the file set to empty
	cfg.applyDefaults()
	return cfg, nil
}

// projectConfig mirrors .bimscan/config, a git-config style file:
//
//	[model]
//		path = models/site.nwd
//	[host]
//		backend = bridge
//		command = nwbridge.exe
//		arg = --visible
//		arg = --license=network
//	[search]
//		default-term = 风机
//		keep-top-level = true
type projectConfig struct {
	Model struct {
		Path string
	}
	Host struct {
		Backend      string
		Command      string
		Arg          []string
		PollInterval string `gcfg:"poll-interval"`
		OpenTimeout  string `gcfg:"open-timeout"`
	}
	Search struct {
		DefaultTerm  string `gcfg:"default-term"`
		RootTitle    string `gcfg:"root-title"`
		KeepTopLevel string `gcfg:"keep-top-level"`
	}
	Export struct {
		Exporter  string
		Extension string
		OutputDir string `gcfg:"output-dir"`
	}
}

// readProjectConfig parses the project file at path. It returns nil when
// the file does not exist.
func readProjectConfig(path string) (*projectConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var p projectConfig
	if err := gcfg.ReadFileInto(&p, path); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &p, nil
}

// mergeProject overrides cfg with the non-empty values of p. Relative
// paths in the project file are resolved against the project root.
func mergeProject(cfg *Config, p *projectConfig, root string) error {
	if p == nil {
		return nil
	}
	resolve := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(root, path)
	}

	if p.Model.Path != "" {
		cfg.Model = resolve(p.Model.Path)
	}
	if p.Host.Backend != "" {
		cfg.Host.Backend = p.Host.Backend
	}
	if p.Host.Command != "" {
		cfg.Host.Command = p.Host.Command
	}
	if len(p.Host.Arg) > 0 {
		cfg.Host.Args = p.Host.Arg
	}
	if p.Host.PollInterval != "" {
		cfg.Host.PollInterval = p.Host.PollInterval
	}
	if p.Host.OpenTimeout != "" {
		cfg.Host.OpenTimeout = p.Host.OpenTimeout
	}
	if p.Search.DefaultTerm != "" {
		cfg.Search.DefaultTerm = p.Search.DefaultTerm
	}
	if p.Search.RootTitle != "" {
		cfg.Search.RootTitle = p.Search.RootTitle
	}
	if p.Search.KeepTopLevel != "" {
		keep, err := strconv.ParseBool(p.Search.KeepTopLevel)
		if err != nil {
			return fmt.Errorf("search.keep-top-level: %w", err)
		}
		cfg.Search.KeepTopLevel = keep
	}
	if p.Export.Exporter != "" {
		cfg.Export.Exporter = p.Export.Exporter
	}
	if p.Export.Extension != "" {
		cfg.Export.Extension = p.Export.Extension
	}
	if p.Export.OutputDir != "" {
		cfg.Export.OutputDir = resolve(p.Export.OutputDir)
	}
	return nil
}

// loadConfig reads the user file and then the project file found under
// projectRoot.
func loadConfig(userPath, projectRoot string) (*Config, error) {
	cfg, err := loadUserConfig(userPath)
	if err != nil {
		return nil, err
	}

	p, err := readProjectConfig(filepath.Join(projectRoot, projectConfigDir, "config"))
	if err != nil {
		return nil, err
	}
	if err := mergeProject(cfg, p, projectRoot); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stateDir returns ~/.local/state/bimscan, creating it if needed.
func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".local", "state", "bimscan")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}
