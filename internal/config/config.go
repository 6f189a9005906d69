package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the portalflow engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Pool    PoolConfig    `yaml:"pool"`
	Portal  PortalConfig  `yaml:"portal"`
	Loader  LoaderConfig  `yaml:"loader"`
	MCP     MCPConfig     `yaml:"mcp"`
	Traces  TraceConfig   `yaml:"traces"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how page drivers are launched.
type BrowserConfig struct {
	// Backend selects the DOM-automation adapter: "rod" (default) or "playwright".
	Backend string `yaml:"backend"`
	// Control endpoint for rod (e.g., ws://localhost:9222). When empty, a browser
	// is launched via the launch command or rod's bundled launcher.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command (e.g., ["chromium", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// Headless controls headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Navigation timeout as a duration string (e.g., "30s").
	NavigationTimeout string `yaml:"navigation_timeout"`
	// Viewport for new pages (default: 1920x1080).
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

// PoolConfig controls the authenticated session pool.
type PoolConfig struct {
	// Idle time after which an unpinned session is evicted (e.g., "20m").
	SessionTTL string `yaml:"session_ttl"`
	// How often the background sweeper runs (e.g., "1m"). Zero disables it.
	SweepInterval string `yaml:"sweep_interval"`
	// Upper bound on concurrently pooled sessions. Zero means unlimited.
	MaxSessions int `yaml:"max_sessions"`
}

// PortalConfig points the engine at the target portal.
type PortalConfig struct {
	BaseURL       string `yaml:"base_url"`
	LoginPath     string `yaml:"login_path"`
	BookingPath   string `yaml:"booking_path"`
	ContainerPath string `yaml:"container_path"`
	TrackingPath  string `yaml:"tracking_path"`
	// Short bound for UI settle waits (e.g., "15s").
	SettleTimeout string `yaml:"settle_timeout"`
	// Long bound for full application boot (e.g., "45s").
	BootTimeout string `yaml:"boot_timeout"`
}

// LoaderConfig tunes the convergence content loader.
type LoaderConfig struct {
	// Consecutive no-growth cycles before a list is considered exhausted.
	StabilityThreshold int `yaml:"stability_threshold"`
	// Hard cap on scroll cycles.
	MaxCycles int `yaml:"max_cycles"`
	// Pause between scroll steps (e.g., "400ms").
	ScrollPause string `yaml:"scroll_pause"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// TraceConfig controls the JSONL flight recorder.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "portalflow-engine",
			Version: "0.1.0",
			LogFile: "portalflow.log",
		},
		Browser: BrowserConfig{
			Backend:           "rod",
			NavigationTimeout: "30s",
			ViewportWidth:     1920,
			ViewportHeight:    1080,
		},
		Pool: PoolConfig{
			SessionTTL:    "20m",
			SweepInterval: "1m",
			MaxSessions:   8,
		},
		Portal: PortalConfig{
			LoginPath:     "/login",
			BookingPath:   "/appointments/new",
			ContainerPath: "/containers",
			TrackingPath:  "/tracking",
			SettleTimeout: "15s",
			BootTimeout:   "45s",
		},
		Loader: LoaderConfig{
			StabilityThreshold: 3,
			MaxCycles:          40,
			ScrollPause:        "400ms",
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Traces: TraceConfig{
			Enabled: true,
			Dir:     "data/traces",
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so the engine can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	switch c.Browser.Backend {
	case "", "rod", "playwright":
	default:
		return fmt.Errorf("browser.backend must be rod or playwright, got %q", c.Browser.Backend)
	}
	if c.Portal.BaseURL == "" {
		return errors.New("portal.base_url is required")
	}
	if c.Loader.StabilityThreshold < 1 {
		return errors.New("loader.stability_threshold must be at least 1")
	}
	if c.Loader.MaxCycles < 1 {
		return errors.New("loader.max_cycles must be at least 1")
	}
	return nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) GetNavigationTimeout() time.Duration {
	return parseDurationOr(b.NavigationTimeout, 30*time.Second)
}

// IsHeadless returns whether the browser should run headless (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// GetSessionTTL returns the parsed session TTL with a sane default.
func (p PoolConfig) GetSessionTTL() time.Duration {
	return parseDurationOr(p.SessionTTL, 20*time.Minute)
}

// GetSweepInterval returns the parsed sweep interval. Zero disables sweeping.
func (p PoolConfig) GetSweepInterval() time.Duration {
	if p.SweepInterval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(p.SweepInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GetSettleTimeout returns the short UI-settle bound.
func (p PortalConfig) GetSettleTimeout() time.Duration {
	return parseDurationOr(p.SettleTimeout, 15*time.Second)
}

// GetBootTimeout returns the long application-boot bound.
func (p PortalConfig) GetBootTimeout() time.Duration {
	return parseDurationOr(p.BootTimeout, 45*time.Second)
}

// GetScrollPause returns the pause between scroll steps.
func (l LoaderConfig) GetScrollPause() time.Duration {
	return parseDurationOr(l.ScrollPause, 400*time.Millisecond)
}
