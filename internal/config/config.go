// Package config holds the process-wide configuration surface: the set of
// configured upstream channels, which one is currently active, and the
// key-selection policy. Mutation of key ordering happens only through the
// scheduler package's operations (see internal/scheduler); this package
// exposes the data and the load/save mechanics around it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 6970
	DefaultHost            = "127.0.0.1"
	DefaultHealthCheckPath = "/health"
	DefaultConfigFilename  = "config.json"
	DefaultYAMLFilename    = "config.yaml"
)

// Service types the core understands. Unknown values are rejected by the
// router with an UnsupportedServiceError.
const (
	ServiceClaude    = "claude"
	ServiceOpenAI    = "openai"
	ServiceOpenAIOld = "openaiold"
	ServiceGemini    = "gemini"
)

// LoadBalance policies. Only Sequential is implemented by the scheduler;
// the others are accepted as configuration values (the declared seam) but
// fall back to sequential selection.
const (
	LoadBalanceSequential = "sequential"
	LoadBalanceRoundRobin = "round_robin"
	LoadBalanceRandom     = "random"
)

// UpstreamChannel is one configured provider endpoint. APIKeys order is
// significant: the scheduler's NextKey depends on it, and DeprioritizeKey is
// the only operation allowed to change it.
type UpstreamChannel struct {
	Name               string            `json:"name" yaml:"name"`
	ServiceType        string            `json:"serviceType" yaml:"serviceType"`
	BaseURL            string            `json:"baseUrl" yaml:"baseUrl"`
	APIKeys            []string          `json:"apiKeys" yaml:"apiKeys"`
	InsecureSkipVerify bool              `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	ModelMapping       map[string]string `json:"modelMapping,omitempty" yaml:"modelMapping,omitempty"`
}

// Config is the process-wide configuration record.
type Config struct {
	Host            string                      `json:"host,omitempty" yaml:"host,omitempty"`
	Port            int                         `json:"port,omitempty" yaml:"port,omitempty"`
	ProxyAccessKey  string                      `json:"proxyAccessKey" yaml:"proxyAccessKey"`
	HealthCheckPath string                      `json:"healthCheckPath,omitempty" yaml:"healthCheckPath,omitempty"`
	EnableWebUI     bool                        `json:"enableWebUI,omitempty" yaml:"enableWebUI,omitempty"`
	Upstreams       map[string]*UpstreamChannel `json:"upstreams" yaml:"upstreams"`
	CurrentUpstream string                      `json:"currentUpstream" yaml:"currentUpstream"`
	LoadBalance     string                      `json:"loadBalance,omitempty" yaml:"loadBalance,omitempty"`
}

// Current returns the active upstream channel, or nil if none is selected
// or configured.
func (c *Config) Current() *UpstreamChannel {
	if c == nil {
		return nil
	}
	return c.Upstreams[c.CurrentUpstream]
}

// Manager loads, persists, and publishes the live Config. Reads via Get are
// lock-free (atomic.Value); Load/Save/Reload serialize against each other
// implicitly through the filesystem and the atomic publish.
type Manager struct {
	baseDir     string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

func (m *Manager) jsonPath() string { return filepath.Join(m.baseDir, DefaultConfigFilename) }
func (m *Manager) yamlPath() string { return filepath.Join(m.baseDir, DefaultYAMLFilename) }

func (m *Manager) HasJSON() bool {
	_, err := os.Stat(m.jsonPath())
	return err == nil
}

func (m *Manager) HasYAML() bool {
	_, err := os.Stat(m.yamlPath())
	return err == nil
}

func (m *Manager) Exists() bool {
	return m.HasJSON() || m.HasYAML()
}

// GetPath returns the path Load would read from: YAML takes precedence over
// JSON when both exist.
func (m *Manager) GetPath() string {
	if m.HasYAML() {
		return m.yamlPath()
	}
	return m.jsonPath()
}

// Load reads the config file from disk, applies defaults, and publishes it.
func (m *Manager) Load() (*Config, error) {
	var (
		data   []byte
		err    error
		isYAML bool
	)

	if m.HasYAML() {
		data, err = os.ReadFile(m.yamlPath())
		isYAML = true
	} else {
		data, err = os.ReadFile(m.jsonPath())
	}

	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if isYAML {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal json config: %w", err)
		}
	}

	applyDefaults(&cfg)
	m.configValue.Store(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.HealthCheckPath == "" {
		cfg.HealthCheckPath = DefaultHealthCheckPath
	}
	if cfg.LoadBalance == "" {
		cfg.LoadBalance = LoadBalanceSequential
	}
	if cfg.Upstreams == nil {
		cfg.Upstreams = make(map[string]*UpstreamChannel)
	}
}

// Get returns the last-loaded config, loading it from disk on first access.
// On load failure it returns a defaulted, empty config rather than nil, so
// callers never need a nil check.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		cfg = &Config{Upstreams: make(map[string]*UpstreamChannel)}
		applyDefaults(cfg)
	}

	return cfg
}

// Reload re-reads the config file and publishes the result. It is the
// operation behind POST /admin/config/reload.
func (m *Manager) Reload() error {
	_, err := m.Load()
	return err
}

// Save writes cfg to disk as JSON and publishes it.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.jsonPath(), data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

// SaveAsYAML writes cfg to disk as YAML and publishes it.
func (m *Manager) SaveAsYAML(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml config: %w", err)
	}

	if err := os.WriteFile(m.yamlPath(), data, 0o644); err != nil {
		return fmt.Errorf("write yaml config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}
