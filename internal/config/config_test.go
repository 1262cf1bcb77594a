package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannel() *UpstreamChannel {
	return &UpstreamChannel{
		Name:        "anthropic-primary",
		ServiceType: ServiceClaude,
		BaseURL:     "https://api.anthropic.com",
		APIKeys:     []string{"key-a", "key-b"},
	}
}

func TestConfig_LoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{
		Host:           "127.0.0.1",
		Port:           8080,
		ProxyAccessKey: "test-key",
		Upstreams: map[string]*UpstreamChannel{
			"anthropic-primary": testChannel(),
		},
		CurrentUpstream: "anthropic-primary",
	}

	require.NoError(t, manager.Save(cfg))
	assert.True(t, manager.Exists())

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, cfg.Host, loaded.Host)
	assert.Equal(t, cfg.Port, loaded.Port)
	assert.Equal(t, cfg.ProxyAccessKey, loaded.ProxyAccessKey)
	require.Len(t, loaded.Upstreams, 1)

	ch := loaded.Upstreams["anthropic-primary"]
	require.NotNil(t, ch)
	assert.Equal(t, ServiceClaude, ch.ServiceType)
	assert.Equal(t, []string{"key-a", "key-b"}, ch.APIKeys)
	assert.Same(t, ch, loaded.Current())
}

func TestConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{
		Upstreams: map[string]*UpstreamChannel{
			"test": testChannel(),
		},
	}

	require.NoError(t, manager.Save(cfg))
	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, loaded.Port)
	assert.Equal(t, DefaultHost, loaded.Host)
	assert.Equal(t, DefaultHealthCheckPath, loaded.HealthCheckPath)
	assert.Equal(t, LoadBalanceSequential, loaded.LoadBalance)
}

func TestConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	configPath := filepath.Join(tmpDir, DefaultConfigFilename)
	require.NoError(t, os.WriteFile(configPath, []byte("not json"), 0o644))

	_, err := manager.Load()
	assert.Error(t, err)
}

func TestConfig_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	_, err := manager.Load()
	assert.Error(t, err)
	assert.False(t, manager.Exists())
}

func TestConfig_GetWithoutLoad(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := manager.Get()
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Upstreams)
}

func TestConfig_YAMLTakesPrecedenceOverJSON(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	jsonCfg := &Config{ProxyAccessKey: "from-json", Upstreams: map[string]*UpstreamChannel{"a": testChannel()}}
	require.NoError(t, manager.Save(jsonCfg))

	yamlCfg := &Config{ProxyAccessKey: "from-yaml", Upstreams: map[string]*UpstreamChannel{"a": testChannel()}}
	require.NoError(t, manager.SaveAsYAML(yamlCfg))

	assert.True(t, manager.HasJSON())
	assert.True(t, manager.HasYAML())
	assert.Equal(t, manager.yamlPath(), manager.GetPath())

	loaded, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", loaded.ProxyAccessKey)
}

func TestConfig_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{ProxyAccessKey: "v1", Upstreams: map[string]*UpstreamChannel{"a": testChannel()}}
	require.NoError(t, manager.Save(cfg))
	_, err := manager.Load()
	require.NoError(t, err)

	cfg.ProxyAccessKey = "v2"
	require.NoError(t, manager.Save(cfg))

	require.NoError(t, manager.Reload())
	assert.Equal(t, "v2", manager.Get().ProxyAccessKey)
}
