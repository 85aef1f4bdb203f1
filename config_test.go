package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const multiInstanceYAML = `
kaspad_address: "10.0.0.5:16110"
mining_address: "kaspa:qexample"
block_wait_time: 500
print_stats: false
log_to_file: false
var_diff: true
shares_per_min: 30
pow2_clamp: false
health_check_port: 8080
instances:
  - stratum_port: 5555
    min_share_diff: 8192
    prom_port: ":2114"
  - stratum_port: ":5556"
    min_share_diff: 3000
    var_diff: false
    shares_per_min: 10
    pow2_clamp: true
`

func TestLoadConfigYAMLMultiInstance(t *testing.T) {
	cfg, err := loadConfig(writeConfigFile(t, "config.yaml", multiInstanceYAML))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("validateConfig: %v", err)
	}
	if cfg.KaspadAddress != "10.0.0.5:16110" || cfg.BlockWaitTime != 500*time.Millisecond {
		t.Fatalf("globals got %q %v", cfg.KaspadAddress, cfg.BlockWaitTime)
	}
	if cfg.HealthCheckPort != ":8080" {
		t.Fatalf("health port got %q want :8080", cfg.HealthCheckPort)
	}
	if len(cfg.Instances) != 2 {
		t.Fatalf("instances got %d want 2", len(cfg.Instances))
	}
	if cfg.Instances[0].StratumPort != ":5555" || cfg.Instances[0].PromPort != ":2114" {
		t.Fatalf("instance 1 ports got %q %q", cfg.Instances[0].StratumPort, cfg.Instances[0].PromPort)
	}

	resolved := resolveInstances(cfg)
	first, second := resolved[0], resolved[1]
	if !first.Primary || second.Primary {
		t.Fatalf("primary flags got %v %v", first.Primary, second.Primary)
	}
	if !first.VarDiff || first.SharesPerMin != 30 || first.MinShareDiff != 8192 {
		t.Fatalf("instance 1 resolved got %+v", first)
	}
	if second.VarDiff || second.SharesPerMin != 10 || !second.Pow2Clamp {
		t.Fatalf("instance 2 overrides got %+v", second)
	}
	if second.MinShareDiff != 2048 {
		t.Fatalf("pow2 floored min diff got %v want 2048", second.MinShareDiff)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	body := `
mining_address = "kaspa:qexample"
block_wait_time = "250ms"
stratum_port = 6000
min_share_diff = 4096
`
	cfg, err := loadConfig(writeConfigFile(t, "config.toml", body))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BlockWaitTime != 250*time.Millisecond {
		t.Fatalf("block wait got %v want 250ms", cfg.BlockWaitTime)
	}
	if len(cfg.Instances) != 1 || cfg.Instances[0].StratumPort != ":6000" || cfg.Instances[0].MinShareDiff != 4096 {
		t.Fatalf("single instance got %+v", cfg.Instances)
	}
}

func TestLoadConfigSingleInstanceDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfigFile(t, "config.yaml", "mining_address: kaspa:qexample\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Instances) != 1 {
		t.Fatalf("instances got %d want 1", len(cfg.Instances))
	}
	inst := cfg.Instances[0]
	if inst.StratumPort != defaultStratumPort || inst.MinShareDiff != defaultMinShareDiff {
		t.Fatalf("defaults got %+v", inst)
	}
	if cfg.SharesPerMin != defaultSharesPerMin || !cfg.VarDiff || cfg.BlockWaitTime != defaultBlockWait {
		t.Fatalf("global defaults got %+v", cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Instances) != 1 || cfg.Instances[0].StratumPort != defaultStratumPort {
		t.Fatalf("missing file should give one default instance, got %+v", cfg.Instances)
	}
}

func TestLoadConfigInstanceMissingPort(t *testing.T) {
	body := `
mining_address: kaspa:qexample
instances:
  - min_share_diff: 4096
`
	_, err := loadConfig(writeConfigFile(t, "config.yaml", body))
	if !errors.Is(err, errConfigInvalid) {
		t.Fatalf("got %v want %v", err, errConfigInvalid)
	}
	if !strings.Contains(err.Error(), "instance 0 missing required 'stratum_port'") {
		t.Fatalf("message got %q", err.Error())
	}
}

func TestLoadConfigEmptyInstanceList(t *testing.T) {
	_, err := loadConfig(writeConfigFile(t, "config.yaml", "mining_address: kaspa:qexample\ninstances: []\n"))
	if !errors.Is(err, errConfigInvalid) {
		t.Fatalf("got %v want %v", err, errConfigInvalid)
	}
	if !strings.Contains(err.Error(), "instances array cannot be empty") {
		t.Fatalf("message got %q", err.Error())
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := loadConfig(writeConfigFile(t, "config.yaml", "instances: [\n"))
	if !errors.Is(err, errConfigInvalid) {
		t.Fatalf("got %v want %v", err, errConfigInvalid)
	}
	_, err = loadConfig(writeConfigFile(t, "config.yaml", "block_wait_time: soon\n"))
	if !errors.Is(err, errConfigInvalid) {
		t.Fatalf("bad duration got %v want %v", err, errConfigInvalid)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := defaultConfig()
		cfg.MiningAddress = "kaspa:qexample"
		cfg.Instances = []InstanceConfig{
			{StratumPort: ":5555", MinShareDiff: 4096},
			{StratumPort: ":5556", MinShareDiff: 4096},
		}
		return cfg
	}
	zero := uint(0)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"duplicate port", func(c *Config) { c.Instances[1].StratumPort = ":5555" }, "duplicate stratum_port: :5555"},
		{"no instances", func(c *Config) { c.Instances = nil }, "at least one instance"},
		{"missing port", func(c *Config) { c.Instances[1].StratumPort = "" }, "instance 1 missing required 'stratum_port'"},
		{"duplicate port with host", func(c *Config) { c.Instances[1].StratumPort = "0.0.0.0:5555" }, "duplicate stratum_port: 0.0.0.0:5555"},
		{"zero min diff", func(c *Config) { c.Instances[0].MinShareDiff = 0 }, "min_share_diff must be > 0"},
		{"no mining address", func(c *Config) { c.MiningAddress = "" }, "mining_address is required"},
		{"zero shares per min", func(c *Config) { c.Instances[0].SharesPerMin = &zero }, "shares_per_min must be > 0"},
		{"extranonce size", func(c *Config) { c.ExtranonceSize = 4 }, "extranonce_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, errConfigInvalid) {
				t.Fatalf("got %v want %v", err, errConfigInvalid)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("message got %q want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestResolveInstanceConfigFallsBackToGlobal(t *testing.T) {
	global := defaultConfig()
	global.LogToFile = true
	global.VarDiffStats = true
	off := false
	r := resolveInstanceConfig(global, 1, InstanceConfig{StratumPort: ":1", MinShareDiff: 100, LogToFile: &off})
	if r.LogToFile {
		t.Fatalf("instance override ignored")
	}
	if !r.VarDiffStats || r.SharesPerMin != global.SharesPerMin {
		t.Fatalf("global fallback got %+v", r)
	}
	if r.Primary || r.Index != 1 {
		t.Fatalf("index got %d primary=%v", r.Index, r.Primary)
	}
}

func TestNormalizePort(t *testing.T) {
	tests := map[string]string{
		"5555":         ":5555",
		":5555":        ":5555",
		"0.0.0.0:5555": "0.0.0.0:5555",
		"":             "",
		" 8080 ":       ":8080",
	}
	for in, want := range tests {
		if got := normalizePort(in); got != want {
			t.Fatalf("normalizePort(%q) got %q want %q", in, got, want)
		}
	}
}

func TestExampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples", "config.toml")
	if err := writeExampleConfig(path); err != nil {
		t.Fatalf("writeExampleConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read example: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Generated bridge config example") {
		t.Fatalf("missing header: %q", string(data[:40]))
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if len(cfg.Instances) != 2 || cfg.Instances[1].StratumPort != ":5556" {
		t.Fatalf("example instances got %+v", cfg.Instances)
	}
	if cfg.Instances[1].SharesPerMin == nil || *cfg.Instances[1].SharesPerMin != 20 {
		t.Fatalf("instance override lost in round trip")
	}
}
