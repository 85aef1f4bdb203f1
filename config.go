package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config is the resolved global configuration plus the per-instance
// overrides exactly as written in the file.
type Config struct {
	KaspadAddress         string
	MiningAddress         string
	BlockWaitTime         time.Duration
	PrintStats            bool
	LogToFile             bool
	HealthCheckPort       string
	VarDiff               bool
	SharesPerMin          uint
	VarDiffStats          bool
	ExtranonceSize        int
	Pow2Clamp             bool
	DataDir               string
	DiscordWebhookURL     string
	MaxAcceptsPerSecond   int
	ReconnectBanThreshold int
	Instances             []InstanceConfig
}

// InstanceConfig holds one listener's settings. Nil pointers fall back to
// the global value in resolveInstanceConfig.
type InstanceConfig struct {
	StratumPort  string
	MinShareDiff float64
	PromPort     string
	LogToFile    *bool
	VarDiff      *bool
	SharesPerMin *uint
	VarDiffStats *bool
	Pow2Clamp    *bool
}

// ResolvedInstance is an instance with every override applied.
type ResolvedInstance struct {
	Index        int
	Primary      bool
	StratumPort  string
	MinShareDiff float64
	PromPort     string
	LogToFile    bool
	VarDiff      bool
	SharesPerMin uint
	VarDiffStats bool
	Pow2Clamp    bool
}

// flexFloat accepts TOML integers where a float is expected.
type flexFloat float64

func (f *flexFloat) UnmarshalTOML(v interface{}) error {
	switch n := v.(type) {
	case int64:
		*f = flexFloat(n)
	case float64:
		*f = flexFloat(n)
	default:
		return fmt.Errorf("expected number, got %T", v)
	}
	return nil
}

// portSetting accepts 5555, "5555" or ":5555".
type portSetting string

func (p *portSetting) UnmarshalTOML(v interface{}) error {
	switch x := v.(type) {
	case int64:
		*p = portSetting(strconv.FormatInt(x, 10))
	case string:
		*p = portSetting(x)
	default:
		return fmt.Errorf("expected port, got %T", v)
	}
	return nil
}

func (p *portSetting) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected port scalar", node.Line)
	}
	*p = portSetting(node.Value)
	return nil
}

// blockWaitSetting is milliseconds; Go duration strings such as "500ms" are
// also accepted.
type blockWaitSetting int64

func parseBlockWait(s string) (blockWaitSetting, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return blockWaitSetting(ms), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("block_wait_time %q: %v", s, err)
	}
	return blockWaitSetting(d / time.Millisecond), nil
}

func (b *blockWaitSetting) UnmarshalTOML(v interface{}) error {
	switch x := v.(type) {
	case int64:
		*b = blockWaitSetting(x)
		return nil
	case string:
		parsed, err := parseBlockWait(x)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	default:
		return fmt.Errorf("block_wait_time: expected milliseconds or duration, got %T", v)
	}
}

func (b *blockWaitSetting) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseBlockWait(node.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b blockWaitSetting) Duration() time.Duration {
	return time.Duration(b) * time.Millisecond
}

type instanceFileConfig struct {
	StratumPort  portSetting `yaml:"stratum_port" toml:"stratum_port"`
	MinShareDiff *flexFloat  `yaml:"min_share_diff" toml:"min_share_diff,omitempty"`
	PromPort     portSetting `yaml:"prom_port" toml:"prom_port,omitempty"`
	LogToFile    *bool       `yaml:"log_to_file" toml:"log_to_file,omitempty"`
	VarDiff      *bool       `yaml:"var_diff" toml:"var_diff,omitempty"`
	SharesPerMin *uint       `yaml:"shares_per_min" toml:"shares_per_min,omitempty"`
	VarDiffStats *bool       `yaml:"var_diff_stats" toml:"var_diff_stats,omitempty"`
	Pow2Clamp    *bool       `yaml:"pow2_clamp" toml:"pow2_clamp,omitempty"`
}

type fileConfig struct {
	KaspadAddress         string            `yaml:"kaspad_address" toml:"kaspad_address" comment:"kaspad gRPC address"`
	MiningAddress         string            `yaml:"mining_address" toml:"mining_address" comment:"Kaspa address block rewards are paid to"`
	BlockWaitTime         *blockWaitSetting `yaml:"block_wait_time" toml:"block_wait_time,omitempty" comment:"template poll interval in milliseconds"`
	PrintStats            *bool             `yaml:"print_stats" toml:"print_stats,omitempty"`
	LogToFile             *bool             `yaml:"log_to_file" toml:"log_to_file,omitempty"`
	HealthCheckPort       portSetting       `yaml:"health_check_port" toml:"health_check_port,omitempty"`
	VarDiff               *bool             `yaml:"var_diff" toml:"var_diff,omitempty"`
	SharesPerMin          *uint             `yaml:"shares_per_min" toml:"shares_per_min,omitempty"`
	VarDiffStats          *bool             `yaml:"var_diff_stats" toml:"var_diff_stats,omitempty"`
	ExtranonceSize        *int              `yaml:"extranonce_size" toml:"extranonce_size,omitempty"`
	Pow2Clamp             *bool             `yaml:"pow2_clamp" toml:"pow2_clamp,omitempty"`
	DataDir               string            `yaml:"data_dir" toml:"data_dir,omitempty"`
	DiscordWebhookURL     string            `yaml:"discord_webhook_url" toml:"discord_webhook_url,omitempty"`
	MaxAcceptsPerSecond   *int              `yaml:"max_accepts_per_second" toml:"max_accepts_per_second,omitempty"`
	ReconnectBanThreshold *int              `yaml:"reconnect_ban_threshold" toml:"reconnect_ban_threshold,omitempty"`

	// Single-instance shorthand used when instances is absent.
	StratumPort  portSetting `yaml:"stratum_port" toml:"stratum_port,omitempty"`
	MinShareDiff *flexFloat  `yaml:"min_share_diff" toml:"min_share_diff,omitempty"`
	PromPort     portSetting `yaml:"prom_port" toml:"prom_port,omitempty"`

	Instances []instanceFileConfig `yaml:"instances" toml:"instances,omitempty"`
}

func defaultConfig() Config {
	return Config{
		KaspadAddress:       defaultKaspadAddress,
		BlockWaitTime:       defaultBlockWait,
		PrintStats:          true,
		LogToFile:           true,
		VarDiff:             true,
		SharesPerMin:        defaultSharesPerMin,
		DataDir:             defaultDataDir,
		MaxAcceptsPerSecond: defaultMaxAcceptsPerSecond,
	}
}

// normalizePort turns a bare port into ":port"; host:port is kept.
func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

// loadConfig reads path (YAML, or TOML by extension). A missing file yields
// the defaults with one instance on defaultStratumPort.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("config file not found, using defaults", "path", path)
			cfg.Instances = []InstanceConfig{{StratumPort: defaultStratumPort, MinShareDiff: defaultMinShareDiff}}
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := parseConfigBytes(path, data)
	if err != nil {
		return cfg, err
	}
	if err := applyFileConfig(&cfg, fc); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseConfigBytes(path string, data []byte) (fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return fc, fmt.Errorf("%w: parse %s: %v", errConfigInvalid, path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fc, fmt.Errorf("%w: parse %s: %v", errConfigInvalid, path, err)
		}
	}
	return fc, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) error {
	if s := strings.TrimSpace(fc.KaspadAddress); s != "" {
		cfg.KaspadAddress = s
	}
	cfg.MiningAddress = strings.TrimSpace(fc.MiningAddress)
	if fc.BlockWaitTime != nil {
		cfg.BlockWaitTime = fc.BlockWaitTime.Duration()
	}
	if fc.PrintStats != nil {
		cfg.PrintStats = *fc.PrintStats
	}
	if fc.LogToFile != nil {
		cfg.LogToFile = *fc.LogToFile
	}
	cfg.HealthCheckPort = normalizePort(string(fc.HealthCheckPort))
	if fc.VarDiff != nil {
		cfg.VarDiff = *fc.VarDiff
	}
	if fc.SharesPerMin != nil {
		cfg.SharesPerMin = *fc.SharesPerMin
	}
	if fc.VarDiffStats != nil {
		cfg.VarDiffStats = *fc.VarDiffStats
	}
	if fc.ExtranonceSize != nil {
		cfg.ExtranonceSize = *fc.ExtranonceSize
	}
	if fc.Pow2Clamp != nil {
		cfg.Pow2Clamp = *fc.Pow2Clamp
	}
	if s := strings.TrimSpace(fc.DataDir); s != "" {
		cfg.DataDir = s
	}
	cfg.DiscordWebhookURL = strings.TrimSpace(fc.DiscordWebhookURL)
	if fc.MaxAcceptsPerSecond != nil {
		cfg.MaxAcceptsPerSecond = *fc.MaxAcceptsPerSecond
	}
	if fc.ReconnectBanThreshold != nil {
		cfg.ReconnectBanThreshold = *fc.ReconnectBanThreshold
	}

	if fc.Instances == nil {
		inst := InstanceConfig{
			StratumPort:  normalizePort(string(fc.StratumPort)),
			MinShareDiff: defaultMinShareDiff,
			PromPort:     normalizePort(string(fc.PromPort)),
		}
		if inst.StratumPort == "" {
			inst.StratumPort = defaultStratumPort
		}
		if fc.MinShareDiff != nil {
			inst.MinShareDiff = float64(*fc.MinShareDiff)
		}
		cfg.Instances = []InstanceConfig{inst}
		return nil
	}

	if len(fc.Instances) == 0 {
		return fmt.Errorf("%w: instances array cannot be empty", errConfigInvalid)
	}
	cfg.Instances = make([]InstanceConfig, 0, len(fc.Instances))
	for i, fi := range fc.Instances {
		if strings.TrimSpace(string(fi.StratumPort)) == "" {
			return fmt.Errorf("%w: instance %d missing required 'stratum_port'", errConfigInvalid, i)
		}
		if fi.MinShareDiff == nil {
			return fmt.Errorf("%w: instance %d missing required 'min_share_diff'", errConfigInvalid, i)
		}
		cfg.Instances = append(cfg.Instances, InstanceConfig{
			StratumPort:  normalizePort(string(fi.StratumPort)),
			MinShareDiff: float64(*fi.MinShareDiff),
			PromPort:     normalizePort(string(fi.PromPort)),
			LogToFile:    fi.LogToFile,
			VarDiff:      fi.VarDiff,
			SharesPerMin: fi.SharesPerMin,
			VarDiffStats: fi.VarDiffStats,
			Pow2Clamp:    fi.Pow2Clamp,
		})
	}
	return nil
}

// validateConfig runs before any listener binds.
func validateConfig(cfg Config) error {
	if len(cfg.Instances) == 0 {
		return fmt.Errorf("%w: at least one instance is required", errConfigInvalid)
	}
	if strings.TrimSpace(cfg.MiningAddress) == "" {
		return fmt.Errorf("%w: mining_address is required", errConfigInvalid)
	}
	if cfg.BlockWaitTime <= 0 {
		return fmt.Errorf("%w: block_wait_time must be > 0", errConfigInvalid)
	}
	if cfg.SharesPerMin == 0 {
		return fmt.Errorf("%w: shares_per_min must be > 0", errConfigInvalid)
	}
	if cfg.ExtranonceSize < 0 || cfg.ExtranonceSize > 3 {
		return fmt.Errorf("%w: extranonce_size must be 0..3, got %d", errConfigInvalid, cfg.ExtranonceSize)
	}
	if cfg.MaxAcceptsPerSecond < 0 {
		return fmt.Errorf("%w: max_accepts_per_second must be >= 0", errConfigInvalid)
	}

	ports := make(map[string]int, len(cfg.Instances))
	for i, inst := range cfg.Instances {
		if inst.StratumPort == "" {
			return fmt.Errorf("%w: instance %d missing required 'stratum_port'", errConfigInvalid, i)
		}
		if inst.MinShareDiff <= 0 {
			return fmt.Errorf("%w: instance %d min_share_diff must be > 0", errConfigInvalid, i)
		}
		if inst.SharesPerMin != nil && *inst.SharesPerMin == 0 {
			return fmt.Errorf("%w: instance %d shares_per_min must be > 0", errConfigInvalid, i)
		}
		port := inst.StratumPort
		if _, p, err := net.SplitHostPort(port); err == nil {
			port = p
		}
		if _, dup := ports[port]; dup {
			return fmt.Errorf("%w: duplicate stratum_port: %s", errConfigInvalid, inst.StratumPort)
		}
		ports[port] = i
	}
	return nil
}

func pickBool(override *bool, global bool) bool {
	if override != nil {
		return *override
	}
	return global
}

// resolveInstanceConfig applies the instance's overrides over the global
// values. With pow2_clamp the minimum difficulty is floored to a power of two.
func resolveInstanceConfig(global Config, index int, inst InstanceConfig) ResolvedInstance {
	r := ResolvedInstance{
		Index:        index,
		Primary:      index == 0,
		StratumPort:  inst.StratumPort,
		MinShareDiff: inst.MinShareDiff,
		PromPort:     inst.PromPort,
		LogToFile:    pickBool(inst.LogToFile, global.LogToFile),
		VarDiff:      pickBool(inst.VarDiff, global.VarDiff),
		SharesPerMin: global.SharesPerMin,
		VarDiffStats: pickBool(inst.VarDiffStats, global.VarDiffStats),
		Pow2Clamp:    pickBool(inst.Pow2Clamp, global.Pow2Clamp),
	}
	if inst.SharesPerMin != nil {
		r.SharesPerMin = *inst.SharesPerMin
	}
	if r.Pow2Clamp {
		r.MinShareDiff = floorPow2(r.MinShareDiff)
	}
	return r
}

func resolveInstances(cfg Config) []ResolvedInstance {
	out := make([]ResolvedInstance, 0, len(cfg.Instances))
	for i, inst := range cfg.Instances {
		out = append(out, resolveInstanceConfig(cfg, i, inst))
	}
	return out
}
