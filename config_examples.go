package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
)

func exampleHeader(text string) []byte {
	return []byte(fmt.Sprintf("# Generated %s example (copy to a real config and edit as needed)\n\n", text))
}

// buildFileConfig is the inverse of applyFileConfig for the example writer.
func buildFileConfig(cfg Config) fileConfig {
	wait := blockWaitSetting(cfg.BlockWaitTime / time.Millisecond)
	printStats := cfg.PrintStats
	logToFile := cfg.LogToFile
	varDiff := cfg.VarDiff
	sharesPerMin := cfg.SharesPerMin
	varDiffStats := cfg.VarDiffStats
	extranonceSize := cfg.ExtranonceSize
	pow2 := cfg.Pow2Clamp
	accepts := cfg.MaxAcceptsPerSecond
	banThreshold := cfg.ReconnectBanThreshold

	fc := fileConfig{
		KaspadAddress:         cfg.KaspadAddress,
		MiningAddress:         cfg.MiningAddress,
		BlockWaitTime:         &wait,
		PrintStats:            &printStats,
		LogToFile:             &logToFile,
		HealthCheckPort:       portSetting(cfg.HealthCheckPort),
		VarDiff:               &varDiff,
		SharesPerMin:          &sharesPerMin,
		VarDiffStats:          &varDiffStats,
		ExtranonceSize:        &extranonceSize,
		Pow2Clamp:             &pow2,
		DataDir:               cfg.DataDir,
		DiscordWebhookURL:     cfg.DiscordWebhookURL,
		MaxAcceptsPerSecond:   &accepts,
		ReconnectBanThreshold: &banThreshold,
	}
	for _, inst := range cfg.Instances {
		diff := flexFloat(inst.MinShareDiff)
		fc.Instances = append(fc.Instances, instanceFileConfig{
			StratumPort:  portSetting(inst.StratumPort),
			MinShareDiff: &diff,
			PromPort:     portSetting(inst.PromPort),
			LogToFile:    inst.LogToFile,
			VarDiff:      inst.VarDiff,
			SharesPerMin: inst.SharesPerMin,
			VarDiffStats: inst.VarDiffStats,
			Pow2Clamp:    inst.Pow2Clamp,
		})
	}
	return fc
}

func exampleConfig() Config {
	cfg := defaultConfig()
	cfg.MiningAddress = "kaspa:YOUR_MINING_ADDRESS_HERE"
	cfg.HealthCheckPort = ":8080"
	asicDiff := uint(20)
	cfg.Instances = []InstanceConfig{
		{StratumPort: defaultStratumPort, MinShareDiff: defaultMinShareDiff, PromPort: ":2114"},
		{StratumPort: ":5556", MinShareDiff: 65536, PromPort: ":2115", SharesPerMin: &asicDiff},
	}
	return cfg
}

func exampleConfigBytes() ([]byte, error) {
	data, err := toml.Marshal(buildFileConfig(exampleConfig()))
	if err != nil {
		return nil, fmt.Errorf("encode config example: %w", err)
	}
	return append(exampleHeader("bridge config"), data...), nil
}

// writeExampleConfig writes a commented TOML example to path.
func writeExampleConfig(path string) error {
	data, err := exampleConfigBytes()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
