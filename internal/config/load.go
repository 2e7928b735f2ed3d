package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML omits a field.
const (
	DefaultMachineType = "e2-medium"
	DefaultZoneSuffix  = "a"
	DefaultDiskImage   = "debian-cloud/debian-12"
	DefaultDiskSizeGB  = 20
	DefaultDiskType    = "pd-balanced"
)

// LoadFile reads, defaults, and validates a stack configuration from a YAML
// file.
func LoadFile(path string) (*Stack, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Load parses a stack configuration from YAML bytes.
func Load(data []byte) (*Stack, error) {
	var cfg Stack
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Stack) {
	if cfg.MachineType == "" {
		cfg.MachineType = DefaultMachineType
	}
	if cfg.ZoneSuffix == "" {
		cfg.ZoneSuffix = DefaultZoneSuffix
	}
	if cfg.Disk.Image == "" {
		cfg.Disk.Image = DefaultDiskImage
	}
	if cfg.Disk.SizeGB == 0 {
		cfg.Disk.SizeGB = DefaultDiskSizeGB
	}
	if cfg.Disk.Type == "" {
		cfg.Disk.Type = DefaultDiskType
	}
}
