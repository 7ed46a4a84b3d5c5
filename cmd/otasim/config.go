package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SimConfig is the YAML-driven shape of a simulation run: one router plus
// a named set of nodes, each with an optional parent for the unicast
// recovery path (spec.md §4.6 get_parent_addr).
type SimConfig struct {
	SessionID         string           `mapstructure:"session_id"`
	TotalByteCount    uint32           `mapstructure:"total_byte_count"`
	FragmentByteCount uint16           `mapstructure:"fragment_byte_count"`
	Nodes             []SimNodeConfig  `mapstructure:"nodes"`
	DropFragments     map[string][]int `mapstructure:"drop_fragments"`
}

// SimNodeConfig is one simulated node's identity and mesh position.
type SimNodeConfig struct {
	Name   string `mapstructure:"name"`
	Parent string `mapstructure:"parent"`
}

func defaultSimConfig() *SimConfig {
	return &SimConfig{
		SessionID:         "11111111-1111-1111-1111-111111111111",
		TotalByteCount:    8192,
		FragmentByteCount: 1024,
		Nodes: []SimNodeConfig{
			{Name: "node-a"},
			{Name: "node-b", Parent: "node-a"},
		},
	}
}

// loadSimConfig reads path with viper, falling back to built-in defaults
// for any field the file leaves unset. A missing file is not an error:
// it simply yields defaultSimConfig() unmodified, so `otasim run` works
// with no flags at all.
func loadSimConfig(path string) (*SimConfig, error) {
	cfg := defaultSimConfig()

	v := viper.New()
	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)

	v.SetConfigName(strings.TrimSuffix(filename, ext))
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return cfg, nil
}
