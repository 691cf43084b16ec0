package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Scoring       Scoring       `toml:"scoring"`
	DB            Database      `toml:"db"`
	Watch         Watch         `toml:"watch"`
	Observability Observability `toml:"observability"`
	Groups        []Group       `toml:"groups"`
}

// Scoring controls graph construction and the collaboration sweep.
type Scoring struct {
	Threshold float64 `toml:"threshold"`
	// SliceWidths are parsed from duration strings such as "5m".
	SliceWidths    []time.Duration `toml:"slice_widths"`
	Parallel       int             `toml:"parallel"`
	IncludeImports *bool           `toml:"include_imports"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Watch struct {
	Paths        []string      `toml:"paths"`
	Debounce     time.Duration `toml:"debounce"`
	ExcludeDirs  []string      `toml:"exclude_dirs"`
	ExcludeFiles []string      `toml:"exclude_files"`
	// RescoreRate is the sustained number of rescoring passes per second.
	RescoreRate  float64 `toml:"rescore_rate"`
	RescoreBurst int     `toml:"rescore_burst"`
}

type Observability struct {
	MetricsAddress string `toml:"metrics_address"`
	TracingEnabled bool   `toml:"tracing_enabled"`
	OTLPEndpoint   string `toml:"otlp_endpoint"`
}

// Group names a set of users whose executions are scored together.
type Group struct {
	Name       string   `toml:"name"`
	NotebookID string   `toml:"notebook_id"`
	Members    []string `toml:"members"`
}

func (s Scoring) ImportsIncluded() bool {
	return s.IncludeImports == nil || *s.IncludeImports
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
