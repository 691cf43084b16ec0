package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"nbcollab/internal/core/errors"
)

var defaultSliceWidths = []time.Duration{
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		e := errors.Wrap(err, errors.CodeNotFound, "read config")
		return nil, errors.AddContext(e, errors.CtxPath, path)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		e := errors.Wrap(err, errors.CodeValidationError, "decode config")
		return nil, errors.AddContext(e, errors.CtxPath, path)
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateScoring(&cfg); err != nil {
		return nil, err
	}
	if err := validateDatabase(&cfg); err != nil {
		return nil, err
	}
	if err := validateWatch(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}
	if err := validateGroups(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if cfg.Scoring.Threshold == 0 {
		cfg.Scoring.Threshold = 0.95
	}
	if len(cfg.Scoring.SliceWidths) == 0 {
		cfg.Scoring.SliceWidths = append([]time.Duration(nil), defaultSliceWidths...)
	}
	if cfg.Scoring.IncludeImports == nil {
		enabled := true
		cfg.Scoring.IncludeImports = &enabled
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "data/nbcollab.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{"."}
	}
	if len(cfg.Watch.ExcludeDirs) == 0 {
		cfg.Watch.ExcludeDirs = []string{".git", ".ipynb_checkpoints", "__pycache__"}
	}
	if cfg.Watch.RescoreRate <= 0 {
		cfg.Watch.RescoreRate = 1
	}
	if cfg.Watch.RescoreBurst <= 0 {
		cfg.Watch.RescoreBurst = 1
	}
}

func normalize(cfg *Config) {
	cfg.DB.Path = strings.TrimSpace(cfg.DB.Path)
	cfg.Observability.MetricsAddress = strings.TrimSpace(cfg.Observability.MetricsAddress)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	for i := range cfg.Watch.Paths {
		cfg.Watch.Paths[i] = strings.TrimSpace(cfg.Watch.Paths[i])
	}
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		g.Name = strings.TrimSpace(g.Name)
		g.NotebookID = strings.TrimSpace(g.NotebookID)
		members := g.Members[:0]
		for _, m := range g.Members {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		g.Members = members
	}
}
