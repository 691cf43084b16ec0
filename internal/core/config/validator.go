package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"nbcollab/internal/core/config/helpers"
	"nbcollab/internal/core/errors"
)

func invalid(format string, args ...any) error {
	return errors.New(errors.CodeValidationError, fmt.Sprintf(format, args...))
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return invalid("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateScoring(cfg *Config) error {
	if cfg.Scoring.Threshold <= 0 || cfg.Scoring.Threshold > 1 {
		return invalid("scoring.threshold must be in (0, 1], got %g", cfg.Scoring.Threshold)
	}
	seen := make(map[string]bool, len(cfg.Scoring.SliceWidths))
	for i, w := range cfg.Scoring.SliceWidths {
		if w <= 0 {
			return invalid("scoring.slice_widths[%d] must be positive, got %s", i, w)
		}
		if seen[w.String()] {
			return invalid("scoring.slice_widths contains %s twice", w)
		}
		seen[w.String()] = true
	}
	if cfg.Scoring.Parallel < 0 {
		return invalid("scoring.parallel must be >= 0, got %d", cfg.Scoring.Parallel)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if !cfg.DB.Enabled {
		return nil
	}
	if cfg.DB.Path == "" {
		return invalid("db.path must not be empty")
	}
	if strings.HasSuffix(cfg.DB.Path, string(filepath.Separator)) {
		return invalid("db.path %q must name a file", cfg.DB.Path)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	cleaned := make([]string, 0, len(cfg.Watch.Paths))
	for i, p := range cfg.Watch.Paths {
		if p == "" {
			return invalid("watch.paths[%d] must not be empty", i)
		}
		if helpers.HasWildcard(p) {
			return invalid("watch.paths[%d] %q must be a directory, not a pattern", i, p)
		}
		c := filepath.Clean(p)
		for _, prev := range cleaned {
			if helpers.IsPathOverlap(prev, c) {
				return invalid("watch.paths %q and %q overlap", prev, c)
			}
		}
		cleaned = append(cleaned, c)
	}
	for _, pattern := range cfg.Watch.ExcludeFiles {
		if _, err := glob.Compile(pattern); err != nil {
			return invalid("watch.exclude_files pattern %q: %v", pattern, err)
		}
	}
	if cfg.Watch.Debounce < 0 {
		return invalid("watch.debounce must not be negative")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.TracingEnabled && cfg.Observability.OTLPEndpoint == "" {
		return invalid("observability.otlp_endpoint is required when tracing is enabled")
	}
	return nil
}

func validateGroups(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Groups))
	for i, g := range cfg.Groups {
		ref := fmt.Sprintf("groups[%d]", i)
		if g.Name == "" {
			return invalid("%s.name must not be empty", ref)
		}
		if g.NotebookID == "" {
			return invalid("%s.notebook_id must not be empty", ref)
		}
		if len(g.Members) == 0 {
			return invalid("%s (%s) has no members", ref, g.Name)
		}
		key := g.NotebookID + "/" + g.Name
		if seen[key] {
			return invalid("%s duplicates group %q for notebook %q", ref, g.Name, g.NotebookID)
		}
		seen[key] = true
	}
	return nil
}
