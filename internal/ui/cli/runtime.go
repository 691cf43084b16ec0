package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	coreapp "nbcollab/internal/core/app"
	"nbcollab/internal/core/config"
	domainerrors "nbcollab/internal/core/errors"
	"nbcollab/internal/core/ports"
	"nbcollab/internal/data/history"
	"nbcollab/internal/shared/observability"
)

func Run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	if opts.version {
		fmt.Printf("nbcollab v%s\n", versionString)
		return 0
	}

	cleanupLogs := configureLogging(opts.command == "watch" && opts.ui, opts.verbose)
	defer cleanupLogs()

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	if opts.noImports {
		includeImports := false
		cfg.Scoring.IncludeImports = &includeImports
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initTracing(ctx, cfg)
	defer shutdownTracing()

	store, err := openHistoryStoreIfEnabled(cfg)
	if err != nil {
		slog.Error("history setup failed", "error", err)
		return 1
	}
	var historyStore ports.HistoryStore
	if store != nil {
		defer store.Close()
		historyStore = history.NewAdapter(store)
	}

	application, err := coreapp.New(cfg, historyStore)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return 1
	}
	analysis := application.AnalysisService()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := analysis.Close(closeCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
	}()

	if n, err := application.SyncGroups(ctx); err != nil {
		slog.Warn("failed to store configured groups", "error", err)
	} else if n > 0 {
		slog.Debug("configured groups stored", "count", n)
	}

	if addr := strings.TrimSpace(cfg.Observability.MetricsAddress); addr != "" {
		server := NewObservabilityServer(addr, coreapp.NewHealthService(application))
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return 1
		}
		defer func() { _ = server.Stop(context.Background()) }()
	}

	if opts.command == "watch" {
		if len(opts.args) > 0 {
			cfg.Watch.Paths = opts.args
		}
		if err := runWatch(ctx, opts, application, cfgPath); err != nil {
			slog.Error("watch failed", "error", err)
			return 1
		}
		return 0
	}

	if err := runCommand(ctx, opts, analysis, os.Stdout); err != nil {
		slog.Error("command failed", "command", opts.command, "code", domainerrors.CodeOf(err), "error", err)
		return 1
	}
	return 0
}

// loadConfig reads the config at path. The default path may be absent, in
// which case the built-in defaults apply and the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	for _, candidate := range []string{defaultConfigPath, "./nbcollab.toml"} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cfg, err := config.Load(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}
	slog.Debug("no config file found, using defaults", "path", path)
	cfg := config.DefaultConfig()
	config.ApplyEnvOverrides(cfg)
	return cfg, "", nil
}

func initTracing(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Observability.TracingEnabled {
		return func() {}
	}
	shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}
}

func openHistoryStoreIfEnabled(cfg *config.Config) (*history.Store, error) {
	if !cfg.DB.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.DB.Path, cfg.DB.BusyTimeout)
	if err != nil {
		if history.IsCorruptError(err) {
			return nil, fmt.Errorf("history store %s is corrupt; move it aside or set db.enabled = false: %w", cfg.DB.Path, err)
		}
		return nil, fmt.Errorf("open history store %s: %w", cfg.DB.Path, err)
	}
	return store, nil
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}

	rfc3339, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return rfc3339.UTC(), nil
	}

	dateOnly, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return dateOnly.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("time must be RFC3339 or YYYY-MM-DD, got %q", value)
}

func parseWindow(value string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid -window %q: %w", value, err)
	}
	if window < 0 {
		return 0, fmt.Errorf("-window must not be negative, got %s", window)
	}
	return window, nil
}

func configureLogging(uiMode, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stderr
	closeFn := func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(os.Stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			} else {
				fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "nbcollab", "nbcollab.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "nbcollab", "nbcollab.log")
	}

	return "nbcollab.log"
}
