package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"mulambda/internal/config"
	"mulambda/internal/storage"
	"mulambda/pkg/mulambda"
)

// commonFlags are accepted by every subcommand that touches the store.
type commonFlags struct {
	configPath string
	storeKind  string
	dbPath     string
	logLevel   string
	logJSON    bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "optional YAML config overlaying the embedded defaults")
	fs.StringVar(&f.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	fs.StringVar(&f.dbPath, "db-path", "mulambda.db", "sqlite database path")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&f.logJSON, "log-json", false, "emit logs as JSON")
	return f
}

// resolve loads the config file and applies the flags that were set
// explicitly on the command line.
func (f *commonFlags) resolve(fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	set := visitedFlags(fs)
	if set["store"] || cfg.Storage.Kind == "" {
		cfg.Storage.Kind = f.storeKind
	}
	if set["db-path"] || cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = f.dbPath
	}
	if set["log-level"] {
		cfg.Log.Level = f.logLevel
	}
	if set["log-json"] {
		cfg.Log.JSON = f.logJSON
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func visitedFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func newClient(cfg *config.Config) (*mulambda.Client, error) {
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	client, err := mulambda.New(mulambda.Options{
		StoreKind:     cfg.Storage.Kind,
		DBPath:        cfg.Storage.SQLitePath,
		BenchmarksDir: cfg.Artifacts.BenchmarksDir,
		ExportsDir:    cfg.Artifacts.ExportsDir,
		Profiles:      cfg.Profiles,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open client: %w", err)
	}
	return client, nil
}
