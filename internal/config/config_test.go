package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mulambda.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	creature, err := cfg.Profile("creature")
	if err != nil {
		t.Fatalf("creature profile: %v", err)
	}
	if creature != (ProfileConfig{Mu: 5, Lambda: 5, MaxGenerations: 100, FitnessTarget: 1000}) {
		t.Fatalf("unexpected creature profile: %+v", creature)
	}

	linecraft, err := cfg.Profile("linecraft")
	if err != nil {
		t.Fatalf("linecraft profile: %v", err)
	}
	if linecraft != (ProfileConfig{Mu: 17, Lambda: 5, MaxGenerations: 1000, FitnessTarget: 200}) {
		t.Fatalf("unexpected linecraft profile: %+v", linecraft)
	}

	if !cfg.Run.Verbose || cfg.Artifacts.BenchmarksDir != "benchmarks" || cfg.Artifacts.TopCount != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := writeConfig(t, `
run:
  workers: 4
  seed: 99
profiles:
  linecraft:
    mu: 8
  custom:
    mu: 2
    lambda: 3
    max_generations: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.Workers != 4 || cfg.Run.Seed != 99 {
		t.Fatalf("run overlay not applied: %+v", cfg.Run)
	}
	if !cfg.Run.Verbose {
		t.Fatal("fields missing from the file must keep their defaults")
	}

	linecraft, err := cfg.Profile("linecraft")
	if err != nil {
		t.Fatalf("linecraft profile: %v", err)
	}
	if linecraft.Mu != 8 || linecraft.Lambda != 5 || linecraft.MaxGenerations != 1000 || linecraft.FitnessTarget != 200 {
		t.Fatalf("partial profile not merged with defaults: %+v", linecraft)
	}

	if _, err := cfg.Profile("creature"); err != nil {
		t.Fatalf("default profile dropped by overlay: %v", err)
	}
	custom, err := cfg.Profile("custom")
	if err != nil || custom.Lambda != 3 {
		t.Fatalf("custom profile: %+v err=%v", custom, err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "zero lambda", body: "profiles:\n  broken:\n    mu: 1\n    lambda: 0\n"},
		{name: "negative workers", body: "run:\n  workers: -1\n"},
		{name: "log level", body: "log:\n  level: loud\n"},
		{name: "malformed", body: "run: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestProfileUnknown(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if _, err := cfg.Profile("dragon"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Fatalf("level %q got=%v err=%v want=%v", name, got, err, want)
		}
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	cfg.Run.Seed = 7
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Run.Seed != 7 || len(loaded.Profiles) != len(cfg.Profiles) {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
