package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "laminar.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmitterOptsFromFile(t *testing.T) {
	path := writeConfigFile(t, "layer:\n  remote: deadbeef\n  display_name: my-writer\n")

	opts, err := LoadEmitterOpts(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Remote != "deadbeef" || opts.DisplayName != "my-writer" {
		t.Fatalf("unexpected opts: %+v", opts)
	}
}

func TestLoadEmitterOptsEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "layer:\n  remote: deadbeef\n")
	t.Setenv("LAMINAR_LAYER_REMOTE", "cafef00d")

	opts, err := LoadEmitterOpts(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Remote != "cafef00d" {
		t.Fatalf("expected env override to win, got %q", opts.Remote)
	}
}

func TestLoadReaderConfigDefaultsRetention(t *testing.T) {
	path := writeConfigFile(t, "reader:\n  key:\n    file: /tmp/key\n")

	cfg, err := LoadReaderConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDuration() != DefaultRetention {
		t.Fatalf("expected default retention, got %v", cfg.RetentionDuration())
	}
	if cfg.Key.File != "/tmp/key" {
		t.Fatalf("expected key file /tmp/key, got %+v", cfg.Key)
	}
}

func TestLoadReaderConfigRetentionOverride(t *testing.T) {
	path := writeConfigFile(t, "settings:\n  retention: 48h\n")

	cfg, err := LoadReaderConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDuration() != 48*time.Hour {
		t.Fatalf("expected 48h retention, got %v", cfg.RetentionDuration())
	}
}

func TestLaminarConfigEnvOverridesPath(t *testing.T) {
	real := writeConfigFile(t, "layer:\n  remote: real\n")
	t.Setenv(EnvConfigPath, real)

	opts, err := LoadEmitterOpts("/nonexistent/path.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Remote != "real" {
		t.Fatalf("expected LAMINAR_CONFIG path to win, got %q", opts.Remote)
	}
}

func TestResolveKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("raw-key-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	b, ok, err := ResolveKey(KeySource{File: path})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(b) != "raw-key-bytes" {
		t.Fatalf("unexpected key bytes: %q ok=%v", b, ok)
	}
}

func TestResolveKeyAbsent(t *testing.T) {
	_, ok, err := ResolveKey(KeySource{})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected absent key source to report ok=false")
	}
}

func TestResolveKeyFromEnv(t *testing.T) {
	t.Setenv("MY_LAMINAR_KEY", "env-key-bytes")

	b, ok, err := ResolveKey(KeySource{Env: "MY_LAMINAR_KEY"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(b) != "env-key-bytes" {
		t.Fatalf("unexpected key bytes: %q ok=%v", b, ok)
	}
}
