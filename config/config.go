// Package config loads laminar's emitter and reader configuration, in
// the functional-options idiom of Atsika-aznet/options.go. File loading
// itself is intentionally minimal: one YAML document, overridden by
// environment variables, with no hot-reload or multi-source merging --
// spec.md puts "configuration file loading mechanics" out of scope
// beyond the documented keys.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the path LoadEmitterOpts/LoadReaderConfig read
// from, when set.
const EnvConfigPath = "LAMINAR_CONFIG"

// EnvPrefix is prepended to a dotted key (with '.' replaced by '_',
// upper-cased) to form the environment variable that overrides it, e.g.
// "settings.retention" -> "LAMINAR_SETTINGS_RETENTION".
const EnvPrefix = "LAMINAR_"

// KeySource describes where the reader's SecretKey material comes from:
// zero value means the reader generates a fresh key at startup (the key
// is not written anywhere, so the reader's identity changes on every
// restart), File means read raw key bytes from a path, Env means read
// them base64-free raw from an environment variable.
type KeySource struct {
	File string `yaml:"file,omitempty"`
	Env  string `yaml:"env,omitempty"`
}

type fileDoc struct {
	Layer struct {
		Remote      string `yaml:"remote"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"layer"`
	Reader struct {
		Key KeySource `yaml:"key"`
	} `yaml:"reader"`
	Settings struct {
		Retention string `yaml:"retention"`
	} `yaml:"settings"`
}

func resolvePath(path string) string {
	if override := os.Getenv(EnvConfigPath); override != "" {
		return override
	}
	return path
}

func loadFileDoc(path string) (fileDoc, error) {
	var doc fileDoc
	path = resolvePath(path)
	if path == "" {
		return doc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc, nil
}

// envOverride returns the LAMINAR_-prefixed environment variable for a
// dotted key, and whether it was set.
func envOverride(dottedKey string) (string, bool) {
	name := EnvPrefix + strings.ToUpper(strings.ReplaceAll(dottedKey, ".", "_"))
	v, ok := os.LookupEnv(name)
	return v, ok
}

func parseRetention(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
