package config

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultRetention matches spec.md §6's default.
const DefaultRetention = 7 * 24 * time.Hour

// ReaderConfig holds the reader's live configuration. Retention is
// guarded by a RWMutex since the retention sweeper reads it from a
// background goroutine (spec.md §5); ReaderConfig implements
// store.RetentionProvider without importing the store package.
type ReaderConfig struct {
	Key KeySource

	mu        sync.RWMutex
	retention time.Duration
}

// RetentionDuration implements store.RetentionProvider.
func (c *ReaderConfig) RetentionDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retention
}

// SetRetention updates the live retention duration; the next sweep tick
// picks it up.
func (c *ReaderConfig) SetRetention(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retention = d
}

// LoadReaderConfig reads reader.key/settings.retention from path (or
// LAMINAR_CONFIG if set), then applies LAMINAR_SETTINGS_RETENTION.
func LoadReaderConfig(path string) (*ReaderConfig, error) {
	doc, err := loadFileDoc(path)
	if err != nil {
		return nil, err
	}

	retention := parseRetention(doc.Settings.Retention, DefaultRetention)
	if v, ok := envOverride("settings.retention"); ok {
		retention = parseRetention(v, retention)
	}

	key := doc.Reader.Key
	if v, ok := envOverride("reader.key.file"); ok {
		key = KeySource{File: v}
	}
	if v, ok := envOverride("reader.key.env"); ok {
		key = KeySource{Env: v}
	}

	return &ReaderConfig{Key: key, retention: retention}, nil
}

// ResolveKey returns the raw private key bytes for the reader's
// SecretKey, per the reader.key variant: absent returns ok=false (the
// orchestrator then generates a fresh key it does not persist); File
// reads them from disk; Env reads them from an environment variable.
func ResolveKey(src KeySource) ([]byte, bool, error) {
	switch {
	case src.File != "":
		b, err := os.ReadFile(src.File)
		if err != nil {
			return nil, false, fmt.Errorf("config: read key file %s: %w", src.File, err)
		}
		return b, true, nil
	case src.Env != "":
		v, ok := os.LookupEnv(src.Env)
		if !ok {
			return nil, false, fmt.Errorf("config: key env var %s is not set", src.Env)
		}
		return []byte(v), true, nil
	default:
		return nil, false, nil
	}
}
