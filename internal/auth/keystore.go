// Package auth provides API key storage and per-layer grants.
//
// Keys are loaded from a text file or from a comma-separated environment
// variable. Each file line holds a key, optionally followed by a colon and
// the comma-separated restricted layers it may access:
//
//	sk-ops
//	sk-partner: cadastre, utilities
//
// A key without a layer list, or with "*", may access every layer. Lines
// starting with # are treated as comments. Empty lines are ignored.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrInvalidKey is returned when an API key is not recognized.
var ErrInvalidKey = errors.New("invalid api key")

type contextKey struct{}

// WithKey returns a context carrying the caller's validated API key.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}

// KeyFromContext returns the caller's API key, or "" for anonymous callers.
func KeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(contextKey{}).(string)
	return key
}

type grant struct {
	all    bool
	layers map[string]struct{}
}

// KeyStore validates API keys and answers which restricted layers they unlock.
type KeyStore struct {
	mu   sync.RWMutex
	path string
	keys map[string]grant
}

// NewKeyStore creates a KeyStore and loads keys from the given file path.
// If the CARTOGRAFIA_API_KEYS environment variable is set, those keys take
// precedence over the file and grant every layer. With neither configured
// the store is empty and every caller is anonymous.
func NewKeyStore(path string) (*KeyStore, error) {
	ks := &KeyStore{keys: make(map[string]grant)}

	// Environment variable takes precedence.
	if env := os.Getenv("CARTOGRAFIA_API_KEYS"); env != "" {
		for _, k := range strings.Split(env, ",") {
			if key := strings.TrimSpace(k); key != "" {
				ks.keys[key] = grant{all: true}
			}
		}
		if len(ks.keys) == 0 {
			return nil, errors.New("CARTOGRAFIA_API_KEYS is set but contains no valid keys")
		}
		return ks, nil
	}

	if path == "" {
		return ks, nil
	}

	keys, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keys file: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys file %q contains no valid keys", path)
	}
	ks.path = path
	ks.keys = keys
	return ks, nil
}

// Validate checks whether the given key is known.
func (ks *KeyStore) Validate(key string) error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if _, ok := ks.keys[key]; !ok {
		return ErrInvalidKey
	}
	return nil
}

// Allowed reports whether key may access the restricted layer.
func (ks *KeyStore) Allowed(key, layer string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	g, ok := ks.keys[key]
	if !ok {
		return false
	}
	if g.all {
		return true
	}
	_, ok = g.layers[layer]
	return ok
}

// Count returns the number of loaded keys.
func (ks *KeyStore) Count() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// Path returns the keys file the store was loaded from, if any.
func (ks *KeyStore) Path() string {
	return ks.path
}

// Reload re-reads the keys file. On error the current keys are kept.
func (ks *KeyStore) Reload() error {
	if ks.path == "" {
		return nil
	}
	keys, err := loadFile(ks.path)
	if err != nil {
		return fmt.Errorf("reload keys file: %w", err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("keys file %q contains no valid keys", ks.path)
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.mu.Unlock()
	return nil
}

// loadFile reads keys from a text file, one per line.
func loadFile(path string) (map[string]grant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	keys := make(map[string]grant)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, g := parseLine(line)
		if key != "" {
			keys[key] = g
		}
	}
	return keys, scanner.Err()
}

func parseLine(line string) (string, grant) {
	key, list, found := strings.Cut(line, ":")
	key = strings.TrimSpace(key)
	if !found || strings.TrimSpace(list) == "" {
		return key, grant{all: true}
	}
	g := grant{layers: make(map[string]struct{})}
	for _, l := range strings.Split(list, ",") {
		l = strings.TrimSpace(l)
		if l == "*" {
			return key, grant{all: true}
		}
		if l != "" {
			g.layers[l] = struct{}{}
		}
	}
	return key, g
}
