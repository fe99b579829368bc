// Package properties is a process-wide key/value registry, the counterpart of
// JVM system properties for Go programs. The client reads its token
// ("cerberus.token"), base URL ("cerberus.addr") and region
// ("cerberus.region") from here when they are not supplied through the
// environment.
//
// Properties can be set programmatically, from a YAML file with LoadFile, or
// from "key=value" pairs with SetPairs (the CLI's --property flag).
package properties

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Well-known property names.
const (
	Token  = "cerberus.token"
	Addr   = "cerberus.addr"
	Region = "cerberus.region"
)

var (
	mu    sync.RWMutex
	props = map[string]string{}
)

// Set stores a property value.
func Set(key, value string) {
	mu.Lock()
	defer mu.Unlock()
	props[key] = value
}

// Get returns a property value, or "" when unset.
func Get(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return props[key]
}

// Lookup returns a property value and whether it was set.
func Lookup(key string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := props[key]
	return v, ok
}

// Clear removes a property.
func Clear(key string) {
	mu.Lock()
	defer mu.Unlock()
	delete(props, key)
}

// SetPairs parses "key=value" entries and stores them.
func SetPairs(pairs []string) error {
	parsed := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid property %q: expected key=value", pair)
		}
		parsed[key] = value
	}

	mu.Lock()
	defer mu.Unlock()
	for k, v := range parsed {
		props[k] = v
	}
	return nil
}

// LoadFile reads a flat YAML mapping of property names to values.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read properties file: %w", err)
	}

	var parsed map[string]string
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse properties file %s: %w", path, err)
	}

	mu.Lock()
	defer mu.Unlock()
	for k, v := range parsed {
		props[k] = v
	}
	return nil
}
