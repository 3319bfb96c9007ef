package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/grantcarthew/flax/internal/env"
)

// EnvPrefix marks environment variables that set store keys.
const EnvPrefix = "FLAX_"

// EnvOverrides returns the store keys set by the .env file at dotenvPath and
// by environ. Entries in environ win over the file. A missing file is not an
// error.
func EnvOverrides(dotenvPath string, environ []string) (map[string]string, error) {
	out := make(map[string]string)
	if _, err := os.Stat(dotenvPath); err == nil {
		vars, err := ReadDotEnv(dotenvPath)
		if err != nil {
			return nil, err
		}
		entries := make([]string, 0, len(vars))
		for k, v := range vars {
			entries = append(entries, k+"="+v)
		}
		for k, v := range EnvSettings(entries) {
			out[k] = v
		}
	}
	for k, v := range EnvSettings(environ) {
		out[k] = v
	}
	return out, nil
}

// ReadDotEnv parses path without touching the process environment.
func ReadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vars, nil
}

// EnvSettings extracts store keys from environ entries of the form
// FLAX_<KEY>=value. The key is lowercased: FLAX_DB_PASSWORD sets db_password.
func EnvSettings(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		if key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// ParseSet parses --set flag values of the form key=value. Later values for
// the same key win.
func ParseSet(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set value %q: want key=value", v)
		}
		out[key] = value
	}
	return out, nil
}

// ApplyOverrides sets each entry on e in key order.
func ApplyOverrides(e *env.Env, overrides map[string]string) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Set(k, overrides[k])
	}
}
