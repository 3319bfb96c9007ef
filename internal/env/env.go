// Package env holds the deployment configuration store.
//
// A store maps configuration keys to values. Values are set explicitly by the
// caller or computed on first read by a default rule registered for the key.
// Computed values are cached, so every later read within the same run sees the
// same value until it is overwritten with Set.
package env

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultFunc computes the value of a key that has not been set.
// It may read other keys from the store, which resolves them recursively.
type DefaultFunc func(e *Env) (any, error)

// Env is a mutable key/value configuration bag with lazily computed defaults.
// An Env is not safe for concurrent use; each deployment run owns one.
type Env struct {
	values    map[string]any
	defaults  map[string]DefaultFunc
	prompts   map[string]bool
	resolving []string
}

// New creates an empty store with no default rules.
func New() *Env {
	return &Env{
		values:   make(map[string]any),
		defaults: make(map[string]DefaultFunc),
		prompts:  make(map[string]bool),
	}
}

// NewWithDefaults creates an empty store with the standard deployment default
// rules registered.
func NewWithDefaults() *Env {
	e := New()
	RegisterDefaults(e)
	return e
}

// SetDefault registers the default rule for key, replacing any existing rule.
func (e *Env) SetDefault(key string, fn DefaultFunc) {
	e.defaults[key] = fn
	delete(e.prompts, key)
}

// SetPromptDefault registers a default rule that asks the operator for the
// value. It runs on Get like any other rule but Snapshot never triggers it.
func (e *Env) SetPromptDefault(key string, fn DefaultFunc) {
	e.defaults[key] = fn
	e.prompts[key] = true
}

// HasDefault reports whether a default rule is registered for key.
func (e *Env) HasDefault(key string) bool {
	_, ok := e.defaults[key]
	return ok
}

// Set stores value under key unconditionally, replacing an explicit value or
// a previously cached default.
func (e *Env) Set(key string, value any) {
	e.values[key] = value
}

// Unset removes the stored value for key. A later Get recomputes the default.
func (e *Env) Unset(key string) {
	delete(e.values, key)
}

// IsSet reports whether key holds a value, explicit or cached.
func (e *Env) IsSet(key string) bool {
	_, ok := e.values[key]
	return ok
}

// Get returns the value of key, computing and caching its default if needed.
func (e *Env) Get(key string) (any, error) {
	if v, ok := e.values[key]; ok {
		return v, nil
	}

	fn, ok := e.defaults[key]
	if !ok {
		return nil, &MissingDefaultError{Key: key}
	}

	for i, k := range e.resolving {
		if k == key {
			chain := append(append([]string{}, e.resolving[i:]...), key)
			return nil, &CyclicDefaultError{Chain: chain}
		}
	}

	e.resolving = append(e.resolving, key)
	v, err := fn(e)
	e.resolving = e.resolving[:len(e.resolving)-1]
	if err != nil {
		return nil, err
	}

	e.values[key] = v
	return v, nil
}

// String returns the value of key as a string.
// Integers and booleans are formatted; other types are a TypeError.
func (e *Env) String(key string) (string, error) {
	v, err := e.Get(key)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case int, int64, bool:
		return fmt.Sprint(s), nil
	case nil:
		return "", nil
	default:
		return "", &TypeError{Key: key, Want: "string", Got: v}
	}
}

// Bool returns the value of key as a boolean.
// The strings "true", "yes", "1" and "on" are true, case-insensitively.
func (e *Env) Bool(key string) (bool, error) {
	v, err := e.Get(key)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1", "on":
			return true, nil
		case "false", "no", "0", "off", "":
			return false, nil
		}
	}
	return false, &TypeError{Key: key, Want: "bool", Got: v}
}

// Strings returns the value of key as a string slice.
// A single string is returned as a one-element slice.
func (e *Env) Strings(key string) ([]string, error) {
	v, err := e.Get(key)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case string:
		if s == "" {
			return nil, nil
		}
		return []string{s}, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, &TypeError{Key: key, Want: "[]string", Got: v}
			}
			out = append(out, str)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, &TypeError{Key: key, Want: "[]string", Got: v}
	}
}

// Maps returns the value of key as a list of mappings, such as media_sites.
// An unset key without a default yields nil rather than an error.
func (e *Env) Maps(key string) ([]map[string]any, error) {
	if !e.IsSet(key) && !e.HasDefault(key) {
		return nil, nil
	}
	v, err := e.Get(key)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case []map[string]any:
		return m, nil
	case []any:
		out := make([]map[string]any, 0, len(m))
		for _, item := range m {
			mm, ok := item.(map[string]any)
			if !ok {
				return nil, &TypeError{Key: key, Want: "[]map", Got: v}
			}
			out = append(out, mm)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, &TypeError{Key: key, Want: "[]map", Got: v}
	}
}

// Lookup returns the string value of key, or fallback when the key is unset
// and has no default rule. Resolution errors other than a missing default are
// returned.
func (e *Env) Lookup(key, fallback string) (string, error) {
	s, err := e.String(key)
	if err != nil {
		if IsMissingDefault(err) {
			return fallback, nil
		}
		return "", err
	}
	return s, nil
}

// Keys returns the explicitly set or cached keys in sorted order.
func (e *Env) Keys() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultKeys returns the keys with registered default rules in sorted order.
func (e *Env) DefaultKeys() []string {
	keys := make([]string, 0, len(e.defaults))
	for k := range e.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot resolves every key that has a value or a default rule and returns
// the results as a plain map, suitable as a template context. Keys whose
// default cannot be resolved, and unresolved prompt defaults, are left out.
func (e *Env) Snapshot() map[string]any {
	for _, k := range e.DefaultKeys() {
		if e.prompts[k] {
			continue
		}
		_, _ = e.Get(k)
	}
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the store with the same values and
// default rules. Slice and map values are shared.
func (e *Env) Clone() *Env {
	c := New()
	for k, v := range e.values {
		c.values[k] = v
	}
	for k, fn := range e.defaults {
		c.defaults[k] = fn
	}
	for k := range e.prompts {
		c.prompts[k] = true
	}
	return c
}

// Format substitutes {key} placeholders in tmpl with string values from the
// store. Doubled braces "{{" and "}}" produce literal braces.
func (e *Env) Format(tmpl string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder in %q", tmpl)
			}
			key := tmpl[i+1 : i+end]
			val, err := e.String(key)
			if err != nil {
				return "", err
			}
			sb.WriteString(val)
			i += end
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}
