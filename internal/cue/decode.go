package cue

import (
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/roles"
)

// Config is the decoded deployment configuration.
type Config struct {
	// Settings holds store entries. Strings and booleans keep their type,
	// numbers become strings, lists of strings become []string, other lists
	// []any and structs map[string]any.
	Settings map[string]any
	// Roledefs maps each role to its hosts.
	Roledefs map[string][]string
	// Packages overrides the OS packages of individual roles.
	Packages map[string][]string
	// Hosts is the default host list when none is given on the command line.
	Hosts []string
}

// Decode converts a loaded configuration value into a Config. Unknown
// top-level keys and values that are not concrete are errors.
func Decode(v cue.Value) (Config, error) {
	var cfg Config
	if err := v.Err(); err != nil {
		return cfg, FormatError(err)
	}
	iter, err := v.Fields()
	if err != nil {
		return cfg, FormatError(err)
	}
	for iter.Next() {
		if err := cfg.decodeField(iter.Selector().String(), iter.Value()); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// decodeField decodes one top-level key into c.
func (c *Config) decodeField(key string, field cue.Value) error {
	var err error
	switch key {
	case KeySettings:
		c.Settings, err = decodeSettings(field)
	case KeyRoledefs:
		c.Roledefs, err = decodeStringLists(key, field)
	case KeyPackages:
		c.Packages, err = decodeStringLists(key, field)
	case KeyHosts:
		c.Hosts, err = decodeStrings(key, field)
	default:
		err = positioned(field, key, "unknown top-level key (want "+strings.Join(TopLevelKeys, ", ")+")")
	}
	return err
}

// Apply sets every setting on e.
func (c Config) Apply(e *env.Env) {
	for k, v := range c.Settings {
		e.Set(k, v)
	}
}

// Roles builds the role table, with package overrides merged over the
// defaults.
func (c Config) Roles() *roles.Table {
	return roles.New(c.Roledefs, roles.WithPackages(c.Packages))
}

// SettingKeys returns the configured setting names, sorted.
func (c Config) SettingKeys() []string {
	keys := make([]string, 0, len(c.Settings))
	for k := range c.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeSettings(v cue.Value) (map[string]any, error) {
	if v.Kind() != cue.StructKind {
		return nil, positioned(v, KeySettings, "must be a struct")
	}
	out, err := toGo(KeySettings, v)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func decodeStringLists(key string, v cue.Value) (map[string][]string, error) {
	if v.Kind() != cue.StructKind {
		return nil, positioned(v, key, "must be a struct of string lists")
	}
	out := make(map[string][]string)
	iter, err := v.Fields()
	if err != nil {
		return nil, FormatError(err)
	}
	for iter.Next() {
		name := iter.Selector().String()
		list, err := decodeStrings(key+"."+name, iter.Value())
		if err != nil {
			return nil, err
		}
		out[name] = list
	}
	return out, nil
}

func decodeStrings(path string, v cue.Value) ([]string, error) {
	if v.Kind() != cue.ListKind {
		return nil, positioned(v, path, "must be a list of strings")
	}
	var out []string
	if err := v.Decode(&out); err != nil {
		return nil, positioned(v, path, "must be a list of strings")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// toGo converts a concrete CUE value into the store's value types.
func toGo(path string, v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, positioned(v, path, err.Error())
		}
		return strconv.FormatInt(i, 10), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, positioned(v, path, err.Error())
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case cue.NullKind:
		return nil, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, FormatError(err)
		}
		var items []any
		allStrings := true
		for i := 0; iter.Next(); i++ {
			item, err := toGo(path+"["+strconv.Itoa(i)+"]", iter.Value())
			if err != nil {
				return nil, err
			}
			if _, ok := item.(string); !ok {
				allStrings = false
			}
			items = append(items, item)
		}
		if !allStrings {
			return items, nil
		}
		strs := make([]string, len(items))
		for i, item := range items {
			strs[i] = item.(string)
		}
		return strs, nil
	case cue.StructKind:
		out := make(map[string]any)
		iter, err := v.Fields()
		if err != nil {
			return nil, FormatError(err)
		}
		for iter.Next() {
			name := iter.Selector().String()
			item, err := toGo(path+"."+name, iter.Value())
			if err != nil {
				return nil, err
			}
			out[name] = item
		}
		return out, nil
	default:
		return nil, positioned(v, path, "value is not concrete")
	}
}

// positioned builds a ValidationError for v, with its source position when
// CUE knows it.
func positioned(v cue.Value, path, msg string) *ValidationError {
	ve := &ValidationError{Path: path, Message: msg}
	if pos := v.Pos(); pos.IsValid() {
		ve.Filename = pos.Filename()
		ve.Line = pos.Line()
		ve.Column = pos.Column()
	}
	return ve
}
