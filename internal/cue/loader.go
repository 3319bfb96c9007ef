// Package cue loads flax configuration written in CUE.
//
// Configuration comes from a global and a local directory. Both are loaded as
// CUE instances and layered: for each top-level struct (settings, roledefs,
// packages) the local entries replace global entries of the same name, and
// any other top-level value (hosts) is replaced whole.
package cue

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// ErrNoCUEFiles is returned by LoadSingle when the directory contains no CUE files.
var ErrNoCUEFiles = errors.New("no CUE files found")

// Loader loads and layers CUE configuration directories.
type Loader struct {
	ctx *cue.Context
}

// NewLoader creates a new CUE loader.
func NewLoader() *Loader {
	return &Loader{ctx: cuecontext.New()}
}

// LoadResult contains the result of loading CUE configuration.
type LoadResult struct {
	// Value is the layered configuration. It is an empty struct when no
	// directory held any CUE files.
	Value cue.Value
	// Sources lists the directories that contributed, lowest precedence
	// first.
	Sources []string
}

// Empty reports whether no configuration files were found.
func (r LoadResult) Empty() bool {
	return len(r.Sources) == 0
}

// Load loads each directory in dirs, lowest precedence first, and layers the
// results. Missing directories and directories without CUE files are
// skipped; finding no configuration at all is not an error.
func (l *Loader) Load(dirs []string) (LoadResult, error) {
	var result LoadResult
	var values []cue.Value

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return result, fmt.Errorf("checking directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return result, fmt.Errorf("%s is not a directory", dir)
		}

		hasCUE, err := hasCUEFiles(dir)
		if err != nil {
			return result, fmt.Errorf("checking for CUE files in %s: %w", dir, err)
		}
		if !hasCUE {
			continue
		}

		v, err := l.loadDir(dir)
		if err != nil {
			return result, fmt.Errorf("loading %s: %w", dir, err)
		}
		values = append(values, v)
		result.Sources = append(result.Sources, dir)
	}

	merged, err := l.layer(values)
	if err != nil {
		return result, fmt.Errorf("merging configurations: %w", err)
	}
	result.Value = merged
	return result, nil
}

// topLevel accumulates one top-level key across layers.
type topLevel struct {
	// whole is set when the latest layer holds a non-struct value.
	whole  *cue.Value
	fields map[string]cue.Value
	order  []cue.Selector
}

// layer combines values so that later layers replace earlier ones one level
// below the top: settings.branch in the local file replaces settings.branch
// from the global file, and roledefs.webserver replaces the whole host list.
// Plain CUE unification would instead reject the conflicting values.
func (l *Loader) layer(values []cue.Value) (cue.Value, error) {
	merged := l.ctx.CompileString("{}")
	if len(values) == 1 {
		return values[0], nil
	}

	tops := make(map[string]*topLevel)
	var order []cue.Selector

	for _, v := range values {
		iter, err := v.Fields()
		if err != nil {
			return cue.Value{}, fmt.Errorf("iterating fields: %w", err)
		}
		for iter.Next() {
			sel := iter.Selector()
			field := iter.Value()
			t, ok := tops[sel.String()]
			if !ok {
				t = &topLevel{}
				tops[sel.String()] = t
				order = append(order, sel)
			}

			if field.Kind() != cue.StructKind {
				*t = topLevel{whole: &field}
				continue
			}
			if t.whole != nil || t.fields == nil {
				*t = topLevel{fields: make(map[string]cue.Value)}
			}
			items, err := field.Fields()
			if err != nil {
				return cue.Value{}, fmt.Errorf("iterating %s: %w", sel, err)
			}
			for items.Next() {
				item := items.Selector()
				if _, seen := t.fields[item.String()]; !seen {
					t.order = append(t.order, item)
				}
				t.fields[item.String()] = items.Value()
			}
		}
	}

	for _, sel := range order {
		t := tops[sel.String()]
		if t.whole != nil {
			merged = merged.FillPath(cue.MakePath(sel), *t.whole)
			continue
		}
		merged = merged.FillPath(cue.MakePath(sel), l.ctx.CompileString("{}"))
		for _, item := range t.order {
			merged = merged.FillPath(cue.MakePath(sel, item), t.fields[item.String()])
		}
	}

	if err := merged.Err(); err != nil {
		return cue.Value{}, err
	}
	return merged, nil
}

// LoadSingle loads CUE configuration from a single directory.
func (l *Loader) LoadSingle(dir string) (cue.Value, error) {
	if dir == "" {
		return cue.Value{}, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return cue.Value{}, fmt.Errorf("directory does not exist: %s", dir)
	}
	if err != nil {
		return cue.Value{}, fmt.Errorf("checking directory: %w", err)
	}
	if !info.IsDir() {
		return cue.Value{}, fmt.Errorf("%s is not a directory", dir)
	}

	hasCUE, err := hasCUEFiles(dir)
	if err != nil {
		return cue.Value{}, fmt.Errorf("checking for CUE files: %w", err)
	}
	if !hasCUE {
		return cue.Value{}, fmt.Errorf("%w in %s", ErrNoCUEFiles, dir)
	}

	return l.loadDir(dir)
}

// loadDir loads a CUE instance from a directory.
func (l *Loader) loadDir(dir string) (cue.Value, error) {
	// Package "*" also loads files without a package clause.
	insts := load.Instances([]string{"."}, &load.Config{Dir: dir, Package: "*"})
	if len(insts) == 0 {
		return cue.Value{}, fmt.Errorf("no instances found in %s", dir)
	}

	inst := insts[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading instance: %w", inst.Err)
	}

	v := l.ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("building instance: %w", err)
	}
	return v, nil
}

// hasCUEFiles checks if a directory contains any .cue files.
func hasCUEFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cue") {
			return true, nil
		}
	}
	return false, nil
}

// Context returns the underlying CUE context.
func (l *Loader) Context() *cue.Context {
	return l.ctx
}

// IdentifyBrokenFiles compiles each CUE file on its own and lists the ones
// that fail, for diagnosing a directory that does not load.
func IdentifyBrokenFiles(paths []string) string {
	ctx := cuecontext.New()
	var lines []string

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			lines = append(lines, fmt.Sprintf("  %s: %v", path, err))
			continue
		}
		if v := ctx.CompileBytes(data, cue.Filename(path)); v.Err() != nil {
			lines = append(lines, fmt.Sprintf("  %s: %v", path, v.Err()))
		}
	}

	if len(lines) == 0 {
		return "  (files parse individually but fail when combined)"
	}
	return strings.Join(lines, "\n")
}
