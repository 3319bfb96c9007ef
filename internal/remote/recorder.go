package remote

import (
	"context"
	"io"
	"os"
	"strings"
)

// Entry is one recorded action.
type Entry struct {
	Target  string
	Command Command
	// Upload is the destination path when the entry is an upload.
	Upload  string
	Content []byte
}

// Line returns the shell rendering of the entry.
func (e Entry) Line() string {
	if e.Upload != "" {
		return "# upload " + e.Upload
	}
	return e.Command.Line()
}

// Journal collects entries from one or more recorders in execution order.
type Journal struct {
	Entries []Entry
}

// Scripts returns the Script field of every command entry.
func (j *Journal) Scripts() []string {
	var out []string
	for _, e := range j.Entries {
		if e.Upload == "" {
			out = append(out, e.Command.Script)
		}
	}
	return out
}

// Script renders the journal as a shell script, one target per comment
// header change.
func (j *Journal) Script() string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	last := ""
	for _, e := range j.Entries {
		if e.Target != last {
			sb.WriteString("\n# " + e.Target + "\n")
			last = e.Target
		}
		sb.WriteString(e.Line())
		sb.WriteString("\n")
	}
	return sb.String()
}

type scripted struct {
	match  string
	result Result
}

// Recorder is an Executor that records commands instead of running them.
// Scripted responses let tests simulate output and failures.
type Recorder struct {
	name      string
	journal   *Journal
	responses []scripted
	closed    bool
}

// NewRecorder creates a recorder for the named target writing to journal.
// A nil journal gets a private one.
func NewRecorder(name string, journal *Journal) *Recorder {
	if journal == nil {
		journal = &Journal{}
	}
	return &Recorder{name: name, journal: journal}
}

// Journal returns the journal the recorder writes to.
func (r *Recorder) Journal() *Journal {
	return r.journal
}

// Respond makes every later command whose script contains match return
// result. A non-zero ExitCode makes the command fail.
func (r *Recorder) Respond(match string, result Result) {
	r.responses = append(r.responses, scripted{match: match, result: result})
}

// FailOn makes commands containing match exit with code and stderr.
func (r *Recorder) FailOn(match string, code int, stderr string) {
	r.Respond(match, Result{ExitCode: code, Stderr: stderr})
}

// Name returns the target name.
func (r *Recorder) Name() string {
	return r.name
}

// Run records cmd and returns the first matching scripted response.
func (r *Recorder) Run(_ context.Context, cmd Command) (Result, error) {
	r.journal.Entries = append(r.journal.Entries, Entry{Target: r.name, Command: cmd})
	for _, s := range r.responses {
		if !strings.Contains(cmd.Script, s.match) {
			continue
		}
		if s.result.ExitCode != 0 {
			return s.result, &CommandFailedError{
				Host:     r.name,
				Command:  cmd.Script,
				ExitCode: s.result.ExitCode,
				Stderr:   s.result.Stderr,
			}
		}
		return s.result, nil
	}
	return Result{}, nil
}

// Upload records the upload and its content.
func (r *Recorder) Upload(_ context.Context, content io.Reader, path string, _ os.FileMode) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	r.journal.Entries = append(r.journal.Entries, Entry{Target: r.name, Upload: path, Content: data})
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	return r.closed
}
