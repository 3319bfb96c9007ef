// Package remote issues shell commands and file uploads against one target
// host at a time.
//
// Executors provide the transport (SSH, the local machine, or a recorder for
// dry runs and tests). Shell layers working directory, environment
// activation, privilege and failure tolerance on top of an executor.
package remote

import (
	"fmt"
	"strings"
)

// Command is one shell invocation.
type Command struct {
	// Script is the command text as written by the caller.
	Script string
	// Dir is the working directory the script runs in.
	Dir string
	// Prefixes run before Script in the same shell, joined with &&.
	Prefixes []string
	// Sudo runs the command through sudo, as User when set, else as root.
	Sudo bool
	User string
	// NoShell skips wrapping the command in a login shell.
	NoShell bool
	// WarnOnly reports a non-zero exit instead of failing.
	WarnOnly bool
}

// LoginShell wraps commands unless NoShell is set.
const LoginShell = "/bin/bash -l -c"

// SudoPrompt is the prompt sudo prints when it reads a password from stdin.
const SudoPrompt = "sudo password:"

// Line renders the full command line sent to the target.
func (c Command) Line() string {
	body := c.Script
	if len(c.Prefixes) > 0 {
		body = strings.Join(c.Prefixes, " && ") + " && " + body
	}
	if c.Dir != "" {
		body = "cd " + Quote(c.Dir) + " && " + body
	}
	if !c.NoShell {
		body = LoginShell + " " + Quote(body)
	}
	if c.Sudo {
		sudo := "sudo -S -p " + Quote(SudoPrompt)
		if c.User != "" {
			sudo += " -u " + c.User
		}
		body = sudo + " -H " + body
	}
	return body
}

// Verb returns the progress label for the command.
func (c Command) Verb() string {
	if c.Sudo {
		return "sudo"
	}
	return "run"
}

// Result contains the outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Failed is set when the command exited non-zero under WarnOnly.
	Failed bool
}

// Succeeded reports whether the command exited zero.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.Failed
}

// CommandFailedError is returned when a command exits non-zero.
type CommandFailedError struct {
	Host     string
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("[%s] command failed with exit code %d: %s", e.Host, e.ExitCode, e.Command)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

// Quote wraps s in single quotes for a POSIX shell, escaping embedded single
// quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
