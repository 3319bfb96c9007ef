package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

var (
	colorHost    = color.New(color.FgCyan)
	colorVerb    = color.New(color.FgMagenta)
	colorWarning = color.New(color.FgYellow)
)

// StagingDir is where privileged uploads are staged before being moved into
// place with sudo.
const StagingDir = "/tmp"

// Shell issues commands against an Executor with a working directory,
// environment prefixes and failure tolerance in effect. Shell values are
// immutable: Cd, Prefix and WarnOnly return a narrowed copy, so a scope ends
// when the caller stops using the copy.
type Shell struct {
	exec     Executor
	out      io.Writer
	verb     string
	dir      string
	prefixes []string
	warnOnly bool
}

// NewShell creates a shell over exec. Progress lines are written to out;
// a nil out disables them.
func NewShell(exec Executor, out io.Writer) Shell {
	return Shell{exec: exec, out: out}
}

// NewLocalShell creates a shell whose progress lines use the "local" verb.
func NewLocalShell(exec Executor, out io.Writer) Shell {
	return Shell{exec: exec, out: out, verb: "local"}
}

// Name returns the target name.
func (s Shell) Name() string {
	return s.exec.Name()
}

// Dir returns the working directory in effect, or "" for none.
func (s Shell) Dir() string {
	return s.dir
}

// Cd returns a shell whose commands run in dir. A relative dir is joined to
// the current one.
func (s Shell) Cd(dir string) Shell {
	if s.dir != "" && !path.IsAbs(dir) && !strings.HasPrefix(dir, "~") {
		dir = path.Join(s.dir, dir)
	}
	s.dir = dir
	return s
}

// Prefix returns a shell that runs prefix before every command, such as
// activating an environment.
func (s Shell) Prefix(prefix string) Shell {
	s.prefixes = append(append([]string{}, s.prefixes...), prefix)
	return s
}

// WarnOnly returns a shell that reports non-zero exits as warnings and
// continues.
func (s Shell) WarnOnly() Shell {
	s.warnOnly = true
	return s
}

// Run executes script as the connecting user.
func (s Shell) Run(ctx context.Context, script string) (Result, error) {
	return s.Exec(ctx, Command{Script: script})
}

// Sudo executes script as root.
func (s Shell) Sudo(ctx context.Context, script string) (Result, error) {
	return s.Exec(ctx, Command{Script: script, Sudo: true})
}

// SudoAs executes script as user.
func (s Shell) SudoAs(ctx context.Context, user, script string) (Result, error) {
	return s.Exec(ctx, Command{Script: script, Sudo: true, User: user})
}

// Exec executes cmd with the shell's scope applied.
func (s Shell) Exec(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Dir == "" {
		cmd.Dir = s.dir
	}
	if len(s.prefixes) > 0 {
		cmd.Prefixes = append(append([]string{}, s.prefixes...), cmd.Prefixes...)
	}
	cmd.WarnOnly = cmd.WarnOnly || s.warnOnly

	verb := cmd.Verb()
	if s.verb != "" {
		verb = s.verb
	}
	s.progress(verb, cmd.Script)

	result, err := s.exec.Run(ctx, cmd)
	if err == nil {
		return result, nil
	}

	var failed *CommandFailedError
	if cmd.WarnOnly && errors.As(err, &failed) {
		result.Failed = true
		result.ExitCode = failed.ExitCode
		s.warn("%s() received nonzero return code %d while executing '%s'", verb, failed.ExitCode, cmd.Script)
		return result, nil
	}
	return result, err
}

// Upload stores content at dst. With sudo, the file is staged under
// StagingDir and moved into place as root.
func (s Shell) Upload(ctx context.Context, content io.Reader, dst string, sudo bool) error {
	s.progress("put", dst)
	if !sudo {
		return s.exec.Upload(ctx, content, dst, 0644)
	}

	staged := path.Join(StagingDir, "flax-"+uuid.NewString())
	if err := s.exec.Upload(ctx, content, staged, 0644); err != nil {
		return fmt.Errorf("staging %s: %w", dst, err)
	}
	_, err := s.Exec(ctx, Command{
		Script: "mv " + Quote(staged) + " " + Quote(dst),
		Sudo:   true,
		Dir:    "/",
	})
	return err
}

// Put copies a local file or directory into remoteDir, keeping its base
// name, as the connecting user.
func (s Shell) Put(ctx context.Context, localPath, remoteDir string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", localPath, err)
	}

	base := filepath.Base(localPath)
	if !info.IsDir() {
		return s.putFile(ctx, localPath, path.Join(remoteDir, base))
	}

	var files []string
	err = filepath.WalkDir(localPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", localPath, err)
	}
	sort.Strings(files)

	for _, f := range files {
		rel, err := filepath.Rel(localPath, f)
		if err != nil {
			return err
		}
		dst := path.Join(remoteDir, base, filepath.ToSlash(rel))
		if err := s.putFile(ctx, f, dst); err != nil {
			return err
		}
	}
	return nil
}

func (s Shell) putFile(ctx context.Context, local, dst string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("put %s: %w", local, err)
	}
	s.progress("put", local+" -> "+dst)
	return s.exec.Upload(ctx, bytes.NewReader(data), dst, 0644)
}

// Append adds line to file unless an identical line is already present.
func (s Shell) Append(ctx context.Context, file, line string, sudo bool) error {
	script := fmt.Sprintf("grep -qxF -- %s %s || echo %s | tee -a %s > /dev/null",
		Quote(line), Quote(file), Quote(line), Quote(file))
	_, err := s.Exec(ctx, Command{Script: script, Sudo: sudo})
	return err
}

// Comment prefixes every line of file that matches pattern in full with "#".
// pattern is a POSIX extended regular expression.
func (s Shell) Comment(ctx context.Context, file, pattern string, sudo bool) error {
	pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$")
	expr := "s/^" + strings.ReplaceAll(pattern, "/", `\/`) + "$/#&/"
	script := "sed -i.bak -r -e " + Quote(expr) + " " + Quote(file)
	_, err := s.Exec(ctx, Command{Script: script, Sudo: sudo})
	return err
}

func (s Shell) progress(verb, text string) {
	if s.out == nil {
		return
	}
	_, _ = colorHost.Fprintf(s.out, "[%s] ", s.exec.Name())
	_, _ = colorVerb.Fprintf(s.out, "%s:", verb)
	_, _ = fmt.Fprintf(s.out, " %s\n", text)
}

func (s Shell) warn(format string, args ...any) {
	if s.out == nil {
		return
	}
	_, _ = colorWarning.Fprint(s.out, "Warning: ")
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
