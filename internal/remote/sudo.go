package remote

import (
	"strings"
	"sync"
)

// PasswordFunc asks the operator for a password.
type PasswordFunc func() (string, error)

// sudoAuth holds the password written to sudo's stdin. When sudo prints
// SudoPrompt the password was missing or wrong and the command did not run,
// so it is safe to ask and try once more.
type sudoAuth struct {
	mu       sync.Mutex
	password string
	prompt   PasswordFunc
}

func newSudoAuth(password string, prompt PasswordFunc) *sudoAuth {
	return &sudoAuth{password: password, prompt: prompt}
}

func (a *sudoAuth) current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.password
}

// run calls attempt with the current password. A sudo password request is
// answered by prompting and retrying once.
func (a *sudoAuth) run(cmd Command, attempt func(password string) (Result, error)) (Result, error) {
	result, err := attempt(a.current())
	if err == nil || !cmd.Sudo || a.prompt == nil || !strings.Contains(result.Stderr, SudoPrompt) {
		return result, err
	}

	a.mu.Lock()
	pw, perr := a.prompt()
	if perr == nil {
		a.password = pw
	}
	a.mu.Unlock()
	if perr != nil {
		return result, perr
	}
	return attempt(pw)
}
