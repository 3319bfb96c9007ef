package remote

import (
	"errors"
	"testing"
)

// sudoHost simulates sudo on a host whose password is "s3cret".
type sudoHost struct {
	nopasswd bool
	tried    []string
}

func (h *sudoHost) attempt(password string) (Result, error) {
	h.tried = append(h.tried, password)
	if h.nopasswd || password == "s3cret" {
		return Result{Stdout: "ok"}, nil
	}
	res := Result{ExitCode: 1, Stderr: SudoPrompt + "sudo: no password was provided"}
	return res, &CommandFailedError{Host: "web1", Command: "true", ExitCode: 1, Stderr: res.Stderr}
}

func TestSudoAuth(t *testing.T) {
	t.Parallel()
	sudo := Command{Script: "true", Sudo: true}

	tests := []struct {
		name      string
		cmd       Command
		nopasswd  bool
		password  string
		prompt    PasswordFunc
		wantErr   bool
		wantTried []string
	}{
		{
			name:      "configured password",
			cmd:       sudo,
			password:  "s3cret",
			wantTried: []string{"s3cret"},
		},
		{
			name:      "nopasswd never prompts",
			cmd:       sudo,
			nopasswd:  true,
			prompt:    func() (string, error) { return "", errors.New("prompted") },
			wantTried: []string{""},
		},
		{
			name:      "prompt after sudo asks",
			cmd:       sudo,
			prompt:    func() (string, error) { return "s3cret", nil },
			wantTried: []string{"", "s3cret"},
		},
		{
			name:      "wrong password prompts",
			cmd:       sudo,
			password:  "wrong",
			prompt:    func() (string, error) { return "s3cret", nil },
			wantTried: []string{"wrong", "s3cret"},
		},
		{
			name:      "no prompt available",
			cmd:       sudo,
			wantErr:   true,
			wantTried: []string{""},
		},
		{
			name:      "prompt fails",
			cmd:       sudo,
			prompt:    func() (string, error) { return "", errors.New("no terminal") },
			wantErr:   true,
			wantTried: []string{""},
		},
		{
			name:      "plain command is not retried",
			cmd:       Command{Script: "true"},
			prompt:    func() (string, error) { return "s3cret", nil },
			wantErr:   true,
			wantTried: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &sudoHost{nopasswd: tt.nopasswd}
			auth := newSudoAuth(tt.password, tt.prompt)

			_, err := auth.run(tt.cmd, host.attempt)
			if (err != nil) != tt.wantErr {
				t.Errorf("run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(host.tried) != len(tt.wantTried) {
				t.Fatalf("tried %q, want %q", host.tried, tt.wantTried)
			}
			for i := range host.tried {
				if host.tried[i] != tt.wantTried[i] {
					t.Errorf("tried %q, want %q", host.tried, tt.wantTried)
				}
			}
		})
	}
}

func TestSudoAuth_RemembersPrompted(t *testing.T) {
	t.Parallel()
	prompts := 0
	auth := newSudoAuth("", func() (string, error) {
		prompts++
		return "s3cret", nil
	})
	host := &sudoHost{}
	cmd := Command{Script: "true", Sudo: true}

	for i := 0; i < 3; i++ {
		if _, err := auth.run(cmd, host.attempt); err != nil {
			t.Fatalf("run() error = %v", err)
		}
	}
	if prompts != 1 {
		t.Errorf("prompted %d times, want 1", prompts)
	}
	if got := auth.current(); got != "s3cret" {
		t.Errorf("current() = %q, want %q", got, "s3cret")
	}
}
