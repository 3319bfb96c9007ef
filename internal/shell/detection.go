package shell

import (
	"fmt"
	"os/exec"
)

// DetectShell finds an available Unix shell in PATH.
// Prefers bash, falls back to sh.
func DetectShell() (string, error) {
	if path, err := exec.LookPath("bash"); err == nil {
		return path + " -c", nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path + " -c", nil
	}

	return "", fmt.Errorf("no shell found in PATH (tried bash, sh)")
}

// IsAvailable reports whether the named program is on PATH.
func IsAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
