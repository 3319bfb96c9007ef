package config

import (
	"fmt"

	internalcue "github.com/grantcarthew/flax/internal/cue"
)

// Loaded is the decoded configuration for one scope.
type Loaded struct {
	internalcue.Config
	// Sources lists the directories that contributed, lowest precedence first.
	Sources []string
}

// Load reads and decodes the CUE configuration of scope. Finding no
// configuration yields an empty result, not an error.
func Load(paths Paths, scope Scope) (Loaded, error) {
	var loaded Loaded

	result, err := internalcue.NewLoader().Load(paths.ForScope(scope))
	if err != nil {
		return loaded, fmt.Errorf("loading configuration: %w", err)
	}
	loaded.Sources = result.Sources

	cfg, err := internalcue.Decode(result.Value)
	if err != nil {
		return loaded, fmt.Errorf("decoding configuration: %w", err)
	}
	loaded.Config = cfg
	return loaded, nil
}
