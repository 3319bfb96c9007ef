package cue

// Top-level configuration keys.
const (
	KeySettings = "settings"
	KeyRoledefs = "roledefs"
	KeyPackages = "packages"
	KeyHosts    = "hosts"
)

// TopLevelKeys lists every accepted top-level key.
var TopLevelKeys = []string{KeySettings, KeyRoledefs, KeyPackages, KeyHosts}
