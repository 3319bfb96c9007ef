package cue

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
)

//go:embed schema.cue
var schemaSource string

// Schema definition names.
const (
	DefSettings    = "#Settings"
	DefMediaSite   = "#MediaSite"
	DefHostList    = "#HostList"
	DefPackageList = "#PackageList"
)

// CompileSchema compiles the built-in configuration definitions.
func CompileSchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling schema: %w", err)
	}
	return v, nil
}
