package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/grantcarthew/flax/internal/config"
	internalcue "github.com/grantcarthew/flax/internal/cue"
)

// SchemaSet holds parsed CUE schema definitions for validation.
type SchemaSet struct {
	Settings    cue.Value // #Settings definition
	HostList    cue.Value // #HostList definition
	PackageList cue.Value // #PackageList definition
}

// LoadSchemas compiles the built-in schema definitions.
func LoadSchemas() (SchemaSet, error) {
	v, err := internalcue.CompileSchema(cuecontext.New())
	if err != nil {
		return SchemaSet{}, err
	}
	return SchemaSet{
		Settings:    v.LookupPath(cue.ParsePath(internalcue.DefSettings)),
		HostList:    v.LookupPath(cue.ParsePath(internalcue.DefHostList)),
		PackageList: v.LookupPath(cue.ParsePath(internalcue.DefPackageList)),
	}, nil
}

// categorySchema maps a top-level config key to the corresponding schema.
type categorySchema struct {
	key    string
	schema cue.Value
	isMap  bool // true for role maps (roledefs, packages), false for settings and hosts
}

// CheckSchemaValidation validates config files against the schemas.
func CheckSchemaValidation(paths config.Paths, schemas SchemaSet) SectionResult {
	section := SectionResult{Name: "Schema Validation"}

	categories := []categorySchema{
		{key: internalcue.KeySettings, schema: schemas.Settings},
		{key: internalcue.KeyRoledefs, schema: schemas.HostList, isMap: true},
		{key: internalcue.KeyPackages, schema: schemas.PackageList, isMap: true},
		{key: internalcue.KeyHosts, schema: schemas.HostList},
	}

	if paths.GlobalExists {
		results := validateConfigDir(paths.Global, categories)
		section.Results = append(section.Results, results...)
	}
	if paths.LocalExists {
		results := validateConfigDir(paths.Local, categories)
		section.Results = append(section.Results, results...)
	}

	if len(section.Results) == 0 {
		section.Results = append(section.Results, CheckResult{
			Status: StatusInfo,
			Label:  "No config files to validate",
		})
	}

	return section
}

// validateConfigDir validates all CUE files in a config directory.
func validateConfigDir(dir string, categories []categorySchema) []CheckResult {
	files, err := config.CUEFilesInDir(dir)
	if err != nil || len(files) == 0 {
		return nil
	}

	cctx := cuecontext.New()
	var results []CheckResult

	for _, filePath := range files {
		fileResults := validateSingleFile(cctx, filePath, categories)
		results = append(results, fileResults...)
	}

	return results
}

// validateSingleFile validates a single CUE config file against schemas.
func validateSingleFile(cctx *cue.Context, filePath string, categories []categorySchema) []CheckResult {
	var results []CheckResult
	fileName := filepath.Base(filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		results = append(results, CheckResult{
			Status:  StatusWarn,
			Label:   fileName,
			Message: fmt.Sprintf("cannot read: %v", err),
		})
		return results
	}

	v := cctx.CompileBytes(data, cue.Filename(filePath))
	if v.Err() != nil {
		// Syntax errors are already caught by the Configuration section.
		return results
	}

	var hasKeys bool
	var hasErrors bool

	for _, cat := range categories {
		if !cat.schema.Exists() {
			continue
		}

		topLevel := v.LookupPath(cue.ParsePath(cat.key))
		if !topLevel.Exists() {
			continue
		}

		hasKeys = true

		if !cat.isMap {
			unified := cat.schema.Unify(topLevel)
			if err := filterAllowedFieldErrors(unified.Validate()); err != nil {
				hasErrors = true
				results = append(results, CheckResult{
					Status:  StatusWarn,
					Label:   fileName,
					Message: fmt.Sprintf("%s: %s", cat.key, internalcue.ErrorSummary(err)),
					Fix:     fmt.Sprintf("Check %s values match the schema", cat.key),
				})
			}
			continue
		}

		// Role map: validate each role's list.
		iter, iterErr := topLevel.Fields()
		if iterErr != nil {
			continue
		}

		for iter.Next() {
			role := iter.Selector().Unquoted()
			unified := cat.schema.Unify(iter.Value())
			if err := filterAllowedFieldErrors(unified.Validate()); err != nil {
				hasErrors = true
				results = append(results, CheckResult{
					Status:  StatusWarn,
					Label:   fileName,
					Message: fmt.Sprintf("%s.%s: %s", cat.key, role, internalcue.ErrorSummary(err)),
					Fix:     fmt.Sprintf("%s.%s must be a list of non-empty strings", cat.key, role),
				})
			}
		}
	}

	if hasKeys && !hasErrors {
		results = append(results, CheckResult{
			Status: StatusPass,
			Label:  fileName,
		})
	}

	return results
}

// filterAllowedFieldErrors removes "field not allowed" errors from CUE
// validation results. Settings may carry extra keys for templates, while
// constraint violations on known keys are still reported.
func filterAllowedFieldErrors(err error) error {
	if err == nil {
		return nil
	}

	var filtered []error
	for _, e := range cueerrors.Errors(err) {
		// CUE lacks structured error codes; string match is the only option.
		// Verify this message still matches after CUE library upgrades.
		if !strings.Contains(e.Error(), "field not allowed") {
			filtered = append(filtered, e)
		}
	}

	if len(filtered) == 0 {
		return nil
	}

	return errors.Join(filtered...)
}
