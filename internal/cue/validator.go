package cue

import (
	stderrors "errors"

	"cuelang.org/go/cue"
)

// Validator checks a loaded configuration value against the shape Decode
// expects. Unlike Decode it keeps going after the first bad key.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Check returns every problem in value, at most one per top-level key, in
// source order. A value that fails to evaluate yields a single problem.
func (v *Validator) Check(value cue.Value) []*ValidationError {
	if err := value.Err(); err != nil {
		return []*ValidationError{asValidationError(err)}
	}
	iter, err := value.Fields()
	if err != nil {
		return []*ValidationError{asValidationError(err)}
	}

	var problems []*ValidationError
	var scratch Config
	for iter.Next() {
		key := iter.Selector().String()
		if err := scratch.decodeField(key, iter.Value()); err != nil {
			ve := asValidationError(err)
			if ve.Path == "" {
				ve.Path = key
			}
			problems = append(problems, ve)
		}
	}
	return problems
}

// Keys returns the top-level keys of value that Decode accepts.
func (v *Validator) Keys(value cue.Value) []string {
	var keys []string
	for _, key := range TopLevelKeys {
		if value.LookupPath(cue.ParsePath(key)).Exists() {
			keys = append(keys, key)
		}
	}
	return keys
}

func asValidationError(err error) *ValidationError {
	err = FormatError(err)
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve
	}
	return &ValidationError{Message: err.Error()}
}
