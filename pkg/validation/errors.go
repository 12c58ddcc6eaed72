package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// ErrInvalidRule is wrapped by ConfigError when a rule cannot be compiled.
var ErrInvalidRule = errors.New("validation: invalid rule")

// ConfigError reports a validation rule that could not be turned into a
// constraint, such as a pattern that does not compile.
type ConfigError struct {
	FieldID string
	Rule    model.ValidationRuleKind
	Err     error
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("validation: field %q rule %q: %v", e.FieldID, e.Rule, e.Err)
}

func (e ConfigError) Unwrap() []error {
	return []error{ErrInvalidRule, e.Err}
}

// ConfigErrors extracts the ConfigError values joined into err, as returned
// by BuildSchema. It returns nil when err carries none.
func ConfigErrors(err error) []ConfigError {
	if err == nil {
		return nil
	}
	var out []ConfigError
	var walk func(error)
	walk = func(err error) {
		if cfgErr, ok := err.(ConfigError); ok {
			out = append(out, cfgErr)
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// FieldError is the user-facing failure of one field.
type FieldError struct {
	FieldID string
	Rule    string
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// FieldErrors maps field ids to the first failing message for that field.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation: no errors"
	}
	ids := make([]string, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, e[id]))
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Has reports whether id has an error.
func (e FieldErrors) Has(id string) bool {
	_, ok := e[id]
	return ok
}
