// Package formbuilder is the entry point for embedding the form builder core:
// derived field evaluation, validation and live previews of stored form
// definitions.
package formbuilder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/goliatone/go-formbuilder/pkg/derived"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/render"
	"github.com/goliatone/go-formbuilder/pkg/renderers/html"
	"github.com/goliatone/go-formbuilder/pkg/validation"
)

// FormDefinition aliases model.FormDefinition for callers using only the root
// package.
type FormDefinition = model.FormDefinition

// FieldDefinition aliases model.FieldDefinition.
type FieldDefinition = model.FieldDefinition

// RenderOptions aliases render.RenderOptions.
type RenderOptions = render.RenderOptions

// NewSession starts a live preview of form.
func NewSession(form model.FormDefinition, options ...preview.Option) (*preview.Session, error) {
	return preview.New(form, options...)
}

// Evaluation is the outcome of a single recomputation and validation pass.
type Evaluation struct {
	// Values holds the input values, defaults for missing inputs and every
	// derived value.
	Values map[string]any `json:"values"`
	// Derived lists the derived values that differ from the input mapping.
	Derived map[string]any `json:"derived,omitempty"`
	// Errors maps field ids to validation messages. Nil when valid.
	Errors validation.FieldErrors `json:"errors,omitempty"`
	// ConfigErrors lists configuration problems that degraded single fields:
	// unusable derived configs, rejected references and uncompilable rules.
	ConfigErrors []string `json:"configErrors,omitempty"`
}

// Valid reports whether the evaluated values passed validation.
func (e Evaluation) Valid() bool {
	return len(e.Errors) == 0
}

// Evaluate fills missing inputs with their defaults, computes every derived
// field and validates the result. values is not modified. The returned error
// is limited to structural problems and dependency cycles; other configuration
// problems are reported in Evaluation.ConfigErrors.
func Evaluate(form model.FormDefinition, values map[string]any, options ...derived.Option) (Evaluation, error) {
	if err := form.Validate(); err != nil {
		return Evaluation{}, fmt.Errorf("formbuilder: %w", err)
	}
	fields := form.SortedFields()

	engine, err := derived.New(fields, options...)
	if err != nil {
		return Evaluation{}, fmt.Errorf("formbuilder: %w", err)
	}
	var configErrs []string
	for _, err := range form.DerivedConfigErrors() {
		configErrs = append(configErrs, err.Error())
	}
	for _, issue := range engine.Issues() {
		configErrs = append(configErrs, issue.Error())
	}
	schema, err := validation.BuildSchema(fields)
	if err != nil {
		ruleErrs := validation.ConfigErrors(err)
		if schema == nil || len(ruleErrs) == 0 {
			return Evaluation{}, fmt.Errorf("formbuilder: %w", err)
		}
		for _, ruleErr := range ruleErrs {
			configErrs = append(configErrs, ruleErr.Error())
		}
	}

	out := make(map[string]any, len(fields))
	for key, value := range values {
		out[key] = value
	}
	for _, field := range fields {
		if _, ok := out[field.ID]; !ok && !field.IsDerived {
			out[field.ID] = field.InitialValue()
		}
	}

	result := Evaluation{Values: out, Derived: engine.Recompute(out), ConfigErrors: configErrs}
	if err := schema.Validate(out); err != nil {
		var fieldErrs validation.FieldErrors
		if !errors.As(err, &fieldErrs) {
			return Evaluation{}, fmt.Errorf("formbuilder: %w", err)
		}
		result.Errors = fieldErrs
	}
	return result, nil
}

// RenderHTML renders the session with the built-in HTML renderer.
func RenderHTML(ctx context.Context, session *preview.Session, options RenderOptions) ([]byte, error) {
	renderer, err := html.New()
	if err != nil {
		return nil, err
	}
	return renderer.Render(ctx, session, options)
}

// EmbeddedTemplates exposes the built-in HTML templates so callers can reuse
// or extend them without importing the renderer package directly.
func EmbeddedTemplates() fs.FS {
	return html.TemplatesFS()
}
