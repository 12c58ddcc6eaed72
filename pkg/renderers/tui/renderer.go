// Package tui renders a preview session as an interactive terminal form. Each
// answer is fed back into the session so derived fields settle before the next
// prompt.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/goliatone/go-formbuilder/internal/coerce"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/render"
	"github.com/goliatone/go-formbuilder/pkg/validation"
)

const noneOption = "(none)"

// Renderer implements render.Renderer for terminal-driven sessions.
type Renderer struct {
	driver            PromptDriver
	out               io.Writer
	outputFormat      OutputFormat
	submitTransformer SubmitTransformer
	theme             Theme
	maxAttempts       int
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs a TUI renderer with defaults (survey driver, JSON output).
func New(options ...Option) (*Renderer, error) {
	r := &Renderer{
		outputFormat: OutputFormatJSON,
		theme:        DefaultTheme(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = newSurveyDriver(r.out)
	}
	return r, nil
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "tui"
}

// ContentType reports the serialization format used by Render.
func (r *Renderer) ContentType() string {
	switch r.outputFormat {
	case OutputFormatFormURLEncoded:
		return "application/x-www-form-urlencoded"
	case OutputFormatPrettyText:
		return "text/plain"
	default:
		return "application/json"
	}
}

// Render prompts every editable field in order, reports derived values as
// they settle, submits the session and serializes the submitted values.
func (r *Renderer) Render(ctx context.Context, session *preview.Session, opts render.RenderOptions) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("tui: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("tui: session is required")
	}
	if r.driver == nil {
		return nil, errors.New("tui: prompt driver is nil")
	}

	errs := render.SessionErrors(session, opts.Errors)
	for _, message := range errs.Form {
		_ = r.driver.Info(ctx, r.theme.Error.Render(message))
	}

	for _, view := range session.Fields() {
		if view.ReadOnly {
			current, _ := session.Field(view.Field.ID)
			_ = r.driver.Info(ctx, r.derivedLine(current))
			continue
		}
		for _, message := range errs.For(view.Field.ID) {
			_ = r.driver.Info(ctx, r.theme.Error.Render(fmt.Sprintf("%s: %s", view.Field.DisplayLabel(), message)))
		}
		if err := r.promptField(ctx, session, view); err != nil {
			return nil, err
		}
	}

	submission, err := session.Submit(ctx)
	if err != nil {
		var fieldErrs validation.FieldErrors
		if errors.As(err, &fieldErrs) {
			for id, message := range fieldErrs {
				_ = r.driver.Info(ctx, r.theme.Error.Render(fmt.Sprintf("Invalid %s: %s", id, message)))
			}
		}
		return nil, fmt.Errorf("tui: submit: %w", err)
	}

	values := submission.Data
	if r.submitTransformer != nil {
		values, err = r.submitTransformer(values)
		if err != nil {
			return nil, fmt.Errorf("tui: submit transformer: %w", err)
		}
	}
	return r.serialize(session.Form(), values)
}

func (r *Renderer) promptField(ctx context.Context, session *preview.Session, view preview.FieldView) error {
	field := view.Field
	for attempt := 1; ; attempt++ {
		current, _ := session.Field(field.ID)
		value, err := r.ask(ctx, field, current.Value)
		if err != nil {
			return err
		}
		if err := session.Change(field.ID, value); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		err = session.Blur(field.ID)
		if err == nil {
			return nil
		}
		_ = r.driver.Info(ctx, r.theme.Error.Render(fmt.Sprintf("Invalid %s: %v", field.DisplayLabel(), err)))
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return fmt.Errorf("%w: %s", ErrTooManyAttempts, field.ID)
		}
	}
}

func (r *Renderer) ask(ctx context.Context, field model.FieldDefinition, current any) (any, error) {
	label := field.DisplayLabel()
	help := displayHelp(field)

	switch field.Type {
	case model.FieldTypeTextarea:
		return r.driver.TextArea(ctx, TextAreaConfig{
			Message: label,
			Default: coerce.String(current),
			Help:    help,
		})

	case model.FieldTypeSelect, model.FieldTypeRadio:
		labels := optionLabels(field.Options)
		offset := 0
		if !field.Required {
			labels = append([]string{noneOption}, labels...)
			offset = 1
		}
		defaultIdx := -1
		if idx := optionIndex(field.Options, coerce.String(current)); idx >= 0 {
			defaultIdx = idx + offset
		}
		idx, err := r.driver.Select(ctx, SelectConfig{
			Message:      label,
			Options:      labels,
			DefaultIndex: defaultIdx,
			Help:         help,
		})
		if err != nil {
			return nil, err
		}
		idx -= offset
		if idx < 0 || idx >= len(field.Options) {
			return "", nil
		}
		return field.Options[idx].Value, nil

	case model.FieldTypeCheckbox:
		if field.MultiValue() {
			indices, err := r.driver.MultiSelect(ctx, SelectConfig{
				Message:  label,
				Options:  optionLabels(field.Options),
				Defaults: selectedIndices(field.Options, current),
				Help:     help,
			})
			if err != nil {
				return nil, err
			}
			selected := make([]string, 0, len(indices))
			for _, idx := range indices {
				if idx >= 0 && idx < len(field.Options) {
					selected = append(selected, field.Options[idx].Value)
				}
			}
			return selected, nil
		}
		checked, _ := current.(bool)
		return r.driver.Confirm(ctx, ConfirmConfig{
			Message: label,
			Default: checked,
			Help:    help,
		})

	default:
		response, err := r.driver.Input(ctx, InputConfig{
			Message: label,
			Default: coerce.String(current),
			Help:    help,
		})
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(response), nil
	}
}

func (r *Renderer) derivedLine(view preview.FieldView) string {
	value := coerce.String(view.Value)
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf("%s %s %s",
		r.theme.Label.Render(view.Field.DisplayLabel()+":"),
		r.theme.Derived.Render(value),
		r.theme.Muted.Render("("+view.Note+")"),
	)
}

func (r *Renderer) serialize(form model.FormDefinition, values map[string]any) ([]byte, error) {
	switch r.outputFormat {
	case OutputFormatFormURLEncoded:
		return []byte(encodeForm(values)), nil
	case OutputFormatPrettyText:
		return []byte(r.prettyPrint(form, values)), nil
	default:
		return json.Marshal(values)
	}
}

func displayHelp(field model.FieldDefinition) string {
	switch {
	case field.Placeholder != "":
		return field.Placeholder
	case field.Type == model.FieldTypeDate:
		return "YYYY-MM-DD"
	case field.Type == model.FieldTypeEmail:
		return "name@example.com"
	default:
		return ""
	}
}

func optionLabels(options []model.FieldOption) []string {
	out := make([]string, len(options))
	for i, option := range options {
		if option.Label != "" {
			out[i] = option.Label
		} else {
			out[i] = option.Value
		}
	}
	return out
}

func optionIndex(options []model.FieldOption, value string) int {
	if value == "" {
		return -1
	}
	for i, option := range options {
		if option.Value == value {
			return i
		}
	}
	return -1
}

func selectedIndices(options []model.FieldOption, current any) []int {
	var values []string
	switch v := current.(type) {
	case []string:
		values = v
	case []any:
		for _, item := range v {
			values = append(values, coerce.String(item))
		}
	}
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	var out []int
	for i, option := range options {
		if _, ok := set[option.Value]; ok {
			out = append(out, i)
		}
	}
	return out
}

func encodeForm(values map[string]any) string {
	encoded := url.Values{}
	for key, value := range values {
		switch v := value.(type) {
		case []string:
			for _, item := range v {
				encoded.Add(key, item)
			}
		case []any:
			for _, item := range v {
				encoded.Add(key, coerce.String(item))
			}
		default:
			encoded.Set(key, coerce.String(v))
		}
	}
	return encoded.Encode()
}

func (r *Renderer) prettyPrint(form model.FormDefinition, values map[string]any) string {
	var b strings.Builder
	for _, field := range form.SortedFields() {
		value := coerce.String(values[field.ID])
		if value == "" {
			value = "-"
		}
		line := fmt.Sprintf("%s %s", r.theme.Label.Render(field.DisplayLabel()+":"), value)
		if field.Derived() {
			line += " " + r.theme.Muted.Render("(calculated)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
