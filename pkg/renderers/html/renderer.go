// Package html renders a preview session as a static HTML form using pongo2
// templates.
package html

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/goliatone/go-formbuilder/internal/coerce"
	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/render"
	rendertemplate "github.com/goliatone/go-formbuilder/pkg/render/template"
	"github.com/goliatone/go-formbuilder/pkg/render/template/gotemplate"
)

// Option configures the renderer.
type Option func(*config)

type config struct {
	templateFS       fs.FS
	templateRenderer rendertemplate.TemplateRenderer
}

// WithTemplatesFS supplies an alternate template bundle. It must contain
// templates/form.tmpl and templates/field.tmpl.
func WithTemplatesFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.templateFS = files
	}
}

// WithTemplatesDir loads templates from a directory on disk.
func WithTemplatesDir(path string) Option {
	return func(cfg *config) {
		if path == "" {
			return
		}
		cfg.templateFS = os.DirFS(path)
	}
}

// WithTemplateRenderer injects a custom template renderer implementation.
func WithTemplateRenderer(renderer rendertemplate.TemplateRenderer) Option {
	return func(cfg *config) {
		if renderer != nil {
			cfg.templateRenderer = renderer
		}
	}
}

// Renderer produces an HTML form. Derived controls are read-only and carry
// the calculated-field note.
type Renderer struct {
	templates rendertemplate.TemplateRenderer
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs the renderer applying any provided options.
func New(options ...Option) (*Renderer, error) {
	cfg := config{templateFS: TemplatesFS()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	renderer := cfg.templateRenderer
	if renderer == nil {
		engine, err := gotemplate.New(
			gotemplate.WithFS(cfg.templateFS),
			gotemplate.WithExtension(".tmpl"),
		)
		if err != nil {
			return nil, fmt.Errorf("html renderer: configure template renderer: %w", err)
		}
		renderer = engine
	}
	return &Renderer{templates: renderer}, nil
}

func (r *Renderer) Name() string {
	return "html"
}

func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

func (r *Renderer) Render(ctx context.Context, session *preview.Session, options render.RenderOptions) ([]byte, error) {
	if r.templates == nil {
		return nil, fmt.Errorf("html renderer: template renderer is nil")
	}
	if session == nil {
		return nil, fmt.Errorf("html renderer: session is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := r.templates.RenderTemplate("templates/form.tmpl", buildContext(session, options))
	if err != nil {
		return nil, fmt.Errorf("html renderer: render template: %w", err)
	}
	return []byte(result), nil
}

func buildContext(session *preview.Session, options render.RenderOptions) map[string]any {
	form := session.Form()
	errs := render.SessionErrors(session, options.Errors)

	title := strings.TrimSpace(options.Title)
	if title == "" {
		title = form.Name
	}
	method := strings.ToLower(strings.TrimSpace(options.Method))
	if method == "" {
		method = "post"
	}

	views := session.Fields()
	fields := make([]any, 0, len(views))
	for _, view := range views {
		fields = append(fields, fieldContext(view, errs.For(view.Field.ID)))
	}

	hidden := make([]any, 0, len(options.HiddenFields)+1)
	for _, field := range render.SortedHiddenFields(render.MergeHiddenFields(options.HiddenFields, render.FormID(form.ID))) {
		hidden = append(hidden, map[string]any{"name": field.Name, "value": field.Value})
	}

	formErrors := make([]any, 0, len(errs.Form))
	for _, message := range errs.Form {
		formErrors = append(formErrors, message)
	}

	return map[string]any{
		"form": map[string]any{
			"id":          form.ID,
			"name":        form.Name,
			"description": form.Description,
		},
		"title":         title,
		"action":        options.Action,
		"method":        method,
		"fields":        fields,
		"hidden_fields": hidden,
		"form_errors":   formErrors,
	}
}

func fieldContext(view preview.FieldView, errs []string) map[string]any {
	field := view.Field
	options := make([]any, 0, len(field.Options))
	for _, option := range field.Options {
		options = append(options, map[string]any{"label": option.Label, "value": option.Value})
	}
	messages := make([]any, 0, len(errs))
	for _, message := range errs {
		messages = append(messages, message)
	}

	value := view.Value
	if list, ok := value.([]string); ok {
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item
		}
		value = items
	} else if value != nil {
		if _, isList := value.([]any); !isList {
			value = coerce.String(value)
		}
	}

	return map[string]any{
		"id":          field.ID,
		"type":        string(field.Type),
		"label":       field.DisplayLabel(),
		"placeholder": field.Placeholder,
		"required":    field.Required,
		"multi":       field.MultiValue(),
		"options":     options,
		"value":       value,
		"readonly":    view.ReadOnly,
		"note":        view.Note,
		"errors":      messages,
	}
}
