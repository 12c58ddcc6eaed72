package store

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// sanitizeText strips markup from a display string. The policy escapes the
// text it keeps, so entities are decoded again to store plain text.
func sanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	cleaned := textSanitizer().Sanitize(trimmed)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

func sanitizeForm(form model.FormDefinition) model.FormDefinition {
	form.Name = sanitizeText(form.Name)
	form.Description = sanitizeText(form.Description)
	for i := range form.Fields {
		form.Fields[i] = sanitizeField(form.Fields[i])
	}
	return form
}

func sanitizeField(field model.FieldDefinition) model.FieldDefinition {
	field.Label = sanitizeText(field.Label)
	field.Placeholder = sanitizeText(field.Placeholder)
	for i := range field.Options {
		field.Options[i].Label = sanitizeText(field.Options[i].Label)
	}
	for i := range field.ValidationRules {
		field.ValidationRules[i].Message = sanitizeText(field.ValidationRules[i].Message)
	}
	return field
}
