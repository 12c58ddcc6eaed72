package render

import (
	"strings"

	"github.com/goliatone/go-formbuilder/pkg/preview"
)

// ErrorMapping splits error messages into field-level and form-level groups.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// For returns the messages attached to a field id.
func (m ErrorMapping) For(id string) []string {
	if len(m.Fields) == 0 {
		return nil
	}
	return m.Fields[id]
}

// MergeFormErrors concatenates and normalises form-level messages, trimming
// whitespace and removing duplicates while preserving order.
func MergeFormErrors(existing []string, extras ...string) []string {
	combined := make([]string, 0, len(existing)+len(extras))
	combined = append(combined, existing...)
	combined = append(combined, extras...)
	return normalizeMessages(combined)
}

// MapErrorPayload assigns externally produced messages to field ids. Keys may
// be plain ids or JSON pointer / dotted paths ("/body/email", "$.email"); the
// last segment naming a known field wins. Unknown keys become form-level
// messages so nothing is lost.
func MapErrorPayload(fieldIDs []string, payload map[string][]string) ErrorMapping {
	mapping := ErrorMapping{Fields: make(map[string][]string)}
	if len(payload) == 0 {
		mapping.Fields = nil
		return mapping
	}

	known := make(map[string]struct{}, len(fieldIDs))
	for _, id := range fieldIDs {
		known[id] = struct{}{}
	}

	for rawPath, messages := range payload {
		normalized := normalizeMessages(messages)
		if len(normalized) == 0 {
			continue
		}
		id, ok := matchField(rawPath, known)
		if !ok {
			mapping.Form = append(mapping.Form, normalized...)
			continue
		}
		mapping.Fields[id] = append(mapping.Fields[id], normalized...)
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = normalizeMessages(mapping.Form)
	return mapping
}

// SessionErrors combines the session's validation errors with the extra
// messages supplied through options. Session messages come first. Broken field
// configuration is reported as form-level messages after the extra ones.
func SessionErrors(session *preview.Session, extra map[string][]string) ErrorMapping {
	fieldIDs := make([]string, 0)
	for _, view := range session.Fields() {
		fieldIDs = append(fieldIDs, view.Field.ID)
	}
	mapping := MapErrorPayload(fieldIDs, extra)

	configErrs := session.ConfigErrors()
	messages := make([]string, 0, len(configErrs))
	for _, err := range configErrs {
		messages = append(messages, err.Error())
	}
	mapping.Form = MergeFormErrors(mapping.Form, messages...)

	current := session.Errors()
	if len(current) == 0 {
		return mapping
	}
	if mapping.Fields == nil {
		mapping.Fields = make(map[string][]string, len(current))
	}
	for id, message := range current {
		mapping.Fields[id] = normalizeMessages(append([]string{message}, mapping.Fields[id]...))
	}
	return mapping
}

func matchField(raw string, known map[string]struct{}) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if isFormLevelKey(trimmed) {
		return "", false
	}
	if _, ok := known[trimmed]; ok {
		return trimmed, true
	}
	segments := parsePathSegments(trimmed)
	for idx := len(segments) - 1; idx >= 0; idx-- {
		if _, ok := known[segments[idx]]; ok {
			return segments[idx], true
		}
	}
	return "", false
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	for strings.HasPrefix(clean, "#") || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, ".") || strings.HasPrefix(clean, "$") {
		clean = clean[1:]
	}
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)
	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}
