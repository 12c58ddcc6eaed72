package render

// RenderOptions describe per-request data that renderers can use without
// touching the session.
type RenderOptions struct {
	// Title overrides the form name as the heading.
	Title string
	// Action and Method describe where static HTML forms post to. Method
	// defaults to POST.
	Action string
	Method string
	// Errors adds externally produced messages keyed by field id. They are
	// merged with the session's own validation errors; unknown keys become
	// form-level messages.
	Errors map[string][]string
	// HiddenFields are emitted alongside the visible controls.
	HiddenFields map[string]string
}
