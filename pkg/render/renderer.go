package render

import (
	"context"

	"github.com/goliatone/go-formbuilder/pkg/preview"
)

// Renderer turns a live preview session into an output representation (HTML,
// terminal prompts, JSON).
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, session *preview.Session, options RenderOptions) ([]byte, error)
}
