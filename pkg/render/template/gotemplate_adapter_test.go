package template_test

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/goliatone/go-formbuilder/pkg/render/template/gotemplate"
	"github.com/goliatone/go-formbuilder/pkg/testsupport"
)

//go:embed testdata/templates/*.tpl
var embeddedTemplates embed.FS

func TestGoTemplateEngine_RenderTemplate(t *testing.T) {
	engine := newEngine(t)

	result, written := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("hello", map[string]any{"name": "Ada"}, w)
	})

	want := "Hello Ada!\n"
	if result != want {
		t.Fatalf("render template mismatch result\nwant: %q\n got: %q", want, result)
	}
	if written != want {
		t.Fatalf("render template mismatch writer\nwant: %q\n got: %q", want, written)
	}
}

func TestGoTemplateEngine_GlobalContext(t *testing.T) {
	engine := newEngine(t)
	if err := engine.GlobalContext(map[string]any{
		"settings": map[string]any{"env": "staging"},
	}); err != nil {
		t.Fatalf("global context: %v", err)
	}

	result, _ := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("use-global", nil, w)
	})
	if result != "staging\n" {
		t.Fatalf("expected global value, got %q", result)
	}
}

func TestGoTemplateEngine_RegisterFilter(t *testing.T) {
	engine := newEngine(t)
	err := engine.RegisterFilter("shout", func(input any, _ any) (any, error) {
		if input == nil {
			return "", nil
		}
		return fmt.Sprintf("%s!", strings.ToUpper(fmt.Sprint(input))), nil
	})
	if err != nil {
		t.Fatalf("register filter: %v", err)
	}

	result, _ := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("use-filter", map[string]any{"name": "Ada"}, w)
	})
	if result != "ADA!\n" {
		t.Fatalf("expected filtered output, got %q", result)
	}

	if err := engine.RegisterFilter("shout", func(any, any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate filter registration to fail")
	}
}

func TestGoTemplateEngine_FieldFilters(t *testing.T) {
	engine := newEngine(t)

	cases := []struct {
		value any
		want  string
	}{
		{value: []string{"b"}, want: "a=False;b=True;b\n"},
		{value: "a", want: "a=True;b=False;a\n"},
		{value: nil, want: "a=False;b=False;\n"},
	}
	for _, tc := range cases {
		got, err := engine.RenderTemplate("use-field", map[string]any{
			"options": []any{"a", "b"},
			"value":   tc.value,
		})
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if got != tc.want {
			t.Fatalf("value %#v: want %q, got %q", tc.value, tc.want, got)
		}
	}
}

func TestGoTemplateEngine_RenderString(t *testing.T) {
	engine := newEngine(t)
	got, err := engine.RenderString("{{ a }}+{{ b }}", map[string]any{"a": "one", "b": "two"})
	if err != nil {
		t.Fatalf("render string: %v", err)
	}
	if got != "one+two" {
		t.Fatalf("unexpected output %q", got)
	}
}

func newEngine(t *testing.T) *gotemplate.Engine {
	t.Helper()

	templatesFS, err := fs.Sub(embeddedTemplates, "testdata/templates")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}

	engine, err := gotemplate.New(gotemplate.WithFS(templatesFS))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestGoTemplateEngine_RequiresFS(t *testing.T) {
	if _, err := gotemplate.New(); err == nil {
		t.Fatalf("expected error without a template fs")
	}
}

func TestGoTemplateEngine_Extension(t *testing.T) {
	templatesFS, err := fs.Sub(embeddedTemplates, "testdata/templates")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}
	engine, err := gotemplate.New(gotemplate.WithFS(templatesFS), gotemplate.WithExtension("tpl"))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	for _, name := range []string{"hello", "hello.tpl"} {
		got, err := engine.RenderTemplate(name, map[string]any{"name": "Ada"})
		if err != nil {
			t.Fatalf("render %s: %v", name, err)
		}
		if got != "Hello Ada!\n" {
			t.Fatalf("render %s: unexpected output %q", name, got)
		}
	}
}

func TestGoTemplateEngine_StructData(t *testing.T) {
	engine := newEngine(t)

	type option struct {
		Label string `json:"label"`
	}
	data := struct {
		Options []option `json:"options"`
	}{Options: []option{{Label: "Small"}, {Label: "Large"}}}

	got, err := engine.RenderString("{% for o in options %}{{ o.label }} {% endfor %}", data)
	if err != nil {
		t.Fatalf("render string: %v", err)
	}
	if got != "Small Large " {
		t.Fatalf("unexpected output %q", got)
	}

	if _, err := engine.RenderString("{{ x }}", []string{"not", "an", "object"}); err == nil {
		t.Fatalf("expected error for non-object data")
	}
}
