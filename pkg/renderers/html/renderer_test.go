package html_test

import (
	"strings"
	"testing"

	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/render"
	"github.com/goliatone/go-formbuilder/pkg/renderers/html"
	"github.com/goliatone/go-formbuilder/pkg/testsupport"
)

func newSession(t *testing.T) *preview.Session {
	t.Helper()

	session, err := preview.New(testsupport.SampleForm(), preview.WithClock(testsupport.Clock))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func TestRenderer_RendersEveryControl(t *testing.T) {
	session := newSession(t)
	for id, value := range map[string]any{
		"first":   "Jane",
		"last":    "Doe",
		"q1":      "80",
		"q2":      "60",
		"topics":  []string{"events"},
		"contact": "phone",
		"terms":   true,
	} {
		if err := session.Change(id, value); err != nil {
			t.Fatalf("change %s: %v", id, err)
		}
	}

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	output, err := renderer.Render(testsupport.Context(), session, render.RenderOptions{Action: "/submit"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := string(output)

	for _, want := range []string{
		`<form id="sample" class="formbuilder" method="post" action="/submit" novalidate>`,
		`<input type="hidden" name="_form_id" value="sample">`,
		`<input type="text" id="first" name="first" value="Jane" placeholder="Jane" required>`,
		`<input type="email" id="email" name="email" value="" required>`,
		`<textarea id="bio" name="bio"></textarea>`,
		`<option value="basic" selected>Basic</option>`,
		`<input type="radio" name="contact" value="phone" checked> Phone`,
		`<input type="checkbox" name="topics" value="events" checked> Events`,
		`<input type="checkbox" name="topics" value="news"> News`,
		`<input type="checkbox" id="terms" name="terms" value="true" checked required> Accept terms`,
		`<input type="text" id="fullName" name="fullName" value="Jane Doe" readonly>`,
		`<input type="number" id="total" name="total" value="140" readonly>`,
		`<input type="number" id="mean" name="mean" value="70.00" readonly>`,
		`<small class="formbuilder__note">` + preview.DerivedNote + `</small>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q\n%s", want, out)
		}
	}
}

func TestRenderer_RendersErrors(t *testing.T) {
	session := newSession(t)
	_ = session.Blur("first")

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	output, err := renderer.Render(testsupport.Context(), session, render.RenderOptions{
		Title: "Custom <b>title</b>",
		Errors: map[string][]string{
			"/body/email":      {"Address already registered"},
			"non_field_errors": {"Try again later"},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := string(output)

	for _, want := range []string{
		`Custom &lt;b&gt;title&lt;/b&gt;`,
		`<p class="formbuilder__error">This field is required</p>`,
		`<p class="formbuilder__error">Address already registered</p>`,
		`<li>Try again later</li>`,
		`formbuilder__field--invalid" data-field-id="first"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q\n%s", want, out)
		}
	}
}

func TestRenderer_Metadata(t *testing.T) {
	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if renderer.Name() != "html" || !strings.HasPrefix(renderer.ContentType(), "text/html") {
		t.Fatalf("unexpected metadata %q %q", renderer.Name(), renderer.ContentType())
	}
	if _, err := renderer.Render(testsupport.Context(), nil, render.RenderOptions{}); err == nil {
		t.Fatalf("expected error for nil session")
	}
}
