package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/render"
	"github.com/goliatone/go-formbuilder/pkg/testsupport"
)

type stubDriver struct {
	inputs       []string
	selectIdx    []int
	multiIdx     [][]int
	confirm      []bool
	textAreas    []string
	infoMessages []string
	selectCfgs   []SelectConfig
	inputPos     int
	selectPos    int
	multiPos     int
	confirmPos   int
	textPos      int
}

func (s *stubDriver) Input(_ context.Context, _ InputConfig) (string, error) {
	if s.inputPos >= len(s.inputs) {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, _ ConfirmConfig) (bool, error) {
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.selectCfgs = append(s.selectCfgs, cfg)
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) MultiSelect(_ context.Context, _ SelectConfig) ([]int, error) {
	if s.multiPos >= len(s.multiIdx) {
		return nil, errors.New("no multiselect scripted")
	}
	val := s.multiIdx[s.multiPos]
	s.multiPos++
	return val, nil
}

func (s *stubDriver) TextArea(_ context.Context, _ TextAreaConfig) (string, error) {
	if s.textPos >= len(s.textAreas) {
		return "", errors.New("no textarea scripted")
	}
	val := s.textAreas[s.textPos]
	s.textPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

func sampleDriver(email ...string) *stubDriver {
	if len(email) == 0 {
		email = []string{"ada@example.com"}
	}
	inputs := []string{"Ada", "Lovelace"}
	inputs = append(inputs, email...)
	inputs = append(inputs, "2000-06-15", "80", "60")
	return &stubDriver{
		inputs:    inputs,
		textAreas: []string{"Mathematician"},
		// plan is optional so "(none)" sits at index 0.
		selectIdx: []int{2, 1},
		multiIdx:  [][]int{{0}},
		confirm:   []bool{true},
	}
}

func newSession(t *testing.T) *preview.Session {
	t.Helper()

	session, err := preview.New(testsupport.SampleForm(), preview.WithClock(testsupport.Clock))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func TestRender_SampleFormJSON(t *testing.T) {
	driver := sampleDriver()
	renderer, err := New(WithPromptDriver(driver))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	out, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := map[string]any{
		"first":    "Ada",
		"last":     "Lovelace",
		"email":    "ada@example.com",
		"dob":      "2000-06-15",
		"q1":       "80",
		"q2":       "60",
		"bio":      "Mathematician",
		"plan":     "pro",
		"contact":  "email",
		"topics":   []any{"news"},
		"terms":    true,
		"fullName": "Ada Lovelace",
		"age":      float64(23),
		"total":    float64(140),
		"mean":     "70.00",
		"weighted": float64(75),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("submitted values mismatch (-want +got):\n%s", diff)
	}
	if renderer.ContentType() != "application/json" {
		t.Fatalf("unexpected content type %q", renderer.ContentType())
	}
}

func TestRender_DerivedFieldsAreReported(t *testing.T) {
	driver := sampleDriver()
	renderer, err := New(WithPromptDriver(driver), WithTheme(Theme{}))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if _, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}

	joined := strings.Join(driver.infoMessages, "\n")
	for _, want := range []string{
		"Full name: Ada Lovelace (" + preview.DerivedNote + ")",
		"Age: 23 (" + preview.DerivedNote + ")",
		"Total: 140 (" + preview.DerivedNote + ")",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected info %q in:\n%s", want, joined)
		}
	}
}

func TestRender_OptionalSelectOffersNone(t *testing.T) {
	driver := sampleDriver()
	renderer, _ := New(WithPromptDriver(driver))
	if _, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(driver.selectCfgs) != 2 {
		t.Fatalf("expected two select prompts, got %d", len(driver.selectCfgs))
	}
	plan := driver.selectCfgs[0]
	if diff := cmp.Diff([]string{noneOption, "Basic", "Pro"}, plan.Options); diff != "" {
		t.Fatalf("plan options mismatch (-want +got):\n%s", diff)
	}
	if plan.DefaultIndex != 1 {
		t.Fatalf("expected default basic at index 1, got %d", plan.DefaultIndex)
	}
}

func TestRender_RepromptsInvalidAnswer(t *testing.T) {
	driver := sampleDriver("not-an-email", "ada@example.com")
	renderer, _ := New(WithPromptDriver(driver), WithTheme(Theme{}))

	if _, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	found := false
	for _, msg := range driver.infoMessages {
		if strings.HasPrefix(msg, "Invalid Email:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected validation message, got %v", driver.infoMessages)
	}
}

func TestRender_TooManyAttempts(t *testing.T) {
	driver := sampleDriver("nope", "still-nope")
	renderer, _ := New(WithPromptDriver(driver), WithMaxAttempts(2))

	_, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{})
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestRender_FormEncodedOutput(t *testing.T) {
	renderer, _ := New(WithPromptDriver(sampleDriver()), WithOutputFormat(OutputFormatFormURLEncoded))

	out, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	values, err := url.ParseQuery(string(out))
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if got := values.Get("total"); got != "140" {
		t.Fatalf("expected total 140, got %q", got)
	}
	if got := values["topics"]; len(got) != 1 || got[0] != "news" {
		t.Fatalf("unexpected topics %v", got)
	}
	if renderer.ContentType() != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", renderer.ContentType())
	}
}

func TestRender_PrettyOutputAndTransformer(t *testing.T) {
	renderer, _ := New(
		WithPromptDriver(sampleDriver()),
		WithOutputFormat(OutputFormatPrettyText),
		WithTheme(Theme{}),
		WithSubmitTransformer(func(values map[string]any) (map[string]any, error) {
			values["last"] = strings.ToUpper(values["last"].(string))
			return values, nil
		}),
	)

	out, err := renderer.Render(testsupport.Context(), newSession(t), render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	text := string(out)
	for _, want := range []string{
		"First name: Ada\n",
		"Last name: LOVELACE\n",
		"Total: 140 (calculated)\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRender_SingleCheckboxConfirm(t *testing.T) {
	form := model.FormDefinition{
		ID: "consent",
		Fields: []model.FieldDefinition{
			{ID: "agree", Type: model.FieldTypeCheckbox, Label: "Agree", Required: true},
		},
	}
	session, err := preview.New(form)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	driver := &stubDriver{confirm: []bool{false, true}}
	renderer, _ := New(WithPromptDriver(driver), WithTheme(Theme{}))

	out, err := renderer.Render(testsupport.Context(), session, render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != `{"agree":true}` {
		t.Fatalf("unexpected output %s", out)
	}
	if driver.confirmPos != 2 {
		t.Fatalf("expected a second prompt after the rejected answer, got %d", driver.confirmPos)
	}
}

func TestParseOutputFormat(t *testing.T) {
	cases := map[string]OutputFormat{
		"json":   OutputFormatJSON,
		"form":   OutputFormatFormURLEncoded,
		"pretty": OutputFormatPrettyText,
		"xml":    OutputFormatJSON,
	}
	for raw, want := range cases {
		if got := ParseOutputFormat(raw); got != want {
			t.Fatalf("ParseOutputFormat(%q) = %q, want %q", raw, got, want)
		}
	}
}
