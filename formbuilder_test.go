package formbuilder

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbuilder/pkg/derived"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/testsupport"
)

func TestEvaluate_ComputesAndValidates(t *testing.T) {
	input := map[string]any{
		"first": "Ada",
		"last":  "Lovelace",
		"email": "ada@example.com",
		"dob":   "2000-06-15",
		"q1":    "80",
		"q2":    "60",
		"terms": true,
	}
	result, err := Evaluate(testsupport.SampleForm(), input, derived.WithClock(testsupport.Clock))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Valid() {
		t.Fatalf("expected valid result, got %v", result.Errors)
	}

	wantDerived := map[string]any{
		"fullName": "Ada Lovelace",
		"age":      23,
		"total":    140.0,
		"mean":     "70.00",
		"weighted": 75.0,
	}
	if diff := cmp.Diff(wantDerived, result.Derived); diff != "" {
		t.Fatalf("derived mismatch (-want +got):\n%s", diff)
	}
	if result.Values["plan"] != "basic" || result.Values["topics"] != false {
		t.Fatalf("expected defaults for missing inputs, got plan=%v topics=%v", result.Values["plan"], result.Values["topics"])
	}
	if _, touched := input["fullName"]; touched {
		t.Fatalf("input mapping must not be modified")
	}
}

func TestEvaluate_ReportsFieldErrors(t *testing.T) {
	result, err := Evaluate(testsupport.SampleForm(), map[string]any{"email": "nope"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Valid() {
		t.Fatalf("expected validation errors")
	}
	for _, id := range []string{"first", "email", "terms"} {
		if !result.Errors.Has(id) {
			t.Fatalf("expected error for %s, got %v", id, result.Errors)
		}
	}
}

func TestEvaluate_ConfigErrorsDegradeSingleFields(t *testing.T) {
	form := model.FormDefinition{
		ID: "broken",
		Fields: []model.FieldDefinition{
			{ID: "code", Type: model.FieldTypeText, Required: true, ValidationRules: []model.ValidationRule{{Kind: model.RulePattern, Value: "("}}},
			{ID: "qty", Type: model.FieldTypeNumber, Order: 1},
			{ID: "total", Type: model.FieldTypeNumber, Order: 2, IsDerived: true},
			{ID: "double", Type: model.FieldTypeNumber, Order: 3, IsDerived: true,
				DerivedConfig: &model.DerivedConfig{FormulaType: model.FormulaCustom, Formula: "qty * 2", ParentFieldIDs: []string{"qty"}}},
		},
	}
	result, err := Evaluate(form, map[string]any{"qty": 4})
	if err != nil {
		t.Fatalf("configuration problems must not fail evaluation: %v", err)
	}
	if len(result.ConfigErrors) != 2 {
		t.Fatalf("expected the missing config and the bad pattern, got %v", result.ConfigErrors)
	}
	if result.Values["double"] != 8.0 {
		t.Fatalf("expected healthy derived field to compute, got %#v", result.Values["double"])
	}
	if !result.Errors.Has("code") {
		t.Fatalf("required check must survive a broken pattern, got %v", result.Errors)
	}
}

func TestNewSessionAndRenderHTML(t *testing.T) {
	session, err := NewSession(testsupport.SampleForm(), preview.WithClock(testsupport.Clock))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	out, err := RenderHTML(testsupport.Context(), session, RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(out), `data-field-id="fullName"`) {
		t.Fatalf("expected derived field markup:\n%s", out)
	}
}

func TestEmbeddedTemplates(t *testing.T) {
	data, err := fs.ReadFile(EmbeddedTemplates(), "templates/form.tmpl")
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected template content")
	}
}
