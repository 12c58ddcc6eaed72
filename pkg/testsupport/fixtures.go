// Package testsupport holds fixtures and helpers shared by package tests.
package testsupport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// FixedNow is the clock used by fixtures that exercise age formulas.
var FixedNow = time.Date(2024, time.June, 14, 10, 0, 0, 0, time.UTC)

// Clock returns FixedNow.
func Clock() time.Time {
	return FixedNow
}

// SampleForm returns a form covering every field type plus one derived field
// per formula kind.
func SampleForm() model.FormDefinition {
	created := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
	return model.FormDefinition{
		ID:          "sample",
		Name:        "Sample intake",
		Description: "Every control type with derived fields",
		CreatedAt:   created,
		UpdatedAt:   created,
		Fields: []model.FieldDefinition{
			{ID: "first", Type: model.FieldTypeText, Label: "First name", Placeholder: "Jane", Required: true, Order: 0,
				ValidationRules: []model.ValidationRule{{Kind: model.RuleMinLength, Value: 2, Message: "Too short"}}},
			{ID: "last", Type: model.FieldTypeText, Label: "Last name", Order: 1},
			{ID: "email", Type: model.FieldTypeEmail, Label: "Email", Required: true, Order: 2},
			{ID: "dob", Type: model.FieldTypeDate, Label: "Date of birth", Order: 3},
			{ID: "q1", Type: model.FieldTypeNumber, Label: "Q1 score", Order: 4,
				ValidationRules: []model.ValidationRule{{Kind: model.RuleMin, Value: 0, Message: "ignored"}, {Kind: model.RuleMax, Value: 100, Message: "At most 100"}}},
			{ID: "q2", Type: model.FieldTypeNumber, Label: "Q2 score", Order: 5},
			{ID: "bio", Type: model.FieldTypeTextarea, Label: "Bio", Order: 6,
				ValidationRules: []model.ValidationRule{{Kind: model.RuleMaxLength, Value: 200, Message: "Keep it short"}}},
			{ID: "plan", Type: model.FieldTypeSelect, Label: "Plan", DefaultValue: "basic", Order: 7,
				Options: []model.FieldOption{{Label: "Basic", Value: "basic"}, {Label: "Pro", Value: "pro"}}},
			{ID: "contact", Type: model.FieldTypeRadio, Label: "Contact by", Order: 8,
				Options: []model.FieldOption{{Label: "Email", Value: "email"}, {Label: "Phone", Value: "phone"}}},
			{ID: "topics", Type: model.FieldTypeCheckbox, Label: "Topics", Order: 9,
				Options: []model.FieldOption{{Label: "News", Value: "news"}, {Label: "Events", Value: "events"}}},
			{ID: "terms", Type: model.FieldTypeCheckbox, Label: "Accept terms", Required: true, Order: 10},
			derived("fullName", "Full name", 11, model.FormulaConcat, "", "first", "last"),
			derived("age", "Age", 12, model.FormulaAgeFromDOB, "", "dob"),
			derived("total", "Total", 13, model.FormulaSum, "", "q1", "q2"),
			derived("mean", "Average", 14, model.FormulaAverage, "", "q1", "q2"),
			derived("weighted", "Weighted", 15, model.FormulaCustom, "q1 * 0.75 + q2 * 0.25", "q1", "q2"),
		},
	}
}

func derived(id, label string, order int, kind model.FormulaType, formula string, parents ...string) model.FieldDefinition {
	fieldType := model.FieldTypeNumber
	if kind == model.FormulaConcat {
		fieldType = model.FieldTypeText
	}
	return model.FieldDefinition{
		ID:        id,
		Type:      fieldType,
		Label:     label,
		Order:     order,
		IsDerived: true,
		DerivedConfig: &model.DerivedConfig{
			ParentFieldIDs: parents,
			Formula:        formula,
			FormulaType:    kind,
		},
	}
}

// MustLoadForm loads a JSON form definition fixture.
func MustLoadForm(t *testing.T, path string) model.FormDefinition {
	t.Helper()

	form, err := LoadForm(path)
	if err != nil {
		t.Fatalf("load form: %v", err)
	}
	return form
}

// LoadForm reads a JSON fixture into a FormDefinition, returning an error for
// callers managing setup outside of *testing.T.
func LoadForm(path string) (model.FormDefinition, error) {
	if path == "" {
		return model.FormDefinition{}, errors.New("testsupport: form path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FormDefinition{}, fmt.Errorf("testsupport: read form: %w", err)
	}
	var out model.FormDefinition
	if err := json.Unmarshal(data, &out); err != nil {
		return model.FormDefinition{}, fmt.Errorf("testsupport: unmarshal form: %w", err)
	}
	return out, nil
}

// WriteForm writes form as indented JSON into dir and returns the file path.
func WriteForm(t *testing.T, dir string, form model.FormDefinition) string {
	t.Helper()

	payload, err := json.MarshalIndent(form, "", "  ")
	if err != nil {
		t.Fatalf("marshal form: %v", err)
	}
	path := filepath.Join(dir, form.ID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write form: %v", err)
	}
	return path
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CaptureTemplateOutput executes a render function that writes to an io.Writer,
// returning both the string result and the writer contents.
func CaptureTemplateOutput(t *testing.T, render func(io.Writer) (string, error)) (string, string) {
	t.Helper()

	var buf bytes.Buffer
	out, err := render(&buf)
	if err != nil {
		t.Fatalf("render template: %v", err)
	}
	return out, buf.String()
}
