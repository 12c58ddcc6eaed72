package model_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

func TestSortFieldsIsStable(t *testing.T) {
	fields := []model.FieldDefinition{
		{ID: "c", Order: 2},
		{ID: "a", Order: 1},
		{ID: "b", Order: 1},
		{ID: "z", Order: 0},
	}

	sorted := model.SortFields(fields)

	var got []string
	for _, field := range sorted {
		got = append(got, field.ID)
	}
	if diff := cmp.Diff([]string{"z", "a", "b", "c"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if fields[0].ID != "c" {
		t.Fatalf("expected input slice to stay untouched")
	}
}

func TestInitialValue(t *testing.T) {
	checkbox := model.FieldDefinition{ID: "agree", Type: model.FieldTypeCheckbox}
	if got := checkbox.InitialValue(); got != false {
		t.Fatalf("expected false for checkbox, got %#v", got)
	}
	text := model.FieldDefinition{ID: "name", Type: model.FieldTypeText}
	if got := text.InitialValue(); got != "" {
		t.Fatalf("expected empty string, got %#v", got)
	}
	withDefault := model.FieldDefinition{ID: "qty", Type: model.FieldTypeNumber, DefaultValue: 3}
	if got := withDefault.InitialValue(); got != 3 {
		t.Fatalf("expected default value, got %#v", got)
	}
}

func TestFormValidate(t *testing.T) {
	form := model.FormDefinition{
		Fields: []model.FieldDefinition{
			{ID: "a", Type: model.FieldTypeText},
			{ID: "a", Type: model.FieldTypeText},
			{ID: "b", Type: "slider"},
			{ID: "c", Type: model.FieldTypeText, IsDerived: true},
			{ID: "d", Type: model.FieldTypeText, IsDerived: true, DerivedConfig: &model.DerivedConfig{FormulaType: "median"}},
		},
	}

	err := form.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{`duplicate field id "a"`, `unknown type "slider"`} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
	if strings.Contains(msg, "derivedConfig") || strings.Contains(msg, "median") {
		t.Fatalf("derived configuration must not fail structural validation: %q", msg)
	}
}

func TestDerivedConfigErrors(t *testing.T) {
	form := model.FormDefinition{
		Fields: []model.FieldDefinition{
			{ID: "a", Type: model.FieldTypeNumber, Order: 0},
			{ID: "c", Type: model.FieldTypeText, IsDerived: true, Order: 1},
			{ID: "d", Type: model.FieldTypeText, IsDerived: true, Order: 2, DerivedConfig: &model.DerivedConfig{FormulaType: "median"}},
			{ID: "e", Type: model.FieldTypeNumber, IsDerived: true, Order: 3, DerivedConfig: &model.DerivedConfig{FormulaType: model.FormulaSum, ParentFieldIDs: []string{"a"}}},
		},
	}
	if err := form.Validate(); err != nil {
		t.Fatalf("expected structurally valid form, got %v", err)
	}

	errs := form.DerivedConfigErrors()
	if len(errs) != 2 {
		t.Fatalf("expected two derived config errors, got %v", errs)
	}
	if !errors.Is(errs[0], model.ErrDerivedConfigMissing) || !strings.Contains(errs[0].Error(), `"c"`) {
		t.Fatalf("unexpected first error %v", errs[0])
	}
	if !errors.Is(errs[1], model.ErrUnknownFormula) || !strings.Contains(errs[1].Error(), `"median"`) {
		t.Fatalf("unexpected second error %v", errs[1])
	}
}

func TestCloneIsDeep(t *testing.T) {
	form := model.FormDefinition{
		Fields: []model.FieldDefinition{{
			ID:            "total",
			IsDerived:     true,
			DerivedConfig: &model.DerivedConfig{ParentFieldIDs: []string{"a"}, FormulaType: model.FormulaSum},
		}},
	}
	clone := form.Clone()
	clone.Fields[0].DerivedConfig.ParentFieldIDs[0] = "b"
	if form.Fields[0].DerivedConfig.ParentFieldIDs[0] != "a" {
		t.Fatalf("expected clone to detach derived config")
	}
}
