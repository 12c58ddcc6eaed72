package derived

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

func field(id string, order int) model.FieldDefinition {
	return model.FieldDefinition{ID: id, Type: model.FieldTypeText, Label: id, Order: order}
}

func derivedField(id string, order int, kind model.FormulaType, formula string, parents ...string) model.FieldDefinition {
	f := field(id, order)
	f.IsDerived = true
	f.DerivedConfig = &model.DerivedConfig{
		ParentFieldIDs: parents,
		Formula:        formula,
		FormulaType:    kind,
	}
	return f
}

func TestResolveParents(t *testing.T) {
	t.Parallel()

	fields := []model.FieldDefinition{
		field("first", 0),
		field("last", 1),
		derivedField("full", 2, model.FormulaConcat, "", "last", "ghost", "first"),
	}
	values := map[string]any{"first": "Jane", "last": "Doe", "ghost": "boo"}

	got := ResolveParents(fields[2], fields, values)
	want := []any{"Doe", nil, "Jane"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parent values mismatch (-want +got):\n%s", diff)
	}

	if got := ResolveParents(fields[0], fields, values); got != nil {
		t.Fatalf("expected nil for non-derived field, got %#v", got)
	}
}

func TestCheckReferences(t *testing.T) {
	t.Parallel()

	fields := []model.FieldDefinition{
		field("a", 0),
		derivedField("b", 1, model.FormulaSum, "", "a", "missing"),
		derivedField("c", 2, model.FormulaSum, "", "c"),
		derivedField("d", 3, model.FormulaSum, "", "b"),
	}

	issues := CheckReferences(fields, false)
	got := make([]ReferenceKind, 0, len(issues))
	for _, issue := range issues {
		got = append(got, issue.Kind)
	}
	want := []ReferenceKind{ReferenceMissing, ReferenceSelf, ReferenceDerived}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("issue kinds mismatch (-want +got):\n%s", diff)
	}
	if issues[0].ParentID != "missing" || issues[2].FieldID != "d" {
		t.Fatalf("unexpected issue details: %#v", issues)
	}
}

func TestCheckReferencesChainsAllowDerivedParents(t *testing.T) {
	t.Parallel()

	fields := []model.FieldDefinition{
		field("a", 0),
		derivedField("b", 1, model.FormulaSum, "", "a"),
		derivedField("c", 2, model.FormulaSum, "", "b"),
	}
	if issues := CheckReferences(fields, true); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestCheckReferencesDetectsCycle(t *testing.T) {
	t.Parallel()

	fields := []model.FieldDefinition{
		derivedField("x", 0, model.FormulaSum, "", "y"),
		derivedField("y", 1, model.FormulaSum, "", "x"),
	}
	issues := CheckReferences(fields, true)
	if len(issues) != 1 {
		t.Fatalf("expected a single cycle issue, got %v", issues)
	}
	if !errors.Is(issues[0], ErrCycle) {
		t.Fatalf("expected cycle to match ErrCycle, got %v", issues[0])
	}
	if diff := cmp.Diff([]string{"x", "y", "x"}, issues[0].Path); diff != "" {
		t.Fatalf("cycle path mismatch (-want +got):\n%s", diff)
	}
}

func TestTopologicalOrderPutsParentsFirst(t *testing.T) {
	t.Parallel()

	fields := []model.FieldDefinition{
		derivedField("total", 0, model.FormulaSum, "", "subtotal", "tax"),
		derivedField("tax", 1, model.FormulaCustom, "subtotal * 0.2", "subtotal"),
		derivedField("subtotal", 2, model.FormulaSum, "", "a", "b"),
		field("a", 3),
		field("b", 4),
	}
	order, cycle := buildGraph(fields).topologicalOrder()
	if cycle != nil {
		t.Fatalf("unexpected cycle: %v", cycle)
	}
	if diff := cmp.Diff([]string{"subtotal", "tax", "total"}, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
