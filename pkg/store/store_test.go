package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/store"
	"github.com/goliatone/go-formbuilder/pkg/testsupport"
)

type backendFactory func(t *testing.T, opts ...store.Option) store.Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		store.BackendFile: func(t *testing.T, opts ...store.Option) store.Store {
			t.Helper()
			s, err := store.OpenFile(t.TempDir(), opts...)
			if err != nil {
				t.Fatalf("open file store: %v", err)
			}
			return s
		},
		store.BackendSQLite: func(t *testing.T, opts ...store.Option) store.Store {
			t.Helper()
			path := filepath.Join(t.TempDir(), "forms.db")
			s, err := store.OpenSQLite(context.Background(), path, opts...)
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// tickingClock advances one minute per call so UpdatedAt changes are visible.
func tickingClock() func() time.Time {
	now := testsupport.FixedNow
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newStore(t *testing.T, factory backendFactory) store.Store {
	t.Helper()
	return factory(t, store.WithClock(tickingClock()), store.WithIDGenerator(sequentialIDs()))
}

func TestStore_CreateGetListDelete(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			created, err := s.Create(ctx, testsupport.SampleForm())
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.ID != "id-1" {
				t.Fatalf("expected generated id, got %q", created.ID)
			}
			if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
				t.Fatalf("expected matching timestamps, got %v / %v", created.CreatedAt, created.UpdatedAt)
			}

			got, err := s.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if diff := cmp.Diff(fieldIDs(created), fieldIDs(got)); diff != "" {
				t.Fatalf("field ids mismatch (-want +got):\n%s", diff)
			}
			if got.Fields[11].DerivedConfig == nil || got.Fields[11].DerivedConfig.FormulaType != model.FormulaConcat {
				t.Fatalf("derived config lost on round trip: %+v", got.Fields[11])
			}

			second, err := s.Create(ctx, model.FormDefinition{Name: "Second"})
			if err != nil {
				t.Fatalf("create second: %v", err)
			}
			forms, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(forms) != 2 || forms[0].ID != created.ID || forms[1].ID != second.ID {
				t.Fatalf("unexpected list %v", formIDs(forms))
			}

			if err := s.Delete(ctx, created.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if err := s.Delete(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
			}
		})
	}
}

func TestStore_UpdateKeepsCreatedAt(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			created, err := s.Create(ctx, model.FormDefinition{Name: "Draft"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			created.Name = "Final"
			created.CreatedAt = time.Time{}
			updated, err := s.Update(ctx, created)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if updated.Name != "Final" {
				t.Fatalf("expected new name, got %q", updated.Name)
			}
			if updated.CreatedAt.IsZero() || !updated.UpdatedAt.After(updated.CreatedAt) {
				t.Fatalf("unexpected timestamps %v / %v", updated.CreatedAt, updated.UpdatedAt)
			}

			if _, err := s.Update(ctx, model.FormDefinition{ID: "missing"}); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_ImportKeepsIDs(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			form := testsupport.SampleForm()
			imported, err := s.Import(ctx, form)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if imported.ID != form.ID {
				t.Fatalf("expected id %q to be kept, got %q", form.ID, imported.ID)
			}

			form.Name = "Renamed"
			again, err := s.Import(ctx, form)
			if err != nil {
				t.Fatalf("re-import: %v", err)
			}
			if again.Name != "Renamed" || !again.CreatedAt.Equal(imported.CreatedAt) {
				t.Fatalf("expected replacement keeping CreatedAt, got %+v", again)
			}

			forms, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(forms) != 1 {
				t.Fatalf("expected a single stored form, got %d", len(forms))
			}

			blank, err := s.Import(ctx, model.FormDefinition{Name: "No id"})
			if err != nil {
				t.Fatalf("import blank id: %v", err)
			}
			if blank.ID == "" {
				t.Fatalf("expected generated id")
			}
		})
	}
}

func TestStore_DuplicateAndSearch(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			source, err := s.Create(ctx, testsupport.SampleForm())
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := s.Create(ctx, model.FormDefinition{Name: "Feedback", Description: "Quarterly SURVEY"}); err != nil {
				t.Fatalf("create: %v", err)
			}

			copyForm, err := s.Duplicate(ctx, source.ID)
			if err != nil {
				t.Fatalf("duplicate: %v", err)
			}
			if copyForm.ID == source.ID || copyForm.Name != "Sample intake (Copy)" {
				t.Fatalf("unexpected duplicate %q %q", copyForm.ID, copyForm.Name)
			}
			if diff := cmp.Diff(fieldIDs(source), fieldIDs(copyForm)); diff != "" {
				t.Fatalf("duplicate should keep field ids (-want +got):\n%s", diff)
			}

			cases := map[string][]string{
				"intake":  {source.ID, copyForm.ID},
				"survey":  {"id-2"},
				"":        {source.ID, "id-2", copyForm.ID},
				"nothing": nil,
			}
			for query, want := range cases {
				got, err := s.Search(ctx, query)
				if err != nil {
					t.Fatalf("search %q: %v", query, err)
				}
				if diff := cmp.Diff(want, formIDs(got)); diff != "" {
					t.Fatalf("search %q mismatch (-want +got):\n%s", query, diff)
				}
			}
		})
	}
}

func TestStore_FieldOperations(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			form, err := s.Create(ctx, model.FormDefinition{Name: "Fields"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			for _, label := range []string{"A", "B", "C"} {
				form, err = s.AddField(ctx, form.ID, model.FieldDefinition{Type: model.FieldTypeText, Label: label})
				if err != nil {
					t.Fatalf("add field %s: %v", label, err)
				}
			}
			if diff := cmp.Diff([]string{"id-2", "id-3", "id-4"}, fieldIDs(form)); diff != "" {
				t.Fatalf("field ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{0, 1, 2}, fieldOrders(form)); diff != "" {
				t.Fatalf("orders mismatch (-want +got):\n%s", diff)
			}

			field := form.Fields[1]
			field.Label = "Renamed"
			field.Required = true
			form, err = s.UpdateField(ctx, form.ID, field)
			if err != nil {
				t.Fatalf("update field: %v", err)
			}
			if got, _ := form.Field("id-3"); got.Label != "Renamed" || !got.Required {
				t.Fatalf("update field not applied: %+v", got)
			}

			form, err = s.ReorderFields(ctx, form.ID, []string{"id-4", "id-2", "id-3"})
			if err != nil {
				t.Fatalf("reorder: %v", err)
			}
			if diff := cmp.Diff([]string{"id-4", "id-2", "id-3"}, fieldIDs(form)); diff != "" {
				t.Fatalf("reordered ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{0, 1, 2}, fieldOrders(form)); diff != "" {
				t.Fatalf("reordered orders mismatch (-want +got):\n%s", diff)
			}

			form, err = s.DeleteField(ctx, form.ID, "id-2")
			if err != nil {
				t.Fatalf("delete field: %v", err)
			}
			if diff := cmp.Diff([]string{"id-4", "id-3"}, fieldIDs(form)); diff != "" {
				t.Fatalf("ids after delete mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{0, 1}, fieldOrders(form)); diff != "" {
				t.Fatalf("orders after delete mismatch (-want +got):\n%s", diff)
			}

			stored, err := s.Get(ctx, form.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if diff := cmp.Diff(fieldIDs(form), fieldIDs(stored)); diff != "" {
				t.Fatalf("stored ids mismatch (-want +got):\n%s", diff)
			}

			if _, err := s.DeleteField(ctx, form.ID, "nope"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := s.ReorderFields(ctx, form.ID, []string{"id-4"}); err == nil {
				t.Fatalf("expected partial reorder to fail")
			}
			if _, err := s.AddField(ctx, form.ID, model.FieldDefinition{ID: "id-4", Type: model.FieldTypeText}); err == nil {
				t.Fatalf("expected duplicate field id to fail")
			}
			if _, err := s.AddField(ctx, form.ID, model.FieldDefinition{Type: "slider"}); err == nil {
				t.Fatalf("expected unknown type to fail")
			}
		})
	}
}

func TestStore_Submissions(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			form, err := s.Create(ctx, model.FormDefinition{Name: "Orders"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			submitted := time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC)
			if err := s.SaveSubmission(ctx, model.Submission{
				ID:          "sub-1",
				FormID:      form.ID,
				Data:        map[string]any{"qty": "2", "total": 40.0, "topics": []string{"news"}},
				SubmittedAt: submitted,
			}); err != nil {
				t.Fatalf("save submission: %v", err)
			}
			if err := s.SaveSubmission(ctx, model.Submission{FormID: "missing"}); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for unknown form, got %v", err)
			}

			got, err := s.Submissions(ctx, form.ID)
			if err != nil {
				t.Fatalf("submissions: %v", err)
			}
			want := []model.Submission{{
				ID:          "sub-1",
				FormID:      form.ID,
				Data:        map[string]any{"qty": "2", "total": 40.0, "topics": []any{"news"}},
				SubmittedAt: submitted,
			}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("submissions mismatch (-want +got):\n%s", diff)
			}

			if err := s.Delete(ctx, form.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Submissions(ctx, form.ID); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStore_SanitizesDisplayStrings(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, factory)

			form, err := s.Create(ctx, model.FormDefinition{
				Name:        "<b>Tom & Jerry</b>",
				Description: `<script>alert("x")</script>Signup`,
				Fields: []model.FieldDefinition{{
					ID:      "pick",
					Type:    model.FieldTypeSelect,
					Label:   `<img src=x onerror=alert(1)>Pick`,
					Options: []model.FieldOption{{Label: "<i>One</i>", Value: "<one>"}},
				}},
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if form.Name != "Tom & Jerry" {
				t.Fatalf("unexpected name %q", form.Name)
			}
			if form.Description != "Signup" {
				t.Fatalf("unexpected description %q", form.Description)
			}
			field := form.Fields[0]
			if field.Label != "Pick" || field.Options[0].Label != "One" {
				t.Fatalf("unexpected field strings %q %q", field.Label, field.Options[0].Label)
			}
			if field.Options[0].Value != "<one>" {
				t.Fatalf("option values must be stored verbatim, got %q", field.Options[0].Value)
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := store.Open(context.Background(), "redis", t.TempDir()); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func fieldIDs(form model.FormDefinition) []string {
	out := make([]string, 0, len(form.Fields))
	for _, field := range form.Fields {
		out = append(out, field.ID)
	}
	return out
}

func fieldOrders(form model.FormDefinition) []int {
	out := make([]int, 0, len(form.Fields))
	for _, field := range form.Fields {
		out = append(out, field.Order)
	}
	return out
}

func formIDs(forms []model.FormDefinition) []string {
	if len(forms) == 0 {
		return nil
	}
	out := make([]string, 0, len(forms))
	for _, form := range forms {
		out = append(out, form.ID)
	}
	return out
}
