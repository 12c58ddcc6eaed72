package derived

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// ReferenceKind classifies a broken parent reference.
type ReferenceKind string

const (
	// ReferenceMissing marks a parent id that matches no field in the form.
	ReferenceMissing ReferenceKind = "missing"
	// ReferenceSelf marks a derived field listing itself as a parent.
	ReferenceSelf ReferenceKind = "self"
	// ReferenceDerived marks a parent that is itself derived while chains are
	// not enabled.
	ReferenceDerived ReferenceKind = "derived"
	// ReferenceCycle marks a parent edge that closes a dependency cycle.
	ReferenceCycle ReferenceKind = "cycle"
)

// ErrCycle is wrapped by errors reporting a dependency cycle.
var ErrCycle = errors.New("derived: dependency cycle")

// ReferenceError describes one problematic parent reference of a derived field.
type ReferenceError struct {
	FieldID  string
	ParentID string
	Kind     ReferenceKind
	Path     []string
}

func (e ReferenceError) Error() string {
	switch e.Kind {
	case ReferenceMissing:
		return fmt.Sprintf("derived: field %q references unknown parent %q", e.FieldID, e.ParentID)
	case ReferenceSelf:
		return fmt.Sprintf("derived: field %q references itself", e.FieldID)
	case ReferenceDerived:
		return fmt.Sprintf("derived: field %q references derived field %q", e.FieldID, e.ParentID)
	case ReferenceCycle:
		return fmt.Sprintf("derived: field %q is part of a dependency cycle (%s)", e.FieldID, strings.Join(e.Path, " -> "))
	default:
		return fmt.Sprintf("derived: field %q has an invalid reference to %q", e.FieldID, e.ParentID)
	}
}

// Unwrap lets errors.Is match ErrCycle.
func (e ReferenceError) Unwrap() error {
	if e.Kind == ReferenceCycle {
		return ErrCycle
	}
	return nil
}

// ResolveParents returns the current values of field's parents, in
// ParentFieldIDs order. Parents that are not fields of the form, or that have
// no value yet, resolve to nil; this never fails.
func ResolveParents(field model.FieldDefinition, fields []model.FieldDefinition, values map[string]any) []any {
	if field.DerivedConfig == nil {
		return nil
	}
	known := make(map[string]struct{}, len(fields))
	for _, candidate := range fields {
		known[candidate.ID] = struct{}{}
	}
	return resolve(field.DerivedConfig.ParentFieldIDs, known, values)
}

func resolve(parentIDs []string, known map[string]struct{}, values map[string]any) []any {
	out := make([]any, len(parentIDs))
	for idx, id := range parentIDs {
		if _, ok := known[id]; !ok {
			continue
		}
		out[idx] = values[id]
	}
	return out
}

// CheckReferences validates the parent references of every derived field:
// parents must exist, must not be the field itself and, unless chains is true,
// must not be derived. With chains enabled, cycles are reported instead.
func CheckReferences(fields []model.FieldDefinition, chains bool) []ReferenceError {
	graph := buildGraph(fields)
	var issues []ReferenceError

	for _, field := range graph.derived {
		for _, parentID := range field.DerivedConfig.ParentFieldIDs {
			parent, ok := graph.fields[parentID]
			switch {
			case !ok:
				issues = append(issues, ReferenceError{FieldID: field.ID, ParentID: parentID, Kind: ReferenceMissing})
			case parentID == field.ID:
				issues = append(issues, ReferenceError{FieldID: field.ID, ParentID: parentID, Kind: ReferenceSelf})
			case parent.Derived() && !chains:
				issues = append(issues, ReferenceError{FieldID: field.ID, ParentID: parentID, Kind: ReferenceDerived})
			}
		}
	}

	if chains {
		if _, cycle := graph.topologicalOrder(); cycle != nil {
			issues = append(issues, *cycle)
		}
	}
	return issues
}

type graph struct {
	fields     map[string]model.FieldDefinition
	derived    []model.FieldDefinition
	dependents map[string][]string
}

func buildGraph(fields []model.FieldDefinition) *graph {
	g := &graph{
		fields:     make(map[string]model.FieldDefinition, len(fields)),
		dependents: make(map[string][]string),
	}
	for _, field := range model.SortFields(fields) {
		if _, exists := g.fields[field.ID]; !exists {
			g.fields[field.ID] = field
		}
		if !field.Derived() {
			continue
		}
		g.derived = append(g.derived, field)
		seen := make(map[string]struct{}, len(field.DerivedConfig.ParentFieldIDs))
		for _, parentID := range field.DerivedConfig.ParentFieldIDs {
			if _, dup := seen[parentID]; dup {
				continue
			}
			seen[parentID] = struct{}{}
			g.dependents[parentID] = append(g.dependents[parentID], field.ID)
		}
	}
	return g
}

// topologicalOrder returns derived field ids so that every derived parent comes
// before its dependents. A depth-first walk marks fields in progress; reaching
// an in-progress field again reports the cycle.
func (g *graph) topologicalOrder() ([]string, *ReferenceError) {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.derived))
	order := make([]string, 0, len(g.derived))
	var stack []string

	var visit func(id string) *ReferenceError
	visit = func(id string) *ReferenceError {
		field, ok := g.fields[id]
		if !ok || !field.Derived() {
			return nil
		}
		switch state[id] {
		case done:
			return nil
		case inProgress:
			start := 0
			for idx, entry := range stack {
				if entry == id {
					start = idx
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), id)
			return &ReferenceError{FieldID: id, ParentID: stack[len(stack)-1], Kind: ReferenceCycle, Path: path}
		}

		state[id] = inProgress
		stack = append(stack, id)
		for _, parentID := range field.DerivedConfig.ParentFieldIDs {
			if err := visit(parentID); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, field := range g.derived {
		if err := visit(field.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}
