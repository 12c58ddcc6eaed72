package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var errFieldIDMissing = errors.New("model: field id is required")

var (
	// ErrDerivedConfigMissing marks a derived field without a derivedConfig.
	ErrDerivedConfigMissing = errors.New("model: derived field requires derivedConfig")
	// ErrUnknownFormula marks a derived field whose formula type is not known.
	ErrUnknownFormula = errors.New("model: unknown formula type")
)

// FormDefinition is an ordered collection of fields plus identity and
// timestamps. Stores own it; the engine and sessions only read snapshots.
type FormDefinition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields" yaml:"fields"`
	CreatedAt   time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

// Submission is the fully resolved value mapping of a validated submit.
type Submission struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	Data        map[string]any `json:"data"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// Field looks up a field by id.
func (f FormDefinition) Field(id string) (FieldDefinition, bool) {
	for _, field := range f.Fields {
		if field.ID == id {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// SortedFields returns a copy of the fields ordered by Order.
func (f FormDefinition) SortedFields() []FieldDefinition {
	return SortFields(f.Fields)
}

// DerivedFields returns the derived fields in presentation order.
func (f FormDefinition) DerivedFields() []FieldDefinition {
	var out []FieldDefinition
	for _, field := range SortFields(f.Fields) {
		if field.Derived() {
			out = append(out, field)
		}
	}
	return out
}

// Clone returns a deep copy of the form definition.
func (f FormDefinition) Clone() FormDefinition {
	out := f
	if f.Fields != nil {
		out.Fields = make([]FieldDefinition, len(f.Fields))
		for i, field := range f.Fields {
			out.Fields[i] = field.Clone()
		}
	}
	return out
}

// SortFields returns a copy of fields sorted ascending by Order. The sort is
// stable so ties keep their original relative position.
func SortFields(fields []FieldDefinition) []FieldDefinition {
	if len(fields) == 0 {
		return nil
	}
	out := append([]FieldDefinition(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// Renumber assigns Order = index to every field, keeping slice order.
func Renumber(fields []FieldDefinition) {
	for idx := range fields {
		fields[idx].Order = idx
	}
}

// Validate performs structural checks on the definition: ids present and
// unique, types known. Derived configuration problems are not structural; see
// DerivedConfigErrors. Reference integrity between derived fields and their
// parents is checked by the derived package.
func (f FormDefinition) Validate() error {
	seen := make(map[string]struct{}, len(f.Fields))
	var errs []error
	for idx, field := range f.Fields {
		id := strings.TrimSpace(field.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("%w (position %d)", errFieldIDMissing, idx))
			continue
		}
		if _, exists := seen[id]; exists {
			errs = append(errs, fmt.Errorf("model: duplicate field id %q", id))
		}
		seen[id] = struct{}{}
		if !field.Type.Valid() {
			errs = append(errs, fmt.Errorf("model: field %q has unknown type %q", id, field.Type))
		}
	}
	return errors.Join(errs...)
}

// DerivedConfigErrors lists the derived fields whose configuration cannot be
// evaluated. Such a field stays read-only and resolves to the empty value.
func (f FormDefinition) DerivedConfigErrors() []error {
	var errs []error
	for _, field := range SortFields(f.Fields) {
		if !field.IsDerived {
			continue
		}
		switch {
		case field.DerivedConfig == nil:
			errs = append(errs, fmt.Errorf("%w: field %q", ErrDerivedConfigMissing, field.ID))
		case !field.DerivedConfig.FormulaType.Valid():
			errs = append(errs, fmt.Errorf("%w %q: field %q", ErrUnknownFormula, field.DerivedConfig.FormulaType, field.ID))
		}
	}
	return errs
}
