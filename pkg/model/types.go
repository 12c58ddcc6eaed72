package model

import "strings"

// FieldType enumerates the controls a form field can render as.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeEmail    FieldType = "email"
	FieldTypeNumber   FieldType = "number"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeSelect   FieldType = "select"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeDate     FieldType = "date"
)

// FieldTypes lists every supported field type in palette order.
func FieldTypes() []FieldType {
	return []FieldType{
		FieldTypeText,
		FieldTypeEmail,
		FieldTypeNumber,
		FieldTypeTextarea,
		FieldTypeSelect,
		FieldTypeCheckbox,
		FieldTypeRadio,
		FieldTypeDate,
	}
}

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	for _, candidate := range FieldTypes() {
		if candidate == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether the type renders a list of options.
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSelect || t == FieldTypeRadio || t == FieldTypeCheckbox
}

// FormulaType selects the evaluator that computes a derived field.
type FormulaType string

const (
	FormulaCustom     FormulaType = "custom"
	FormulaAgeFromDOB FormulaType = "age_from_dob"
	FormulaSum        FormulaType = "sum"
	FormulaAverage    FormulaType = "average"
	FormulaConcat     FormulaType = "concat"
)

// Valid reports whether f names a known formula kind.
func (f FormulaType) Valid() bool {
	switch f {
	case FormulaCustom, FormulaAgeFromDOB, FormulaSum, FormulaAverage, FormulaConcat:
		return true
	default:
		return false
	}
}

// ValidationRuleKind identifies a validation rule.
type ValidationRuleKind string

const (
	RuleRequired  ValidationRuleKind = "required"
	RuleMinLength ValidationRuleKind = "minLength"
	RuleMaxLength ValidationRuleKind = "maxLength"
	RulePattern   ValidationRuleKind = "pattern"
	RuleMin       ValidationRuleKind = "min"
	RuleMax       ValidationRuleKind = "max"
	RuleEmail     ValidationRuleKind = "email"
)

// ValidationRule is a single constraint attached to a field. Value carries the
// bound for length/numeric rules and the expression for pattern rules; it is
// either a string or a number depending on how the builder stored it.
type ValidationRule struct {
	Kind    ValidationRuleKind `json:"type" yaml:"type"`
	Value   any                `json:"value,omitempty" yaml:"value,omitempty"`
	Message string             `json:"message" yaml:"message"`
}

// FieldOption is a label/value pair offered by select, radio and checkbox
// fields.
type FieldOption struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// DerivedConfig describes how a derived field computes its value. Parent order
// is significant: age_from_dob reads only the first parent and concat joins in
// this order.
type DerivedConfig struct {
	ParentFieldIDs []string    `json:"parentFieldIds" yaml:"parentFieldIds"`
	Formula        string      `json:"formula" yaml:"formula"`
	FormulaType    FormulaType `json:"formulaType" yaml:"formulaType"`
}

// FieldDefinition models one configurable input in a form.
type FieldDefinition struct {
	ID              string           `json:"id" yaml:"id"`
	Type            FieldType        `json:"type" yaml:"type"`
	Label           string           `json:"label" yaml:"label"`
	Placeholder     string           `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required        bool             `json:"required,omitempty" yaml:"required,omitempty"`
	ValidationRules []ValidationRule `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
	Options         []FieldOption    `json:"options,omitempty" yaml:"options,omitempty"`
	DefaultValue    any              `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Order           int              `json:"order" yaml:"order"`
	IsDerived       bool             `json:"isDerived,omitempty" yaml:"isDerived,omitempty"`
	DerivedConfig   *DerivedConfig   `json:"derivedConfig,omitempty" yaml:"derivedConfig,omitempty"`
}

// Derived reports whether the field is computed and carries a configuration.
func (f FieldDefinition) Derived() bool {
	return f.IsDerived && f.DerivedConfig != nil
}

// MultiValue reports whether the field collects a list of option values
// (a checkbox group with more than one option).
func (f FieldDefinition) MultiValue() bool {
	return f.Type == FieldTypeCheckbox && len(f.Options) > 1
}

// DisplayLabel returns the label, falling back to the field id.
func (f FieldDefinition) DisplayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return f.ID
}

// EmptyValue returns the type-appropriate value used when a field declares no
// default: false for checkboxes (including checkbox groups, whose controls
// treat a non-list value as nothing selected), an empty string otherwise.
func (f FieldDefinition) EmptyValue() any {
	if f.Type == FieldTypeCheckbox {
		return false
	}
	return ""
}

// InitialValue returns DefaultValue when set, EmptyValue otherwise.
func (f FieldDefinition) InitialValue() any {
	if f.DefaultValue != nil {
		return f.DefaultValue
	}
	return f.EmptyValue()
}

// Clone returns a deep copy of the field definition.
func (f FieldDefinition) Clone() FieldDefinition {
	out := f
	if len(f.ValidationRules) > 0 {
		out.ValidationRules = append([]ValidationRule(nil), f.ValidationRules...)
	}
	if len(f.Options) > 0 {
		out.Options = append([]FieldOption(nil), f.Options...)
	}
	if f.DerivedConfig != nil {
		cfg := *f.DerivedConfig
		cfg.ParentFieldIDs = append([]string(nil), f.DerivedConfig.ParentFieldIDs...)
		out.DerivedConfig = &cfg
	}
	return out
}
