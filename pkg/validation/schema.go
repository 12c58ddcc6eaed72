// Package validation turns field definitions into per-field validators used
// on blur and on submit.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formbuilder/internal/coerce"
	"github.com/goliatone/go-formbuilder/pkg/model"
)

const (
	MessageRequired      = "This field is required"
	MessageInvalidEmail  = "Please enter a valid email address"
	MessageInvalidNumber = "Please enter a valid number"
	MessageInvalidDate   = "Please enter a valid date"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type constraint struct {
	kind    string
	message string
	test    func(value any) bool
}

// FieldValidator checks values of a single field. Presence is evaluated
// first; empty optional values skip the remaining constraints.
type FieldValidator struct {
	fieldID  string
	required *constraint
	base     *constraint
	rules    []constraint
}

// FieldID returns the id of the validated field.
func (v *FieldValidator) FieldID() string {
	return v.fieldID
}

// Required reports whether the field carries a presence constraint.
func (v *FieldValidator) Required() bool {
	return v.required != nil
}

// Validate returns a FieldError for the first failing constraint, or nil.
func (v *FieldValidator) Validate(value any) error {
	if v == nil {
		return nil
	}
	if v.required != nil && !v.required.test(value) {
		return FieldError{FieldID: v.fieldID, Rule: v.required.kind, Message: v.required.message}
	}
	if coerce.Empty(value) {
		return nil
	}
	if v.base != nil && !v.base.test(value) {
		return FieldError{FieldID: v.fieldID, Rule: v.base.kind, Message: v.base.message}
	}
	for _, rule := range v.rules {
		if !rule.test(value) {
			return FieldError{FieldID: v.fieldID, Rule: rule.kind, Message: rule.message}
		}
	}
	return nil
}

// set replaces an existing constraint of the same kind, moving it to the end.
func (v *FieldValidator) set(c constraint) {
	out := v.rules[:0]
	for _, existing := range v.rules {
		if existing.kind != c.kind {
			out = append(out, existing)
		}
	}
	v.rules = append(out, c)
}

// Schema holds one validator per field, in presentation order.
type Schema struct {
	order      []string
	validators map[string]*FieldValidator
}

// BuildSchema composes a validator for every field. Rules that cannot be
// compiled are reported as ConfigError values joined into the returned error;
// the schema is still returned with those rules left out so callers may choose
// to continue with the degraded validators.
func BuildSchema(fields []model.FieldDefinition) (*Schema, error) {
	schema := &Schema{validators: make(map[string]*FieldValidator, len(fields))}
	var errs []error
	for _, field := range model.SortFields(fields) {
		validator, fieldErrs := buildField(field)
		errs = append(errs, fieldErrs...)
		if _, exists := schema.validators[field.ID]; !exists {
			schema.order = append(schema.order, field.ID)
		}
		schema.validators[field.ID] = validator
	}
	return schema, errors.Join(errs...)
}

// Field returns the validator for id.
func (s *Schema) Field(id string) (*FieldValidator, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.validators[id]
	return v, ok
}

// FieldIDs lists the validated field ids in presentation order.
func (s *Schema) FieldIDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// ValidateField validates a single value. Unknown ids are accepted.
func (s *Schema) ValidateField(id string, value any) error {
	v, ok := s.Field(id)
	if !ok {
		return nil
	}
	return v.Validate(value)
}

// Validate checks every field against values and returns FieldErrors when any
// field fails.
func (s *Schema) Validate(values map[string]any) error {
	if s == nil {
		return nil
	}
	var out FieldErrors
	for _, id := range s.order {
		err := s.validators[id].Validate(values[id])
		if err == nil {
			continue
		}
		if out == nil {
			out = make(FieldErrors)
		}
		out[id] = err.Error()
	}
	if out == nil {
		return nil
	}
	return out
}

func buildField(field model.FieldDefinition) (*FieldValidator, []error) {
	v := &FieldValidator{fieldID: field.ID, base: baseConstraint(field.Type)}
	var errs []error

	for _, rule := range field.ValidationRules {
		c, ok, err := ruleConstraint(field, rule)
		if err != nil {
			errs = append(errs, ConfigError{FieldID: field.ID, Rule: rule.Kind, Err: err})
			continue
		}
		if !ok {
			continue
		}
		if rule.Kind == model.RuleRequired {
			v.required = &c
			continue
		}
		if rule.Kind == model.RuleEmail && field.Type == model.FieldTypeEmail {
			v.base = &c
			continue
		}
		v.set(c)
	}

	if field.Required {
		if field.Type == model.FieldTypeCheckbox && !field.MultiValue() {
			// a single checkbox must be ticked; other rules no longer apply
			return &FieldValidator{
				fieldID:  field.ID,
				required: &constraint{kind: string(model.RuleRequired), message: MessageRequired, test: isTrue},
			}, errs
		}
		v.required = &constraint{kind: string(model.RuleRequired), message: MessageRequired, test: present}
	}
	return v, errs
}

func baseConstraint(kind model.FieldType) *constraint {
	switch kind {
	case model.FieldTypeEmail:
		return &constraint{kind: string(model.RuleEmail), message: MessageInvalidEmail, test: isEmail}
	case model.FieldTypeNumber:
		return &constraint{kind: "number", message: MessageInvalidNumber, test: func(value any) bool {
			_, ok := coerce.StrictFloat(value)
			return ok
		}}
	case model.FieldTypeDate:
		return &constraint{kind: "date", message: MessageInvalidDate, test: func(value any) bool {
			_, ok := coerce.Date(value, time.UTC)
			return ok
		}}
	default:
		return nil
	}
}

// ruleConstraint compiles one rule. ok is false for rules that do not apply,
// such as numeric bounds on non-number fields or bounds without a value.
func ruleConstraint(field model.FieldDefinition, rule model.ValidationRule) (constraint, bool, error) {
	c := constraint{kind: string(rule.Kind), message: strings.TrimSpace(rule.Message)}
	switch rule.Kind {
	case model.RuleRequired:
		c.message = orDefault(c.message, MessageRequired)
		c.test = present
		if field.Type == model.FieldTypeCheckbox && !field.MultiValue() {
			c.test = isTrue
		}
		return c, true, nil

	case model.RuleMinLength, model.RuleMaxLength:
		if !coerce.Truthy(rule.Value) {
			return c, false, nil
		}
		bound, ok := coerce.StrictFloat(rule.Value)
		if !ok || bound < 0 {
			return c, false, fmt.Errorf("length bound %v is not a non-negative number", rule.Value)
		}
		limit := int(bound)
		if rule.Kind == model.RuleMinLength {
			c.message = orDefault(c.message, fmt.Sprintf("Must be at least %d characters", limit))
			c.test = func(value any) bool { return utf8.RuneCountInString(coerce.String(value)) >= limit }
		} else {
			c.message = orDefault(c.message, fmt.Sprintf("Must be at most %d characters", limit))
			c.test = func(value any) bool { return utf8.RuneCountInString(coerce.String(value)) <= limit }
		}
		return c, true, nil

	case model.RuleMin, model.RuleMax:
		if field.Type != model.FieldTypeNumber || !coerce.Truthy(rule.Value) {
			return c, false, nil
		}
		bound, ok := coerce.StrictFloat(rule.Value)
		if !ok {
			return c, false, fmt.Errorf("numeric bound %v is not a number", rule.Value)
		}
		if rule.Kind == model.RuleMin {
			c.message = orDefault(c.message, fmt.Sprintf("Must be at least %s", coerce.String(bound)))
			c.test = func(value any) bool {
				n, ok := coerce.StrictFloat(value)
				return ok && n >= bound
			}
		} else {
			c.message = orDefault(c.message, fmt.Sprintf("Must be at most %s", coerce.String(bound)))
			c.test = func(value any) bool {
				n, ok := coerce.StrictFloat(value)
				return ok && n <= bound
			}
		}
		return c, true, nil

	case model.RulePattern:
		source, isString := rule.Value.(string)
		if !isString || source == "" {
			return c, false, nil
		}
		re, err := regexp.Compile(source)
		if err != nil {
			return c, false, err
		}
		c.message = orDefault(c.message, "Invalid format")
		c.test = func(value any) bool { return re.MatchString(coerce.String(value)) }
		return c, true, nil

	case model.RuleEmail:
		c.message = orDefault(c.message, MessageInvalidEmail)
		c.test = isEmail
		return c, true, nil

	default:
		return c, false, fmt.Errorf("unknown rule type %q", rule.Kind)
	}
}

func present(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	default:
		return !coerce.Empty(value)
	}
}

func isTrue(value any) bool {
	v, ok := value.(bool)
	return ok && v
}

func isEmail(value any) bool {
	return emailPattern.MatchString(strings.TrimSpace(coerce.String(value)))
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
