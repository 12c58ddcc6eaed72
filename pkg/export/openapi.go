// Package export converts form definitions into OpenAPI 3 documents so the
// submission payload can be described to API consumers.
package export

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formbuilder/internal/coerce"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/preview"
)

// Extension keys written on exported schemas.
const (
	ExtensionOrder   = "x-formbuilder-order"
	ExtensionDerived = "x-formbuilder-derived"
	ExtensionControl = "x-formbuilder-control"
)

// OpenAPISchema describes a submission of form as an object schema. Derived
// fields are readOnly and carry their formula under ExtensionDerived.
func OpenAPISchema(form model.FormDefinition) (*openapi3.Schema, error) {
	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	schema := openapi3.NewObjectSchema()
	schema.Title = strings.TrimSpace(form.Name)
	schema.Description = strings.TrimSpace(form.Description)

	fields := form.SortedFields()
	order := make([]string, 0, len(fields))
	for _, field := range fields {
		property := fieldSchema(field)
		schema.WithPropertyRef(field.ID, property.NewRef())
		order = append(order, field.ID)
		if field.Required && !field.IsDerived {
			schema.Required = append(schema.Required, field.ID)
		}
	}
	schema.Extensions = map[string]any{ExtensionOrder: order}

	if err := schema.Validate(context.Background(), openapi3.DisableSchemaDefaultsValidation()); err != nil {
		return nil, fmt.Errorf("export: form %q: %w", form.ID, err)
	}
	return schema, nil
}

// OpenAPIDocument wraps the form schema in a document exposing one POST
// operation at path that accepts the submission.
func OpenAPIDocument(form model.FormDefinition, path string) (*openapi3.T, error) {
	schema, err := OpenAPISchema(form)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		path = "/forms/" + form.ID + "/submissions"
	}

	name := componentName(form)
	body := openapi3.NewRequestBody().
		WithRequired(true).
		WithDescription(fmt.Sprintf("Submission of %s", schema.Title)).
		WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+name, schema))

	operation := &openapi3.Operation{
		OperationID: "submit_" + form.ID,
		Summary:     fmt.Sprintf("Submit %s", strings.TrimSpace(schema.Title)),
		RequestBody: &openapi3.RequestBodyRef{Value: body},
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(http.StatusCreated, &openapi3.ResponseRef{
				Value: openapi3.NewResponse().WithDescription("Submission accepted"),
			}),
			openapi3.WithStatus(http.StatusUnprocessableEntity, &openapi3.ResponseRef{
				Value: openapi3.NewResponse().WithDescription("Validation failed"),
			}),
		),
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       strings.TrimSpace(schema.Title),
			Description: schema.Description,
			Version:     "1.0.0",
		},
		Paths: openapi3.NewPaths(openapi3.WithPath(path, &openapi3.PathItem{Post: operation})),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{name: schema.NewRef()},
		},
	}
	if doc.Info.Title == "" {
		doc.Info.Title = form.ID
	}

	if err := doc.Validate(context.Background(), openapi3.DisableSchemaDefaultsValidation()); err != nil {
		return nil, fmt.Errorf("export: document for %q: %w", form.ID, err)
	}
	return doc, nil
}

func fieldSchema(field model.FieldDefinition) *openapi3.Schema {
	var schema *openapi3.Schema
	switch {
	case field.Derived():
		schema = derivedSchema(field)
	case field.IsDerived:
		// no derivedConfig: computed as the empty value
		schema = openapi3.NewStringSchema()
		schema.ReadOnly = true
		schema.Description = preview.DerivedNote
	default:
		schema = inputSchema(field)
	}
	schema.Title = field.DisplayLabel()
	if schema.Extensions == nil {
		schema.Extensions = make(map[string]any, 1)
	}
	schema.Extensions[ExtensionControl] = string(field.Type)
	if !field.IsDerived {
		if value, ok := defaultFor(field); ok {
			schema.Default = value
		}
	}
	return schema
}

// defaultFor converts a stored default into the JSON type of the property.
// Empty or mismatched defaults are dropped.
func defaultFor(field model.FieldDefinition) (any, bool) {
	value := field.DefaultValue
	if coerce.Empty(value) {
		return nil, false
	}
	switch {
	case field.Type == model.FieldTypeNumber:
		n, ok := coerce.StrictFloat(value)
		return n, ok
	case field.MultiValue():
		switch v := value.(type) {
		case []string:
			out := make([]any, len(v))
			for i, item := range v {
				out[i] = item
			}
			return out, true
		case []any:
			return v, true
		default:
			return nil, false
		}
	case field.Type == model.FieldTypeCheckbox:
		b, ok := value.(bool)
		return b, ok
	default:
		return coerce.String(value), true
	}
}

func inputSchema(field model.FieldDefinition) *openapi3.Schema {
	var schema *openapi3.Schema
	switch field.Type {
	case model.FieldTypeEmail:
		schema = openapi3.NewStringSchema().WithFormat("email")
	case model.FieldTypeNumber:
		schema = openapi3.NewFloat64Schema()
	case model.FieldTypeDate:
		schema = openapi3.NewStringSchema().WithFormat("date")
	case model.FieldTypeSelect, model.FieldTypeRadio:
		schema = openapi3.NewStringSchema().WithEnum(optionValues(field.Options)...)
	case model.FieldTypeCheckbox:
		if field.MultiValue() {
			items := openapi3.NewStringSchema().WithEnum(optionValues(field.Options)...)
			schema = openapi3.NewArraySchema().WithItems(items).WithUniqueItems(true)
			if field.Required {
				schema.WithMinItems(1)
			}
		} else {
			schema = openapi3.NewBoolSchema()
			if field.Required {
				schema.WithEnum(true)
			}
		}
		return schema
	default:
		schema = openapi3.NewStringSchema()
	}
	if strings.TrimSpace(field.Placeholder) != "" {
		schema.Description = field.Placeholder
	}
	applyRules(schema, field)
	return schema
}

// applyRules mirrors the validation schema: later rules of the same kind win,
// bounds without a value are skipped and numeric bounds only apply to numbers.
func applyRules(schema *openapi3.Schema, field model.FieldDefinition) {
	for _, rule := range field.ValidationRules {
		switch rule.Kind {
		case model.RuleMinLength, model.RuleMaxLength:
			bound, ok := ruleBound(rule)
			if !ok || bound < 0 || schema.Type.Is(openapi3.TypeNumber) {
				continue
			}
			if rule.Kind == model.RuleMinLength {
				schema.MinLength = uint64(bound)
			} else {
				schema.WithMaxLength(int64(bound))
			}
		case model.RuleMin, model.RuleMax:
			bound, ok := ruleBound(rule)
			if !ok || field.Type != model.FieldTypeNumber {
				continue
			}
			if rule.Kind == model.RuleMin {
				schema.WithMin(bound)
			} else {
				schema.WithMax(bound)
			}
		case model.RulePattern:
			if source, ok := rule.Value.(string); ok && source != "" && !schema.Type.Is(openapi3.TypeNumber) {
				schema.WithPattern(source)
			}
		case model.RuleEmail:
			if schema.Type.Is(openapi3.TypeString) {
				schema.WithFormat("email")
			}
		}
	}
	if field.Required && schema.Type.Is(openapi3.TypeString) && schema.MinLength == 0 {
		schema.MinLength = 1
	}
}

func derivedSchema(field model.FieldDefinition) *openapi3.Schema {
	cfg := field.DerivedConfig
	var schema *openapi3.Schema
	switch cfg.FormulaType {
	case model.FormulaAgeFromDOB:
		schema = openapi3.NewIntegerSchema()
	case model.FormulaSum, model.FormulaCustom:
		schema = openapi3.NewFloat64Schema()
	default:
		schema = openapi3.NewStringSchema()
	}
	schema.ReadOnly = true
	schema.Description = preview.DerivedNote
	derived := map[string]any{
		"formulaType":    string(cfg.FormulaType),
		"parentFieldIds": append([]string(nil), cfg.ParentFieldIDs...),
	}
	if strings.TrimSpace(cfg.Formula) != "" {
		derived["formula"] = cfg.Formula
	}
	schema.Extensions = map[string]any{ExtensionDerived: derived}
	return schema
}

func optionValues(options []model.FieldOption) []any {
	out := make([]any, 0, len(options))
	for _, option := range options {
		out = append(out, option.Value)
	}
	return out
}

func ruleBound(rule model.ValidationRule) (float64, bool) {
	if !coerce.Truthy(rule.Value) {
		return 0, false
	}
	return coerce.StrictFloat(rule.Value)
}

func componentName(form model.FormDefinition) string {
	var b strings.Builder
	for _, r := range form.ID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "Submission"
	}
	return b.String() + "Submission"
}
