// Package derived computes the values of derived form fields.
//
// A derived field names its parents in DerivedConfig.ParentFieldIDs and picks a
// formula kind (sum, average, concat, age_from_dob or a custom arithmetic
// expression). The Engine resolves parent values from the live value mapping,
// runs the evaluator for each derived field and writes the results back,
// synchronously, whenever a value changes. Evaluators are pure and total:
// unparsable input yields the empty result "" instead of an error.
//
// Derived fields may only reference non-derived fields of the same form. The
// Engine re-checks this at construction and soft-fails offending parents to an
// empty value. WithChains lifts the restriction; the engine then evaluates in
// topological order and rejects dependency cycles.
package derived
