// Package model defines the form definition types shared by the derived-field
// engine, the validation schema builder, the preview session and the form
// stores. Field definitions keep the JSON layout of the browser builder
// (`validationRules`, `isDerived`, `derivedConfig`, `parentFieldIds`, ...) so
// documents exported from it load unchanged. Fields are always presented in
// ascending `Order`; ties keep their original relative position.
package model
