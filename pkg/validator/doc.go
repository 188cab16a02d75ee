// Package validator provides composable validation rules.
//
// Rules are plain values built by constructor functions and evaluated by Apply,
// which collects every failure into ValidationErrors:
//
//	err := validator.Apply(
//		validator.MaxRunes("name", name, 100),
//		validator.ValidURLWithScheme("avatar_url", avatar, "http", "https"),
//	)
//	if verr := validator.ExtractValidationErrors(err); verr != nil {
//		// verr.Has("name"), verr.Get("name")...
//	}
//
// Optional fields are wrapped with When so rules only run for present values.
package validator
