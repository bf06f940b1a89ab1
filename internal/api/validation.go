package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validationMessage renders the first failed rule as "<field> <problem>".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldName(fe))
	case "min":
		return fmt.Sprintf("%s must not be empty", fieldName(fe))
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", fieldName(fe), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fieldName(fe), fe.Param())
	case "notblank":
		return fmt.Sprintf("%s entries must not be blank", fieldName(fe))
	case "url":
		return fmt.Sprintf("%s entries must be absolute URLs", fieldName(fe))
	default:
		return fmt.Sprintf("%s is invalid", fieldName(fe))
	}
}

// fieldName maps Go field names to their JSON names, dropping slice indexes.
func fieldName(fe validator.FieldError) string {
	name := fe.StructField()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "MinBudget":
		return "min_budget"
	case "PreferredCountries":
		return "preferred_countries"
	case "URLs":
		return "urls"
	default:
		return strings.ToLower(name)
	}
}
