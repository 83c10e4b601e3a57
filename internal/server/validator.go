package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"agentgate/internal/core"
)

// requestValidator adapts validator/v10 to echo.Validator. Field names in
// errors follow the JSON tags.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// Validate returns a VALIDATION_ERROR listing every failing field.
func (rv *requestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return core.NewInternalError(err)
	}

	details := make([]map[string]any, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		detail := map[string]any{
			"loc":     []string{"body", fe.Field()},
			"type":    fe.Tag(),
			"message": fieldMessage(fe),
		}
		if fe.Param() != "" {
			detail["param"] = fe.Param()
		}
		details = append(details, detail)
	}
	return core.NewValidationError(details)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// bindError reports a body that could not be decoded as a validation failure.
func bindError(err error) *core.AgentError {
	return core.NewValidationError([]map[string]any{{
		"loc":     []string{"body"},
		"type":    "json_invalid",
		"message": err.Error(),
	}})
}
