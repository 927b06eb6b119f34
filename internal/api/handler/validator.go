package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ruleText phrases a failed validate tag for the {"message"} envelope.
var ruleText = map[string]string{
	"required": "%s is required",
	"email":    "%s is not an email address",
	"max":      "%s is longer than %s characters",
}

// RequestValidator checks auth request bodies. Failures name the offending
// JSON field, so clients see "username is required" rather than Go field names.
type RequestValidator struct {
	validate *validator.Validate
}

// NewValidator is assigned to echo.Echo.Validator by the router.
func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &RequestValidator{validate: v}
}

func (rv *RequestValidator) Validate(req any) error {
	err := rv.validate.Struct(req)

	var failed validator.ValidationErrors
	if !errors.As(err, &failed) {
		return err
	}
	parts := make([]string, len(failed))
	for i, fe := range failed {
		parts[i] = describeRule(fe)
	}
	return errors.New(strings.Join(parts, "; "))
}

func describeRule(fe validator.FieldError) string {
	format, ok := ruleText[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	if strings.Count(format, "%s") == 2 {
		return fmt.Sprintf(format, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(format, fe.Field())
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
