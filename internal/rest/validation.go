package rest

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var validationMessages = map[string]string{
	"required": "is required",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"gt":       "must be greater than %s",
	"oneof":    "must be one of: %s",
	"url":      "must be a valid URL",
	"http_url": "must be an http(s) URL",
	"hexcolor": "must be a hex color",
}

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateStruct validates s against its `validate` tags.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

// ValidateVar validates a single value against tag.
func ValidateVar(value any, tag string) error {
	return validate.Var(value, tag)
}

// FormatValidationError renders all field errors as "field message" joined with commas.
func FormatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		message, ok := validationMessages[fieldErr.Tag()]
		if !ok {
			message = "is invalid"
		}
		if strings.Contains(message, "%s") {
			param := fieldErr.Param()
			if fieldErr.Tag() == "oneof" {
				param = strings.Join(strings.Fields(param), ", ")
			}
			message = strings.Replace(message, "%s", param, 1)
		}
		messages = append(messages, fieldErr.Field()+" "+message)
	}
	return strings.Join(messages, ", ")
}
