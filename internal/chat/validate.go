package chat

import (
	"errors"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			if label := f.Tag.Get("label"); label != "" {
				return label
			}
			return f.Name
		})
	})
	return validate
}

// ValidateStruct checks v against its `validate` tags and converts the
// first failure into a *ValidationError named after the field's `label` tag.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return Validation(fe.Field(), reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
