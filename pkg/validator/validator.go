package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// FieldError describes a single field that failed validation.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param"`
}

// FieldErrors collects every failed field from one validation pass.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(f))
	for i, fe := range f {
		if fe.Param != "" {
			parts[i] = fe.Field + " violates " + fe.Rule + "=" + fe.Param
		} else {
			parts[i] = fe.Field + " violates " + fe.Rule
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct runs registered rules against s and returns FieldErrors
// describing every failing field, keyed by json name.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(FieldErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, FieldError{
				Field: fe.Field(),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation adds a custom rule to the shared validator.
func RegisterValidation(rule string, fn validator.Func) error {
	return getValidator().RegisterValidation(rule, fn)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			if comma := strings.Index(name, ","); comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}
