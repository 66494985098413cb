package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"studio-backend/internal/apperr"
)

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}()

// validatePayload runs struct tag validation and returns a ValidationFailed
// error keyed by json field names.
func validatePayload(payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Field("body", err.Error())
	}
	fields := apperr.Fields{}
	for _, fe := range verrs {
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if _, exists := fields[name]; !exists {
			fields[name] = describe(fe)
		}
	}
	return apperr.Validation(fields)
}

func describe(fe validator.FieldError) string {
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = " items"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max", "lte":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}

// merge combines validation failures so a form sees every field at once.
func merge(errs ...error) error {
	fields := apperr.Fields{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		f := apperr.FieldsOf(err)
		if f == nil {
			return err
		}
		for k, v := range f {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields)
}
