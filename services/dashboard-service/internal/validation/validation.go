// Package validation wraps go-playground/validator so failures come back as
// 400 errors that name the JSON field.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

var (
	once sync.Once
	v    *validator.Validate
)

// Validator returns the shared instance. Field names in errors are the json
// tag names.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return v
}

// Struct validates s and converts the first failure into a 400.
func Struct(s any) error {
	return translate(Validator().Struct(s), "")
}

// Var validates a single value against rules. field names the value in the
// error message.
func Var(field string, value any, rules string) error {
	return translate(Validator().Var(value, rules), field)
}

func translate(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(err, http.StatusBadRequest, "bad_request", "invalid input")
	}
	fe := verrs[0]
	name := field
	if name == "" {
		name = strings.TrimPrefix(fe.Namespace(), rootName(fe))
		name = strings.TrimPrefix(name, ".")
		if name == "" {
			name = fe.Field()
		}
	}
	return apperr.BadRequest(message(name, fe))
}

func rootName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i]
	}
	return ""
}

func message(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "unique":
		return name + " must not contain duplicates"
	case "hexcolor":
		return name + " must be a hex color"
	case "email":
		return name + " must be an email address"
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}
