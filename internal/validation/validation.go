// Package validation checks service inputs against their struct tags and
// reports the first failure as a domain.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"parley/backend/internal/domain"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "appointment_type", func(fl validator.FieldLevel) bool {
		return domain.AppointmentType(fl.Field().String()).Valid()
	})
	mustRegister(v, "location_type", func(fl validator.FieldLevel) bool {
		return domain.LocationType(fl.Field().String()).Valid()
	})
	mustRegister(v, "appointment_status", func(fl validator.FieldLevel) bool {
		return domain.AppointmentStatus(fl.Field().String()).Valid()
	})
	mustRegister(v, "party_role", func(fl validator.FieldLevel) bool {
		return domain.PartyRole(fl.Field().String()).Valid()
	})
	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates s and converts the first tag failure into a
// domain.ValidationError.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	return domain.NewValidationError(message(errs[0].Field(), errs[0]))
}

// Var validates a single value against tag, reporting failures under field.
func (v *Validator) Var(field string, value any, tag string) error {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	return domain.NewValidationError(message(field, errs[0]))
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gtfield":
		return field + " must be after " + snake(fe.Param())
	case "nefield":
		return field + " and " + snake(fe.Param()) + " must differ"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt", "min":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "url":
		return field + " must be an absolute URL"
	default:
		return "invalid " + field
	}
}

// snake turns a Go field name such as StartTime into start_time.
func snake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && unicode.IsLower(runes[i-1]) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
