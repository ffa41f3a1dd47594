package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidConfig marks every ValidationError.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoPlatforms is returned when a job run names no platform.
	ErrNoPlatforms = errors.New("at least one platform is required")
	// ErrRateLimited is returned when the gate turned away every source of
	// a run before it started.
	ErrRateLimited = errors.New("too many requests")
)

// ValidationError reports a rejected entry-point config. It matches both
// ErrInvalidConfig and the underlying cause under errors.Is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", ErrInvalidConfig, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

// Unwrap exposes ErrInvalidConfig and the cause.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// structError turns the first validator failure into a ValidationError.
func structError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.SplitN(fe.Namespace(), ".", 2)
		name := fe.Field()
		if len(field) == 2 {
			name = field[1]
		}
		if fe.Param() != "" {
			return invalid(name, fmt.Errorf("failed %s=%s", fe.Tag(), fe.Param()))
		}
		return invalid(name, fmt.Errorf("failed %s", fe.Tag()))
	}
	return invalid("", err)
}
