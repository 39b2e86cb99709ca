package validation

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"campus-server/utils/errors"
)

// New returns a validator that reports fields by their JSON names.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterAlias("pwd", "min=8")
	return v
}

// ToAPIError converts decoding and validation failures into ErrInvalidInput
// with a field=message detail string.
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if stderrors.As(err, &se) || stderrors.As(err, &ute) {
		return errors.ErrInvalidInput.WithDetails("payload: invalid json")
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fe.Field()+": "+formatFieldError(fe))
		}
		sort.Strings(parts)
		return errors.ErrInvalidInput.WithDetails("%s", strings.Join(parts, "; "))
	}

	return errors.ErrInvalidInput.WithDetails("payload: %v", err)
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "latitude":
		return "must be a latitude in [-90, 90]"
	case "longitude":
		return "must be a longitude in [-180, 180]"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid (" + fe.Tag() + ")"
}
