package identity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/weiawesome/wes-chat/internal/domain"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validationError converts the first validator failure into an Invalid error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.Invalidf("invalid request: %v", err)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return domain.Invalidf("%s is required", fe.Field())
	case "email":
		return domain.Invalidf("%s must be a valid email address", fe.Field())
	case "max":
		return domain.Invalidf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "excludes":
		return domain.Invalidf("%s must not contain %q", fe.Field(), fe.Param())
	default:
		return domain.Invalidf("%s is invalid", fe.Field())
	}
}

func passwordTooShort(min int) error {
	return domain.NewError(domain.KindInvalid, fmt.Sprintf("password must be at least %d characters", min))
}
