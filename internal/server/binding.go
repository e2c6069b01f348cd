package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerValidatorsOnce sync.Once

// registerValidators installs the request tags used by payload structs on
// gin's shared validator engine.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
		_ = engine.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			value := strings.TrimSpace(fl.Field().String())
			if len(value) != 3 {
				return false
			}
			for _, r := range value {
				if !unicode.IsLetter(r) {
					return false
				}
			}
			return true
		})
		_ = engine.RegisterValidation("country_code", func(fl validator.FieldLevel) bool {
			value := strings.TrimSpace(fl.Field().String())
			return len(value) >= 2 && len(value) <= 10
		})
		_ = engine.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(dateLayout, fl.Field().String())
			return err == nil
		})
		_ = engine.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			if _, err := time.Parse("15:04", value); err == nil {
				return true
			}
			_, err := time.Parse("15:04:05", value)
			return err == nil
		})
	})
}

func describeBindingError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		first := validationErrors[0]
		if first.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", first.Field(), first.Tag(), first.Param())
		}
		return fmt.Sprintf("%s failed %s", first.Field(), first.Tag())
	}
	return "request body is malformed"
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(*value))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
