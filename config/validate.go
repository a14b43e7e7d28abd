package config

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/adonese/plstats/apperr"
	"github.com/go-playground/validator/v10"
)

var validatorOnce sync.Once
var validate *validator.Validate

// Validator returns the shared validator; it reads `binding` tags and
// reports json field names.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks c and returns an apperr validation error listing the
// offending fields.
func (c Config) Validate() error {
	err := Validator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(err, apperr.ErrValidation, "")
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[strings.TrimPrefix(fe.Namespace(), "Config.")] = fe.Tag()
	}
	return apperr.WithFields(apperr.Wrap(err, apperr.ErrValidation, "invalid configuration"), fields)
}
