package handlers

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
)

var registerOnce sync.Once

// RegisterValidators adds the "period" tag to gin's validator and reports fields by json name.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			_, err := models.ParsePeriod(fl.Field().String())
			return err == nil
		})
	})
}

func fieldErrors(err error) []utils.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []utils.FieldError{{Field: "body", Message: "request body must be a JSON object"}}
	}
	out := make([]utils.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := "is invalid"
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "period":
			msg = "must be formatted as yyyy-MM with month 01-12"
		case "oneof":
			msg = "must be one of: " + fe.Param()
		}
		out = append(out, utils.FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
