package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/adherence-portal/pkg/httputil"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationConfig represents validation middleware configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomErrorMessages: map[string]string{
			"required":    "Field is required",
			"required_if": "Field is required",
			"max":         "Value is too long",
			"gt":          "Value must be greater than zero",
			"gte":         "Value must not be negative",
			"lte":         "Value is too large",
			"datetime":    "Date must be formatted as YYYY-MM-DD",
		},
	}
}

var registerOnce sync.Once

// registerValidators makes validator report fields by their wire name.
func registerValidators(config ValidationConfig) {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// Validation answers 400 for binding errors handlers attached with
// gin.ErrorTypeBind, listing each failed field.
func Validation(config ValidationConfig) gin.HandlerFunc {
	registerValidators(config)

	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		bindErrs := c.Errors.ByType(gin.ErrorTypeBind)
		if len(bindErrs) == 0 {
			return
		}

		var validationErrors []ValidationError
		for _, err := range bindErrs {
			var errs validator.ValidationErrors
			if !errors.As(err.Err, &errs) {
				continue
			}
			for _, e := range errs {
				msg := config.CustomErrorMessages[e.Tag()]
				if msg == "" {
					msg = e.Error()
				}
				validationErrors = append(validationErrors, ValidationError{
					Field:   e.Field(),
					Message: msg,
				})
			}
		}

		if len(validationErrors) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid request body"))
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, &httputil.Response{
			Status:  "error",
			Message: "validation failed",
			Data:    validationErrors,
		})
	}
}
