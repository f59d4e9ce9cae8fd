package http

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"fanfrenzy/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the game mode tag and makes it
// report query/json names instead of Go field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("form"); name != "" {
				return name
			}
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("mode", func(fl validator.FieldLevel) bool {
			return domain.Mode(fl.Field().String()).Valid()
		})
	})
}

// bindFailed converts a gin binding error into a field-level 400.
func (s *Server) bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			s.fail(c, domain.Invalid(fe.Field(), "is required"))
		case "mode":
			s.fail(c, domain.Invalid(fe.Field(), "unknown mode %q", fe.Value()))
		default:
			s.fail(c, domain.Invalid(fe.Field(), "failed the %q check", fe.Tag()))
		}
		return
	}
	s.fail(c, domain.Invalid("body", "malformed request"))
}
