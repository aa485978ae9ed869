package handlers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

var registerOnce sync.Once

// RegisterValidators installs the portal tags on gin's validator:
// "cnphone" accepts a mainland mobile number and "identifier" a mobile number
// or an email address.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		if err = v.RegisterValidation("cnphone", func(fl validator.FieldLevel) bool {
			kind, _ := domain.ClassifyIdentifier(fl.Field().String())
			return kind == domain.IdentifierPhone
		}); err != nil {
			return
		}
		err = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			kind, _ := domain.ClassifyIdentifier(fl.Field().String())
			return kind == domain.IdentifierPhone || kind == domain.IdentifierEmail
		})
	})
	return err
}
