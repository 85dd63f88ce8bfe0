package controllers

import (
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-[A-Z0-9-]{1,32}$`)

// RegisterValidators installs the custom binding tags used by request models.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("ordernumber", func(fl validator.FieldLevel) bool {
		return orderNumberPattern.MatchString(fl.Field().String())
	})
}
