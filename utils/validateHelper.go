package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the `validate` tags on any input struct.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}
