// internal/utils/validator.go
package utils

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("nonzero_addr", validateNonZeroAddress)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// RegisterValidation adds a custom tag to the shared validator.
func RegisterValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}

// validateNonZeroAddress accepts hex address strings other than the zero address.
func validateNonZeroAddress(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if !common.IsHexAddress(value) {
		return false
	}
	return common.HexToAddress(value) != (common.Address{})
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "eth_addr":
		return e.Field() + " must be a 0x-prefixed 20-byte hex address"
	case "nonzero_addr":
		return e.Field() + " must be a non-zero address"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "permission_action":
		return e.Field() + " is not a known permission action"
	default:
		return e.Field() + " is invalid"
	}
}
