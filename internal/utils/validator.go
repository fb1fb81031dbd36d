// internal/utils/validator.go
package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	usernameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)
	chainAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40,64}$`)
)

func init() {
	validate = validator.New()

	validate.RegisterValidation("username", validateUsername)
	validate.RegisterValidation("strong_password", validateStrongPassword)
	validate.RegisterValidation("chain_address", validateChainAddress)
}

// ValidateStruct validates a struct according to its validate tags.
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var messages []string
		for _, err := range err.(validator.ValidationErrors) {
			messages = append(messages, formatValidationError(err))
		}
		return fmt.Errorf("%s", strings.Join(messages, "; "))
	}
	return nil
}

func validateUsername(fl validator.FieldLevel) bool {
	return usernameRegex.MatchString(fl.Field().String())
}

// validateChainAddress accepts hex ledger addresses with a 0x prefix.
func validateChainAddress(fl validator.FieldLevel) bool {
	return chainAddressRegex.MatchString(fl.Field().String())
}

func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasDigit bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

func formatValidationError(err validator.FieldError) string {
	field := strings.ToLower(err.Field())

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, err.Param())
	case "username":
		return fmt.Sprintf("%s must be 3-30 characters of letters, digits, underscore or hyphen", field)
	case "strong_password":
		return fmt.Sprintf("%s must be at least 8 characters with upper, lower and digit", field)
	case "chain_address":
		return fmt.Sprintf("%s must be a 0x-prefixed hex address", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
