package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const passwordSpecials = "@$!%*?&"

// New builds the validator shared by all handlers: field names come from
// json tags so validation errors are scoped the way the API reports them,
// plus the custom registration rules.
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("password_strength", passwordStrength)
	_ = v.RegisterValidation("name_chars", nameChars)
	_ = v.RegisterValidation("username_chars", usernameChars)

	return v
}

// passwordStrength requires at least one lowercase letter, one uppercase
// letter, one digit and one special character, with no characters outside
// that set.
func passwordStrength(fl validator.FieldLevel) bool {
	var lower, upper, digit, special bool

	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}

	return lower && upper && digit && special
}

func nameChars(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isLetter && r != ' ' && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}

func usernameChars(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum && r != '_' && r != '-' {
			return false
		}
	}
	return true
}
