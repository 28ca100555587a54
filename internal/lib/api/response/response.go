package response

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Response is the envelope every handler renders. Message carries
// human-readable outcomes, Errors carries field-scoped validation messages
// in the {errors:{field:[...]}} shape the SPA expects.
type Response struct {
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func OK(message string) Response {
	return Response{Message: message}
}

func Error(message string) Response {
	return Response{Message: message}
}

func FieldError(field, message string) Response {
	return Response{
		Errors: map[string][]string{field: {message}},
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	errors := make(map[string][]string, len(errs))

	for _, err := range errs {
		field := err.Field()
		errors[field] = append(errors[field], message(err))
	}

	return Response{Errors: errors}
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required", err.Field())
	case "email":
		return "Please provide a valid email address."
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters", err.Field(), err.Param())
	case "len":
		return fmt.Sprintf("The %s must be %s characters", err.Field(), err.Param())
	case "eqfield":
		return "Password confirmation does not match."
	case "password_strength":
		return "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character (@$!%*?&)."
	case "name_chars":
		return "Name can only contain letters, spaces, hyphens, and apostrophes."
	case "username_chars":
		return "Username can only contain letters, numbers, hyphens, and underscores."
	default:
		return fmt.Sprintf("The %s field is not valid", err.Field())
	}
}
