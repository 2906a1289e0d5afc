package handlers

import (
	"fmt"

	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/go-playground/validator/v10"
)

// ValidationErrorResponse represents a validation error with field-level details
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("otp_intent", func(fl validator.FieldLevel) bool {
		return models.GoogleIntent(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("otp_type", func(fl validator.FieldLevel) bool {
		return models.OTPKind(fl.Field().String()).Valid()
	})
	return v
}

// ValidateRequest validates a request struct using go-playground/validator
// Returns a user-friendly error message if validation fails
func ValidateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			var errors []ValidationErrorResponse
			for _, fieldError := range ve {
				errors = append(errors, ValidationErrorResponse{
					Field:   fieldError.Field(),
					Message: formatValidationError(fieldError),
				})
			}
			// Return first error for simple handling
			if len(errors) > 0 {
				return fmt.Errorf("%s: %s", errors[0].Field, errors[0].Message)
			}
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "otp_intent":
		return "must be one of: check login signup"
	case "otp_type":
		return "must be one of: signup email"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
