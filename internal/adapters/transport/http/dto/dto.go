package dto

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

type RegisterDTO struct {
	Username string `json:"username" validate:"notblank,min=3,max=50"`
	Email    string `json:"email"    validate:"notblank,email,max=100"`
	Password string `json:"password" validate:"notblank,min=8"`
}

type LoginDTO struct {
	Username string `json:"username" validate:"notblank,min=3,max=50"`
	Password string `json:"password" validate:"notblank,min=8"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type ValidatedResponse struct {
	Valid  bool   `json:"valid"`
	UserID *int64 `json:"userId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const RegisteredMessage = "User registered successfully"

func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

var messages = map[string]map[string]string{
	"Username": {
		"notblank": "Username must not be blank",
		"min":      "Username must be between 3 and 50 characters",
		"max":      "Username must be between 3 and 50 characters",
	},
	"Email": {
		"notblank": "Email must not be blank",
		"email":    "Email must be valid",
		"max":      "Email must not exceed 100 characters",
	},
	"Password": {
		"notblank": "Password must not be blank",
		"min":      "Password must be at least 8 characters",
	},
}

// Describe returns the client message for the first failed rule.
func Describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request"
	}
	fe := ve[0]
	if msg, ok := messages[fe.StructField()][fe.Tag()]; ok {
		return msg
	}
	return fe.Field() + " is invalid"
}
