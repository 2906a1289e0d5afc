package handlers

import "github.com/BradenHooton/voyageur/internal/models"

// SignUpRequest represents the request body for signup
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"fullName" validate:"max=100"`
}

// SignInRequest represents the request body for password sign-in
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// GoogleRequest carries a Google ID token and what to do with it
type GoogleRequest struct {
	Token  string `json:"token" validate:"required"`
	Intent string `json:"intent" validate:"required,otp_intent"`
}

// EmailRequest is the body of every endpoint that only needs an email
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetOTPRequest represents the request body for forgot-password OTP verification
type ResetOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric,min=6,max=10"`
}

// ResetPasswordRequest represents the final step of the forgot-password flow
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// VerifyOTPRequest represents the request body for signup or passwordless OTP verification
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric,min=6,max=10"`
	Type  string `json:"type" validate:"required,otp_type"`
}

// RefreshRequest represents the request body for session refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UserResponse wraps the current account
type UserResponse struct {
	User *models.Account `json:"user"`
}
