package routes

import (
	"log/slog"

	"github.com/BradenHooton/voyageur/internal/auth"
	"github.com/BradenHooton/voyageur/internal/handlers"
	"github.com/BradenHooton/voyageur/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the auth API under /api/auth
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	resolver auth.AccountResolver,
	rateLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimit))

		r.Post("/signup", authHandler.SignUp)
		r.Post("/signin", authHandler.SignIn)
		r.Post("/google", authHandler.Google)
		r.Post("/forgot-otp-request", authHandler.ForgotOTPRequest)
		r.Post("/forgot-otp-verify", authHandler.ForgotOTPVerify)
		r.Post("/reset-password-with-otp", authHandler.ResetPassword)
		r.Post("/verify-otp", authHandler.VerifyOTP)
		r.Post("/resend-confirmation", authHandler.ResendConfirmation)
		r.Post("/otp", authHandler.LoginOTP)
		r.Post("/refresh", authHandler.Refresh)

		// Bearer-authenticated
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBearer(resolver, logger))

			r.Post("/signout", authHandler.SignOut)
			r.Get("/me", authHandler.Me)
			r.Delete("/account", authHandler.DeleteAccount)
		})
	})
}
