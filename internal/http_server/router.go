package http_server

import (
	"log/slog"

	"account_service/internal/auth"
	"account_service/internal/http_server/handlers/changepassword"
	"account_service/internal/http_server/handlers/forgotpassword"
	"account_service/internal/http_server/handlers/login"
	"account_service/internal/http_server/handlers/logout"
	"account_service/internal/http_server/handlers/me"
	"account_service/internal/http_server/handlers/register"
	"account_service/internal/http_server/handlers/resetpassword"
	"account_service/internal/http_server/handlers/sendcode"
	"account_service/internal/http_server/handlers/verifyemail"
	"account_service/internal/http_server/middleware/authn"
	rateLimit "account_service/internal/middleware/ratelimit"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

// NewRouter assembles the API surface: public auth endpoints with per-IP
// throttles and the bearer-token-guarded group.
func NewRouter(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	exposeCodes bool,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(authn.New(log, authService))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register",
			register.New(log, validate, authService),
		)
		r.With(rateLimit.Login()).Post("/login",
			login.New(log, validate, authService),
		)
		r.With(rateLimit.ForgotPassword()).Post("/forgot-password",
			forgotpassword.New(log, validate, authService, exposeCodes),
		)
		r.With(rateLimit.ResetPassword()).Post("/reset-password",
			resetpassword.New(log, validate, authService),
		)
		r.With(rateLimit.SendCode()).Post("/verify-email/send",
			sendcode.New(log, validate, authService, exposeCodes),
		)
		r.With(rateLimit.VerifyEmail()).Post("/verify-email",
			verifyemail.New(log, validate, authService),
		)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireUser)

			r.Get("/me", me.New(log))
			r.Post("/logout", logout.New(log, authService))
			r.With(rateLimit.ChangePassword()).Post("/change-password",
				changepassword.New(log, validate, authService),
			)
		})
	})

	return r
}
