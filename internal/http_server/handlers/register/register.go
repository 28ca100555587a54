package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Name                 string `json:"name" validate:"required,min=2,max=255,name_chars"`
	Username             string `json:"username" validate:"omitempty,max=100,username_chars"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8,password_strength"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type Response struct {
	resp.Response
	Email string `json:"email,omitempty"`
}

type TokenResponse struct {
	AccessToken      string               `json:"accessToken"`
	UserData         models.UserData      `json:"userData"`
	UserAbilityRules []models.AbilityRule `json:"userAbilityRules"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, token, err := authService.Register(ctx, req.Name, req.Username, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, storage.ErrEmailTaken) {
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.FieldError("email", "This email is already registered."))

				return
			}
			if errors.Is(err, storage.ErrUsernameTaken) {
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.FieldError("username", "This username is already taken."))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User registered", slog.Int64("id", user.ID))

		render.Status(r, http.StatusCreated)

		if token != "" {
			// immediate_token policy: the registration doubles as a login.
			render.JSON(w, r, TokenResponse{
				AccessToken:      token,
				UserData:         models.NewUserData(user),
				UserAbilityRules: models.DefaultAbilityRules(),
			})

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK("Registration successful. Please verify your email."),
			Email:    user.Email,
		})
	}
}
