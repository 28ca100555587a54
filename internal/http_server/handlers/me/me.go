package me

import (
	"log/slog"
	"net/http"

	"account_service/internal/http_server/middleware/authn"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	UserData         models.UserData      `json:"userData"`
	UserAbilityRules []models.AbilityRule `json:"userAbilityRules"`
}

func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authn.UserFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthenticated."))

			return
		}

		render.JSON(w, r, Response{
			UserData:         models.NewUserData(user),
			UserAbilityRules: models.DefaultAbilityRules(),
		})
	}
}
