package controllers

import (
	"net/http"

	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/api/responses"
)

type pingResponse struct {
	Scope  string `json:"scope"`
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ping echoes the caller identity on each route surface without touching
// storage.
func ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.ActorFromContext(r.Context())
		responses.WriteSuccess(w, pingResponse{
			Scope:  scope,
			Status: "ok",
			UserID: actor.UserID,
			Role:   actor.Role,
		})
	}
}

func PublicPing() http.HandlerFunc  { return ping("public") }
func PrivatePing() http.HandlerFunc { return ping("private") }
func AdminPing() http.HandlerFunc   { return ping("admin") }
