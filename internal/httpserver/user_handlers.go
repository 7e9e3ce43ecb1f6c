package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ripple/internal/service"
	"ripple/internal/ws"
)

func handleListUsers(users *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		limit, err := queryInt(r, "limit", 50)
		if err != nil {
			writeError(w, err)
			return
		}
		list, err := users.List(r.Context(), offset, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetUser(users *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := users.GetByID(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// handleUserPresence reports whether a user currently holds a live realtime
// connection on this process.
func handleUserPresence(presence *ws.Presence) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"online":  presence.IsOnline(userID),
		})
	}
}
