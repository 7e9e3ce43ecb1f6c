package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ripple/internal/service"
)

type privateSessionRequest struct {
	UserID string `json:"user_id"`
}

func handleFindOrCreatePrivateSession(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req privateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		session, err := sessions.FindOrCreatePrivate(r.Context(), currentUser.ID, req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func handleListSessions(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		page, pageSize, err := pageParams(r, 50)
		if err != nil {
			writeError(w, err)
			return
		}
		list, total, err := sessions.ListForUser(r.Context(), currentUser.ID, page, pageSize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pagedResponse{Items: list, Total: total, Page: page, PageSize: pageSize})
	}
}

func handleGetSession(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		session, err := sessions.GetForParticipant(r.Context(), chi.URLParam(r, "sessionID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func handleMarkSessionRead(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if err := sessions.MarkSessionRead(r.Context(), chi.URLParam(r, "sessionID"), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

func handleToggleSessionSetting(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		session, err := sessions.ToggleSetting(r.Context(), chi.URLParam(r, "sessionID"), currentUser.ID, chi.URLParam(r, "setting"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// handleRecountUnread recomputes the caller's cached counter for one session
// from the message store. Corrective endpoint for counter drift.
func handleRecountUnread(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		n, err := sessions.RecountUnread(r.Context(), chi.URLParam(r, "sessionID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"unread": n})
	}
}

// handleUnreadTotal sums the cached per-session counters. Cheaper than the
// ground-truth count but may drift until the next read or recount.
func handleUnreadTotal(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		n, err := sessions.SumUnreadForUser(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"unread": n})
	}
}
