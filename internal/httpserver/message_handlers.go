package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ripple/internal/domain"
	"ripple/internal/service"
)

type messageSendRequest struct {
	ReceiverID  string `json:"receiver_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
}

type messageEditRequest struct {
	Content string `json:"content"`
}

func messageKind(raw string) domain.MessageKind {
	if raw == "" {
		return domain.KindText
	}
	return domain.MessageKind(raw)
}

// handleSendMessage is the HTTP twin of the realtime send_message event, for
// clients without a socket. Live recipients learn about the message on their
// next history or session fetch.
func handleSendMessage(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req messageSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		var (
			msg     *domain.Message
			session *domain.ChatSession
			err     error
		)
		switch {
		case req.ReceiverID != "" && req.GroupID != "":
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provide either receiver_id or group_id, not both"})
			return
		case req.ReceiverID != "":
			msg, session, err = messages.SendDirect(r.Context(), currentUser.ID, req.ReceiverID, req.Content, messageKind(req.MessageType))
		case req.GroupID != "":
			msg, session, err = messages.SendGroup(r.Context(), currentUser.ID, req.GroupID, req.Content, messageKind(req.MessageType))
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "receiver_id or group_id is required"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":    msg,
			"session_id": session.ID,
		})
	}
}

func handleDirectHistory(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		otherID := chi.URLParam(r, "userID")
		page, pageSize, err := pageParams(r, 50)
		if err != nil {
			writeError(w, err)
			return
		}

		msgs, total, err := messages.ListDirectHistory(r.Context(), currentUser.ID, otherID, page, pageSize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pagedResponse{Items: msgs, Total: total, Page: page, PageSize: pageSize})
	}
}

func handleGroupHistory(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		groupID := chi.URLParam(r, "groupID")
		page, pageSize, err := pageParams(r, 50)
		if err != nil {
			writeError(w, err)
			return
		}

		msgs, total, err := messages.ListGroupHistory(r.Context(), currentUser.ID, groupID, page, pageSize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pagedResponse{Items: msgs, Total: total, Page: page, PageSize: pageSize})
	}
}

func handleMarkMessageRead(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		msg, changed, err := messages.MarkRead(r.Context(), chi.URLParam(r, "messageID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": msg,
			"changed": changed,
		})
	}
}

func handleDeleteMessage(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if err := messages.SoftDelete(r.Context(), chi.URLParam(r, "messageID"), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleEditMessage(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req messageEditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		msg, err := messages.EditMessage(r.Context(), chi.URLParam(r, "messageID"), currentUser.ID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// handleUnreadCount returns the ground-truth unread total, recomputed from the
// message store rather than the cached session counters.
func handleUnreadCount(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		n, err := messages.CountUnread(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"unread": n})
	}
}
