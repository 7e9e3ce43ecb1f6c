package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ripple/internal/domain"
	"ripple/internal/service"
)

type groupCreateRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Type        string                `json:"type,omitempty"`
	MaxMembers  int                   `json:"max_members,omitempty"`
	Settings    *domain.GroupSettings `json:"settings,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
}

type groupMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type groupJoinRequest struct {
	InviteCode string `json:"invite_code"`
}

type memberRoleRequest struct {
	Role string `json:"role"`
}

func handleCreateGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req groupCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		g, err := groups.CreateGroup(r.Context(), currentUser.ID, service.GroupCreateInput{
			Name:        req.Name,
			Description: req.Description,
			Type:        domain.GroupType(req.Type),
			MaxMembers:  req.MaxMembers,
			Settings:    req.Settings,
			Tags:        req.Tags,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

func handleListGroups(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		list, err := groups.ListForUser(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := groups.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleAddGroupMember(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req groupMemberRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		g, err := groups.AddMember(r.Context(), chi.URLParam(r, "groupID"), currentUser.ID, req.UserID, domain.ParticipantRole(req.Role))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleJoinGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req groupJoinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		g, err := groups.JoinByInviteCode(r.Context(), req.InviteCode, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleRemoveGroupMember(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		g, err := groups.RemoveMember(r.Context(), chi.URLParam(r, "groupID"), currentUser.ID, chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleUpdateMemberRole(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		var req memberRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		g, err := groups.UpdateMemberRole(r.Context(), chi.URLParam(r, "groupID"), currentUser.ID, chi.URLParam(r, "userID"), domain.ParticipantRole(req.Role))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleDeactivateGroup(groups *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if err := groups.Deactivate(r.Context(), chi.URLParam(r, "groupID"), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
	}
}
