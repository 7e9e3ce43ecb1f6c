package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ripple/internal/config"
	"ripple/internal/service"
	"ripple/internal/ws"
)

// Services bundles the wired service layer. Construction happens in main,
// which knows which store backend is in play.
type Services struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Messages *service.MessageService
	Sessions *service.SessionService
	Groups   *service.GroupService
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, svcs *Services, gateway *ws.Gateway) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Ripple Messaging API","version":"1.0.0"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(svcs.Auth))
			r.Post("/login", handleLogin(svcs.Auth))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(svcs.Auth))

			r.Post("/auth/logout", handleLogout())
			r.Get("/auth/me", handleMe())

			// Users
			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(svcs.Users))
				r.Get("/{userID}", handleGetUser(svcs.Users))
				r.Get("/{userID}/presence", handleUserPresence(gateway.Presence()))
			})

			// Messages
			r.Route("/messages", func(r chi.Router) {
				r.Post("/", handleSendMessage(svcs.Messages))
				r.Get("/unread/count", handleUnreadCount(svcs.Messages))
				r.Get("/direct/{userID}", handleDirectHistory(svcs.Messages))
				r.Get("/group/{groupID}", handleGroupHistory(svcs.Messages))
				r.Post("/{messageID}/read", handleMarkMessageRead(svcs.Messages))
				r.Put("/{messageID}", handleEditMessage(svcs.Messages))
				r.Delete("/{messageID}", handleDeleteMessage(svcs.Messages))
			})

			// Chat sessions
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", handleListSessions(svcs.Sessions))
				r.Post("/private", handleFindOrCreatePrivateSession(svcs.Sessions))
				r.Get("/unread/total", handleUnreadTotal(svcs.Sessions))
				r.Get("/{sessionID}", handleGetSession(svcs.Sessions))
				r.Post("/{sessionID}/read", handleMarkSessionRead(svcs.Sessions))
				r.Post("/{sessionID}/recount", handleRecountUnread(svcs.Sessions))
				r.Post("/{sessionID}/settings/{setting}", handleToggleSessionSetting(svcs.Sessions))
			})

			// Groups
			r.Route("/groups", func(r chi.Router) {
				r.Post("/", handleCreateGroup(svcs.Groups))
				r.Get("/", handleListGroups(svcs.Groups))
				r.Post("/join", handleJoinGroup(svcs.Groups))
				r.Get("/{groupID}", handleGetGroup(svcs.Groups))
				r.Delete("/{groupID}", handleDeactivateGroup(svcs.Groups))
				r.Post("/{groupID}/members", handleAddGroupMember(svcs.Groups))
				r.Delete("/{groupID}/members/{userID}", handleRemoveGroupMember(svcs.Groups))
				r.Put("/{groupID}/members/{userID}/role", handleUpdateMemberRole(svcs.Groups))
			})
		})
	})

	// WebSocket endpoint
	r.Get("/ws", gateway.MakeHandler(cfg.CORSOrigins))

	return r
}
