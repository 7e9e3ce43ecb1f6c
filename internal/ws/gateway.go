package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"ripple/internal/domain"
	"ripple/internal/service"
)

// clientEvent is the envelope for every client-originated event.
type clientEvent struct {
	Type        string `json:"type"`
	ReceiverID  string `json:"receiver_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	OtherUserID string `json:"other_user_id,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

// Gateway authenticates realtime connections, maintains presence and rooms,
// and dispatches client events to the message and session services.
type Gateway struct {
	presence *Presence
	rooms    *Rooms

	auth     *service.AuthService
	messages *service.MessageService
	groups   *service.GroupService
}

func NewGateway(auth *service.AuthService, messages *service.MessageService, groups *service.GroupService) *Gateway {
	return &Gateway{
		presence: NewPresence(),
		rooms:    NewRooms(),
		auth:     auth,
		messages: messages,
		groups:   groups,
	}
}

// Presence exposes the routing table for liveness checks outside the gateway.
func (g *Gateway) Presence() *Presence {
	return g.presence
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			// Non-browser clients (tests, CLIs) send no Origin header.
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return ""
}

// MakeHandler returns the HTTP handler for the realtime endpoint. The bearer
// credential is validated before the upgrade: an unauthenticated request is
// rejected with 401 and never reaches the event loop.
func (g *Gateway) MakeHandler(allowedOrigins []string) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
		Subprotocols:    []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		user, err := g.auth.VerifyToken(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := NewClient(user, conn)
		g.serve(client)
	}
}

func (g *Gateway) serve(c *Client) {
	defer c.Close()

	g.presence.Register(c)
	defer func() {
		g.rooms.LeaveAll(c)
		// Guarded: a stale disconnect from a replaced connection must not
		// announce the user offline while the newer connection lives.
		if g.presence.Unregister(c) {
			g.presence.Broadcast(map[string]any{
				"type":      "user_offline",
				"user_id":   c.UserID,
				"username":  c.Username,
				"timestamp": time.Now().UTC(),
			}, nil)
		}
	}()

	_ = c.Send(map[string]any{
		"type":     "connected",
		"user_id":  c.UserID,
		"username": c.Username,
	})
	g.presence.Broadcast(map[string]any{
		"type":      "user_online",
		"user_id":   c.UserID,
		"username":  c.Username,
		"timestamp": time.Now().UTC(),
	}, c)

	// Events from one connection are handled strictly in arrival order: the
	// loop awaits each persist before reading the next event, so two quick
	// sends from the same user surface in issue order.
	ctx := context.Background()
	for {
		var ev clientEvent
		if err := c.ReadJSON(&ev); err != nil {
			return
		}
		switch ev.Type {
		case "send_message":
			g.handleSendMessage(ctx, c, ev)
		case "typing_start":
			g.handleTyping(ctx, c, ev, "user_typing")
		case "typing_stop":
			g.handleTyping(ctx, c, ev, "user_stopped_typing")
		case "mark_read":
			g.handleMarkRead(ctx, c, ev)
		case "join_room":
			g.handleJoinRoom(ctx, c, ev, true)
		case "leave_room":
			g.handleJoinRoom(ctx, c, ev, false)
		default:
			log.WithFields(log.Fields{"event": ev.Type, "user_id": c.UserID}).Debug("unknown event type")
			sendError(c, fmt.Sprintf("unknown event type %q", ev.Type))
		}
	}
}

// handleSendMessage validates, persists and fans out a message. The sender
// always gets either a message_sent ack or a scoped error event.
func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, ev clientEvent) {
	kind := domain.MessageKind(ev.MessageType)
	if kind == "" {
		kind = domain.KindText
	}

	var (
		msg     *domain.Message
		session *domain.ChatSession
		err     error
	)
	switch {
	case ev.ReceiverID != "" && ev.GroupID != "":
		sendError(c, "send_message takes either receiver_id or group_id, not both")
		return
	case ev.ReceiverID != "":
		msg, session, err = g.messages.SendDirect(ctx, c.UserID, ev.ReceiverID, ev.Content, kind)
	case ev.GroupID != "":
		msg, session, err = g.messages.SendGroup(ctx, c.UserID, ev.GroupID, ev.Content, kind)
	default:
		sendError(c, "send_message requires receiver_id or group_id")
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrForbidden) {
			sendError(c, err.Error())
		} else {
			log.WithError(err).WithField("user_id", c.UserID).Error("send message failed")
			sendError(c, "failed to send message")
		}
		return
	}

	_ = c.Send(map[string]any{
		"type":       "message_sent",
		"message":    msg,
		"session_id": session.ID,
	})

	push := map[string]any{
		"type":       "new_message",
		"message":    msg,
		"session_id": session.ID,
		"sender": map[string]any{
			"id":       c.UserID,
			"username": c.Username,
		},
	}
	if msg.IsDirect() {
		g.push(ctx, msg, ev.ReceiverID, push)
		return
	}
	for _, p := range session.Participants {
		if p.UserID != c.UserID {
			g.push(ctx, msg, p.UserID, push)
		}
	}
}

// push delivers the event to userID's live connection, if any, and records
// the delivery. An offline recipient's copy stays queued in the store.
func (g *Gateway) push(ctx context.Context, msg *domain.Message, userID string, payload map[string]any) {
	rc := g.presence.Resolve(userID)
	if rc == nil {
		return
	}
	if err := rc.Send(payload); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("push failed")
		return
	}
	g.messages.MarkDelivered(ctx, msg.ID, userID)
}

// handleTyping broadcasts an ephemeral indicator to the conversation's room.
// Best-effort: invalid conversations are dropped silently.
func (g *Gateway) handleTyping(ctx context.Context, c *Client, ev clientEvent, eventType string) {
	room, ok := g.resolveRoom(ctx, c, ev)
	if !ok {
		log.WithField("user_id", c.UserID).Debug("typing for invalid conversation dropped")
		return
	}
	g.rooms.Broadcast(room, map[string]any{
		"type":     eventType,
		"user_id":  c.UserID,
		"username": c.Username,
	}, c)
}

// handleMarkRead marks the message read and notifies the original sender.
// Read receipts are best-effort: not-found and forbidden are dropped.
func (g *Gateway) handleMarkRead(ctx context.Context, c *Client, ev clientEvent) {
	if ev.MessageID == "" {
		return
	}
	msg, changed, err := g.messages.MarkRead(ctx, ev.MessageID, c.UserID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"message_id": ev.MessageID, "user_id": c.UserID}).Debug("mark_read dropped")
		return
	}
	if !changed {
		return
	}
	if sender := g.presence.Resolve(msg.SenderID); sender != nil {
		_ = sender.Send(map[string]any{
			"type":       "message_read",
			"message_id": msg.ID,
			"read_by":    c.UserID,
			"read_at":    msg.ReadAt,
		})
	}
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *Client, ev clientEvent, join bool) {
	room, ok := g.resolveRoom(ctx, c, ev)
	if !ok {
		sendError(c, "not allowed for this conversation")
		return
	}
	if join {
		g.rooms.Join(room, c)
	} else {
		g.rooms.Leave(room, c)
	}
}

// resolveRoom derives the deterministic room for the event's conversation and
// authorizes group access.
func (g *Gateway) resolveRoom(ctx context.Context, c *Client, ev clientEvent) (string, bool) {
	other := ev.OtherUserID
	if other == "" {
		other = ev.ReceiverID
	}
	switch {
	case other != "" && ev.GroupID == "":
		if other == c.UserID {
			return "", false
		}
		return PrivateRoom(c.UserID, other), true
	case ev.GroupID != "" && other == "":
		isMember, err := g.groups.IsMember(ctx, ev.GroupID, c.UserID)
		if err != nil || !isMember {
			return "", false
		}
		return GroupRoom(ev.GroupID), true
	}
	return "", false
}

func sendError(c *Client, msg string) {
	_ = c.Send(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
