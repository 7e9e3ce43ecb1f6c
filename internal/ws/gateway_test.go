package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/domain"
	"ripple/internal/security"
	"ripple/internal/service"
	"ripple/internal/store/sqlite"
	"ripple/internal/ws"
)

type gatewayEnv struct {
	srv      *httptest.Server
	auth     *service.AuthService
	messages *service.MessageService
	sessions *service.SessionService
	groups   *service.GroupService
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	userRepo := sqlite.NewUserRepo(db)
	messageRepo := sqlite.NewMessageRepo(db)
	sessionRepo := sqlite.NewSessionRepo(db)
	groupRepo := sqlite.NewGroupRepo(db)

	tokens := security.NewTokenService("test-secret", time.Hour)
	hasher := security.NewPasswordHasher(4)

	auth := service.NewAuthService(userRepo, tokens, hasher)
	messages := service.NewMessageService(messageRepo, sessionRepo, groupRepo, userRepo, 1000, 100)
	sessions := service.NewSessionService(sessionRepo, messageRepo, userRepo, 100)
	groups := service.NewGroupService(groupRepo, sessionRepo, userRepo, 256, 8)

	gateway := ws.NewGateway(auth, messages, groups)
	srv := httptest.NewServer(gateway.MakeHandler(nil))
	t.Cleanup(srv.Close)

	return &gatewayEnv{
		srv:      srv,
		auth:     auth,
		messages: messages,
		sessions: sessions,
		groups:   groups,
	}
}

func (e *gatewayEnv) registerAndLogin(t *testing.T, username string) (*domain.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := e.auth.Register(ctx, service.RegisterInput{Username: username, Password: "Password1!"})
	require.NoError(t, err)
	resp, err := e.auth.Login(ctx, service.LoginInput{Username: username, Password: "Password1!"})
	require.NoError(t, err)
	return user, resp.AccessToken
}

// connect dials the gateway and consumes the initial connected event.
func (e *gatewayEnv) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ev := readEvent(t, conn)
	require.Equal(t, "connected", ev["type"])
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestGatewayRejectsBadCredentials(t *testing.T) {
	env := newGatewayEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")

	t.Run("NoToken", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		header := http.Header{"Authorization": {"Bearer garbage"}}
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestGatewaySubprotocolAuth(t *testing.T) {
	env := newGatewayEnv(t)
	_, token := env.registerAndLogin(t, "alice")

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")
	dialer := websocket.Dialer{Subprotocols: []string{"bearer", token}}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readEvent(t, conn)
	assert.Equal(t, "connected", ev["type"])
}

func TestGatewayDirectMessage(t *testing.T) {
	env := newGatewayEnv(t)
	alice, aliceToken := env.registerAndLogin(t, "alice")
	bob, bobToken := env.registerAndLogin(t, "bob")

	aliceConn := env.connect(t, aliceToken)
	bobConn := env.connect(t, bobToken)

	// Alice learns that bob came online.
	online := readEvent(t, aliceConn)
	require.Equal(t, "user_online", online["type"])
	assert.Equal(t, bob.ID, online["user_id"])

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":        "send_message",
		"receiver_id": bob.ID,
		"content":     "hello bob",
	}))

	t.Run("SenderGetsAck", func(t *testing.T) {
		ack := readEvent(t, aliceConn)
		require.Equal(t, "message_sent", ack["type"])
		msg := ack["message"].(map[string]any)
		assert.Equal(t, "hello bob", msg["content"])
		assert.Equal(t, alice.ID, msg["sender_id"])
	})

	var messageID string
	t.Run("RecipientGetsPush", func(t *testing.T) {
		push := readEvent(t, bobConn)
		require.Equal(t, "new_message", push["type"])
		msg := push["message"].(map[string]any)
		messageID = msg["id"].(string)
		assert.Equal(t, "hello bob", msg["content"])
		sender := push["sender"].(map[string]any)
		assert.Equal(t, "alice", sender["username"])
	})

	t.Run("DeliveredRecorded", func(t *testing.T) {
		// The push marks delivery for the online recipient.
		require.Eventually(t, func() bool {
			msgs, _, err := env.messages.ListDirectHistory(context.Background(), bob.ID, alice.ID, 1, 10)
			if err != nil || len(msgs) != 1 {
				return false
			}
			return msgs[0].Status == domain.StatusDelivered
		}, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("ReadReceiptReachesSender", func(t *testing.T) {
		require.NoError(t, bobConn.WriteJSON(map[string]any{
			"type":       "mark_read",
			"message_id": messageID,
		}))

		receipt := readEvent(t, aliceConn)
		require.Equal(t, "message_read", receipt["type"])
		assert.Equal(t, messageID, receipt["message_id"])
		assert.Equal(t, bob.ID, receipt["read_by"])
	})

	t.Run("RepeatedReadIsSilent", func(t *testing.T) {
		require.NoError(t, bobConn.WriteJSON(map[string]any{
			"type":       "mark_read",
			"message_id": messageID,
		}))
		// No second receipt; the next frame alice sees must come from
		// something else. Trigger an ack to prove the receipt was skipped.
		require.NoError(t, aliceConn.WriteJSON(map[string]any{
			"type":        "send_message",
			"receiver_id": bob.ID,
			"content":     "follow-up",
		}))
		ack := readEvent(t, aliceConn)
		assert.Equal(t, "message_sent", ack["type"])
	})
}

func TestGatewayOfflineRecipient(t *testing.T) {
	env := newGatewayEnv(t)
	alice, aliceToken := env.registerAndLogin(t, "alice")
	bob, _ := env.registerAndLogin(t, "bob")

	aliceConn := env.connect(t, aliceToken)

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":        "send_message",
		"receiver_id": bob.ID,
		"content":     "see you later",
	}))
	ack := readEvent(t, aliceConn)
	require.Equal(t, "message_sent", ack["type"])

	// The message is durable and waits in bob's history, undelivered.
	msgs, total, err := env.messages.ListDirectHistory(context.Background(), bob.ID, alice.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatusSent, msgs[0].Status)

	// And his cached unread counter advanced.
	n, err := env.sessions.SumUnreadForUser(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGatewaySendValidation(t *testing.T) {
	env := newGatewayEnv(t)
	_, aliceToken := env.registerAndLogin(t, "alice")
	aliceConn := env.connect(t, aliceToken)

	t.Run("MissingTarget", func(t *testing.T) {
		require.NoError(t, aliceConn.WriteJSON(map[string]any{
			"type":    "send_message",
			"content": "to nobody",
		}))
		ev := readEvent(t, aliceConn)
		assert.Equal(t, "error", ev["type"])
	})

	t.Run("EmptyContent", func(t *testing.T) {
		bob, _ := env.registerAndLogin(t, "bob")
		require.NoError(t, aliceConn.WriteJSON(map[string]any{
			"type":        "send_message",
			"receiver_id": bob.ID,
		}))
		ev := readEvent(t, aliceConn)
		assert.Equal(t, "error", ev["type"])
	})

	t.Run("UnknownEventType", func(t *testing.T) {
		require.NoError(t, aliceConn.WriteJSON(map[string]any{"type": "teleport"}))
		ev := readEvent(t, aliceConn)
		assert.Equal(t, "error", ev["type"])
	})
}

func TestGatewayTypingIndicators(t *testing.T) {
	env := newGatewayEnv(t)
	alice, aliceToken := env.registerAndLogin(t, "alice")
	bob, bobToken := env.registerAndLogin(t, "bob")

	aliceConn := env.connect(t, aliceToken)
	bobConn := env.connect(t, bobToken)
	readEvent(t, aliceConn) // bob's user_online

	// Both sides join the shared conversation room.
	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":          "join_room",
		"other_user_id": bob.ID,
	}))
	require.NoError(t, bobConn.WriteJSON(map[string]any{
		"type":          "join_room",
		"other_user_id": alice.ID,
	}))

	// join_room has no ack; give the reads a moment to land.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":          "typing_start",
		"other_user_id": bob.ID,
	}))
	ev := readEvent(t, bobConn)
	require.Equal(t, "user_typing", ev["type"])
	assert.Equal(t, alice.ID, ev["user_id"])

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":          "typing_stop",
		"other_user_id": bob.ID,
	}))
	ev = readEvent(t, bobConn)
	require.Equal(t, "user_stopped_typing", ev["type"])
}

func TestGatewayGroupFanout(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()
	alice, aliceToken := env.registerAndLogin(t, "alice")
	bob, bobToken := env.registerAndLogin(t, "bob")
	carol, carolToken := env.registerAndLogin(t, "carol")

	g, err := env.groups.CreateGroup(ctx, alice.ID, service.GroupCreateInput{Name: "team"})
	require.NoError(t, err)
	_, err = env.groups.AddMember(ctx, g.ID, alice.ID, bob.ID, domain.RoleMember)
	require.NoError(t, err)
	_, err = env.groups.AddMember(ctx, g.ID, alice.ID, carol.ID, domain.RoleMember)
	require.NoError(t, err)

	aliceConn := env.connect(t, aliceToken)
	bobConn := env.connect(t, bobToken)
	carolConn := env.connect(t, carolToken)
	readEvent(t, aliceConn) // bob online
	readEvent(t, aliceConn) // carol online
	readEvent(t, bobConn)   // carol online

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":     "send_message",
		"group_id": g.ID,
		"content":  "standup in 5",
	}))

	ack := readEvent(t, aliceConn)
	require.Equal(t, "message_sent", ack["type"])

	for _, conn := range []*websocket.Conn{bobConn, carolConn} {
		push := readEvent(t, conn)
		require.Equal(t, "new_message", push["type"])
		msg := push["message"].(map[string]any)
		assert.Equal(t, g.ID, msg["group_id"])
		assert.Equal(t, "standup in 5", msg["content"])
	}
}

func TestGatewayOfflineBroadcast(t *testing.T) {
	env := newGatewayEnv(t)
	_, aliceToken := env.registerAndLogin(t, "alice")
	bob, bobToken := env.registerAndLogin(t, "bob")

	aliceConn := env.connect(t, aliceToken)
	bobConn := env.connect(t, bobToken)
	readEvent(t, aliceConn) // bob's user_online

	require.NoError(t, bobConn.Close())

	ev := readEvent(t, aliceConn)
	require.Equal(t, "user_offline", ev["type"])
	assert.Equal(t, bob.ID, ev["user_id"])
}
