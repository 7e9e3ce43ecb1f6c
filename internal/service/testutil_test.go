package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ripple/internal/domain"
	"ripple/internal/service"
	"ripple/internal/store/sqlite"
)

// testEnv wires the full service layer against an in-memory store.
type testEnv struct {
	users    *service.UserService
	messages *service.MessageService
	sessions *service.SessionService
	groups   *service.GroupService

	userRepo    domain.UserRepository
	messageRepo domain.MessageRepository
	sessionRepo domain.SessionRepository
	groupRepo   domain.GroupRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	// In-memory databases are per-connection; pin the pool to one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.Migrate(db))

	userRepo := sqlite.NewUserRepo(db)
	messageRepo := sqlite.NewMessageRepo(db)
	sessionRepo := sqlite.NewSessionRepo(db)
	groupRepo := sqlite.NewGroupRepo(db)

	return &testEnv{
		users:       service.NewUserService(userRepo),
		messages:    service.NewMessageService(messageRepo, sessionRepo, groupRepo, userRepo, 1000, 100),
		sessions:    service.NewSessionService(sessionRepo, messageRepo, userRepo, 100),
		groups:      service.NewGroupService(groupRepo, sessionRepo, userRepo, 256, 8),
		userRepo:    userRepo,
		messageRepo: messageRepo,
		sessionRepo: sessionRepo,
		groupRepo:   groupRepo,
	}
}

func groupInput(name string) service.GroupCreateInput {
	return service.GroupCreateInput{Name: name}
}

func (e *testEnv) createUser(t *testing.T, username string) *domain.User {
	t.Helper()
	u := &domain.User{
		Username:       username,
		DisplayName:    username,
		HashedPassword: "x",
		IsActive:       true,
	}
	require.NoError(t, e.userRepo.Create(context.Background(), u))
	return u
}
