package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/domain"
)

func TestFindOrCreatePrivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	t.Run("CreatesOnce", func(t *testing.T) {
		first, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		require.Len(t, first.Participants, 2)
		assert.Equal(t, domain.SessionPrivate, first.Kind)

		again, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("CommutativeInArguments", func(t *testing.T) {
		ab, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		ba, err := env.sessions.FindOrCreatePrivate(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, ab.ID, ba.ID)
		assert.Equal(t, ab.ConversationKey, ba.ConversationKey)
	})

	t.Run("SameUserTwice", func(t *testing.T) {
		_, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, alice.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownOther", func(t *testing.T) {
		_, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, "ghost")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestSessionAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	session, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	t.Run("ParticipantReads", func(t *testing.T) {
		got, err := env.sessions.GetForParticipant(ctx, session.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
	})

	t.Run("OutsiderForbidden", func(t *testing.T) {
		_, err := env.sessions.GetForParticipant(ctx, session.ID, carol.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		_, err := env.sessions.GetForParticipant(ctx, "missing", alice.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	_, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "first", domain.KindText)
	require.NoError(t, err)
	_, _, err = env.messages.SendDirect(ctx, alice.ID, carol.ID, "second", domain.KindText)
	require.NoError(t, err)

	t.Run("ListsMine", func(t *testing.T) {
		list, total, err := env.sessions.ListForUser(ctx, alice.ID, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, list, 2)

		list, total, err = env.sessions.ListForUser(ctx, bob.ID, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, list, 1)
	})

	t.Run("PageOutOfRange", func(t *testing.T) {
		_, _, err := env.sessions.ListForUser(ctx, alice.ID, 0, 50)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, _, err = env.sessions.ListForUser(ctx, alice.ID, 1, 101)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestToggleSetting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	session, err := env.sessions.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	t.Run("TogglesPerParticipant", func(t *testing.T) {
		updated, err := env.sessions.ToggleSetting(ctx, session.ID, alice.ID, "muted")
		require.NoError(t, err)
		assert.True(t, updated.Participant(alice.ID).Settings.Muted)
		// Bob's view of the session keeps his own settings.
		assert.False(t, updated.Participant(bob.ID).Settings.Muted)

		updated, err = env.sessions.ToggleSetting(ctx, session.ID, alice.ID, "muted")
		require.NoError(t, err)
		assert.False(t, updated.Participant(alice.ID).Settings.Muted)
	})

	t.Run("UnknownSetting", func(t *testing.T) {
		_, err := env.sessions.ToggleSetting(ctx, session.ID, alice.ID, "invisible")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("OutsiderForbidden", func(t *testing.T) {
		carol := env.createUser(t, "carol")
		_, err := env.sessions.ToggleSetting(ctx, session.ID, carol.ID, "muted")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestMarkSessionRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	msg, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "ping", domain.KindText)
	require.NoError(t, err)

	require.NoError(t, env.sessions.MarkSessionRead(ctx, msg.SessionID, bob.ID))

	session, err := env.sessions.GetForParticipant(ctx, msg.SessionID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, session.Participant(bob.ID).Unread)
	assert.NotNil(t, session.Participant(bob.ID).LastSeenAt)
}
