package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/domain"
)

func TestSendDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	t.Run("Success", func(t *testing.T) {
		msg, session, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "hello", domain.KindText)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, msg.SenderID)
		assert.Equal(t, bob.ID, msg.ReceiverID)
		assert.Equal(t, domain.StatusSent, msg.Status)
		assert.Equal(t, session.ID, msg.SessionID)
		assert.True(t, msg.IsDirect())
	})

	t.Run("ReusesSession", func(t *testing.T) {
		_, first, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "one", domain.KindText)
		require.NoError(t, err)
		_, second, err := env.messages.SendDirect(ctx, bob.ID, alice.ID, "two", domain.KindText)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		_, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "", domain.KindText)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("ContentTooLong", func(t *testing.T) {
		over := strings.Repeat("a", 1001)
		_, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, over, domain.KindText)
		assert.ErrorIs(t, err, domain.ErrValidation)

		exact := strings.Repeat("a", 1000)
		_, _, err = env.messages.SendDirect(ctx, alice.ID, bob.ID, exact, domain.KindText)
		assert.NoError(t, err)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "hi", domain.MessageKind("carrier_pigeon"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("SelfMessage", func(t *testing.T) {
		_, _, err := env.messages.SendDirect(ctx, alice.ID, alice.ID, "hi", domain.KindText)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownReceiver", func(t *testing.T) {
		_, _, err := env.messages.SendDirect(ctx, alice.ID, "nope", "hi", domain.KindText)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestDirectHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	for _, content := range []string{"one", "two", "three"} {
		_, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, content, domain.KindText)
		require.NoError(t, err)
	}
	// Unrelated pair must not leak into the history.
	_, _, err := env.messages.SendDirect(ctx, alice.ID, carol.ID, "other", domain.KindText)
	require.NoError(t, err)

	t.Run("OldestFirst", func(t *testing.T) {
		msgs, total, err := env.messages.ListDirectHistory(ctx, bob.ID, alice.ID, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, msgs, 3)
		assert.Equal(t, "one", msgs[0].Content)
		assert.Equal(t, "three", msgs[2].Content)
	})

	t.Run("Paged", func(t *testing.T) {
		msgs, total, err := env.messages.ListDirectHistory(ctx, bob.ID, alice.ID, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, msgs, 1)
		assert.Equal(t, "three", msgs[0].Content)
	})

	t.Run("PageOutOfRange", func(t *testing.T) {
		_, _, err := env.messages.ListDirectHistory(ctx, bob.ID, alice.ID, 0, 50)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, _, err = env.messages.ListDirectHistory(ctx, bob.ID, alice.ID, 1, 0)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, _, err = env.messages.ListDirectHistory(ctx, bob.ID, alice.ID, 1, 101)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	msg, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "hello", domain.KindText)
	require.NoError(t, err)

	t.Run("FirstReadChanges", func(t *testing.T) {
		read, changed, err := env.messages.MarkRead(ctx, msg.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, domain.StatusRead, read.Status)
		assert.True(t, read.ReadByUser(bob.ID))
		assert.NotNil(t, read.ReadAt)
	})

	t.Run("SecondReadIsNoop", func(t *testing.T) {
		_, changed, err := env.messages.MarkRead(ctx, msg.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("StatusNeverRegresses", func(t *testing.T) {
		env.messages.MarkDelivered(ctx, msg.ID, bob.ID)
		stored, err := env.messageRepo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRead, stored.Status)
	})

	t.Run("OnlyReceiverMayRead", func(t *testing.T) {
		other, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "again", domain.KindText)
		require.NoError(t, err)
		_, _, err = env.messages.MarkRead(ctx, other.ID, alice.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("UnknownMessage", func(t *testing.T) {
		_, _, err := env.messages.MarkRead(ctx, "missing", bob.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUnreadCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	var last *domain.Message
	for _, content := range []string{"one", "two"} {
		msg, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, content, domain.KindText)
		require.NoError(t, err)
		last = msg
	}

	t.Run("CachedCounterTracksSends", func(t *testing.T) {
		session, err := env.sessions.GetForParticipant(ctx, last.SessionID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, session.Participant(bob.ID).Unread)
		// The sender's own counter stays untouched.
		assert.Equal(t, 0, session.Participant(alice.ID).Unread)
	})

	t.Run("GroundTruthMatchesCache", func(t *testing.T) {
		n, err := env.messages.CountUnread(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ReadReconcilesCounter", func(t *testing.T) {
		_, _, err := env.messages.MarkRead(ctx, last.ID, bob.ID)
		require.NoError(t, err)

		// One message read, one still unread.
		session, err := env.sessions.GetForParticipant(ctx, last.SessionID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, session.Participant(bob.ID).Unread)

		n, err := env.messages.CountUnread(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("RecountFixesDrift", func(t *testing.T) {
		// Poison the cached counter, then recount from the message store.
		require.NoError(t, env.sessionRepo.SetUnread(ctx, last.SessionID, bob.ID, 42))
		n, err := env.sessions.RecountUnread(ctx, last.SessionID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		total, err := env.sessions.SumUnreadForUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestUnreadAcrossSenders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	// Two senders, two distinct sessions, one receiver.
	fromAlice, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "from alice", domain.KindText)
	require.NoError(t, err)
	_, _, err = env.messages.SendDirect(ctx, carol.ID, bob.ID, "from carol", domain.KindText)
	require.NoError(t, err)

	t.Run("CacheAgreesWithGroundTruth", func(t *testing.T) {
		truth, err := env.messages.CountUnread(ctx, bob.ID)
		require.NoError(t, err)
		cached, err := env.sessions.SumUnreadForUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, truth)
		assert.Equal(t, 2, cached)
	})

	t.Run("StillAgreesAfterPartialRead", func(t *testing.T) {
		_, _, err := env.messages.MarkRead(ctx, fromAlice.ID, bob.ID)
		require.NoError(t, err)

		truth, err := env.messages.CountUnread(ctx, bob.ID)
		require.NoError(t, err)
		cached, err := env.sessions.SumUnreadForUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, truth)
		assert.Equal(t, 1, cached)
	})
}

func TestSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	msg, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "regret", domain.KindText)
	require.NoError(t, err)
	_, _, err = env.messages.SendDirect(ctx, alice.ID, bob.ID, "keep", domain.KindText)
	require.NoError(t, err)

	t.Run("OnlySenderMayDelete", func(t *testing.T) {
		err := env.messages.SoftDelete(ctx, msg.ID, bob.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("HiddenForDeleterOnly", func(t *testing.T) {
		require.NoError(t, env.messages.SoftDelete(ctx, msg.ID, alice.ID))

		mine, total, err := env.messages.ListDirectHistory(ctx, alice.ID, bob.ID, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, mine, 1)
		assert.Equal(t, "keep", mine[0].Content)

		theirs, total, err := env.messages.ListDirectHistory(ctx, bob.ID, alice.ID, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, theirs, 2)
	})

	t.Run("DeletedRefusesEdit", func(t *testing.T) {
		_, err := env.messages.EditMessage(ctx, msg.ID, alice.ID, "rewrite")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestEditMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	msg, _, err := env.messages.SendDirect(ctx, alice.ID, bob.ID, "typo", domain.KindText)
	require.NoError(t, err)

	t.Run("SenderEdits", func(t *testing.T) {
		edited, err := env.messages.EditMessage(ctx, msg.ID, alice.ID, "fixed")
		require.NoError(t, err)
		assert.Equal(t, "fixed", edited.Content)
		assert.True(t, edited.IsEdited)
		assert.NotNil(t, edited.EditedAt)

		stored, err := env.messageRepo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "fixed", stored.Content)
	})

	t.Run("NonSenderForbidden", func(t *testing.T) {
		_, err := env.messages.EditMessage(ctx, msg.ID, bob.ID, "hijack")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestGroupMessaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	g, err := env.groups.CreateGroup(ctx, alice.ID, groupInput("team"))
	require.NoError(t, err)
	_, err = env.groups.AddMember(ctx, g.ID, alice.ID, bob.ID, domain.RoleMember)
	require.NoError(t, err)

	t.Run("MemberSends", func(t *testing.T) {
		msg, session, err := env.messages.SendGroup(ctx, bob.ID, g.ID, "hi all", domain.KindText)
		require.NoError(t, err)
		assert.Equal(t, g.ID, msg.GroupID)
		assert.False(t, msg.IsDirect())
		assert.Equal(t, g.ID, session.GroupID)
	})

	t.Run("NonMemberRefused", func(t *testing.T) {
		_, _, err := env.messages.SendGroup(ctx, carol.ID, g.ID, "let me in", domain.KindText)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("NonMemberHistoryForbidden", func(t *testing.T) {
		_, _, err := env.messages.ListGroupHistory(ctx, carol.ID, g.ID, 1, 50)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("MemberReadsGroupMessage", func(t *testing.T) {
		msg, _, err := env.messages.SendGroup(ctx, alice.ID, g.ID, "read me", domain.KindText)
		require.NoError(t, err)

		read, changed, err := env.messages.MarkRead(ctx, msg.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, read.ReadByUser(bob.ID))

		_, _, err = env.messages.MarkRead(ctx, msg.ID, carol.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("UnknownGroup", func(t *testing.T) {
		_, _, err := env.messages.SendGroup(ctx, alice.ID, "missing", "hi", domain.KindText)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
