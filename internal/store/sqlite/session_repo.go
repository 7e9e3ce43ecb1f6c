package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ripple/internal/domain"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func (r *SessionRepo) FindOrCreatePrivate(ctx context.Context, userA, userB string) (*domain.ChatSession, error) {
	key := domain.PrivateConversationKey(userA, userB)
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The UNIQUE constraint on conversation_key makes concurrent
	// first-contact creates collapse into one row.
	id := uuid.NewString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, kind, conversation_key, group_id, last_activity_at, created_at)
		VALUES (?, ?, ?, '', ?, ?)
		ON CONFLICT(conversation_key) DO NOTHING
	`, id, domain.SessionPrivate, key, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		for _, uid := range []string{userA, userB} {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO session_participants (session_id, user_id, role, joined_at)
				VALUES (?, ?, ?, ?)
			`, id, uid, domain.RoleMember, now); err != nil {
				return nil, fmt.Errorf("insert participant: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return r.getWhere(ctx, "conversation_key = ?", key)
}

func (r *SessionRepo) CreateGroupSession(ctx context.Context, s *domain.ChatSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, kind, conversation_key, group_id, last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, domain.SessionGroup, s.ConversationKey, s.GroupID, s.LastActivityAt, s.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for _, p := range s.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_participants (session_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?)
		`, s.ID, p.UserID, p.Role, p.JoinedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *SessionRepo) GetByGroupID(ctx context.Context, groupID string) (*domain.ChatSession, error) {
	return r.getWhere(ctx, "group_id = ?", groupID)
}

func (r *SessionRepo) getWhere(ctx context.Context, where string, args ...any) (*domain.ChatSession, error) {
	s := &domain.ChatSession{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, conversation_key, group_id, last_message_id, last_activity_at, created_at
		FROM chat_sessions WHERE `+where, args...,
	).Scan(&s.ID, &s.Kind, &s.ConversationKey, &s.GroupID, &s.LastMessageID, &s.LastActivityAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := r.loadParticipants(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) loadParticipants(ctx context.Context, s *domain.ChatSession) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, role, joined_at, last_seen_at, unread, muted, blocked, pinned, archived
		FROM session_participants WHERE session_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, s.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	s.Participants = s.Participants[:0]
	for rows.Next() {
		var p domain.SessionParticipant
		if err := rows.Scan(&p.UserID, &p.Role, &p.JoinedAt, &p.LastSeenAt, &p.Unread,
			&p.Settings.Muted, &p.Settings.Blocked, &p.Settings.Pinned, &p.Settings.Archived); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		s.Participants = append(s.Participants, p)
	}
	return rows.Err()
}

func (r *SessionRepo) ListForUser(ctx context.Context, userID string, offset, limit int) ([]*domain.ChatSession, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_sessions s
		JOIN session_participants sp ON sp.session_id = s.id
		WHERE sp.user_id = ?
	`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.kind, s.conversation_key, s.group_id, s.last_message_id, s.last_activity_at, s.created_at
		FROM chat_sessions s
		JOIN session_participants sp ON sp.session_id = s.id
		WHERE sp.user_id = ?
		ORDER BY s.last_activity_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var res []*domain.ChatSession
	for rows.Next() {
		s := &domain.ChatSession{}
		if err := rows.Scan(&s.ID, &s.Kind, &s.ConversationKey, &s.GroupID, &s.LastMessageID, &s.LastActivityAt, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, s := range res {
		if err := r.loadParticipants(ctx, s); err != nil {
			return nil, 0, err
		}
	}
	return res, total, nil
}

func (r *SessionRepo) RecordMessage(ctx context.Context, sessionID, messageID, senderID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE chat_sessions SET last_message_id = ?, last_activity_at = ? WHERE id = ?
	`, messageID, at, sessionID); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE session_participants SET unread = unread + 1
		WHERE session_id = ? AND user_id <> ?
	`, sessionID, senderID); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return tx.Commit()
}

func (r *SessionRepo) ResetUnread(ctx context.Context, sessionID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE session_participants SET unread = 0, last_seen_at = ?
		WHERE session_id = ? AND user_id = ?
	`, time.Now().UTC(), sessionID, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

func (r *SessionRepo) SetUnread(ctx context.Context, sessionID, userID string, n int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE session_participants SET unread = ? WHERE session_id = ? AND user_id = ?
	`, n, sessionID, userID)
	if err != nil {
		return fmt.Errorf("set unread: %w", err)
	}
	return nil
}

func (r *SessionRepo) SumUnreadForUser(ctx context.Context, userID string) (int, error) {
	var sum int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(unread), 0) FROM session_participants WHERE user_id = ?
	`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	return sum, nil
}

func (r *SessionRepo) UpdateSettings(ctx context.Context, sessionID, userID string, settings domain.ParticipantSettings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_participants SET muted = ?, blocked = ?, pinned = ?, archived = ?
		WHERE session_id = ? AND user_id = ?
	`, settings.Muted, settings.Blocked, settings.Pinned, settings.Archived, sessionID, userID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: participant %s in session %s", domain.ErrNotFound, userID, sessionID)
	}
	return nil
}

func (r *SessionRepo) AddParticipant(ctx context.Context, sessionID string, p domain.SessionParticipant) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO session_participants (session_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, p.UserID, p.Role, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (r *SessionRepo) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM session_participants WHERE session_id = ? AND user_id = ?
	`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}
