package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ripple/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, sender_id, receiver_id, group_id, session_id, content, kind, status,
	reply_to_id, forwarded_from, read_at, is_edited, edited_at, created_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.SenderID, m.ReceiverID, m.GroupID, m.SessionID, m.Content, m.Kind, m.Status,
		m.ReplyToID, m.ForwardedFrom, m.ReadAt, m.IsEdited, m.EditedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m, err := r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id))
	if err != nil || m == nil {
		return m, err
	}
	if err := r.attachSets(ctx, []*domain.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) ListDirect(ctx context.Context, userA, userB, viewerID string, offset, limit int) ([]*domain.Message, int, error) {
	where := `((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = messages.id AND d.user_id = ?)`
	args := []any{userA, userB, userB, userA, viewerID}
	return r.list(ctx, where, args, offset, limit)
}

func (r *MessageRepo) ListGroup(ctx context.Context, groupID, viewerID string, offset, limit int) ([]*domain.Message, int, error) {
	where := `group_id = ?
		AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = messages.id AND d.user_id = ?)`
	args := []any{groupID, viewerID}
	return r.list(ctx, where, args, offset, limit)
}

func (r *MessageRepo) list(ctx context.Context, where string, args []any, offset, limit int) ([]*domain.Message, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE `+where+`
		ORDER BY created_at ASC, rowid ASC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.SessionID, &m.Content, &m.Kind, &m.Status,
			&m.ReplyToID, &m.ForwardedFrom, &m.ReadAt, &m.IsEdited, &m.EditedAt, &m.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachSets(ctx, res); err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

func (r *MessageRepo) scanOne(row *sql.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.SessionID, &m.Content, &m.Kind, &m.Status,
		&m.ReplyToID, &m.ForwardedFrom, &m.ReadAt, &m.IsEdited, &m.EditedAt, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// attachSets fills the read-by, delivered-to and deleted-for sets from their
// join tables for a page of messages.
func (r *MessageRepo) attachSets(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Message, len(msgs))
	placeholders := make([]string, 0, len(msgs))
	args := make([]any, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		placeholders = append(placeholders, "?")
		args = append(args, m.ID)
	}
	in := strings.Join(placeholders, ",")

	fill := func(table string, apply func(m *domain.Message, userID string)) error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT message_id, user_id FROM `+table+` WHERE message_id IN (`+in+`)`, args...)
		if err != nil {
			return fmt.Errorf("load %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var msgID, userID string
			if err := rows.Scan(&msgID, &userID); err != nil {
				return fmt.Errorf("scan %s: %w", table, err)
			}
			if m, ok := byID[msgID]; ok {
				apply(m, userID)
			}
		}
		return rows.Err()
	}

	if err := fill("message_reads", func(m *domain.Message, id string) { m.ReadBy = append(m.ReadBy, id) }); err != nil {
		return err
	}
	if err := fill("message_deliveries", func(m *domain.Message, id string) { m.DeliveredTo = append(m.DeliveredTo, id) }); err != nil {
		return err
	}
	return fill("message_deletions", func(m *domain.Message, id string) { m.DeletedFor = append(m.DeletedFor, id) })
}

func (r *MessageRepo) MarkRead(ctx context.Context, id, readerID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)
	`, id, readerID, at); err != nil {
		return fmt.Errorf("insert read: %w", err)
	}
	// Raise status, never regress it.
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET status = ?, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND status IN (?, ?, ?)
	`, domain.StatusRead, at, id, domain.StatusSending, domain.StatusSent, domain.StatusDelivered); err != nil {
		return fmt.Errorf("raise status: %w", err)
	}
	return tx.Commit()
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, id, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_deliveries (message_id, user_id, delivered_at) VALUES (?, ?, ?)
	`, id, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET status = ? WHERE id = ? AND status IN (?, ?)
	`, domain.StatusDelivered, id, domain.StatusSending, domain.StatusSent); err != nil {
		return fmt.Errorf("raise status: %w", err)
	}
	return tx.Commit()
}

func (r *MessageRepo) AddDeletedFor(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_deletions (message_id, user_id, deleted_at) VALUES (?, ?, ?)
	`, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert deletion: %w", err)
	}
	return nil
}

func (r *MessageRepo) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, is_edited = TRUE, edited_at = ? WHERE id = ?
	`, content, editedAt, id)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *MessageRepo) CountUnreadDirect(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.receiver_id = ?
		AND NOT EXISTS (SELECT 1 FROM message_reads rd WHERE rd.message_id = m.id AND rd.user_id = ?)
		AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)
	`, userID, userID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread direct: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) CountUnreadGroup(ctx context.Context, userID string, groupIDs []string) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(groupIDs)), ",")
	args := make([]any, 0, len(groupIDs)+3)
	for _, id := range groupIDs {
		args = append(args, id)
	}
	args = append(args, userID, userID, userID)

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.group_id IN (`+placeholders+`)
		AND m.sender_id <> ?
		AND NOT EXISTS (SELECT 1 FROM message_reads rd WHERE rd.message_id = m.id AND rd.user_id = ?)
		AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)
	`, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread group: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) CountUnreadInSession(ctx context.Context, sessionID, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.session_id = ?
		AND m.sender_id <> ?
		AND NOT EXISTS (SELECT 1 FROM message_reads rd WHERE rd.message_id = m.id AND rd.user_id = ?)
		AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?)
	`, sessionID, userID, userID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread in session: %w", err)
	}
	return count, nil
}
