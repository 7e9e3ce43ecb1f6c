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

type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

var _ domain.GroupRepository = (*GroupRepo)(nil)

func (r *GroupRepo) Create(ctx context.Context, g *domain.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, description, avatar_url, creator_id, type, max_members,
			invite_code, members_can_invite, require_approval, slow_mode_seconds,
			message_count, tags, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID, g.Name, g.Description, g.AvatarURL, g.CreatorID, g.Type, g.MaxMembers,
		g.InviteCode, g.Settings.MembersCanInvite, g.Settings.RequireApproval, g.Settings.SlowModeSeconds,
		g.MessageCount, strings.Join(g.Tags, ","), g.IsActive, g.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: invite code", domain.ErrConflict)
		}
		return fmt.Errorf("insert group: %w", err)
	}
	for _, m := range g.Members {
		if err := insertMember(ctx, tx, g.ID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertMember(ctx context.Context, tx *sql.Tx, groupID string, m domain.GroupMember) error {
	isAdmin := m.Role == domain.RoleAdmin || m.Role == domain.RoleCreator
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO group_members (group_id, user_id, role, is_admin, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`, groupID, m.UserID, m.Role, isAdmin, m.JoinedAt); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *GroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *GroupRepo) GetByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	return r.getWhere(ctx, "invite_code = ?", code)
}

func (r *GroupRepo) getWhere(ctx context.Context, where string, args ...any) (*domain.Group, error) {
	g := &domain.Group{}
	var tags string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, avatar_url, creator_id, type, max_members,
			invite_code, members_can_invite, require_approval, slow_mode_seconds,
			message_count, tags, is_active, created_at
		FROM groups WHERE `+where, args...,
	).Scan(
		&g.ID, &g.Name, &g.Description, &g.AvatarURL, &g.CreatorID, &g.Type, &g.MaxMembers,
		&g.InviteCode, &g.Settings.MembersCanInvite, &g.Settings.RequireApproval, &g.Settings.SlowModeSeconds,
		&g.MessageCount, &tags, &g.IsActive, &g.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if tags != "" {
		g.Tags = strings.Split(tags, ",")
	}
	if err := r.loadMembers(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *GroupRepo) loadMembers(ctx context.Context, g *domain.Group) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, role, is_admin, joined_at, last_seen_at
		FROM group_members WHERE group_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, g.ID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	g.Members = g.Members[:0]
	g.AdminIDs = g.AdminIDs[:0]
	for rows.Next() {
		var m domain.GroupMember
		var isAdmin bool
		if err := rows.Scan(&m.UserID, &m.Role, &isAdmin, &m.JoinedAt, &m.LastSeenAt); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, m)
		if isAdmin {
			g.AdminIDs = append(g.AdminIDs, m.UserID)
		}
	}
	return rows.Err()
}

func (r *GroupRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = ? AND g.is_active = TRUE
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := make([]*domain.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			res = append(res, g)
		}
	}
	return res, nil
}

func (r *GroupRepo) AddMember(ctx context.Context, groupID string, m domain.GroupMember) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := insertMember(ctx, tx, groupID, m); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id = ? AND user_id = ?
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (r *GroupRepo) SetMemberRole(ctx context.Context, groupID, userID string, role domain.ParticipantRole, isAdmin bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE group_members SET role = ?, is_admin = ? WHERE group_id = ? AND user_id = ?
	`, role, isAdmin, groupID, userID)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: member %s in group %s", domain.ErrNotFound, userID, groupID)
	}
	return nil
}

func (r *GroupRepo) IncrementMessageCount(ctx context.Context, groupID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET message_count = message_count + 1 WHERE id = ?
	`, groupID)
	if err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}
	return nil
}

func (r *GroupRepo) SetActive(ctx context.Context, groupID string, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET is_active = ? WHERE id = ?
	`, active, groupID)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}
