package service

import (
	"context"
	"fmt"

	"ripple/internal/domain"
)

// SessionService maintains conversation aggregates and their per-participant
// unread counters and settings.
type SessionService struct {
	sessions domain.SessionRepository
	messages domain.MessageRepository
	users    domain.UserRepository

	MaxPageSize int
}

func NewSessionService(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	maxPageSize int,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		messages:    messages,
		users:       users,
		MaxPageSize: maxPageSize,
	}
}

// FindOrCreatePrivate resolves the single session for a pair of users,
// creating it if this is their first contact. Commutative in its arguments.
func (s *SessionService) FindOrCreatePrivate(ctx context.Context, userA, userB string) (*domain.ChatSession, error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: a private session needs two distinct users", domain.ErrValidation)
	}
	other, err := s.users.GetByID(ctx, userB)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if other == nil || !other.IsActive {
		return nil, fmt.Errorf("%w: user %s does not exist", domain.ErrValidation, userB)
	}
	return s.sessions.FindOrCreatePrivate(ctx, userA, userB)
}

func (s *SessionService) GetForParticipant(ctx context.Context, sessionID, userID string) (*domain.ChatSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if session.Participant(userID) == nil {
		return nil, fmt.Errorf("%w: not a participant in this session", domain.ErrForbidden)
	}
	return session, nil
}

// ListForUser returns one page of the user's sessions, most recent activity
// first.
func (s *SessionService) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]*domain.ChatSession, int, error) {
	if page < 1 {
		return nil, 0, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if pageSize < 1 || pageSize > s.MaxPageSize {
		return nil, 0, fmt.Errorf("%w: page size must be within [1, %d]", domain.ErrValidation, s.MaxPageSize)
	}
	return s.sessions.ListForUser(ctx, userID, (page-1)*pageSize, pageSize)
}

// ToggleSetting flips one boolean in the calling participant's settings.
func (s *SessionService) ToggleSetting(ctx context.Context, sessionID, userID, settingName string) (*domain.ChatSession, error) {
	session, err := s.GetForParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	p := session.Participant(userID)

	settings := p.Settings
	switch settingName {
	case "muted":
		settings.Muted = !settings.Muted
	case "blocked":
		settings.Blocked = !settings.Blocked
	case "pinned":
		settings.Pinned = !settings.Pinned
	case "archived":
		settings.Archived = !settings.Archived
	default:
		return nil, fmt.Errorf("%w: unknown setting %q", domain.ErrValidation, settingName)
	}

	if err := s.sessions.UpdateSettings(ctx, sessionID, userID, settings); err != nil {
		return nil, err
	}
	p.Settings = settings
	return session, nil
}

// MarkSessionRead zeroes the calling participant's unread counter. Only a
// participant's own read action resets their counter.
func (s *SessionService) MarkSessionRead(ctx context.Context, sessionID, userID string) error {
	if _, err := s.GetForParticipant(ctx, sessionID, userID); err != nil {
		return err
	}
	return s.sessions.ResetUnread(ctx, sessionID, userID)
}

// RecountUnread recomputes the participant's counter from the message store's
// ground truth and stores it. Corrective tool for counter drift.
func (s *SessionService) RecountUnread(ctx context.Context, sessionID, userID string) (int, error) {
	if _, err := s.GetForParticipant(ctx, sessionID, userID); err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnreadInSession(ctx, sessionID, userID)
	if err != nil {
		return 0, err
	}
	if err := s.sessions.SetUnread(ctx, sessionID, userID, n); err != nil {
		return 0, err
	}
	return n, nil
}

// SumUnreadForUser totals the cached per-session counters for a user.
func (s *SessionService) SumUnreadForUser(ctx context.Context, userID string) (int, error) {
	return s.sessions.SumUnreadForUser(ctx, userID)
}
