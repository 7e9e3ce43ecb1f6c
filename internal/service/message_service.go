package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"ripple/internal/domain"
)

// MessageService owns message creation, history, read/delivery state and
// per-viewer soft deletion.
type MessageService struct {
	messages domain.MessageRepository
	sessions domain.SessionRepository
	groups   domain.GroupRepository
	users    domain.UserRepository

	MaxMessageChars int
	MaxPageSize     int
}

func NewMessageService(
	messages domain.MessageRepository,
	sessions domain.SessionRepository,
	groups domain.GroupRepository,
	users domain.UserRepository,
	maxMessageChars, maxPageSize int,
) *MessageService {
	return &MessageService{
		messages:        messages,
		sessions:        sessions,
		groups:          groups,
		users:           users,
		MaxMessageChars: maxMessageChars,
		MaxPageSize:     maxPageSize,
	}
}

func (s *MessageService) validateContent(content string, kind domain.MessageKind) error {
	if content == "" {
		return fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}
	if n := len([]rune(content)); n > s.MaxMessageChars {
		return fmt.Errorf("%w: message content exceeds %d characters", domain.ErrValidation, s.MaxMessageChars)
	}
	if !domain.ValidKind(kind) {
		return fmt.Errorf("%w: unknown message kind %q", domain.ErrValidation, kind)
	}
	return nil
}

// SendDirect validates and persists a private message and updates the pair's
// chat session. The returned session reflects the state before the unread
// increment; callers needing fresh counters reload it.
func (s *MessageService) SendDirect(
	ctx context.Context,
	senderID, receiverID, content string,
	kind domain.MessageKind,
) (*domain.Message, *domain.ChatSession, error) {
	if err := s.validateContent(content, kind); err != nil {
		return nil, nil, err
	}
	if senderID == receiverID {
		return nil, nil, fmt.Errorf("%w: cannot message yourself", domain.ErrValidation)
	}
	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		return nil, nil, fmt.Errorf("get receiver: %w", err)
	}
	if receiver == nil || !receiver.IsActive {
		return nil, nil, fmt.Errorf("%w: receiver %s does not exist", domain.ErrValidation, receiverID)
	}

	session, err := s.sessions.FindOrCreatePrivate(ctx, senderID, receiverID)
	if err != nil {
		return nil, nil, fmt.Errorf("find or create session: %w", err)
	}

	msg := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		SessionID:  session.ID,
		Content:    content,
		Kind:       kind,
		Status:     domain.StatusSent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("create message: %w", err)
	}

	// The counter update is best-effort after the insert; a failure here
	// under-counts until the next recount rather than failing the send.
	if err := s.sessions.RecordMessage(ctx, session.ID, msg.ID, senderID, msg.CreatedAt); err != nil {
		log.WithError(err).WithField("session_id", session.ID).Warn("record message on session failed")
	}
	return msg, session, nil
}

// SendGroup validates and persists a group message. The sender must be a
// current member of an active group.
func (s *MessageService) SendGroup(
	ctx context.Context,
	senderID, groupID, content string,
	kind domain.MessageKind,
) (*domain.Message, *domain.ChatSession, error) {
	if err := s.validateContent(content, kind); err != nil {
		return nil, nil, err
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("get group: %w", err)
	}
	if group == nil || !group.IsActive {
		return nil, nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	if group.Member(senderID) == nil {
		return nil, nil, fmt.Errorf("%w: not a member of this group", domain.ErrValidation)
	}

	session, err := s.sessions.GetByGroupID(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("get group session: %w", err)
	}
	if session == nil {
		return nil, nil, fmt.Errorf("%w: session for group %s", domain.ErrNotFound, groupID)
	}

	msg := &domain.Message{
		SenderID:  senderID,
		GroupID:   groupID,
		SessionID: session.ID,
		Content:   content,
		Kind:      kind,
		Status:    domain.StatusSent,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("create message: %w", err)
	}

	if err := s.sessions.RecordMessage(ctx, session.ID, msg.ID, senderID, msg.CreatedAt); err != nil {
		log.WithError(err).WithField("session_id", session.ID).Warn("record message on session failed")
	}
	if err := s.groups.IncrementMessageCount(ctx, groupID); err != nil {
		log.WithError(err).WithField("group_id", groupID).Warn("increment group message count failed")
	}
	return msg, session, nil
}

func (s *MessageService) pageOffset(page, pageSize int) (int, error) {
	if page < 1 {
		return 0, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if pageSize < 1 || pageSize > s.MaxPageSize {
		return 0, fmt.Errorf("%w: page size must be within [1, %d]", domain.ErrValidation, s.MaxPageSize)
	}
	return (page - 1) * pageSize, nil
}

// ListDirectHistory returns one page of the private history between viewerID
// and otherID, oldest first, excluding messages the viewer soft-deleted.
func (s *MessageService) ListDirectHistory(
	ctx context.Context,
	viewerID, otherID string,
	page, pageSize int,
) ([]*domain.Message, int, error) {
	offset, err := s.pageOffset(page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return s.messages.ListDirect(ctx, viewerID, otherID, viewerID, offset, pageSize)
}

// ListGroupHistory returns one page of a group's history. The viewer must be
// a member.
func (s *MessageService) ListGroupHistory(
	ctx context.Context,
	viewerID, groupID string,
	page, pageSize int,
) ([]*domain.Message, int, error) {
	offset, err := s.pageOffset(page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, 0, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, 0, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	if group.Member(viewerID) == nil {
		return nil, 0, fmt.Errorf("%w: not a member of this group", domain.ErrForbidden)
	}
	return s.messages.ListGroup(ctx, groupID, viewerID, offset, pageSize)
}

// MarkRead records that readerID has read the message. Idempotent: the
// returned bool reports whether anything changed, so read receipts fire only
// on the first call. Status never regresses.
func (s *MessageService) MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, bool, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, false, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}

	if msg.IsDirect() {
		if msg.ReceiverID != readerID {
			return nil, false, fmt.Errorf("%w: not the receiver of this message", domain.ErrForbidden)
		}
	} else {
		group, err := s.groups.GetByID(ctx, msg.GroupID)
		if err != nil {
			return nil, false, fmt.Errorf("get group: %w", err)
		}
		if group == nil || group.Member(readerID) == nil {
			return nil, false, fmt.Errorf("%w: not a member of this group", domain.ErrForbidden)
		}
	}

	if msg.ReadByUser(readerID) {
		return msg, false, nil
	}

	now := time.Now().UTC()
	if err := s.messages.MarkRead(ctx, messageID, readerID, now); err != nil {
		return nil, false, fmt.Errorf("mark read: %w", err)
	}
	msg.ReadBy = append(msg.ReadBy, readerID)
	if domain.StatusRank(msg.Status) < domain.StatusRank(domain.StatusRead) {
		msg.Status = domain.StatusRead
	}
	if msg.ReadAt == nil {
		msg.ReadAt = &now
	}

	// Reconcile the reader's cached unread counter against ground truth.
	if n, err := s.messages.CountUnreadInSession(ctx, msg.SessionID, readerID); err != nil {
		log.WithError(err).WithField("session_id", msg.SessionID).Warn("recount unread failed")
	} else if err := s.sessions.SetUnread(ctx, msg.SessionID, readerID, n); err != nil {
		log.WithError(err).WithField("session_id", msg.SessionID).Warn("set unread failed")
	}
	return msg, true, nil
}

// MarkDelivered records a successful push to userID. Best-effort; failures
// are logged, not surfaced.
func (s *MessageService) MarkDelivered(ctx context.Context, messageID, userID string) {
	if err := s.messages.MarkDelivered(ctx, messageID, userID); err != nil {
		log.WithError(err).WithField("message_id", messageID).Warn("mark delivered failed")
	}
}

// SoftDelete hides the message for the requesting sender only; the other
// participants keep their view.
func (s *MessageService) SoftDelete(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	if msg.SenderID != requesterID {
		return fmt.Errorf("%w: only the sender can delete a message", domain.ErrForbidden)
	}
	return s.messages.AddDeletedFor(ctx, messageID, requesterID)
}

// EditMessage replaces the content of the sender's own message. Edits are
// refused once the message carries any deletion mark.
func (s *MessageService) EditMessage(ctx context.Context, messageID, requesterID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}
	if n := len([]rune(content)); n > s.MaxMessageChars {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrValidation, s.MaxMessageChars)
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("%w: only the sender can edit a message", domain.ErrForbidden)
	}
	if len(msg.DeletedFor) > 0 {
		return nil, fmt.Errorf("%w: message is deleted", domain.ErrValidation)
	}

	now := time.Now().UTC()
	if err := s.messages.SetContent(ctx, messageID, content, now); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	return msg, nil
}

// CountUnread aggregates the ground-truth unread count for userID across all
// direct conversations and group memberships.
func (s *MessageService) CountUnread(ctx context.Context, userID string) (int, error) {
	direct, err := s.messages.CountUnreadDirect(ctx, userID)
	if err != nil {
		return 0, err
	}
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}
	groupIDs := make([]string, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}
	grouped, err := s.messages.CountUnreadGroup(ctx, userID, groupIDs)
	if err != nil {
		return 0, err
	}
	return direct + grouped, nil
}
