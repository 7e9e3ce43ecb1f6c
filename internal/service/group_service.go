package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"ripple/internal/domain"
	"ripple/internal/security"
)

const inviteCodeRetries = 5

// GroupService owns group membership and role lifecycle, independent of
// message content.
type GroupService struct {
	groups   domain.GroupRepository
	sessions domain.SessionRepository
	users    domain.UserRepository

	DefaultMaxMembers int
	InviteCodeLength  int
}

func NewGroupService(
	groups domain.GroupRepository,
	sessions domain.SessionRepository,
	users domain.UserRepository,
	defaultMaxMembers, inviteCodeLength int,
) *GroupService {
	return &GroupService{
		groups:            groups,
		sessions:          sessions,
		users:             users,
		DefaultMaxMembers: defaultMaxMembers,
		InviteCodeLength:  inviteCodeLength,
	}
}

type GroupCreateInput struct {
	Name        string
	Description string
	Type        domain.GroupType
	MaxMembers  int
	Settings    *domain.GroupSettings
	Tags        []string
}

// CreateGroup creates a group with the creator as its first member and admin,
// plus the group's chat session. Invite codes are regenerated on collision.
func (s *GroupService) CreateGroup(ctx context.Context, creatorID string, in GroupCreateInput) (*domain.Group, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: group name is required", domain.ErrValidation)
	}
	if in.Type == "" {
		in.Type = domain.GroupPrivate
	}
	if in.Type != domain.GroupPublic && in.Type != domain.GroupPrivate && in.Type != domain.GroupSecret {
		return nil, fmt.Errorf("%w: unknown group type %q", domain.ErrValidation, in.Type)
	}
	if in.MaxMembers <= 0 {
		in.MaxMembers = s.DefaultMaxMembers
	}

	now := time.Now().UTC()
	g := &domain.Group{
		Name:        in.Name,
		Description: in.Description,
		CreatorID:   creatorID,
		AdminIDs:    []string{creatorID},
		Members: []domain.GroupMember{
			{UserID: creatorID, Role: domain.RoleCreator, JoinedAt: now},
		},
		Type:       in.Type,
		MaxMembers: in.MaxMembers,
		Settings:   domain.GroupSettings{MembersCanInvite: true},
		Tags:       in.Tags,
		IsActive:   true,
		CreatedAt:  now,
	}
	if in.Settings != nil {
		g.Settings = *in.Settings
	}

	var err error
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		g.InviteCode, err = security.RandomCode(s.InviteCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}
		err = s.groups.Create(ctx, g)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("exhausted invite code retries: %w", err)
	}

	session := &domain.ChatSession{
		Kind:            domain.SessionGroup,
		ConversationKey: g.ID,
		GroupID:         g.ID,
		Participants: []domain.SessionParticipant{
			{UserID: creatorID, Role: domain.RoleCreator, JoinedAt: now},
		},
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.sessions.CreateGroupSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create group session: %w", err)
	}
	return g, nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil || !g.IsActive {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	return g, nil
}

func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	return s.groups.ListForUser(ctx, userID)
}

// AddMember adds userID to the group. No-op when already a member; refuses
// additions past the member cap.
func (s *GroupService) AddMember(ctx context.Context, groupID, actorID, userID string, role domain.ParticipantRole) (*domain.Group, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = domain.RoleMember
	}
	if role == domain.RoleCreator {
		return nil, fmt.Errorf("%w: cannot grant the creator role", domain.ErrValidation)
	}
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}
	actor := g.Member(actorID)
	if actor == nil {
		return nil, fmt.Errorf("%w: not a member of this group", domain.ErrForbidden)
	}
	if !g.IsAdmin(actorID) && !g.Settings.MembersCanInvite {
		return nil, fmt.Errorf("%w: only admins can add members", domain.ErrForbidden)
	}
	if role == domain.RoleAdmin && g.CreatorID != actorID {
		return nil, fmt.Errorf("%w: only the creator can appoint admins", domain.ErrForbidden)
	}

	if g.Member(userID) != nil {
		return g, nil
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("%w: user %s does not exist", domain.ErrValidation, userID)
	}
	if len(g.Members)+1 > g.MaxMembers {
		return nil, fmt.Errorf("%w: group is limited to %d members", domain.ErrCapacity, g.MaxMembers)
	}

	if err := s.addMember(ctx, g, userID, role); err != nil {
		return nil, err
	}
	return s.groups.GetByID(ctx, groupID)
}

func (s *GroupService) addMember(ctx context.Context, g *domain.Group, userID string, role domain.ParticipantRole) error {
	now := time.Now().UTC()
	if err := s.groups.AddMember(ctx, g.ID, domain.GroupMember{
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
	}); err != nil {
		return err
	}
	session, err := s.sessions.GetByGroupID(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("get group session: %w", err)
	}
	if session == nil {
		log.WithField("group_id", g.ID).Warn("group has no chat session")
		return nil
	}
	return s.sessions.AddParticipant(ctx, session.ID, domain.SessionParticipant{
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
	})
}

// JoinByInviteCode adds the user to the group the code points at.
func (s *GroupService) JoinByInviteCode(ctx context.Context, code, userID string) (*domain.Group, error) {
	g, err := s.groups.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if g == nil || !g.IsActive {
		return nil, fmt.Errorf("%w: invite code", domain.ErrNotFound)
	}
	if g.Member(userID) != nil {
		return g, nil
	}
	if len(g.Members)+1 > g.MaxMembers {
		return nil, fmt.Errorf("%w: group is limited to %d members", domain.ErrCapacity, g.MaxMembers)
	}
	if err := s.addMember(ctx, g, userID, domain.RoleMember); err != nil {
		return nil, err
	}
	return s.groups.GetByID(ctx, g.ID)
}

// RemoveMember removes userID from the group. The creator can never be
// removed; removing another admin takes the creator.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorID, userID string) (*domain.Group, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if userID == g.CreatorID {
		return nil, fmt.Errorf("%w: the creator cannot be removed", domain.ErrForbidden)
	}
	if g.Member(userID) == nil {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, userID)
	}
	selfLeave := actorID == userID
	if !selfLeave && !g.IsAdmin(actorID) {
		return nil, fmt.Errorf("%w: only admins can remove members", domain.ErrForbidden)
	}
	if !selfLeave && g.IsAdmin(userID) && actorID != g.CreatorID {
		return nil, fmt.Errorf("%w: only the creator can remove admins", domain.ErrForbidden)
	}

	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	if session, err := s.sessions.GetByGroupID(ctx, groupID); err == nil && session != nil {
		if err := s.sessions.RemoveParticipant(ctx, session.ID, userID); err != nil {
			log.WithError(err).WithField("group_id", groupID).Warn("remove session participant failed")
		}
	}
	return s.groups.GetByID(ctx, groupID)
}

// UpdateMemberRole changes a member's role and keeps the admin set in step.
// Only the creator can grant or revoke admin.
func (s *GroupService) UpdateMemberRole(ctx context.Context, groupID, actorID, userID string, newRole domain.ParticipantRole) (*domain.Group, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if newRole == domain.RoleCreator {
		return nil, fmt.Errorf("%w: cannot grant the creator role", domain.ErrValidation)
	}
	if !domain.ValidRole(newRole) {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, newRole)
	}
	if userID == g.CreatorID {
		return nil, fmt.Errorf("%w: the creator's role cannot change", domain.ErrForbidden)
	}
	if actorID != g.CreatorID {
		return nil, fmt.Errorf("%w: only the creator can change roles", domain.ErrForbidden)
	}
	if g.Member(userID) == nil {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, userID)
	}

	if err := s.groups.SetMemberRole(ctx, groupID, userID, newRole, newRole == domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.groups.GetByID(ctx, groupID)
}

// Deactivate soft-deactivates the group; only the creator may do so.
func (s *GroupService) Deactivate(ctx context.Context, groupID, actorID string) error {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if actorID != g.CreatorID {
		return fmt.Errorf("%w: only the creator can deactivate a group", domain.ErrForbidden)
	}
	return s.groups.SetActive(ctx, groupID, false)
}

// IsMember / IsAdmin / IsCreator are pure authorization predicates.
func (s *GroupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil || g == nil {
		return false, err
	}
	return g.Member(userID) != nil, nil
}

func (s *GroupService) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil || g == nil {
		return false, err
	}
	return g.IsAdmin(userID), nil
}

func (s *GroupService) IsCreator(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil || g == nil {
		return false, err
	}
	return g.CreatorID == userID, nil
}
