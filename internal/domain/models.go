package domain

import "time"

// MessageKind classifies message payloads.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindAudio  MessageKind = "audio"
	KindSystem MessageKind = "system"
)

// ValidKind reports whether k is a recognized message kind.
func ValidKind(k MessageKind) bool {
	switch k {
	case KindText, KindImage, KindFile, KindAudio, KindSystem:
		return true
	}
	return false
}

// MessageStatus is the delivery lifecycle of a message. Statuses are ordered;
// a message never moves backwards (no read -> sent).
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// StatusRank orders lifecycle statuses so stores can refuse regressions.
// Failed sits outside the progression.
func StatusRank(s MessageStatus) int {
	switch s {
	case StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

// User represents an application user. The messaging core only needs identity
// fields; account ownership lives with the auth collaborator.
type User struct {
	ID             string    `bson:"_id" json:"id"`
	Username       string    `bson:"username" json:"username"`
	DisplayName    string    `bson:"display_name" json:"display_name"`
	AvatarURL      *string   `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	HashedPassword string    `bson:"hashed_password" json:"-"`
	IsActive       bool      `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// Message is a single direct or group message. Exactly one of ReceiverID and
// GroupID is set. Soft deletion is per viewer: DeletedFor hides the message for
// listed users while leaving it visible to everyone else.
type Message struct {
	ID            string        `bson:"_id" json:"id"`
	SenderID      string        `bson:"sender_id" json:"sender_id"`
	ReceiverID    string        `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"`
	GroupID       string        `bson:"group_id,omitempty" json:"group_id,omitempty"`
	SessionID     string        `bson:"session_id" json:"session_id"`
	Content       string        `bson:"content" json:"content"`
	Kind          MessageKind   `bson:"kind" json:"kind"`
	Status        MessageStatus `bson:"status" json:"status"`
	ReplyToID     *string       `bson:"reply_to_id,omitempty" json:"reply_to_id,omitempty"`
	ForwardedFrom *string       `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`
	ReadBy        []string      `bson:"read_by,omitempty" json:"read_by,omitempty"`
	ReadAt        *time.Time    `bson:"read_at,omitempty" json:"read_at,omitempty"`
	DeliveredTo   []string      `bson:"delivered_to,omitempty" json:"delivered_to,omitempty"`
	DeletedFor    []string      `bson:"deleted_for,omitempty" json:"-"`
	IsEdited      bool          `bson:"is_edited" json:"is_edited"`
	EditedAt      *time.Time    `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
}

// IsDirect reports whether the message belongs to a private conversation.
func (m *Message) IsDirect() bool { return m.GroupID == "" }

// ReadByUser reports whether userID has read the message.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// SessionKind distinguishes private pair conversations from group ones.
type SessionKind string

const (
	SessionPrivate SessionKind = "private"
	SessionGroup   SessionKind = "group"
)

// ParticipantRole within a conversation or group.
type ParticipantRole string

const (
	RoleMember  ParticipantRole = "member"
	RoleAdmin   ParticipantRole = "admin"
	RoleCreator ParticipantRole = "creator"
)

// ValidRole reports whether r is a recognized participant role.
func ValidRole(r ParticipantRole) bool {
	return r == RoleMember || r == RoleAdmin || r == RoleCreator
}

// ParticipantSettings are per-user knobs on a conversation.
type ParticipantSettings struct {
	Muted    bool `bson:"muted" json:"muted"`
	Blocked  bool `bson:"blocked" json:"blocked"`
	Pinned   bool `bson:"pinned" json:"pinned"`
	Archived bool `bson:"archived" json:"archived"`
}

// SessionParticipant is one user's membership in a chat session.
type SessionParticipant struct {
	UserID     string              `bson:"user_id" json:"user_id"`
	Role       ParticipantRole     `bson:"role" json:"role"`
	JoinedAt   time.Time           `bson:"joined_at" json:"joined_at"`
	LastSeenAt *time.Time          `bson:"last_seen_at,omitempty" json:"last_seen_at,omitempty"`
	Unread     int                 `bson:"unread" json:"unread"`
	Settings   ParticipantSettings `bson:"settings" json:"settings"`
}

// ChatSession is the durable per-conversation aggregate. For private sessions
// ConversationKey is derived from the sorted participant pair, which makes
// find-or-create idempotent regardless of who messages first.
type ChatSession struct {
	ID              string               `bson:"_id" json:"id"`
	Kind            SessionKind          `bson:"kind" json:"kind"`
	ConversationKey string               `bson:"conversation_key" json:"conversation_key"`
	GroupID         string               `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Participants    []SessionParticipant `bson:"participants" json:"participants"`
	LastMessageID   *string              `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	LastActivityAt  time.Time            `bson:"last_activity_at" json:"last_activity_at"`
	CreatedAt       time.Time            `bson:"created_at" json:"created_at"`
}

// Participant returns the participant entry for userID, or nil.
func (s *ChatSession) Participant(userID string) *SessionParticipant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// GroupType controls discoverability of a group.
type GroupType string

const (
	GroupPublic  GroupType = "public"
	GroupPrivate GroupType = "private"
	GroupSecret  GroupType = "secret"
)

// GroupMember is one user's membership in a group.
type GroupMember struct {
	UserID     string          `bson:"user_id" json:"user_id"`
	Role       ParticipantRole `bson:"role" json:"role"`
	JoinedAt   time.Time       `bson:"joined_at" json:"joined_at"`
	LastSeenAt *time.Time      `bson:"last_seen_at,omitempty" json:"last_seen_at,omitempty"`
}

// GroupSettings are group-level policy knobs.
type GroupSettings struct {
	MembersCanInvite bool `bson:"members_can_invite" json:"members_can_invite"`
	RequireApproval  bool `bson:"require_approval" json:"require_approval"`
	SlowModeSeconds  int  `bson:"slow_mode_seconds" json:"slow_mode_seconds"`
}

// Group is a many-to-many conversation container. The creator is always a
// member and always an admin; groups are deactivated, never removed.
type Group struct {
	ID           string        `bson:"_id" json:"id"`
	Name         string        `bson:"name" json:"name"`
	Description  string        `bson:"description" json:"description"`
	AvatarURL    *string       `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	CreatorID    string        `bson:"creator_id" json:"creator_id"`
	AdminIDs     []string      `bson:"admin_ids" json:"admin_ids"`
	Members      []GroupMember `bson:"members" json:"members"`
	Type         GroupType     `bson:"type" json:"type"`
	MaxMembers   int           `bson:"max_members" json:"max_members"`
	InviteCode   string        `bson:"invite_code" json:"invite_code"`
	Settings     GroupSettings `bson:"settings" json:"settings"`
	MessageCount int64         `bson:"message_count" json:"message_count"`
	Tags         []string      `bson:"tags,omitempty" json:"tags,omitempty"`
	IsActive     bool          `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
}

// Member returns the membership entry for userID, or nil.
func (g *Group) Member(userID string) *GroupMember {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// IsAdmin reports whether userID is in the admin set.
func (g *Group) IsAdmin(userID string) bool {
	for _, id := range g.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
