package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ripple/internal/domain"
)

type SessionRepo struct {
	coll *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) *SessionRepo {
	return &SessionRepo{coll: db.Collection(collSessions)}
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func (r *SessionRepo) FindOrCreatePrivate(ctx context.Context, userA, userB string) (*domain.ChatSession, error) {
	key := domain.PrivateConversationKey(userA, userB)
	now := time.Now().UTC()

	newSession := domain.ChatSession{
		ID:              primitive.NewObjectID().Hex(),
		Kind:            domain.SessionPrivate,
		ConversationKey: key,
		Participants: []domain.SessionParticipant{
			{UserID: userA, Role: domain.RoleMember, JoinedAt: now},
			{UserID: userB, Role: domain.RoleMember, JoinedAt: now},
		},
		LastActivityAt: now,
		CreatedAt:      now,
	}

	// Atomic upsert keyed on the conversation key: concurrent first-contact
	// sends from both directions resolve to the same document. Two racing
	// upserts on a missing key can still make the loser fail against the
	// unique index, so a duplicate-key error means the winner's document now
	// exists and one reselect converges on it.
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	s := &domain.ChatSession{}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"conversation_key": key},
		bson.M{"$setOnInsert": newSession},
		opts,
	).Decode(s)
	if mongo.IsDuplicateKeyError(err) {
		err = r.coll.FindOne(ctx, bson.M{"conversation_key": key}).Decode(s)
	}
	if err != nil {
		return nil, fmt.Errorf("find or create session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) CreateGroupSession(ctx context.Context, s *domain.ChatSession) error {
	if s.ID == "" {
		s.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = now
	}
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: session for group %s", domain.ErrConflict, s.GroupID)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	return r.getBy(ctx, bson.M{"_id": id})
}

func (r *SessionRepo) GetByGroupID(ctx context.Context, groupID string) (*domain.ChatSession, error) {
	return r.getBy(ctx, bson.M{"group_id": groupID})
}

func (r *SessionRepo) getBy(ctx context.Context, filter bson.M) (*domain.ChatSession, error) {
	s := &domain.ChatSession{}
	err := r.coll.FindOne(ctx, filter).Decode(s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) ListForUser(ctx context.Context, userID string, offset, limit int) ([]*domain.ChatSession, int, error) {
	filter := bson.M{"participants.user_id": userID}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer cur.Close(ctx)

	var res []*domain.ChatSession
	if err := cur.All(ctx, &res); err != nil {
		return nil, 0, fmt.Errorf("decode sessions: %w", err)
	}
	return res, int(total), nil
}

func (r *SessionRepo) RecordMessage(ctx context.Context, sessionID, messageID, senderID string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{
			"$set": bson.M{"last_message_id": messageID, "last_activity_at": at},
			"$inc": bson.M{"participants.$[p].unread": 1},
		},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: bson.A{bson.M{"p.user_id": bson.M{"$ne": senderID}}},
		}),
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

func (r *SessionRepo) ResetUnread(ctx context.Context, sessionID, userID string) error {
	return r.setUnread(ctx, sessionID, userID, 0, true)
}

func (r *SessionRepo) SetUnread(ctx context.Context, sessionID, userID string, n int) error {
	return r.setUnread(ctx, sessionID, userID, n, false)
}

func (r *SessionRepo) setUnread(ctx context.Context, sessionID, userID string, n int, touchSeen bool) error {
	set := bson.M{"participants.$[p].unread": n}
	if touchSeen {
		set["participants.$[p].last_seen_at"] = time.Now().UTC()
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": set},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: bson.A{bson.M{"p.user_id": userID}},
		}),
	)
	if err != nil {
		return fmt.Errorf("set unread: %w", err)
	}
	return nil
}

func (r *SessionRepo) SumUnreadForUser(ctx context.Context, userID string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"participants.user_id": userID}}},
		{{Key: "$unwind", Value: "$participants"}},
		{{Key: "$match", Value: bson.M{"participants.user_id": userID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$participants.unread"}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	defer cur.Close(ctx)

	var out []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("decode sum: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

func (r *SessionRepo) UpdateSettings(ctx context.Context, sessionID, userID string, settings domain.ParticipantSettings) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID, "participants.user_id": userID},
		bson.M{"$set": bson.M{"participants.$.settings": settings}},
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: participant %s in session %s", domain.ErrNotFound, userID, sessionID)
	}
	return nil
}

func (r *SessionRepo) AddParticipant(ctx context.Context, sessionID string, p domain.SessionParticipant) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	// No-op if the user is already a participant.
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID, "participants.user_id": bson.M{"$ne": p.UserID}},
		bson.M{"$push": bson.M{"participants": p}},
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (r *SessionRepo) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$pull": bson.M{"participants": bson.M{"user_id": userID}}},
	)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}
