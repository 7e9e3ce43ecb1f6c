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

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(collMessages)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListDirect(ctx context.Context, userA, userB, viewerID string, offset, limit int) ([]*domain.Message, int, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userA, "receiver_id": userB},
			bson.M{"sender_id": userB, "receiver_id": userA},
		},
		"deleted_for": bson.M{"$ne": viewerID},
	}
	return r.list(ctx, filter, offset, limit)
}

func (r *MessageRepo) ListGroup(ctx context.Context, groupID, viewerID string, offset, limit int) ([]*domain.Message, int, error) {
	filter := bson.M{
		"group_id":    groupID,
		"deleted_for": bson.M{"$ne": viewerID},
	}
	return r.list(ctx, filter, offset, limit)
}

func (r *MessageRepo) list(ctx context.Context, filter bson.M, offset, limit int) ([]*domain.Message, int, error) {
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer cur.Close(ctx)

	var res []*domain.Message
	if err := cur.All(ctx, &res); err != nil {
		return nil, 0, fmt.Errorf("decode messages: %w", err)
	}
	return res, int(total), nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, id, readerID string, at time.Time) error {
	if _, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"read_by": readerID}},
	); err != nil {
		return fmt.Errorf("add reader: %w", err)
	}
	// Raise status, never regress it; the filter refuses the update once the
	// message is already read.
	if _, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": bson.A{domain.StatusSending, domain.StatusSent, domain.StatusDelivered}}},
		bson.M{"$set": bson.M{"status": domain.StatusRead, "read_at": at}},
	); err != nil {
		return fmt.Errorf("raise status: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, id, userID string) error {
	if _, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"delivered_to": userID}},
	); err != nil {
		return fmt.Errorf("add delivery: %w", err)
	}
	if _, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": bson.A{domain.StatusSending, domain.StatusSent}}},
		bson.M{"$set": bson.M{"status": domain.StatusDelivered}},
	); err != nil {
		return fmt.Errorf("raise status: %w", err)
	}
	return nil
}

func (r *MessageRepo) AddDeletedFor(ctx context.Context, id, userID string) error {
	if _, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"deleted_for": userID}},
	); err != nil {
		return fmt.Errorf("add deletion: %w", err)
	}
	return nil
}

func (r *MessageRepo) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"content": content, "is_edited": true, "edited_at": editedAt}},
	)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *MessageRepo) CountUnreadDirect(ctx context.Context, userID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"receiver_id": userID,
		"read_by":     bson.M{"$ne": userID},
		"deleted_for": bson.M{"$ne": userID},
	})
	if err != nil {
		return 0, fmt.Errorf("count unread direct: %w", err)
	}
	return int(n), nil
}

func (r *MessageRepo) CountUnreadGroup(ctx context.Context, userID string, groupIDs []string) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"group_id":    bson.M{"$in": groupIDs},
		"sender_id":   bson.M{"$ne": userID},
		"read_by":     bson.M{"$ne": userID},
		"deleted_for": bson.M{"$ne": userID},
	})
	if err != nil {
		return 0, fmt.Errorf("count unread group: %w", err)
	}
	return int(n), nil
}

func (r *MessageRepo) CountUnreadInSession(ctx context.Context, sessionID, userID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"session_id":  sessionID,
		"sender_id":   bson.M{"$ne": userID},
		"read_by":     bson.M{"$ne": userID},
		"deleted_for": bson.M{"$ne": userID},
	})
	if err != nil {
		return 0, fmt.Errorf("count unread in session: %w", err)
	}
	return int(n), nil
}
