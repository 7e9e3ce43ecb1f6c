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

type GroupRepo struct {
	coll *mongo.Collection
}

func NewGroupRepo(db *mongo.Database) *GroupRepo {
	return &GroupRepo{coll: db.Collection(collGroups)}
}

var _ domain.GroupRepository = (*GroupRepo)(nil)

func (r *GroupRepo) Create(ctx context.Context, g *domain.Group) error {
	if g.ID == "" {
		g.ID = primitive.NewObjectID().Hex()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, g); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: invite code", domain.ErrConflict)
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (r *GroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	return r.getBy(ctx, bson.M{"_id": id})
}

func (r *GroupRepo) GetByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	return r.getBy(ctx, bson.M{"invite_code": code})
}

func (r *GroupRepo) getBy(ctx context.Context, filter bson.M) (*domain.Group, error) {
	g := &domain.Group{}
	err := r.coll.FindOne(ctx, filter).Decode(g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{
		"members.user_id": userID,
		"is_active":       true,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer cur.Close(ctx)

	var res []*domain.Group
	if err := cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return res, nil
}

func (r *GroupRepo) AddMember(ctx context.Context, groupID string, m domain.GroupMember) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	update := bson.M{"$push": bson.M{"members": m}}
	if m.Role == domain.RoleAdmin || m.Role == domain.RoleCreator {
		update["$addToSet"] = bson.M{"admin_ids": m.UserID}
	}
	// Filter excludes groups that already contain the user, making the add a
	// no-op on repeat.
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID, "members.user_id": bson.M{"$ne": m.UserID}},
		update,
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$pull": bson.M{
			"members":   bson.M{"user_id": userID},
			"admin_ids": userID,
		}},
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (r *GroupRepo) SetMemberRole(ctx context.Context, groupID, userID string, role domain.ParticipantRole, isAdmin bool) error {
	update := bson.M{"$set": bson.M{"members.$.role": role}}
	if isAdmin {
		update["$addToSet"] = bson.M{"admin_ids": userID}
	} else {
		update["$pull"] = bson.M{"admin_ids": userID}
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID, "members.user_id": userID},
		update,
	)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: member %s in group %s", domain.ErrNotFound, userID, groupID)
	}
	return nil
}

func (r *GroupRepo) IncrementMessageCount(ctx context.Context, groupID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$inc": bson.M{"message_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}
	return nil
}

func (r *GroupRepo) SetActive(ctx context.Context, groupID string, active bool) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$set": bson.M{"is_active": active}},
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}
