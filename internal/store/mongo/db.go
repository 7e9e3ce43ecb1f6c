package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collUsers    = "users"
	collMessages = "messages"
	collSessions = "chat_sessions"
	collGroups   = "groups"
)

// Open connects to MongoDB and returns a handle to the named database.
func Open(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(dbName), nil
}

// EnsureIndexes creates the indexes the repositories rely on. Index creation
// is idempotent so this runs on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type spec struct {
		coll    string
		indexes []mongo.IndexModel
	}
	specs := []spec{
		{collUsers, []mongo.IndexModel{
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{collSessions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "participants.user_id", Value: 1}, {Key: "last_activity_at", Value: -1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}}},
		}},
		{collMessages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}}},
		}},
		{collGroups, []mongo.IndexModel{
			{Keys: bson.D{{Key: "invite_code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "members.user_id", Value: 1}}},
		}},
	}
	for _, s := range specs {
		if _, err := db.Collection(s.coll).Indexes().CreateMany(ctx, s.indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", s.coll, err)
		}
	}
	return nil
}
