package mongo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"ripple/internal/domain"
)

// testDB opens a throwaway database on the instance named by TEST_MONGO_URI.
// The test is skipped when no instance is available.
func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Open(ctx, uri, "ripple_test_"+primitive.NewObjectID().Hex())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = db.Client().Disconnect(ctx)
	})
	require.NoError(t, EnsureIndexes(ctx, db))
	return db
}

func TestFindOrCreatePrivateConcurrent(t *testing.T) {
	db := testDB(t)
	repo := NewSessionRepo(db)
	ctx := context.Background()

	// Both directions of a first contact race on the same missing key. The
	// loser of the upsert race hits the unique conversation_key index and must
	// still come back with the winner's session. Repeated because the
	// interleaving is timing dependent.
	for i := 0; i < 25; i++ {
		userA := primitive.NewObjectID().Hex()
		userB := primitive.NewObjectID().Hex()

		sessions := make([]*domain.ChatSession, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			sessions[0], errs[0] = repo.FindOrCreatePrivate(ctx, userA, userB)
		}()
		go func() {
			defer wg.Done()
			sessions[1], errs[1] = repo.FindOrCreatePrivate(ctx, userB, userA)
		}()
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, sessions[0].ID, sessions[1].ID)

		key := domain.PrivateConversationKey(userA, userB)
		n, err := db.Collection(collSessions).CountDocuments(ctx, bson.M{"conversation_key": key})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}
}
