package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"form-backend/models"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// startMongo runs a throwaway MongoDB container. The test is skipped when
// Docker is not reachable or -short is set.
func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	pool.MaxWait = time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "7",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	uri := fmt.Sprintf("mongodb://localhost:%s", resource.GetPort("27017/tcp"))

	var client *mongo.Client
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		client, err = Connect(ctx, uri)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database("form_backend_test")
}

func TestConnectFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200")
	assert.Error(t, err)
}

func TestMongoStores(t *testing.T) {
	database := startMongo(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		users, err := NewUsers(ctx, database)
		require.NoError(t, err)

		u := &models.User{Email: "a@example.com", Name: "A", Password: "hash"}
		require.NoError(t, users.Create(ctx, u))
		assert.False(t, u.ID.IsZero())

		err = users.Create(ctx, &models.User{Email: "a@example.com"})
		assert.ErrorIs(t, err, ErrDuplicate)

		found, err := users.FindByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)

		_, err = users.FindByID(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("submissions", func(t *testing.T) {
		subs, err := NewSubmissions(ctx, database)
		require.NoError(t, err)

		owner := primitive.NewObjectID()
		first := &models.Submission{UserID: owner, Name: "A", Email: "a@example.com", Message: "one"}
		require.NoError(t, subs.Create(ctx, first))
		second := &models.Submission{UserID: owner, Name: "A", Email: "a@example.com", Message: "two"}
		require.NoError(t, subs.Create(ctx, second))

		list, err := subs.ListByUser(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "two", list[0].Message)

		_, err = subs.Get(ctx, first.ID, primitive.NewObjectID())
		assert.ErrorIs(t, err, ErrNotFound)

		first.Message = "edited"
		require.NoError(t, subs.Update(ctx, first))
		got, err := subs.Get(ctx, first.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, "edited", got.Message)

		deleted, err := subs.Delete(ctx, first.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, first.ID, deleted.ID)
		_, err = subs.Delete(ctx, first.ID, owner)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("sessions", func(t *testing.T) {
		store, err := NewSessionStore(ctx, database)
		require.NoError(t, err)

		require.NoError(t, store.Commit("tok", []byte("data"), time.Now().Add(time.Hour)))
		b, found, err := store.Find("tok")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("data"), b)

		require.NoError(t, store.Commit("old", []byte("data"), time.Now().Add(-time.Minute)))
		_, found, err = store.Find("old")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, store.Delete("tok"))
		_, found, err = store.Find("tok")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
