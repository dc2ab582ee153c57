package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	return store, path
}

func TestSQLiteStoreSaveAndLoad(t *testing.T) {
	store, path := newTestSQLiteStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	completed := started.Add(42 * time.Second)
	_, err := store.Save(ctx, "legacyUsersStep", Update{
		Status:          statusp(StatusCompleted),
		TotalCount:      int64p(1200),
		ProcessedCount:  int64p(1200),
		LastProcessedID: "user-1200",
		StartedAt:       &started,
		CompletedAt:     &completed,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A fresh store sees the persisted record after Load.
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok := reopened.Get("legacyUsersStep")
	assert.False(t, ok, "record must not be visible before Load")

	require.NoError(t, reopened.Load(ctx))
	cp, ok := reopened.Get("legacyUsersStep")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, cp.Status)
	assert.Equal(t, int64(1200), cp.TotalCount)
	assert.Equal(t, int64(1200), cp.ProcessedCount)
	assert.Equal(t, "user-1200", cp.LastProcessedID)
	require.NotNil(t, cp.StartedAt)
	require.NotNil(t, cp.CompletedAt)
}

func TestSQLiteStoreCursorRoundTrip(t *testing.T) {
	store, path := newTestSQLiteStore(t)
	ctx := context.Background()

	oid := primitive.NewObjectID()
	cursors := map[string]any{
		"stringCursor":   "abc-123",
		"int64Cursor":    int64(98765),
		"objectIDCursor": oid,
	}
	for step, cursor := range cursors {
		_, err := store.Save(ctx, step, Update{LastProcessedID: cursor})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Load(ctx))

	for step, cursor := range cursors {
		cp, ok := reopened.Get(step)
		require.True(t, ok, step)
		assert.Equal(t, cursor, cp.LastProcessedID, step)
	}
}

func TestSQLiteStoreUpsertByStep(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Save(ctx, "usersStep", Update{
		Status:         statusp(StatusRunning),
		ProcessedCount: int64p(500),
	})
	require.NoError(t, err)

	_, err = store.Save(ctx, "usersStep", Update{
		ProcessedCount: int64p(1000),
	})
	require.NoError(t, err)

	// Still one record, with the merged state.
	assert.Len(t, store.All(), 1)
	cp, _ := store.Get("usersStep")
	assert.Equal(t, StatusRunning, cp.Status)
	assert.Equal(t, int64(1000), cp.ProcessedCount)
}

func TestSQLiteStoreFailedStepPersistsError(t *testing.T) {
	store, path := newTestSQLiteStore(t)
	ctx := context.Background()

	msg := "bulk write failed"
	_, err := store.Save(ctx, "postsStep", Update{
		Status: statusp(StatusFailed),
		Error:  &msg,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Load(ctx))

	cp, ok := reopened.Get("postsStep")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, cp.Status)
	assert.Equal(t, msg, cp.Error)
}

func TestSQLiteStoreClosedRejectsWrites(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	require.NoError(t, store.Close())

	_, err := store.Save(context.Background(), "usersStep", Update{})
	require.Error(t, err)
}
