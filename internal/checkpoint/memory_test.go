package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64    { return &v }
func statusp(s Status) *Status { return &s }

func TestMemoryStoreSynthesizesPending(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Get("usersStep")
	require.False(t, ok)

	cp, err := store.Save(context.Background(), "usersStep", Update{TotalCount: int64p(100)})
	require.NoError(t, err)
	assert.Equal(t, "usersStep", cp.Step)
	assert.Equal(t, StatusPending, cp.Status)
	assert.Equal(t, int64(100), cp.TotalCount)
	assert.Equal(t, int64(0), cp.ProcessedCount)
	assert.Nil(t, cp.LastProcessedID)
}

func TestMemoryStorePartialMerge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	started := time.Now()
	_, err := store.Save(ctx, "usersStep", Update{
		Status:          statusp(StatusRunning),
		TotalCount:      int64p(1200),
		ProcessedCount:  int64p(500),
		LastProcessedID: 500,
		StartedAt:       &started,
	})
	require.NoError(t, err)

	// A partial update leaves untouched fields alone.
	cp, err := store.Save(ctx, "usersStep", Update{
		ProcessedCount:  int64p(1000),
		LastProcessedID: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, cp.Status)
	assert.Equal(t, int64(1200), cp.TotalCount)
	assert.Equal(t, int64(1000), cp.ProcessedCount)
	assert.Equal(t, 1000, cp.LastProcessedID)
	require.NotNil(t, cp.StartedAt)
}

func TestMemoryStoreResetCursor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Save(ctx, "usersStep", Update{LastProcessedID: 42})
	require.NoError(t, err)

	cp, err := store.Save(ctx, "usersStep", Update{ResetCursor: true, ProcessedCount: int64p(0)})
	require.NoError(t, err)
	assert.Nil(t, cp.LastProcessedID)
	assert.Equal(t, int64(0), cp.ProcessedCount)
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cp1, err := store.Save(ctx, "usersStep", Update{ProcessedCount: int64p(10)})
	require.NoError(t, err)
	cp1.ProcessedCount = 999

	cp2, ok := store.Get("usersStep")
	require.True(t, ok)
	assert.Equal(t, int64(10), cp2.ProcessedCount)
}

func TestMemoryStoreAll(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Save(ctx, "a", Update{})
	require.NoError(t, err)
	_, err = store.Save(ctx, "b", Update{})
	require.NoError(t, err)

	assert.Len(t, store.All(), 2)
}
