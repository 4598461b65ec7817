package interview_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
)

func newRedisStore(t *testing.T) interview.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return interview.NewRedisStore(rdb, "test:session")
}

func forEachStore(t *testing.T, fn func(t *testing.T, store interview.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, interview.NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisStore(t)) })
}

func sampleSession(id string) interview.Session {
	return interview.Session{
		ID:             id,
		ResumeText:     "Jane Doe\nSoftware Engineer",
		JobDescription: "Backend Engineer, Python, 3 years",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStoreCreateGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store interview.Store) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, sampleSession("s1")))

		got, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, "Jane Doe\nSoftware Engineer", got.ResumeText)
		assert.Equal(t, "Backend Engineer, Python, 3 years", got.JobDescription)
		assert.Empty(t, got.Transcript)
		assert.True(t, got.CreatedAt.Equal(sampleSession("s1").CreatedAt))
	})
}

func TestStoreGetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, store interview.Store) {
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, interview.ErrSessionNotFound)
	})
}

func TestStoreAppendTurnKeepsOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store interview.Store) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, sampleSession("s1")))

		turns := []interview.Turn{
			{Role: interview.RoleUser, Content: "Hello"},
			{Role: interview.RoleAssistant, Content: "Welcome! Tell me about yourself."},
			{Role: interview.RoleUser, Content: "I build APIs."},
		}
		for _, turn := range turns {
			require.NoError(t, store.AppendTurn(ctx, "s1", turn))
		}

		got, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, turns, got.Transcript)
	})
}

func TestStoreAppendTurnMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, store interview.Store) {
		err := store.AppendTurn(context.Background(), "missing", interview.Turn{Role: interview.RoleUser, Content: "hi"})
		assert.ErrorIs(t, err, interview.ErrSessionNotFound)
	})
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store interview.Store) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, sampleSession("s1")))
		require.NoError(t, store.AppendTurn(ctx, "s1", interview.Turn{Role: interview.RoleUser, Content: "hi"}))

		require.NoError(t, store.Delete(ctx, "s1"))
		require.NoError(t, store.Delete(ctx, "s1"))
		require.NoError(t, store.Delete(ctx, "never-issued"))

		_, err := store.Get(ctx, "s1")
		assert.ErrorIs(t, err, interview.ErrSessionNotFound)
		assert.ErrorIs(t, store.AppendTurn(ctx, "s1", interview.Turn{Role: interview.RoleUser, Content: "late"}), interview.ErrSessionNotFound)
	})
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := interview.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleSession("s1")))
	require.NoError(t, store.AppendTurn(ctx, "s1", interview.Turn{Role: interview.RoleUser, Content: "Hello"}))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	got.Transcript[0].Content = "mutated"

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", again.Transcript[0].Content)
}

func TestMemoryStoreConcurrentSessions(t *testing.T) {
	store := interview.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			_ = store.Create(ctx, sampleSession(id))
			for j := 0; j < 10; j++ {
				_ = store.AppendTurn(ctx, id, interview.Turn{Role: interview.RoleUser, Content: "msg"})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, store.Len())
	got, err := store.Get(ctx, "s7")
	require.NoError(t, err)
	assert.Len(t, got.Transcript, 10)
}
