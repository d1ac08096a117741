package answerbank

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/applypilot/internal/form"
	"go.uber.org/zap/zaptest"
)

func newTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	be := NewRedisBackend(client, "test:")
	tick := time.Unix(1700000000, 0)
	be.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return be, mr
}

func TestRedisBackend_RoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	be, mr := newTestRedis(t)

	bank, err := Open(ctx, be, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, bank.Put(ctx, Entry{Question: "Zebra question", Answer: "z"}))
	require.NoError(t, bank.Put(ctx, Entry{Question: "Alpha question", Type: form.MultiChoice, Options: []string{"A", "B"}, Answer: "A | B"}))
	require.NoError(t, bank.Put(ctx, Entry{Question: "Zebra question", Answer: "z2"}))

	assert.True(t, mr.Exists("test:answers"))
	assert.Equal(t, "z2", mustHGetAnswer(t, be, "zebra question"))

	reopened, err := Open(ctx, be, zaptest.NewLogger(t))
	require.NoError(t, err)
	entries := reopened.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Zebra question", entries[0].Question, "first insertion order is kept across overwrites")
	assert.Equal(t, form.MultiChoice, entries[1].Type)
	assert.Equal(t, []string{"A", "B"}, entries[1].Options)
}

func TestRedisBackend_Unreachable(t *testing.T) {
	be, mr := newTestRedis(t)
	mr.Close()

	_, err := be.Load(context.Background())
	assert.Error(t, err)
}

func mustHGetAnswer(t *testing.T, be *RedisBackend, key string) string {
	t.Helper()
	entries, err := be.Load(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		if e.Key() == key {
			return e.Answer
		}
	}
	t.Fatalf("no entry for %q", key)
	return ""
}
