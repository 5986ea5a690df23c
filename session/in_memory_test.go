package session

import (
	"context"
	"testing"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_GetMissingSession(t *testing.T) {
	store := NewInMemoryStore()

	msgs, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInMemoryStore_SaveAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	in := testutil.NewLogBuilder().User("hello").Assistant("hi there").Build()
	require.NoError(t, store.Save(ctx, "s1", in))

	out, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[0].Text)

	// Mutating the returned slice must not affect the stored log.
	out[0].Text = "tampered"
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again[0].Text)
}

func TestInMemoryStore_TruncationKeepsSystemMessage(t *testing.T) {
	store := NewInMemoryStore(func(o *InMemoryOptions) {
		o.MaxMessages = 5
	})
	ctx := context.Background()

	msgs := testutil.NewLogBuilder().System("you are terse").UserSeq(10).Build()
	require.NoError(t, store.Save(ctx, "s1", msgs))

	out, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, core.RoleSystem, out[0].Role)
	assert.Equal(t, "msg 9", out[len(out)-1].Text)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(func(o *InMemoryOptions) {
		o.TTL = time.Hour
	})
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", []core.Message{core.NewUserMessage("hi")}))

	// Access just before expiry renews the TTL.
	now = now.Add(59 * time.Minute)
	out, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, out, 1)

	// Renewed deadline keeps the session alive past the original one.
	now = now.Add(59 * time.Minute)
	out, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, out, 1)

	// Idle past the full TTL drops the session.
	now = now.Add(2 * time.Hour)
	out, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, store.Len())
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", []core.Message{core.NewUserMessage("hi")}))
	require.NoError(t, store.Clear(ctx, "s1"))

	out, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, out)

	// Clearing again is a no-op.
	require.NoError(t, store.Clear(ctx, "s1"))
}
