package repo

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	r := NewRedisConversationRepository(rdb, time.Hour)

	require.NoError(t, r.AddMessage(ctx, "s1", schema.UserMessage("hi")))
	require.NoError(t, r.AddMessage(ctx, "s1", schema.AssistantMessage("hello", nil)))

	assert.Equal(t, time.Hour, mr.TTL("conversation:s1:messages"))

	n, err := r.GetMessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.Equal(t, schema.User, h.Messages[0].Role)
	assert.Equal(t, "hello", h.Messages[1].Content)

	require.NoError(t, r.ClearHistory(ctx, "s1"))
	n, err = r.GetMessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConversationRepositoryMissingSession(t *testing.T) {
	_, rdb := newRedis(t)
	r := NewRedisConversationRepository(rdb, 0)

	h, err := r.LoadHistory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, h.Messages)
}

func TestConversationRepositorySkipsGarbage(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	r := NewRedisConversationRepository(rdb, 0)

	require.NoError(t, r.AddMessage(ctx, "s2", schema.UserMessage("ok")))
	_, err := mr.Push("conversation:s2:messages", "not-json")
	require.NoError(t, err)

	h, err := r.LoadHistory(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, h.Messages, 1)
	assert.Equal(t, "ok", h.Messages[0].Content)
}
