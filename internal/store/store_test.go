package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/kv"
)

// countingKV wraps a memory store and counts every call.
type countingKV struct {
	*kv.Memory
	calls  int
	setErr error
}

func (c *countingKV) Get(ctx context.Context, key string) ([]byte, error) {
	c.calls++
	return c.Memory.Get(ctx, key)
}

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	c.calls++
	if c.setErr != nil {
		return c.setErr
	}
	return c.Memory.Set(ctx, key, value)
}

func (c *countingKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	c.calls++
	return c.Memory.Keys(ctx, pattern)
}

// setupTestStore returns a Store over an in-memory backend with a
// controllable clock.
func setupTestStore(t *testing.T) (*Store, *countingKV, *time.Time) {
	t.Helper()
	backend := &countingKV{Memory: kv.NewMemory()}
	s := New(backend, nil)
	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return clock }
	return s, backend, &clock
}

func TestStore_CreateThenGet(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.NotNil(t, got.Messages)
	assert.Empty(t, got.Messages)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestStore_CreateOverwrites(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)
	_, err = s.Append(ctx, "c1", NewMessage{Role: RoleUser, Content: "hi", AgentType: agent.General})
	require.NoError(t, err)

	_, err = s.Create(ctx, "c1")
	require.NoError(t, err)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestStore_EmptyMessagesEncodeAsArray(t *testing.T) {
	s, backend, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	raw, err := backend.Memory.Get(ctx, "conversation:c1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"messages":[]`)
}

func TestStore_GetMissing(t *testing.T) {
	s, _, _ := setupTestStore(t)

	conv, err := s.Get(context.Background(), "does-not-exist")
	assert.Nil(t, conv)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetLocalSkipsBackend(t *testing.T) {
	s, backend, _ := setupTestStore(t)

	conv, err := s.Get(context.Background(), "local-123-abcdefg")
	assert.Nil(t, conv)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, backend.calls)
}

func TestStore_GetMalformed(t *testing.T) {
	s, backend, _ := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, backend.Memory.Set(ctx, "conversation:bad", []byte("{not json")))

	_, err := s.Get(ctx, "bad")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStore_Append(t *testing.T) {
	s, _, clock := setupTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	*clock = clock.Add(5 * time.Second)
	msg, err := s.Append(ctx, "c1", NewMessage{
		Role:      RoleUser,
		Content:   "My roof has a leak",
		AgentType: agent.Troubleshooting,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, clock.UnixMilli(), msg.Timestamp)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, msg.ID, got.Messages[0].ID)
	assert.Equal(t, "My roof has a leak", got.Messages[0].Content)
	assert.Equal(t, agent.Troubleshooting, got.Messages[0].AgentType)
	assert.GreaterOrEqual(t, got.UpdatedAt, conv.CreatedAt)
	assert.GreaterOrEqual(t, got.UpdatedAt, conv.UpdatedAt)
	assert.Equal(t, clock.UnixMilli(), got.UpdatedAt)
}

func TestStore_AppendKeepsOrder(t *testing.T) {
	s, _, clock := setupTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "c1", NewMessage{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		// timestamps are informational; order must follow insertion
		*clock = clock.Add(-time.Second)
	}

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	for i, m := range got.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
	// clock went backwards; updatedAt must not
	assert.Equal(t, int64(1_700_000_000_000), got.UpdatedAt)
}

func TestStore_AppendSelfHeals(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "missing", NewMessage{Role: RoleUser, Content: "hello"})
	require.NoError(t, err)

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestStore_AppendLocalSkipsBackend(t *testing.T) {
	s, backend, _ := setupTestStore(t)

	msg, err := s.Append(context.Background(), NewLocalID(), NewMessage{
		Role:      RoleAssistant,
		Content:   "hi",
		AgentType: agent.General,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.NotZero(t, msg.Timestamp)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Zero(t, backend.calls)
}

func TestStore_AppendWriteFailure(t *testing.T) {
	s, backend, _ := setupTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	backend.setErr = errors.New("store down")
	_, err = s.Append(ctx, "c1", NewMessage{Role: RoleUser, Content: "x"})
	assert.ErrorContains(t, err, "store down")
}

func TestStore_ListRecent(t *testing.T) {
	s, backend, clock := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, id)
		require.NoError(t, err)
		*clock = clock.Add(time.Second)
	}
	// touching "a" makes it the most recent
	_, err := s.Append(ctx, "a", NewMessage{Role: RoleUser, Content: "bump"})
	require.NoError(t, err)

	require.NoError(t, backend.Memory.Set(ctx, "conversation:broken", []byte("nope")))
	require.NoError(t, backend.Memory.Set(ctx, "unrelated", []byte("{}")))

	convs, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)

	convs, err = s.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestStore_Ping(t *testing.T) {
	s, _, _ := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNewLocalID(t *testing.T) {
	id := NewLocalID()
	assert.True(t, IsLocalID(id))
	assert.Regexp(t, regexp.MustCompile(`^local-\d+-[0-9a-z]{7}$`), id)
	assert.False(t, IsLocalID("2b9f0d9e-local"))
}

func TestMessageJSON(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleUser, Content: "hi", Timestamp: 1, AgentType: agent.General}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","role":"user","content":"hi","timestamp":1,"agentType":"general"}`, string(data))
}
