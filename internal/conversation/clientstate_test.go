package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/propdesk/internal/kv"
	"github.com/2389/propdesk/internal/store"
)

func TestClientState_RoundTrip(t *testing.T) {
	cs := NewClientState(filepath.Join(t.TempDir(), "nested", "current_conversation"))

	id, err := cs.Load()
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, cs.Save("abc-123"))
	id, err = cs.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	require.NoError(t, cs.Clear())
	id, err = cs.Load()
	require.NoError(t, err)
	assert.Empty(t, id)

	// clearing twice is fine
	require.NoError(t, cs.Clear())
}

func TestDefaultStatePath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state-home")
	p, err := DefaultStatePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/state-home/propdesk/current_conversation", p)
}

// brokenRemote fails every call.
type brokenRemote struct{}

func (brokenRemote) Get(ctx context.Context, id string) (*store.Conversation, error) {
	return nil, errors.New("connection refused")
}

func (brokenRemote) Create(ctx context.Context, id string) (*store.Conversation, error) {
	return nil, errors.New("connection refused")
}

func TestBootstrap_CreatesAndRemembers(t *testing.T) {
	st := store.New(kv.NewMemory(), nil)
	cs := NewClientState(filepath.Join(t.TempDir(), "state"))
	ctx := context.Background()

	conv := Bootstrap(ctx, st, cs, nil)
	require.NotNil(t, conv)
	assert.False(t, store.IsLocalID(conv.ID))

	saved, err := cs.Load()
	require.NoError(t, err)
	assert.Equal(t, conv.ID, saved)

	again := Bootstrap(ctx, st, cs, nil)
	assert.Equal(t, conv.ID, again.ID)
}

func TestBootstrap_StaleIDIsCleared(t *testing.T) {
	st := store.New(kv.NewMemory(), nil)
	cs := NewClientState(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, cs.Save("vanished"))

	conv := Bootstrap(context.Background(), st, cs, nil)
	assert.NotEqual(t, "vanished", conv.ID)

	saved, err := cs.Load()
	require.NoError(t, err)
	assert.Equal(t, conv.ID, saved)
}

func TestBootstrap_StoreDownFallsBackToLocal(t *testing.T) {
	cs := NewClientState(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, cs.Save("abc"))

	conv := Bootstrap(context.Background(), brokenRemote{}, cs, nil)
	require.NotNil(t, conv)
	assert.True(t, store.IsLocalID(conv.ID))
	assert.NotNil(t, conv.Messages)

	_, err := os.Stat(cs.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "local ids are never saved")
}
