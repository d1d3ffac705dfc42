package session

import (
	"context"
	"testing"

	"doccatalog-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		TTLSeconds:       3600,
		EncryptionSecret: "test-session-encryption-secret",
	}
}

func TestStoreCreateAndLoad(t *testing.T) {
	store := NewStore(newFakeBroker(), testConfig())
	ctx := context.Background()

	id, err := store.Create(ctx, Payload{Auth: true, Attributes: map[string]any{"foo": "bar"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	payload, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, payload.Auth)
	assert.Equal(t, "bar", payload.Attributes["foo"])
}

func TestStoreLoadUnknownSessionFails(t *testing.T) {
	store := NewStore(newFakeBroker(), testConfig())

	_, err := store.Load(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestStoreUpdatePreservesOrReplacesPayload(t *testing.T) {
	store := NewStore(newFakeBroker(), testConfig())
	ctx := context.Background()

	id, err := store.Create(ctx, Payload{Auth: false})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, id, Payload{Auth: true}, false))

	payload, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, payload.Auth)
}

func TestStoreDestroyRemovesSession(t *testing.T) {
	store := NewStore(newFakeBroker(), testConfig())
	ctx := context.Background()

	id, err := store.Create(ctx, Payload{Auth: true})
	require.NoError(t, err)

	require.NoError(t, store.Destroy(ctx, id))

	_, err = store.Load(ctx, id)
	assert.Error(t, err)
}

func TestStoreHealth(t *testing.T) {
	store := NewStore(newFakeBroker(), testConfig())

	backendUp, encryptionOk := store.Health(context.Background())
	assert.True(t, backendUp)
	assert.True(t, encryptionOk)
}
