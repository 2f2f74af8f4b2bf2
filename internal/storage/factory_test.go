package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreMemoryKinds(t *testing.T) {
	for _, kind := range []string{"", KindMemory, " Memory "} {
		store, err := NewStore(kind, "")
		require.NoError(t, err, "kind %q", kind)
		_, ok := store.(*MemoryStore)
		assert.True(t, ok, "kind %q should open the memory store", kind)
		require.NoError(t, CloseIfSupported(store))
	}
}

func TestNewStoreMemoryIsUsable(t *testing.T) {
	store, err := NewStore(KindMemory, "")
	require.NoError(t, err)
	_, found, err := store.GetResult(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewStoreRejectsUnsupportedKind(t *testing.T) {
	_, err := NewStore("postgres", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedBackend))
	for _, kind := range Kinds() {
		assert.Contains(t, err.Error(), kind)
	}
}

func TestNewStoreSQLiteRequiresPath(t *testing.T) {
	_, err := NewStore(KindSQLite, " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path")
}

func TestKindsListsMemoryFirst(t *testing.T) {
	assert.Equal(t, []string{KindMemory, KindSQLite}, Kinds())
}
