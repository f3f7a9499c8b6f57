package checkpoint_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
)

// storeConformance exercises the Store contract shared by all backends.
func storeConformance(t *testing.T, store checkpoint.Store) {
	t.Helper()

	// Unknown thread.
	_, err := store.LoadLatest("missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	infos, err := store.List("missing")
	require.NoError(t, err)
	assert.Empty(t, infos)

	// Save and load back.
	require.NoError(t, store.Save("t1", 1, []byte("one")))
	require.NoError(t, store.Save("t1", 2, []byte("two")))
	require.NoError(t, store.Save("t2", 1, []byte("other thread")))

	data, err := store.LoadLatest("t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)

	data, err = store.Load("t1", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	_, err = store.Load("t1", 99)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	// Overwrite at the same sequence.
	require.NoError(t, store.Save("t1", 2, []byte("two-rewritten")))
	data, err = store.LoadLatest("t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("two-rewritten"), data)

	// List is ordered by sequence.
	infos, err = store.List("t1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].Sequence)
	assert.Equal(t, 2, infos[1].Sequence)
	assert.Equal(t, "t1", infos[0].ThreadID)
	assert.Positive(t, infos[0].Size)

	// Threads are isolated.
	data, err = store.LoadLatest("t2")
	require.NoError(t, err)
	assert.Equal(t, []byte("other thread"), data)

	// Delete a whole thread.
	require.NoError(t, store.DeleteThread("t1"))
	_, err = store.LoadLatest("t1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	// Other thread unaffected.
	_, err = store.LoadLatest("t2")
	require.NoError(t, err)

	// Closed store rejects everything.
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Save("t2", 2, []byte("x")), checkpoint.ErrStoreClosed)
	_, err = store.LoadLatest("t2")
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}

func TestMemoryStore_Conformance(t *testing.T) {
	storeConformance(t, checkpoint.NewMemoryStore())
}

func TestSQLiteStore_Conformance(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	storeConformance(t, store)
}

func TestRedisStore_Conformance(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	storeConformance(t, checkpoint.NewRedisStoreFromClient(client))
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	buf := []byte("original")
	require.NoError(t, store.Save("t", 1, buf))

	buf[0] = 'X'

	data, err := store.LoadLatest("t")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/threads.db"

	store, err := checkpoint.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save("t", 1, []byte("durable")))
	require.NoError(t, store.Close())

	reopened, err := checkpoint.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.LoadLatest("t")
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), data)
}
