package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayBackends builds one instance of every Gateway implementation.
func gatewayBackends(t *testing.T) map[string]Gateway {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	badgerStore, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]Gateway{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"badger": badgerStore,
	}
}

func TestGatewayGetSet(t *testing.T) {
	ctx := context.Background()

	for name, gw := range gatewayBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := gw.Get(ctx, NamespaceTests, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, gw.Set(ctx, NamespaceTests, "a", []byte(`{"v":1}`)))
			value, version, err := gw.Get(ctx, NamespaceTests, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"v":1}`), value)
			assert.Equal(t, uint64(1), version)

			// Overwriting bumps the version.
			require.NoError(t, gw.Set(ctx, NamespaceTests, "a", []byte(`{"v":2}`)))
			value, version, err = gw.Get(ctx, NamespaceTests, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"v":2}`), value)
			assert.Equal(t, uint64(2), version)

			// Namespaces are isolated.
			_, _, err = gw.Get(ctx, NamespaceResults, "a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGatewayCompareAndSet(t *testing.T) {
	ctx := context.Background()

	for name, gw := range gatewayBackends(t) {
		t.Run(name, func(t *testing.T) {
			// Version 0 is create-only: the first write wins.
			require.NoError(t, gw.CompareAndSet(ctx, NamespaceAssignments, "k", []byte("first"), 0))
			err := gw.CompareAndSet(ctx, NamespaceAssignments, "k", []byte("second"), 0)
			assert.ErrorIs(t, err, ErrConflict)

			value, version, err := gw.Get(ctx, NamespaceAssignments, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), value)

			// A matching version succeeds, a stale one conflicts.
			require.NoError(t, gw.CompareAndSet(ctx, NamespaceAssignments, "k", []byte("updated"), version))
			err = gw.CompareAndSet(ctx, NamespaceAssignments, "k", []byte("stale"), version)
			assert.ErrorIs(t, err, ErrConflict)

			value, _, err = gw.Get(ctx, NamespaceAssignments, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("updated"), value)
		})
	}
}

func TestGatewayDelete(t *testing.T) {
	ctx := context.Background()

	for name, gw := range gatewayBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, gw.Set(ctx, NamespaceResults, "gone", []byte("x")))
			require.NoError(t, gw.Delete(ctx, NamespaceResults, "gone"))

			_, _, err := gw.Get(ctx, NamespaceResults, "gone")
			assert.ErrorIs(t, err, ErrNotFound)

			// Recreating after delete starts a fresh version history.
			require.NoError(t, gw.CompareAndSet(ctx, NamespaceResults, "gone", []byte("y"), 0))
		})
	}
}

func TestGatewayList(t *testing.T) {
	ctx := context.Background()

	for name, gw := range gatewayBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, gw.Set(ctx, NamespaceTests, "t1", []byte("a")))
			require.NoError(t, gw.Set(ctx, NamespaceTests, "t2", []byte("b")))
			require.NoError(t, gw.Set(ctx, NamespaceResults, "r1", []byte("c")))

			entries, err := gw.List(ctx, NamespaceTests)
			require.NoError(t, err)
			assert.Len(t, entries, 2)
			assert.Equal(t, []byte("a"), entries["t1"])
			assert.Equal(t, []byte("b"), entries["t2"])

			entries, err = gw.List(ctx, NamespaceAssignments)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "t/u", AssignmentKey{TestID: "t", UserID: "u"}.String())
	assert.Equal(t, "t/v", ResultKey{TestID: "t", VariantID: "v"}.String())
	assert.Equal(t, "response/abc", ResponseKey("abc"))
	assert.Equal(t, "winner/greeting", WinnerKey("greeting"))
}
