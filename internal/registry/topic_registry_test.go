package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/database"
	"github.com/rzpsarthak13/holdthis/internal/schema"
)

func newTestRegistry(t *testing.T, turbo bool) (*TopicRegistry, core.Database) {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), database.SQLiteOptions{Location: database.MemoryLocation})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewTopicRegistry(db, schema.NewTranslator(schema.SQLiteDialect{}, turbo), nil, nil), db
}

func TestEnsureCreatesTable(t *testing.T) {
	ctx := context.Background()
	reg, db := newTestRegistry(t, false)

	metadata, err := reg.Ensure(ctx, "users", []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, core.TopicSchema{Name: "users", Arity: 2}, metadata.Schema)
	require.False(t, metadata.CreatedAt.IsZero())

	rows, err := db.Query(ctx, `SELECT name FROM pragma_table_info('users') ORDER BY cid`)
	require.NoError(t, err)
	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Close())
	require.Equal(t, []string{"col0", "col1", "serialized", "value", "ttl"}, columns)

	rows, err = db.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_users_ttl'`)
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, rows.Close())
}

func TestEnsureTurboOmitsIndex(t *testing.T) {
	ctx := context.Background()
	reg, db := newTestRegistry(t, true)

	metadata, err := reg.Ensure(ctx, "events", []string{"a"})
	require.NoError(t, err)
	require.True(t, metadata.Schema.Turbo)

	rows, err := db.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'events'`)
	require.NoError(t, err)
	require.False(t, rows.Next())
	require.NoError(t, rows.Close())
}

func TestEnsureValidatesArity(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, false)

	_, err := reg.Ensure(ctx, "t", []string{"a", "b"})
	require.NoError(t, err)

	_, err = reg.Ensure(ctx, "t", []string{"a", "b"})
	require.NoError(t, err)

	_, err = reg.Ensure(ctx, "t", []string{"a"})
	require.ErrorIs(t, err, core.ErrSchemaConflict)

	_, err = reg.Ensure(ctx, "t", []string{"a", "b", "c"})
	require.ErrorIs(t, err, core.ErrSchemaConflict)
}

func TestEnsureDetectsExistingTableOfDifferentArity(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, database.SQLiteOptions{})
	require.NoError(t, err)
	defer db.Close()

	translator := schema.NewTranslator(schema.SQLiteDialect{}, false)
	first := NewTopicRegistry(db, translator, nil, nil)
	_, err = first.Ensure(ctx, "t", []string{"a", "b"})
	require.NoError(t, err)

	// A second registry on the same engine stands in for a restarted process.
	second := NewTopicRegistry(db, translator, nil, nil)
	_, err = second.Ensure(ctx, "t", []string{"a"})
	require.ErrorIs(t, err, core.ErrSchemaConflict)
	_, ok := second.Lookup("t")
	require.False(t, ok)

	metadata, err := second.Ensure(ctx, "t", []string{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, 2, metadata.Schema.Arity)
}

func TestEnsureRejectsInvalidTopic(t *testing.T) {
	reg, _ := newTestRegistry(t, false)

	for _, name := range []string{"", "1abc", "drop table", `a"b`, "a;b"} {
		_, err := reg.Ensure(context.Background(), name, []string{"a"})
		require.ErrorIs(t, err, core.ErrInvalidTopic, name)
	}
	require.Equal(t, 0, reg.Count())
}

func TestLookupListCount(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, false)

	_, ok := reg.Lookup("b")
	require.False(t, ok)

	for _, name := range []string{"c", "a", "b"} {
		_, err := reg.Ensure(ctx, name, []string{"k"})
		require.NoError(t, err)
	}

	metadata, ok := reg.Lookup("b")
	require.True(t, ok)
	require.Equal(t, "b", metadata.Schema.Name)
	require.Equal(t, []string{"a", "b", "c"}, reg.List())
	require.Equal(t, 3, reg.Count())
}

func TestInitHooks(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, false)

	var seen []core.TopicSchema
	reg.Lifecycle().RegisterHook(LifecycleHookFunc(func(_ context.Context, s core.TopicSchema) error {
		seen = append(seen, s)
		return nil
	}))
	require.Equal(t, 1, reg.Lifecycle().HookCount())

	_, err := reg.Ensure(ctx, "t", []string{"a"})
	require.NoError(t, err)
	_, err = reg.Ensure(ctx, "t", []string{"b"})
	require.NoError(t, err)
	require.Equal(t, []core.TopicSchema{{Name: "t", Arity: 1}}, seen)
}

func TestFailingInitHookLeavesTopicUnregistered(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, false)

	boom := errors.New("boom")
	calls := 0
	reg.Lifecycle().RegisterHook(LifecycleHookFunc(func(context.Context, core.TopicSchema) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	}))

	_, err := reg.Ensure(ctx, "t", []string{"a"})
	require.ErrorIs(t, err, boom)
	_, ok := reg.Lookup("t")
	require.False(t, ok)

	_, err = reg.Ensure(ctx, "t", []string{"a"})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDiscoverExistingTable(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, database.SQLiteOptions{})
	require.NoError(t, err)
	defer db.Close()

	translator := schema.NewTranslator(schema.SQLiteDialect{}, false)
	first := NewTopicRegistry(db, translator, nil, nil)
	_, err = first.Ensure(ctx, "t", []string{"a", "b", "c"})
	require.NoError(t, err)

	second := NewTopicRegistry(db, translator, nil, nil)
	metadata, ok, err := second.Discover(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, core.TopicSchema{Name: "t", Arity: 3}, metadata.Schema)
	require.Equal(t, []string{"t"}, second.List())

	_, ok, err = second.Discover(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, second.Count())

	_, _, err = second.Discover(ctx, "no way")
	require.ErrorIs(t, err, core.ErrInvalidTopic)
}
