//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/testutil"
)

func createPostgresStore(t *testing.T, scheme string, id model.Identity, opts ...Option) *Store {
	t.Helper()
	db, d, err := dialect.Open(context.Background(), testutil.PostgresURL(t, scheme))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := New(db, d, id, opts...)
	require.NoError(t, err)
	return s
}

func TestPostgres_RoundTrip(t *testing.T) {
	for _, scheme := range []string{"postgres", "pgx"} {
		t.Run(scheme, func(t *testing.T) {
			s := createPostgresStore(t, scheme, translationIdentity())
			ctx := context.Background()

			save(t, s, model.Keyed{"lang": "en", "nid": 1}, model.Keyed{"id": 101, "langcode": "en"}, model.StatusImported)
			save(t, s, model.Positional{"en", "1"}, model.Positional{102, "en"}, model.StatusImported)

			row, found, err := s.RowBySource(ctx, model.Keyed{"lang": "en", "nid": 1})
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, []any{int64(102), "en"}, row.DestinationIDs, "string and integer keys share one row")

			got, err := s.LookupDestinationIDs(ctx, model.Keyed{"nid": 1})
			require.NoError(t, err)
			assert.Equal(t, [][]any{{int64(102), "en"}}, got)

			n, err := s.ImportedCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func TestPostgres_InvalidValueLookupIsEmpty(t *testing.T) {
	s := createPostgresStore(t, "pgx", nodeIdentity())
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 1}, model.StatusImported)

	got, err := s.LookupDestinationIDs(context.Background(), model.Keyed{"nid": "not-a-number"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostgres_HighestAndCursor(t *testing.T) {
	s := createPostgresStore(t, "postgres", nodeIdentity())
	ctx := context.Background()
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 9}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 3}, model.StatusImported)

	top, err := s.HighestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), top)

	var keys []string
	for p, err := range s.All(ctx) {
		require.NoError(t, err)
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{`a:1:{s:9:"sourceid1";i:2;}`, `a:1:{s:9:"sourceid1";i:1;}`}, keys)
}

func TestPostgres_MessagesAndDestroy(t *testing.T) {
	s := createPostgresStore(t, "pgx", nodeIdentity())
	ctx := context.Background()

	require.NoError(t, s.SaveMessage(ctx, model.Keyed{"nid": 1}, "bad row", model.LevelError))
	n, err := s.MessageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Destroy(ctx))
	assert.False(t, tableExists(t, s, s.MapTable()))
	assert.False(t, tableExists(t, s, s.MessageTable()))
}
