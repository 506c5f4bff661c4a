package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idmap/internal/model"
)

func TestCursor_StateMachine(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 10}, model.StatusImported)

	c := s.Cursor()
	defer c.Close()
	assert.Equal(t, CursorNotStarted, c.State())
	assert.False(t, c.Valid())
	assert.Nil(t, c.Current())
	assert.Equal(t, "", c.Key())

	c.Next()
	assert.Equal(t, CursorNotStarted, c.State(), "next before rewind does nothing")

	require.NoError(t, c.Rewind(ctx))
	assert.Equal(t, CursorPositioned, c.State())
	assert.Equal(t, []any{int64(10)}, c.Current())

	c.Next()
	assert.Equal(t, CursorExhausted, c.State())
	assert.False(t, c.Valid())
	assert.Nil(t, c.Current())
	assert.Nil(t, c.CurrentSource())
	assert.Nil(t, c.CurrentDestination())

	c.Next()
	assert.Equal(t, CursorExhausted, c.State(), "only rewind leaves exhausted")
	require.NoError(t, c.Err())
}

func TestCursor_EmptyMap(t *testing.T) {
	s := createTestStore(t, nodeIdentity())

	c := s.Cursor()
	defer c.Close()
	require.NoError(t, c.Rewind(context.Background()))
	assert.Equal(t, CursorExhausted, c.State())
	assert.True(t, tableExists(t, s, s.MapTable()), "rewind creates missing tables")
}

func TestCursor_OrderAndKeys(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()
	save(t, s, model.Keyed{"nid": 3}, model.Keyed{"id": 30}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 20}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 10}, model.StatusImported)

	c := s.Cursor()
	defer c.Close()
	require.NoError(t, c.Rewind(ctx))

	var dests []any
	var keys []string
	for ; c.Valid(); c.Next() {
		dests = append(dests, c.Current()[0])
		keys = append(keys, c.Key())
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []any{int64(10), int64(20), int64(30)}, dests)
	assert.Equal(t, []string{
		`a:1:{s:9:"sourceid1";i:2;}`,
		`a:1:{s:9:"sourceid1";i:1;}`,
		`a:1:{s:9:"sourceid1";i:3;}`,
	}, keys)
}

func TestCursor_CompositeKey(t *testing.T) {
	s := createTestStore(t, translationIdentity())
	save(t, s, model.Keyed{"lang": "fr", "nid": 7}, model.Keyed{"id": 70, "langcode": "fr"}, model.StatusImported)

	c := s.Cursor()
	defer c.Close()
	require.NoError(t, c.Rewind(context.Background()))
	require.True(t, c.Valid())

	assert.Equal(t, `a:2:{s:9:"sourceid1";s:2:"fr";s:9:"sourceid2";i:7;}`, c.Key())
	assert.Equal(t, model.Keyed{"lang": "fr", "nid": int64(7)}, c.CurrentSource())
	assert.Equal(t, model.Keyed{"id": int64(70), "langcode": "fr"}, c.CurrentDestination())
	assert.Equal(t, []any{int64(70), "fr"}, c.Current())
}

func TestCursor_DestinationOmitsNull(t *testing.T) {
	s := createTestStore(t, translationIdentity())
	save(t, s, model.Keyed{"lang": "de", "nid": 3}, nil, model.StatusFailed)

	c := s.Cursor()
	defer c.Close()
	require.NoError(t, c.Rewind(context.Background()))
	require.True(t, c.Valid())

	assert.Equal(t, model.Keyed{}, c.CurrentDestination())
	assert.Equal(t, []any{nil, nil}, c.Current())
}

func TestCursor_RewindRestarts(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 1}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 2}, model.StatusImported)

	c := s.Cursor()
	defer c.Close()
	require.NoError(t, c.Rewind(ctx))
	c.Next()
	c.Next()
	require.Equal(t, CursorExhausted, c.State())

	require.NoError(t, c.Close())
	save(t, s, model.Keyed{"nid": 3}, model.Keyed{"id": 3}, model.StatusImported)

	require.NoError(t, c.Rewind(ctx))
	n := 0
	for ; c.Valid(); c.Next() {
		n++
	}
	assert.Equal(t, 3, n, "rewind sees rows written since the last traversal")
}

func TestCursor_CancelledContext(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := s.Cursor()
	err := c.Rewind(ctx)
	require.Error(t, err)
	assert.Equal(t, CursorExhausted, c.State())
	assert.Equal(t, err, c.Err())
}

func TestAll(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 200}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 100}, model.StatusImported)

	var pairs []Pair
	for p, err := range s.All(ctx) {
		require.NoError(t, err)
		pairs = append(pairs, p)
	}
	require.Len(t, pairs, 2)
	assert.Equal(t, model.Keyed{"nid": int64(2)}, pairs[0].Source)
	assert.Equal(t, model.Keyed{"id": int64(100)}, pairs[0].Destination)
	assert.Equal(t, `a:1:{s:9:"sourceid1";i:2;}`, pairs[0].Key)

	for range s.All(ctx) {
		break
	}
	// The early break released the connection.
	n, err := s.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCursorState_String(t *testing.T) {
	assert.Equal(t, "not_started", CursorNotStarted.String())
	assert.Equal(t, "positioned", CursorPositioned.String())
	assert.Equal(t, "exhausted", CursorExhausted.String())
	assert.Equal(t, "cursor_state(9)", CursorState(9).String())
}

func TestCursor_RollbackPassWhileIterating(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for nid := 1; nid <= 3; nid++ {
		save(t, s, model.Keyed{"nid": nid}, model.Keyed{"id": nid * 10}, model.StatusImported)
	}

	c := s.Cursor()
	defer c.Close()
	var visited []int64
	for require.NoError(t, c.Rewind(ctx)); c.Valid(); c.Next() {
		dest := c.CurrentDestination()
		visited = append(visited, dest["id"].(int64))
		require.NoError(t, s.DeleteDestination(ctx, dest))
	}
	require.NoError(t, c.Err())

	assert.Equal(t, []int64{10, 20, 30}, visited, "walks the rows present at rewind")
	n, err := s.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.Rewind(ctx))
	assert.Equal(t, CursorExhausted, c.State(), "rewind sees the deletions")
}

func TestAll_StoreCallsInsideRange(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 10}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 20}, model.StatusImported)

	for p, err := range s.All(ctx) {
		require.NoError(t, err)
		require.NoError(t, s.SetUpdate(ctx, p.Source))
	}
	n, err := s.UpdateCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
