package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idmap/internal/model"
)

func derivative(id string) model.Identity {
	ident := nodeIdentity()
	ident.ID = id
	return ident
}

func TestHighestID_EmptyIsZero(t *testing.T) {
	s := createTestStore(t, nodeIdentity())

	n, err := s.HighestID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestHighestID_OwnTable(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 7}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 42}, model.StatusImported)
	save(t, s, model.Keyed{"nid": 3}, nil, model.StatusFailed)

	n, err := s.HighestID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestHighestID_AcrossSiblings(t *testing.T) {
	ctx := context.Background()
	family := StaticSiblings{derivative("d7_node:article"), derivative("d7_node:page"), derivative("d7_node:blog")}

	article := createTestStore(t, derivative("d7_node:article"), WithSiblings(family))
	page, err := New(article.DB(), article.Dialect(), derivative("d7_node:page"),
		WithSiblings(family), WithLogger(discardLogger()))
	require.NoError(t, err)

	save(t, article, model.Keyed{"nid": 1}, model.Keyed{"id": 10}, model.StatusImported)
	save(t, page, model.Keyed{"nid": 2}, model.Keyed{"id": 250}, model.StatusImported)

	// d7_node:blog has no tables; it is skipped.
	assert.False(t, tableExists(t, article, derivative("d7_node:blog").MapTableName("")))

	n, err := article.HighestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)
}

func TestHighestID_NonIntegerDestination(t *testing.T) {
	id := nodeIdentity()
	id.DestinationIDs = []model.FieldSpec{{Name: "uuid", Type: model.TypeString}}
	s := createTestStore(t, id)

	_, err := s.HighestID(context.Background())
	require.Error(t, err)
	assert.True(t, IsNonIntegerDestination(err))
	assert.False(t, tableExists(t, s, s.MapTable()))
}
