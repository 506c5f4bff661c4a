package store

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/testutil"
)

func TestNew_RejectsInvalidIdentity(t *testing.T) {
	db, d := testutil.OpenSQLite(t)
	_, err := New(db, d, model.Identity{ID: "broken"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidIdentity, CodeOf(err))
}

func TestNew_TableNames(t *testing.T) {
	s := createTestStore(t, translationIdentity(), WithTablePrefix("site_"))
	assert.Equal(t, "site_migrate_map_d7_node_translation__article", s.MapTable())
	assert.Equal(t, "site_migrate_message_d7_node_translation__article", s.MessageTable())
}

func TestEnsureTables_CreatesBothTables(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()

	assert.False(t, tableExists(t, s, s.MapTable()))
	require.NoError(t, s.EnsureTables(ctx))
	assert.True(t, tableExists(t, s, s.MapTable()))
	assert.True(t, tableExists(t, s, s.MessageTable()))

	for _, col := range []string{"source_ids_hash", "sourceid1", "destid1", "source_row_status", "rollback_action", "last_imported", "hash"} {
		has, err := s.Dialect().ColumnExists(ctx, s.DB(), s.MapTable(), col)
		require.NoError(t, err)
		assert.True(t, has, "map table missing %s", col)
	}
}

func TestEnsureTables_Idempotent(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnsureTables(ctx), "iteration %d", i)
	}

	// A second store over the same tables takes the upgrade path.
	again, err := New(s.DB(), s.Dialect(), nodeIdentity(), WithLogger(discardLogger()))
	require.NoError(t, err)
	require.NoError(t, again.EnsureTables(ctx))
}

func TestEnsureTables_SourceColumnsNotNull(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()
	require.NoError(t, s.EnsureTables(ctx))

	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO "migrate_map_d7_node" (source_ids_hash, sourceid1) VALUES ('x', NULL)`)
	assert.Error(t, err, "source id columns must be NOT NULL")

	_, err = s.DB().ExecContext(ctx,
		`INSERT INTO "migrate_map_d7_node" (source_ids_hash, sourceid1, destid1) VALUES ('y', 1, NULL)`)
	assert.NoError(t, err, "destination id columns are nullable")
}

func TestEnsureTables_UpgradesLegacyMapTable(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()

	// A map table from before rollback_action, hash and source_ids_hash.
	_, err := s.DB().ExecContext(ctx, `CREATE TABLE "migrate_map_d7_node" (
		sourceid1 INTEGER NOT NULL,
		destid1 INTEGER,
		source_row_status INTEGER NOT NULL DEFAULT 0,
		last_imported INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `INSERT INTO "migrate_map_d7_node" (sourceid1, destid1) VALUES (7, 70)`)
	require.NoError(t, err)

	require.NoError(t, s.EnsureTables(ctx))

	for _, col := range []string{"rollback_action", "hash", "source_ids_hash"} {
		has, err := s.Dialect().ColumnExists(ctx, s.DB(), s.MapTable(), col)
		require.NoError(t, err)
		assert.True(t, has, "upgrade should add %s", col)
	}
	assert.True(t, tableExists(t, s, s.MessageTable()), "message table is created alongside an upgraded map")

	var rollback int
	var sourceHash string
	err = s.DB().QueryRowContext(ctx,
		`SELECT rollback_action, source_ids_hash FROM "migrate_map_d7_node" WHERE sourceid1 = 7`).Scan(&rollback, &sourceHash)
	require.NoError(t, err)
	assert.Equal(t, 0, rollback)
	assert.Equal(t, "", sourceHash, "existing rows are not rewritten")
	assert.Equal(t, 1, rawCount(t, s, s.MapTable()))
}

func TestEnsureTables_FailureIsNotRemembered(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := s.EnsureTables(cancelled)
	require.Error(t, err)
	assert.True(t, IsSchemaFailure(err))

	require.NoError(t, s.EnsureTables(ctx))
	assert.True(t, tableExists(t, s, s.MapTable()))
}

func TestDestroy_DropsTablesAndResets(t *testing.T) {
	s := createTestStore(t, nodeIdentity())
	ctx := context.Background()
	save(t, s, model.Keyed{"nid": 1}, model.Keyed{"id": 10}, model.StatusImported)

	require.NoError(t, s.Destroy(ctx))
	assert.False(t, tableExists(t, s, s.MapTable()))
	assert.False(t, tableExists(t, s, s.MessageTable()))

	// Destroy on missing tables is fine.
	require.NoError(t, s.Destroy(ctx))

	// The next operation recreates the tables.
	save(t, s, model.Keyed{"nid": 2}, model.Keyed{"id": 20}, model.StatusImported)
	n, err := s.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSchemaDDL_Golden(t *testing.T) {
	for _, d := range []dialect.Dialect{dialect.SQLite{}, dialect.MySQL{}, dialect.Postgres{}} {
		t.Run(d.Name(), func(t *testing.T) {
			stmts, err := SchemaDDL(d, translationIdentity(), "")
			require.NoError(t, err)

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, "ddl_"+d.Name(), []byte(strings.Join(stmts, ";\n\n")+";\n"))
		})
	}
}

func TestSchemaDDL_RejectsUnknownType(t *testing.T) {
	id := nodeIdentity()
	id.DestinationIDs = []model.FieldSpec{{Name: "uuid", Type: "uuid"}}
	_, err := SchemaDDL(dialect.SQLite{}, id, "")
	assert.Error(t, err)
}
