package store

import (
	"context"
	"fmt"

	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/model"
)

// Column shapes shared by every map and message table.
var (
	hashField   = model.FieldSpec{Name: colSourceIDsHash, Type: model.TypeString, Settings: map[string]any{"max_length": 64}}
	statusField = model.FieldSpec{Name: colStatus, Type: model.TypeInteger, Settings: map[string]any{"size": "tiny", "unsigned": true}}
	intField    = model.FieldSpec{Name: colLastImported, Type: model.TypeInteger, Settings: map[string]any{"unsigned": true}}
	textField   = model.FieldSpec{Name: colMessage, Type: model.TypeStringLong}
)

// optionalColumn is a map table column added after the first release of the
// layout. Tables created before it existed get it added with a default that
// keeps existing rows valid.
type optionalColumn struct {
	name    string
	field   model.FieldSpec
	notNull bool
	def     string
}

var optionalMapColumns = []optionalColumn{
	{name: colRollbackAction, field: statusField, notNull: true, def: "0"},
	{name: colHash, field: hashField},
	{name: colSourceIDsHash, field: hashField, notNull: true, def: "''"},
}

// SchemaDDL returns the statements that create the map and message tables
// of id under d, in execution order.
func SchemaDDL(d dialect.Dialect, id model.Identity, prefix string) ([]string, error) {
	mapTable, err := mapTableDef(d, id, prefix)
	if err != nil {
		return nil, err
	}
	msgTable, err := messageTableDef(d, id, prefix)
	if err != nil {
		return nil, err
	}
	return append(d.CreateTable(mapTable), d.CreateTable(msgTable)...), nil
}

// SchemaDDL returns the statements EnsureTables runs for a new map.
func (s *Store) SchemaDDL() ([]string, error) {
	return SchemaDDL(s.dialect, s.id, s.prefix)
}

func mapTableDef(d dialect.Dialect, id model.Identity, prefix string) (dialect.Table, error) {
	hashType, err := d.ColumnType(hashField)
	if err != nil {
		return dialect.Table{}, err
	}
	statusType, err := d.ColumnType(statusField)
	if err != nil {
		return dialect.Table{}, err
	}
	intType, err := d.ColumnType(intField)
	if err != nil {
		return dialect.Table{}, err
	}

	t := dialect.Table{
		Name:       id.MapTableName(prefix),
		PrimaryKey: []string{colSourceIDsHash},
	}
	t.Columns = append(t.Columns, dialect.Column{Name: colSourceIDsHash, Type: hashType, NotNull: true})

	source := dialect.Index{Name: "source"}
	for i, f := range id.SourceIDs {
		col := fmt.Sprintf("sourceid%d", i+1)
		typ, err := d.ColumnType(f)
		if err != nil {
			return dialect.Table{}, fmt.Errorf("source id %s: %w", f.Name, err)
		}
		t.Columns = append(t.Columns, dialect.Column{Name: col, Type: typ, NotNull: true})
		source.Parts = append(source.Parts, dialect.IndexPart{Column: col, Length: d.IndexLength(f)})
	}
	for i, f := range id.DestinationIDs {
		typ, err := d.ColumnType(f)
		if err != nil {
			return dialect.Table{}, fmt.Errorf("destination id %s: %w", f.Name, err)
		}
		t.Columns = append(t.Columns, dialect.Column{Name: fmt.Sprintf("destid%d", i+1), Type: typ})
	}

	t.Columns = append(t.Columns,
		dialect.Column{Name: colStatus, Type: statusType, NotNull: true, Default: "0"},
		dialect.Column{Name: colRollbackAction, Type: statusType, NotNull: true, Default: "0"},
		dialect.Column{Name: colLastImported, Type: intType, NotNull: true, Default: "0"},
		dialect.Column{Name: colHash, Type: hashType},
	)
	t.Indexes = []dialect.Index{source}
	return t, nil
}

func messageTableDef(d dialect.Dialect, id model.Identity, prefix string) (dialect.Table, error) {
	hashType, err := d.ColumnType(hashField)
	if err != nil {
		return dialect.Table{}, err
	}
	intType, err := d.ColumnType(intField)
	if err != nil {
		return dialect.Table{}, err
	}
	textType, err := d.ColumnType(textField)
	if err != nil {
		return dialect.Table{}, err
	}
	return dialect.Table{
		Name:       id.MessageTableName(prefix),
		PrimaryKey: []string{colMsgID},
		Columns: []dialect.Column{
			{Name: colMsgID, AutoIncrement: true},
			{Name: colSourceIDsHash, Type: hashType, NotNull: true},
			{Name: colLevel, Type: intType, NotNull: true, Default: "1"},
			{Name: colMessage, Type: textType, NotNull: true},
		},
		Indexes: []dialect.Index{{
			Name:  colSourceIDsHash,
			Parts: []dialect.IndexPart{{Column: colSourceIDsHash}},
		}},
	}, nil
}

// EnsureTables creates the map and message tables if the map table does not
// exist, or adds any missing optional columns to an existing map table. It
// never drops or narrows a column and never touches data.
//
// A successful call is remembered; later calls return immediately until
// Destroy. A failed call is not remembered.
func (s *Store) EnsureTables(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.ensureTables(ctx); err != nil {
		return s.fail(ErrCodeSchemaFailure, "ensure tables", err)
	}
	s.ensured = true
	return nil
}

func (s *Store) ensureTables(ctx context.Context) error {
	exists, err := s.dialect.TableExists(ctx, s.db, s.mapTable)
	if err != nil {
		return err
	}

	if !exists {
		stmts, err := s.SchemaDDL()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
		}
		s.logger.Info("created id map tables",
			"migration", s.id.ID,
			"map_table", s.mapTable,
			"message_table", s.messageTable,
		)
		return nil
	}

	if err := s.upgradeMapTable(ctx); err != nil {
		return err
	}

	// The message table may be missing if it was dropped on its own.
	msgTable, err := messageTableDef(s.dialect, s.id, s.prefix)
	if err != nil {
		return err
	}
	for _, stmt := range s.dialect.CreateTable(msgTable) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create message table: %w", err)
		}
	}
	return nil
}

// upgradeMapTable adds optional columns missing from an existing map table.
func (s *Store) upgradeMapTable(ctx context.Context) error {
	for _, c := range optionalMapColumns {
		has, err := s.dialect.ColumnExists(ctx, s.db, s.mapTable, c.name)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		typ, err := s.dialect.ColumnType(c.field)
		if err != nil {
			return err
		}
		stmt := s.dialect.AddColumn(s.mapTable, dialect.Column{Name: c.name, Type: typ, NotNull: c.notNull, Default: c.def})
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
		s.logger.Info("upgraded id map table",
			"migration", s.id.ID,
			"map_table", s.mapTable,
			"column", c.name,
		)
	}
	return nil
}

// Destroy drops both tables. It is irreversible.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{s.mapTable, s.messageTable} {
		if _, err := s.db.ExecContext(ctx, s.dialect.DropTable(table)); err != nil {
			return s.storageErr("destroy", err)
		}
	}
	s.ensured = false
	s.logger.Info("destroyed id map tables", "migration", s.id.ID, "map_table", s.mapTable)
	return nil
}
