package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tordrt/schemadocs/internal/schema"
)

// SQLiteSchema is the only schema an SQLite database exposes.
const SQLiteSchema = "main"

// SQLiteCatalog reads sqlite_master and the table-valued PRAGMA functions.
type SQLiteCatalog struct {
	db      *sql.DB
	exclude []string
}

// NewSQLiteCatalog opens the database file at path.
func NewSQLiteCatalog(ctx context.Context, path string, exclude []string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteCatalog{db: db, exclude: exclude}, nil
}

// Close closes the database connection
func (c *SQLiteCatalog) Close(context.Context) error {
	return c.db.Close()
}

// Schemas returns "main" unless it is excluded.
func (c *SQLiteCatalog) Schemas(context.Context) ([]schema.SchemaInfo, error) {
	if excluded(SQLiteSchema, c.exclude) {
		return nil, nil
	}
	return []schema.SchemaInfo{{Name: SQLiteSchema}}, nil
}

// Tables lists user tables. SQLite has no table owners or comments.
func (c *SQLiteCatalog) Tables(ctx context.Context, schemaName string) ([]schema.TableInfo, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.TableInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, schema.TableInfo{Schema: schemaName, Name: name})
	}

	return tables, rows.Err()
}

type sqliteColumn struct {
	RawColumn
	pk int
}

func (c *SQLiteCatalog) tableInfo(ctx context.Context, table string) ([]sqliteColumn, error) {
	query := `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []sqliteColumn
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		col := sqliteColumn{
			RawColumn: RawColumn{Name: name, Position: cid + 1, Type: colType, NotNull: notNull != 0},
			pk:        pk,
		}
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return columns, nil
}

// Columns lists the columns of a table; positions are 1-based.
func (c *SQLiteCatalog) Columns(ctx context.Context, _, table string) ([]RawColumn, error) {
	info, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	columns := make([]RawColumn, len(info))
	for i, col := range info {
		columns[i] = col.RawColumn
	}
	return columns, nil
}

// PrimaryKey returns primary key columns in key order.
func (c *SQLiteCatalog) PrimaryKey(ctx context.Context, _, table string) ([]string, error) {
	info, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	ordered := make([]string, len(info)+1)
	n := 0
	for _, col := range info {
		if col.pk > 0 && col.pk < len(ordered) {
			ordered[col.pk] = col.Name
			n++
		}
	}

	pk := make([]string, 0, n)
	for _, name := range ordered {
		if name != "" {
			pk = append(pk, name)
		}
	}
	return pk, nil
}

// ForeignKeys groups pragma_foreign_key_list rows by constraint id. A
// reference without target columns resolves to the target's primary key.
func (c *SQLiteCatalog) ForeignKeys(ctx context.Context, schemaName, table string) ([]RawForeignKey, error) {
	query := `SELECT id, seq, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []RawForeignKey
	byID := make(map[int]int)
	for rows.Next() {
		var id, seq int
		var targetTable, fromCol string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol); err != nil {
			return nil, err
		}

		i, ok := byID[id]
		if !ok {
			i = len(fks)
			byID[id] = i
			fks = append(fks, RawForeignKey{
				Name:         fmt.Sprintf("fk_%s_%d", table, id),
				TargetSchema: schemaName,
				TargetTable:  targetTable,
			})
		}
		fks[i].Columns = append(fks[i].Columns, fromCol)
		fks[i].TargetColumns = append(fks[i].TargetColumns, toCol.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range fks {
		if fks[i].TargetColumns[0] != "" {
			continue
		}
		pk, err := c.PrimaryKey(ctx, schemaName, fks[i].TargetTable)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve primary key of %s: %w", fks[i].TargetTable, err)
		}
		fks[i].TargetColumns = pk
	}

	return fks, nil
}

// Constraints derives constraints from the primary key, foreign keys and
// unique indexes, since SQLite keeps no constraint catalog.
func (c *SQLiteCatalog) Constraints(ctx context.Context, schemaName, table string) ([]RawConstraint, error) {
	var constraints []RawConstraint

	pk, err := c.PrimaryKey(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	if len(pk) > 0 {
		constraints = append(constraints, RawConstraint{
			Name:       "pk_" + table,
			KindCode:   "p",
			Definition: fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pk, ", ")),
		})
	}

	fks, err := c.ForeignKeys(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		constraints = append(constraints, RawConstraint{
			Name:     fk.Name,
			KindCode: "f",
			Definition: fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
				strings.Join(fk.Columns, ", "), fk.TargetTable, strings.Join(fk.TargetColumns, ", ")),
		})
	}

	indexes, err := c.indexList(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx.origin != "u" {
			continue
		}
		cols, err := c.indexColumns(ctx, idx.name)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, RawConstraint{
			Name:       idx.name,
			KindCode:   "u",
			Definition: fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")),
		})
	}

	return constraints, nil
}

type sqliteIndex struct {
	name   string
	unique bool
	origin string
}

func (c *SQLiteCatalog) indexList(ctx context.Context, table string) ([]sqliteIndex, error) {
	query := `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []sqliteIndex
	for rows.Next() {
		var idx sqliteIndex
		var unique int
		if err := rows.Scan(&idx.name, &unique, &idx.origin); err != nil {
			return nil, err
		}
		idx.unique = unique == 1
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

func (c *SQLiteCatalog) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var colName sql.NullString
		if err := rows.Scan(&colName); err != nil {
			return nil, err
		}
		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}

	return columns, rows.Err()
}

// Indexes lists indexes with their CREATE statement. Automatic indexes have
// no stored SQL, so a definition is built from their columns.
func (c *SQLiteCatalog) Indexes(ctx context.Context, _, table string) ([]RawIndex, error) {
	list, err := c.indexList(ctx, table)
	if err != nil {
		return nil, err
	}

	var indexes []RawIndex
	for _, idx := range list {
		var stored sql.NullString
		err := c.db.QueryRowContext(ctx,
			`SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?`, idx.name).Scan(&stored)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}

		def := stored.String
		if !stored.Valid {
			cols, err := c.indexColumns(ctx, idx.name)
			if err != nil {
				return nil, err
			}
			unique := ""
			if idx.unique {
				unique = "UNIQUE "
			}
			def = fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, idx.name, table, strings.Join(cols, ", "))
		}

		indexes = append(indexes, RawIndex{Name: idx.name, Method: "btree", Definition: def})
	}

	return indexes, nil
}
