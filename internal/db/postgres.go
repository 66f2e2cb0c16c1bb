package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/schemadocs/internal/schema"
)

// PostgresCatalog reads pg_catalog over a single pgx connection.
type PostgresCatalog struct {
	conn    *pgx.Conn
	exclude []string
}

// NewPostgresCatalog connects to connString and checks the connection.
func NewPostgresCatalog(ctx context.Context, connString string, exclude []string) (*PostgresCatalog, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// ANY($1) over a NULL array filters every row
	ex := append([]string{}, exclude...)

	return &PostgresCatalog{conn: conn, exclude: ex}, nil
}

// Close closes the database connection
func (c *PostgresCatalog) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Schemas lists user schemas with their comments.
func (c *PostgresCatalog) Schemas(ctx context.Context) ([]schema.SchemaInfo, error) {
	query := `
		SELECT n.nspname::text, obj_description(n.oid, 'pg_namespace')
		FROM pg_namespace n
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
			AND n.nspname NOT LIKE 'pg\_temp\_%'
			AND n.nspname NOT LIKE 'pg\_toast\_temp\_%'
			AND NOT (n.nspname = ANY($1))
		ORDER BY n.nspname
	`

	rows, err := c.conn.Query(ctx, query, c.exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []schema.SchemaInfo
	for rows.Next() {
		var s schema.SchemaInfo
		if err := rows.Scan(&s.Name, &s.Description); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}

	return schemas, rows.Err()
}

// Tables lists the ordinary tables of a schema.
func (c *PostgresCatalog) Tables(ctx context.Context, schemaName string) ([]schema.TableInfo, error) {
	query := `
		SELECT t.schemaname::text, t.tablename::text, t.tableowner::text, obj_description(cl.oid, 'pg_class')
		FROM pg_tables t
		JOIN pg_namespace n ON n.nspname = t.schemaname
		JOIN pg_class cl ON cl.relnamespace = n.oid AND cl.relname = t.tablename
		WHERE t.schemaname = $1
		ORDER BY t.tablename
	`

	rows, err := c.conn.Query(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.TableInfo
	for rows.Next() {
		var t schema.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.Owner, &t.Description); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// Columns lists live columns in attribute order.
func (c *PostgresCatalog) Columns(ctx context.Context, schemaName, table string) ([]RawColumn, error) {
	query := `
		SELECT
			a.attname::text,
			a.attnum::int,
			format_type(a.atttypid, a.atttypmod),
			a.attnotnull,
			pg_get_expr(d.adbin, d.adrelid)
		FROM pg_attribute a
		JOIN pg_class cl ON cl.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE n.nspname = $1
			AND cl.relname = $2
			AND a.attnum > 0
			AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := c.conn.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []RawColumn
	for rows.Next() {
		var col RawColumn
		if err := rows.Scan(&col.Name, &col.Position, &col.Type, &col.NotNull, &col.Default); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// PrimaryKey returns the columns of the table's primary key index.
func (c *PostgresCatalog) PrimaryKey(ctx context.Context, schemaName, table string) ([]string, error) {
	query := `
		SELECT a.attname::text
		FROM pg_index i
		JOIN pg_class cl ON cl.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = $1
			AND cl.relname = $2
			AND i.indisprimary
		ORDER BY array_position(i.indkey::int2[], a.attnum)
	`

	rows, err := c.conn.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var colName string
		if err := rows.Scan(&colName); err != nil {
			return nil, err
		}
		pk = append(pk, colName)
	}

	return pk, rows.Err()
}

// ForeignKeys returns one row per foreign key constraint with paired column lists.
func (c *PostgresCatalog) ForeignKeys(ctx context.Context, schemaName, table string) ([]RawForeignKey, error) {
	query := `
		SELECT
			con.conname::text,
			array_agg(src.attname::text ORDER BY k.ord),
			tn.nspname::text,
			tc.relname::text,
			array_agg(dst.attname::text ORDER BY k.ord)
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		JOIN pg_class tc ON tc.oid = con.confrelid
		JOIN pg_namespace tn ON tn.oid = tc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(src_num, dst_num, ord)
		JOIN pg_attribute src ON src.attrelid = con.conrelid AND src.attnum = k.src_num
		JOIN pg_attribute dst ON dst.attrelid = con.confrelid AND dst.attnum = k.dst_num
		WHERE con.contype = 'f'
			AND n.nspname = $1
			AND cl.relname = $2
		GROUP BY con.oid, con.conname, tn.nspname, tc.relname
		ORDER BY con.conname
	`

	rows, err := c.conn.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []RawForeignKey
	for rows.Next() {
		var fk RawForeignKey
		if err := rows.Scan(&fk.Name, &fk.Columns, &fk.TargetSchema, &fk.TargetTable, &fk.TargetColumns); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

// Constraints returns every constraint on the table with its contype code.
func (c *PostgresCatalog) Constraints(ctx context.Context, schemaName, table string) ([]RawConstraint, error) {
	query := `
		SELECT con.conname::text, con.contype::text, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		WHERE n.nspname = $1 AND cl.relname = $2
		ORDER BY con.conname
	`

	rows, err := c.conn.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var constraints []RawConstraint
	for rows.Next() {
		var con RawConstraint
		if err := rows.Scan(&con.Name, &con.KindCode, &con.Definition); err != nil {
			return nil, err
		}
		constraints = append(constraints, con)
	}

	return constraints, rows.Err()
}

// Indexes returns every index on the table, including the primary key index.
func (c *PostgresCatalog) Indexes(ctx context.Context, schemaName, table string) ([]RawIndex, error) {
	query := `
		SELECT ic.relname::text, am.amname::text, pg_get_indexdef(i.indexrelid)
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_am am ON am.oid = ic.relam
		JOIN pg_class cl ON cl.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		WHERE n.nspname = $1 AND cl.relname = $2
		ORDER BY ic.relname
	`

	rows, err := c.conn.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []RawIndex
	for rows.Next() {
		var idx RawIndex
		if err := rows.Scan(&idx.Name, &idx.Method, &idx.Definition); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}
