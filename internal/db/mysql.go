package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tordrt/schemadocs/internal/schema"
)

// MySQLCatalog reads information_schema. A MySQL database is exposed as a
// single schema named after the database in the connection.
type MySQLCatalog struct {
	db       *sql.DB
	database string
	exclude  []string
}

// NewMySQLCatalog opens connString and checks the connection.
func NewMySQLCatalog(ctx context.Context, connString, database string, exclude []string) (*MySQLCatalog, error) {
	db, err := sql.Open("mysql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &MySQLCatalog{db: db, database: database, exclude: exclude}, nil
}

// Close closes the database connection
func (c *MySQLCatalog) Close(context.Context) error {
	return c.db.Close()
}

// Schemas returns the connection's database unless it is excluded.
func (c *MySQLCatalog) Schemas(context.Context) ([]schema.SchemaInfo, error) {
	if excluded(c.database, c.exclude) {
		return nil, nil
	}
	return []schema.SchemaInfo{{Name: c.database}}, nil
}

// Tables lists base tables with their comments.
func (c *MySQLCatalog) Tables(ctx context.Context, schemaName string) ([]schema.TableInfo, error) {
	query := `
		SELECT table_name, COALESCE(table_comment, '')
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := c.db.QueryContext(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.TableInfo
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, err
		}
		tables = append(tables, schema.TableInfo{Schema: schemaName, Name: name, Description: nonEmpty(comment)})
	}

	return tables, rows.Err()
}

// Columns lists the columns of a table in ordinal order.
func (c *MySQLCatalog) Columns(ctx context.Context, schemaName, table string) ([]RawColumn, error) {
	query := `
		SELECT column_name, ordinal_position, column_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []RawColumn
	for rows.Next() {
		var col RawColumn
		var nullable string
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.Position, &col.Type, &nullable, &defaultVal); err != nil {
			return nil, err
		}

		col.NotNull = nullable != "YES"
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// PrimaryKey extracts primary key columns
func (c *MySQLCatalog) PrimaryKey(ctx context.Context, schemaName, table string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
			AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, schemaName, table)
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

// ForeignKeys groups key_column_usage rows by constraint name.
func (c *MySQLCatalog) ForeignKeys(ctx context.Context, schemaName, table string) ([]RawForeignKey, error) {
	query := `
		SELECT
			constraint_name,
			column_name,
			referenced_table_schema,
			referenced_table_name,
			referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
			AND table_name = ?
			AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []RawForeignKey
	byName := make(map[string]int)
	for rows.Next() {
		var name, column, targetSchema, targetTable, targetColumn string
		if err := rows.Scan(&name, &column, &targetSchema, &targetTable, &targetColumn); err != nil {
			return nil, err
		}

		i, ok := byName[name]
		if !ok {
			i = len(fks)
			byName[name] = i
			fks = append(fks, RawForeignKey{Name: name, TargetSchema: targetSchema, TargetTable: targetTable})
		}
		fks[i].Columns = append(fks[i].Columns, column)
		fks[i].TargetColumns = append(fks[i].TargetColumns, targetColumn)
	}

	return fks, rows.Err()
}

// Constraints returns table constraints. Key constraints are described by
// their column list and CHECK constraints by their clause.
func (c *MySQLCatalog) Constraints(ctx context.Context, schemaName, table string) ([]RawConstraint, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			COALESCE(GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position), ''),
			COALESCE(cc.check_clause, '')
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.table_name = tc.table_name
			AND kcu.constraint_name = tc.constraint_name
		LEFT JOIN information_schema.check_constraints cc
			ON cc.constraint_schema = tc.constraint_schema
			AND cc.constraint_name = tc.constraint_name
		WHERE tc.table_schema = ? AND tc.table_name = ?
		GROUP BY tc.constraint_name, tc.constraint_type, cc.check_clause
		ORDER BY tc.constraint_name
	`

	rows, err := c.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var constraints []RawConstraint
	for rows.Next() {
		var con RawConstraint
		var columns, check string
		if err := rows.Scan(&con.Name, &con.KindCode, &columns, &check); err != nil {
			return nil, err
		}

		if check != "" {
			con.Definition = fmt.Sprintf("CHECK (%s)", check)
		} else {
			con.Definition = fmt.Sprintf("%s (%s)", con.KindCode, strings.ReplaceAll(columns, ",", ", "))
		}
		constraints = append(constraints, con)
	}

	return constraints, rows.Err()
}

// Indexes rebuilds an index definition from information_schema.statistics.
func (c *MySQLCatalog) Indexes(ctx context.Context, schemaName, table string) ([]RawIndex, error) {
	query := `
		SELECT
			s.index_name,
			s.index_type,
			s.non_unique = 0 AS is_unique,
			GROUP_CONCAT(s.column_name ORDER BY s.seq_in_index) AS column_names
		FROM information_schema.statistics s
		WHERE s.table_schema = ?
			AND s.table_name = ?
		GROUP BY s.index_name, s.index_type, s.non_unique
		ORDER BY s.index_name
	`

	rows, err := c.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []RawIndex
	for rows.Next() {
		var idx RawIndex
		var isUnique int
		var columnNames string

		if err := rows.Scan(&idx.Name, &idx.Method, &isUnique, &columnNames); err != nil {
			return nil, err
		}

		unique := ""
		if isUnique == 1 {
			unique = "UNIQUE "
		}
		idx.Method = strings.ToLower(idx.Method)
		idx.Definition = fmt.Sprintf("CREATE %sINDEX `%s` ON `%s` USING %s (%s)",
			unique, idx.Name, table, strings.ToUpper(idx.Method), strings.ReplaceAll(columnNames, ",", ", "))

		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}
