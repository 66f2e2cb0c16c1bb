package dictionary

import (
	"context"
	"fmt"
	"sort"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/db"
	"github.com/tordrt/schemadocs/internal/runctx"
	"github.com/tordrt/schemadocs/internal/schema"
)

// Reader is the part of a catalog that Collect needs.
type Reader interface {
	Schemas(ctx context.Context) ([]schema.SchemaInfo, error)
	Tables(ctx context.Context, schemaName string) ([]schema.TableInfo, error)
	Columns(ctx context.Context, schemaName, table string) ([]db.RawColumn, error)
	PrimaryKey(ctx context.Context, schemaName, table string) ([]string, error)
	ForeignKeys(ctx context.Context, schemaName, table string) ([]db.RawForeignKey, error)
	Constraints(ctx context.Context, schemaName, table string) ([]db.RawConstraint, error)
	Indexes(ctx context.Context, schemaName, table string) ([]db.RawIndex, error)
}

// Result is a collected model plus what could not be read.
type Result struct {
	Model          *schema.Model
	TablesRead     int
	TablesSkipped  []string
	SchemasSkipped []string
}

// Complete reports whether every schema and table was read.
func (r *Result) Complete() bool {
	return len(r.TablesSkipped) == 0 && len(r.SchemasSkipped) == 0
}

// Collect reads the whole catalog of one database. Only a failure to list
// schemas is returned; table and schema failures are recorded on rc and in
// the result.
func Collect(ctx context.Context, rc *runctx.Run, reader Reader, database string) (*Result, error) {
	logger := rc.Logger.With("database", database)

	schemas, err := reader.Schemas(ctx)
	if err != nil {
		return nil, apperr.CatalogQuery("list schemas", database, err)
	}

	res := &Result{}
	var raws []RawTable
	var kept []schema.SchemaInfo

	for _, s := range schemas {
		tables, err := reader.Tables(ctx, s.Name)
		if err != nil {
			unit := database + "." + s.Name
			rc.Failed(runctx.PhaseCatalog, unit, apperr.CatalogQuery("list tables", unit, err))
			res.SchemasSkipped = append(res.SchemasSkipped, s.Name)
			continue
		}
		kept = append(kept, s)
		logger.Debug("schema listed", "schema", s.Name, "tables", len(tables))

		for _, t := range tables {
			unit := database + "." + t.QualifiedName()
			raw, err := readTable(ctx, reader, t)
			if err != nil {
				rc.Failed(runctx.PhaseCatalog, unit, apperr.CatalogQuery("read table", unit, err))
				res.TablesSkipped = append(res.TablesSkipped, t.QualifiedName())
				continue
			}
			raws = append(raws, raw)
		}
	}

	model, failed := Normalize(database, kept, raws)

	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		unit := database + "." + name
		rc.Failed(runctx.PhaseCatalog, unit, apperr.CatalogQuery("normalize table", unit, failed[name]))
		res.TablesSkipped = append(res.TablesSkipped, name)
	}

	for _, t := range model.Tables {
		rc.Succeeded(runctx.PhaseCatalog, database+"."+t.QualifiedName())
	}

	res.Model = model
	res.TablesRead = len(model.Tables)
	return res, nil
}

func readTable(ctx context.Context, reader Reader, t schema.TableInfo) (RawTable, error) {
	raw := RawTable{Info: t}
	var err error

	if raw.Columns, err = reader.Columns(ctx, t.Schema, t.Name); err != nil {
		return raw, fmt.Errorf("failed to read columns: %w", err)
	}
	if raw.PrimaryKey, err = reader.PrimaryKey(ctx, t.Schema, t.Name); err != nil {
		return raw, fmt.Errorf("failed to read primary key: %w", err)
	}
	if raw.ForeignKeys, err = reader.ForeignKeys(ctx, t.Schema, t.Name); err != nil {
		return raw, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	if raw.Constraints, err = reader.Constraints(ctx, t.Schema, t.Name); err != nil {
		return raw, fmt.Errorf("failed to read constraints: %w", err)
	}
	if raw.Indexes, err = reader.Indexes(ctx, t.Schema, t.Name); err != nil {
		return raw, fmt.Errorf("failed to read indexes: %w", err)
	}

	return raw, nil
}
