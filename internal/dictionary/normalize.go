// Package dictionary turns raw catalog rows into a schema.Model.
//
// Collect walks a catalog reader schema by schema and table by table. A table
// whose catalog reads fail is skipped and recorded; the rest of the database is
// still documented. Normalize is pure and does the key resolution and ordering.
package dictionary

import (
	"fmt"
	"sort"

	"github.com/tordrt/schemadocs/internal/db"
	"github.com/tordrt/schemadocs/internal/schema"
)

// RawTable holds everything read from the catalog for one table.
type RawTable struct {
	Info        schema.TableInfo
	Columns     []db.RawColumn
	PrimaryKey  []string
	ForeignKeys []db.RawForeignKey
	Constraints []db.RawConstraint
	Indexes     []db.RawIndex
}

// Normalize builds the model for one database. Tables that fail
// normalization are left out and returned as errors keyed by qualified name.
func Normalize(database string, schemas []schema.SchemaInfo, tables []RawTable) (*schema.Model, map[string]error) {
	m := &schema.Model{Database: database, Schemas: schemas}
	failed := make(map[string]error)

	sorted := make([]RawTable, len(tables))
	copy(sorted, tables)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Info, sorted[j].Info
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Schema < b.Schema
	})

	for _, raw := range sorted {
		columns, err := NormalizeColumns(raw)
		if err != nil {
			failed[raw.Info.QualifiedName()] = err
			continue
		}
		m.Tables = append(m.Tables, raw.Info)
		m.Columns = append(m.Columns, columns...)
		m.Constraints = append(m.Constraints, NormalizeConstraints(raw)...)
		m.Indexes = append(m.Indexes, NormalizeIndexes(raw)...)
	}

	return m, failed
}

// NormalizeColumns orders a table's columns by position and annotates
// primary and foreign keys.
func NormalizeColumns(raw RawTable) ([]schema.ColumnInfo, error) {
	pk := make(map[string]bool, len(raw.PrimaryKey))
	for _, name := range raw.PrimaryKey {
		pk[name] = true
	}

	seen := make(map[int]string, len(raw.Columns))
	columns := make([]schema.ColumnInfo, 0, len(raw.Columns))
	for _, rc := range raw.Columns {
		if prev, dup := seen[rc.Position]; dup {
			return nil, fmt.Errorf("columns %s and %s share ordinal position %d", prev, rc.Name, rc.Position)
		}
		seen[rc.Position] = rc.Name

		columns = append(columns, schema.ColumnInfo{
			Schema:       raw.Info.Schema,
			Table:        raw.Info.Name,
			Name:         rc.Name,
			Position:     rc.Position,
			Type:         rc.Type,
			Nullable:     !rc.NotNull,
			DefaultValue: rc.Default,
			IsPrimaryKey: pk[rc.Name],
			ForeignKey:   resolveForeignKey(raw.Info.Schema, rc.Name, raw.ForeignKeys),
		})
	}

	sort.Slice(columns, func(i, j int) bool {
		return columns[i].Position < columns[j].Position
	})
	return columns, nil
}

// resolveForeignKey picks the reference shown for one column.
//
// A single-column foreign key on the column wins; two or more of them are
// ambiguous and yield no reference. Otherwise the first composite key that
// contains the column is used, pairing columns by position. That pairing is
// an approximation for composite keys.
func resolveForeignKey(tableSchema, column string, fks []db.RawForeignKey) *schema.ForeignKeyRef {
	var single []db.RawForeignKey
	for _, fk := range fks {
		if len(fk.Columns) == 1 && fk.Columns[0] == column {
			single = append(single, fk)
		}
	}

	switch len(single) {
	case 1:
		return reference(tableSchema, single[0], 0)
	case 0:
	default:
		return nil
	}

	for _, fk := range fks {
		if len(fk.Columns) < 2 {
			continue
		}
		for i, c := range fk.Columns {
			if c == column {
				return reference(tableSchema, fk, i)
			}
		}
	}
	return nil
}

func reference(tableSchema string, fk db.RawForeignKey, i int) *schema.ForeignKeyRef {
	if len(fk.TargetColumns) == 0 || fk.TargetTable == "" {
		return nil
	}
	if i >= len(fk.TargetColumns) || len(fk.TargetColumns) != len(fk.Columns) {
		i = 0
	}
	target := fk.TargetColumns[i]
	if target == "" {
		return nil
	}

	targetSchema := fk.TargetSchema
	if targetSchema == "" {
		targetSchema = tableSchema
	}
	return &schema.ForeignKeyRef{Schema: targetSchema, Table: fk.TargetTable, Column: target}
}

// NormalizeConstraints maps kind codes and drops repeated constraint names,
// keeping the first. Discovery order is preserved.
func NormalizeConstraints(raw RawTable) []schema.ConstraintInfo {
	seen := make(map[string]bool, len(raw.Constraints))
	var out []schema.ConstraintInfo
	for _, rc := range raw.Constraints {
		if seen[rc.Name] {
			continue
		}
		seen[rc.Name] = true
		out = append(out, schema.ConstraintInfo{
			Schema:     raw.Info.Schema,
			Table:      raw.Info.Name,
			Name:       rc.Name,
			Kind:       schema.ParseConstraintKind(rc.KindCode),
			Definition: rc.Definition,
		})
	}
	return out
}

// NormalizeIndexes attaches the owning table to each index.
func NormalizeIndexes(raw RawTable) []schema.IndexInfo {
	out := make([]schema.IndexInfo, 0, len(raw.Indexes))
	for _, ri := range raw.Indexes {
		out = append(out, schema.IndexInfo{
			Schema:     raw.Info.Schema,
			Table:      raw.Info.Name,
			Name:       ri.Name,
			Method:     ri.Method,
			Definition: ri.Definition,
		})
	}
	return out
}
