// Package db reads the system catalogs of PostgreSQL, MySQL and SQLite.
//
// Readers only issue read-only SELECT and PRAGMA statements. They return typed
// raw rows; resolving primary and foreign key annotations is left to the
// dictionary package.
package db

import (
	"context"
	"fmt"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/schema"
)

// RawColumn is one row of a table's column catalog.
type RawColumn struct {
	Name     string
	Position int
	Type     string
	NotNull  bool
	Default  *string
}

// RawForeignKey is one foreign key constraint with its referencing and
// referenced columns in key order.
type RawForeignKey struct {
	Name          string
	Columns       []string
	TargetSchema  string
	TargetTable   string
	TargetColumns []string
}

// RawConstraint is a constraint with its driver-specific kind code.
type RawConstraint struct {
	Name       string
	KindCode   string
	Definition string
}

// RawIndex is one index of a table.
type RawIndex struct {
	Name       string
	Method     string
	Definition string
}

// Catalog is implemented by every driver-specific reader.
type Catalog interface {
	Schemas(ctx context.Context) ([]schema.SchemaInfo, error)
	Tables(ctx context.Context, schemaName string) ([]schema.TableInfo, error)
	Columns(ctx context.Context, schemaName, table string) ([]RawColumn, error)
	PrimaryKey(ctx context.Context, schemaName, table string) ([]string, error)
	ForeignKeys(ctx context.Context, schemaName, table string) ([]RawForeignKey, error)
	Constraints(ctx context.Context, schemaName, table string) ([]RawConstraint, error)
	Indexes(ctx context.Context, schemaName, table string) ([]RawIndex, error)
	Close(ctx context.Context) error
}

// Open connects to the database described by d and returns its catalog
// reader. Schemas named in exclude are hidden from Schemas.
func Open(ctx context.Context, d config.Database, exclude []string) (Catalog, error) {
	var (
		c   Catalog
		err error
	)
	switch d.Driver {
	case config.DriverPostgres, "":
		c, err = NewPostgresCatalog(ctx, d.DSN(), exclude)
	case config.DriverMySQL:
		c, err = NewMySQLCatalog(ctx, d.DSN(), d.Database, exclude)
	case config.DriverSQLite:
		c, err = NewSQLiteCatalog(ctx, d.DSN(), exclude)
	default:
		err = fmt.Errorf("unsupported driver %q", d.Driver)
	}
	if err != nil {
		return nil, apperr.Connection(d.Name, err)
	}
	return c, nil
}

func excluded(name string, exclude []string) bool {
	for _, e := range exclude {
		if e == name {
			return true
		}
	}
	return false
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
