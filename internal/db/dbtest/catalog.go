// Package dbtest provides an in-memory catalog for tests.
package dbtest

import (
	"context"
	"fmt"

	"github.com/tordrt/schemadocs/internal/db"
	"github.com/tordrt/schemadocs/internal/schema"
)

// Table is the fixture for one table.
type Table struct {
	Info        schema.TableInfo
	Columns     []db.RawColumn
	PrimaryKey  []string
	ForeignKeys []db.RawForeignKey
	Constraints []db.RawConstraint
	Indexes     []db.RawIndex
}

// Catalog implements db.Catalog over fixtures. Fail maps "schema" or
// "schema.table" to an error returned when that unit is read.
type Catalog struct {
	SchemaList []schema.SchemaInfo
	TableList  []Table
	Fail       map[string]error
	Closed     bool
}

var _ db.Catalog = (*Catalog)(nil)

// Orders returns a catalog holding only public.orders, whose customer_id
// references public.customers.id.
func Orders() *Catalog {
	return &Catalog{
		SchemaList: []schema.SchemaInfo{{Name: "public"}},
		TableList: []Table{
			{
				Info: schema.TableInfo{Schema: "public", Name: "orders", Owner: "app"},
				Columns: []db.RawColumn{
					{Name: "id", Position: 1, Type: "integer", NotNull: true},
					{Name: "customer_id", Position: 2, Type: "integer", NotNull: true},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []db.RawForeignKey{{
					Name: "orders_customer_id_fkey", Columns: []string{"customer_id"},
					TargetSchema: "public", TargetTable: "customers", TargetColumns: []string{"id"},
				}},
				Constraints: []db.RawConstraint{
					{Name: "orders_pkey", KindCode: "p", Definition: "PRIMARY KEY (id)"},
					{Name: "orders_customer_id_fkey", KindCode: "f", Definition: "FOREIGN KEY (customer_id) REFERENCES customers(id)"},
				},
				Indexes: []db.RawIndex{
					{Name: "orders_pkey", Method: "btree", Definition: "CREATE UNIQUE INDEX orders_pkey ON public.orders USING btree (id)"},
				},
			},
		},
	}
}

func (c *Catalog) fail(unit string) error {
	if err, ok := c.Fail[unit]; ok {
		return err
	}
	return nil
}

func (c *Catalog) table(schemaName, name string) (*Table, error) {
	if err := c.fail(schemaName + "." + name); err != nil {
		return nil, err
	}
	for i := range c.TableList {
		t := &c.TableList[i]
		if t.Info.Schema == schemaName && t.Info.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("table %s.%s not found", schemaName, name)
}

func (c *Catalog) Schemas(context.Context) ([]schema.SchemaInfo, error) {
	if err := c.fail("*"); err != nil {
		return nil, err
	}
	return c.SchemaList, nil
}

func (c *Catalog) Tables(_ context.Context, schemaName string) ([]schema.TableInfo, error) {
	if err := c.fail(schemaName); err != nil {
		return nil, err
	}
	var out []schema.TableInfo
	for _, t := range c.TableList {
		if t.Info.Schema == schemaName {
			out = append(out, t.Info)
		}
	}
	return out, nil
}

func (c *Catalog) Columns(_ context.Context, schemaName, name string) ([]db.RawColumn, error) {
	t, err := c.table(schemaName, name)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

func (c *Catalog) PrimaryKey(_ context.Context, schemaName, name string) ([]string, error) {
	t, err := c.table(schemaName, name)
	if err != nil {
		return nil, err
	}
	return t.PrimaryKey, nil
}

func (c *Catalog) ForeignKeys(_ context.Context, schemaName, name string) ([]db.RawForeignKey, error) {
	t, err := c.table(schemaName, name)
	if err != nil {
		return nil, err
	}
	return t.ForeignKeys, nil
}

func (c *Catalog) Constraints(_ context.Context, schemaName, name string) ([]db.RawConstraint, error) {
	t, err := c.table(schemaName, name)
	if err != nil {
		return nil, err
	}
	return t.Constraints, nil
}

func (c *Catalog) Indexes(_ context.Context, schemaName, name string) ([]db.RawIndex, error) {
	t, err := c.table(schemaName, name)
	if err != nil {
		return nil, err
	}
	return t.Indexes, nil
}

func (c *Catalog) Close(context.Context) error {
	c.Closed = true
	return nil
}
