package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConstraintKind(t *testing.T) {
	tests := []struct {
		code string
		want ConstraintKind
	}{
		{"p", ConstraintPrimaryKey},
		{"f", ConstraintForeignKey},
		{"u", ConstraintUnique},
		{"c", ConstraintCheck},
		{"PRIMARY KEY", ConstraintPrimaryKey},
		{"FOREIGN KEY", ConstraintForeignKey},
		{"unique", ConstraintUnique},
		{" CHECK ", ConstraintCheck},
		{"x", ConstraintOther},
		{"t", ConstraintOther},
		{"", ConstraintOther},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseConstraintKind(tt.code))
		})
	}
}

func TestModelLookups(t *testing.T) {
	m := &Model{
		Tables: []TableInfo{
			{Schema: "public", Name: "customers"},
			{Schema: "billing", Name: "invoices"},
			{Schema: "public", Name: "orders"},
		},
		Columns: []ColumnInfo{
			{Schema: "public", Table: "orders", Name: "id", Position: 1},
			{Schema: "billing", Table: "orders", Name: "ref", Position: 1},
			{Schema: "public", Table: "orders", Name: "customer_id", Position: 2},
		},
	}

	tables := m.TablesInSchema("public")
	assert.Len(t, tables, 2)
	assert.Equal(t, "public.orders", tables[1].QualifiedName())

	cols := m.ColumnsOf("public", "orders")
	assert.Len(t, cols, 2)
	assert.Equal(t, "customer_id", cols[1].Name)

	assert.Empty(t, m.TablesInSchema("missing"))
}
