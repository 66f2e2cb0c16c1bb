package schema

import "strings"

// SchemaInfo represents a database schema (namespace)
type SchemaInfo struct {
	Name        string
	Description *string
}

// TableInfo represents a database table
type TableInfo struct {
	Schema      string
	Name        string
	Owner       string
	Description *string
}

// ForeignKeyRef is the target of a foreign key. All three parts are always set.
type ForeignKeyRef struct {
	Schema string
	Table  string
	Column string
}

// ColumnInfo represents a table column
type ColumnInfo struct {
	Schema       string
	Table        string
	Name         string
	Position     int
	Type         string
	Nullable     bool
	DefaultValue *string
	IsPrimaryKey bool
	ForeignKey   *ForeignKeyRef
}

// ConstraintKind is the closed set of constraint kinds.
type ConstraintKind string

const (
	ConstraintPrimaryKey ConstraintKind = "PRIMARY_KEY"
	ConstraintForeignKey ConstraintKind = "FOREIGN_KEY"
	ConstraintUnique     ConstraintKind = "UNIQUE"
	ConstraintCheck      ConstraintKind = "CHECK"
	ConstraintOther      ConstraintKind = "OTHER"
)

// ParseConstraintKind maps a raw catalog kind code to a ConstraintKind.
// It accepts PostgreSQL contype codes (p, f, u, c) as well as the
// information_schema spelling ("PRIMARY KEY", "FOREIGN KEY", ...).
// Anything else maps to ConstraintOther.
func ParseConstraintKind(code string) ConstraintKind {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "P", "PRIMARY KEY", "PRIMARY_KEY":
		return ConstraintPrimaryKey
	case "F", "FOREIGN KEY", "FOREIGN_KEY":
		return ConstraintForeignKey
	case "U", "UNIQUE":
		return ConstraintUnique
	case "C", "CHECK":
		return ConstraintCheck
	default:
		return ConstraintOther
	}
}

// ConstraintInfo represents a table constraint
type ConstraintInfo struct {
	Schema     string
	Table      string
	Name       string
	Kind       ConstraintKind
	Definition string
}

// IndexInfo represents a database index
type IndexInfo struct {
	Schema     string
	Table      string
	Name       string
	Method     string
	Definition string
}

// Model is the data dictionary for one database in one run.
type Model struct {
	Database    string
	Schemas     []SchemaInfo
	Tables      []TableInfo
	Columns     []ColumnInfo
	Constraints []ConstraintInfo
	Indexes     []IndexInfo
}

// TablesInSchema returns the tables that belong to the named schema, in model order.
func (m *Model) TablesInSchema(schemaName string) []TableInfo {
	var tables []TableInfo
	for _, t := range m.Tables {
		if t.Schema == schemaName {
			tables = append(tables, t)
		}
	}
	return tables
}

// ColumnsOf returns the columns of one table, in model order.
func (m *Model) ColumnsOf(schemaName, tableName string) []ColumnInfo {
	var columns []ColumnInfo
	for _, c := range m.Columns {
		if c.Schema == schemaName && c.Table == tableName {
			columns = append(columns, c)
		}
	}
	return columns
}

// QualifiedName returns schema.table.
func (t TableInfo) QualifiedName() string {
	return t.Schema + "." + t.Name
}
