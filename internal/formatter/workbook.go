package formatter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/schema"
)

// Sheet names, in workbook order.
const (
	SheetTables      = "Tables"
	SheetColumns     = "Columns"
	SheetConstraints = "Constraints"
	SheetIndexes     = "Indexes"
)

// Header rows of each sheet.
var (
	TablesHeader      = []string{"schema_name", "table_name", "owner", "description"}
	ColumnsHeader     = []string{"schema_name", "table_name", "column_name", "ordinal_position", "data_type", "is_nullable", "default_value", "is_primary_key", "foreign_schema", "foreign_table", "foreign_column"}
	ConstraintsHeader = []string{"schema_name", "table_name", "constraint_name", "constraint_type", "definition"}
	IndexesHeader     = []string{"schema_name", "table_name", "index_name", "index_method", "definition"}
)

// WorkbookExporter writes the data dictionary workbook.
type WorkbookExporter struct {
	layout Layout
}

// NewWorkbookExporter creates an exporter writing below layout.
func NewWorkbookExporter(layout Layout) *WorkbookExporter {
	return &WorkbookExporter{layout: layout}
}

// Export writes m to <dir>/<db>/<db>_data_dictionary.xlsx and returns the path.
// Every sheet is written even when it has no rows.
func (e *WorkbookExporter) Export(m *schema.Model) (string, error) {
	if _, err := e.layout.EnsureDatabaseDir(m.Database); err != nil {
		return "", apperr.Export("write workbook", m.Database, err)
	}

	path := e.layout.WorkbookPath(m.Database)
	if err := writeWorkbook(path, m); err != nil {
		return "", apperr.Export("write workbook", m.Database, err)
	}
	return path, nil
}

func writeWorkbook(path string, m *schema.Model) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]any
	}{
		{SheetTables, TablesHeader, tableRows(m.Tables)},
		{SheetColumns, ColumnsHeader, columnRows(m.Columns)},
		{SheetConstraints, ConstraintsHeader, constraintRows(m.Constraints)},
		{SheetIndexes, IndexesHeader, indexRows(m.Indexes)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}

		if err := writeSheet(f, s.name, s.header, s.rows, bold); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", s.name, err)
		}
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func tableRows(tables []schema.TableInfo) [][]any {
	rows := make([][]any, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, []any{t.Schema, t.Name, t.Owner, deref(t.Description)})
	}
	return rows
}

func columnRows(columns []schema.ColumnInfo) [][]any {
	rows := make([][]any, 0, len(columns))
	for _, c := range columns {
		var fkSchema, fkTable, fkColumn string
		if c.ForeignKey != nil {
			fkSchema, fkTable, fkColumn = c.ForeignKey.Schema, c.ForeignKey.Table, c.ForeignKey.Column
		}
		rows = append(rows, []any{
			c.Schema, c.Table, c.Name, c.Position, c.Type,
			yesNo(c.Nullable), deref(c.DefaultValue), yesNo(c.IsPrimaryKey),
			fkSchema, fkTable, fkColumn,
		})
	}
	return rows
}

func constraintRows(constraints []schema.ConstraintInfo) [][]any {
	rows := make([][]any, 0, len(constraints))
	for _, c := range constraints {
		rows = append(rows, []any{c.Schema, c.Table, c.Name, string(c.Kind), c.Definition})
	}
	return rows
}

func indexRows(indexes []schema.IndexInfo) [][]any {
	rows := make([][]any, 0, len(indexes))
	for _, i := range indexes {
		rows = append(rows, []any{i.Schema, i.Table, i.Name, i.Method, i.Definition})
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
