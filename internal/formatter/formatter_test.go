package formatter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/schema"
)

func strPtr(s string) *string { return &s }

func ordersModel() *schema.Model {
	return &schema.Model{
		Database: "shop",
		Schemas:  []schema.SchemaInfo{{Name: "public", Description: strPtr("Main schema")}},
		Tables: []schema.TableInfo{
			{Schema: "public", Name: "customers", Owner: "app"},
			{Schema: "public", Name: "orders", Owner: "app", Description: strPtr("Customer orders")},
		},
		Columns: []schema.ColumnInfo{
			{Schema: "public", Table: "customers", Name: "id", Position: 1, Type: "integer", IsPrimaryKey: true},
			{Schema: "public", Table: "orders", Name: "id", Position: 1, Type: "integer", IsPrimaryKey: true},
			{
				Schema: "public", Table: "orders", Name: "customer_id", Position: 2, Type: "integer", Nullable: true,
				DefaultValue: strPtr("0"),
				ForeignKey:   &schema.ForeignKeyRef{Schema: "public", Table: "customers", Column: "id"},
			},
		},
		Constraints: []schema.ConstraintInfo{
			{Schema: "public", Table: "orders", Name: "orders_pkey", Kind: schema.ConstraintPrimaryKey, Definition: "PRIMARY KEY (id)"},
		},
	}
}

func TestLayout(t *testing.T) {
	l := NewLayout("out")
	assert.Equal(t, filepath.Join("out", "shop", "shop_data_dictionary.xlsx"), l.WorkbookPath("shop"))
	assert.Equal(t, filepath.Join("out", "shop", "shop_overview.md"), l.OverviewPath("shop"))
	assert.Equal(t, filepath.Join("out", "shop", "public_schema.png"), l.DiagramPath("shop", "public", "png"))
}

func TestWorkbookExporter(t *testing.T) {
	l := NewLayout(t.TempDir())
	path, err := NewWorkbookExporter(l).Export(ordersModel())
	require.NoError(t, err)
	assert.Equal(t, l.WorkbookPath("shop"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetTables, SheetColumns, SheetConstraints, SheetIndexes}, f.GetSheetList())

	rows, err := f.GetRows(SheetTables)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, TablesHeader, rows[0])
	assert.Equal(t, []string{"public", "orders", "app", "Customer orders"}, rows[2])

	rows, err = f.GetRows(SheetColumns)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, ColumnsHeader, rows[0])
	assert.Equal(t, []string{"public", "orders", "customer_id", "2", "integer", "YES", "0", "NO", "public", "customers", "id"}, rows[3])

	// empty entity lists still get a sheet with its header
	rows, err = f.GetRows(SheetIndexes)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, IndexesHeader, rows[0])
}

func TestWorkbookExporter_EmptyModel(t *testing.T) {
	l := NewLayout(t.TempDir())
	path, err := NewWorkbookExporter(l).Export(&schema.Model{Database: "empty"})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 4)
}

func TestWorkbookExporter_WriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewWorkbookExporter(NewLayout(blocker)).Export(ordersModel())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExport)
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMarkdownFormatter(&buf).Format(ordersModel()))

	out := buf.String()
	assert.Contains(t, out, "# shop\n")
	assert.Contains(t, out, "## Schema public\n\nMain schema\n")
	assert.Contains(t, out, "### public.orders\n\nCustomer orders\n")
	assert.Contains(t, out, "- **id:** integer, PK, NOT NULL\n")
	assert.Contains(t, out, "- **customer_id:** integer, DEFAULT 0, FK → public.customers.id\n")
	assert.Contains(t, out, "Referenced by:\n\n- public.orders.customer_id → id\n")
}

func TestMarkdownFormatter_EscapesComments(t *testing.T) {
	m := ordersModel()
	m.Tables[1].Description = strPtr("One row per <user> account & *more*")
	m.Columns[2].DefaultValue = strPtr("'<none>'::text")

	var buf bytes.Buffer
	require.NoError(t, NewMarkdownFormatter(&buf).Format(m))

	out := buf.String()
	assert.Contains(t, out, `One row per \<user\> account \& \*more\*`)
	assert.Contains(t, out, `DEFAULT '\<none\>'::text`)
	assert.NotContains(t, out, "<user>")
}

func TestOverviewExporter(t *testing.T) {
	l := NewLayout(t.TempDir())
	path, err := NewOverviewExporter(l).Export(ordersModel())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### public.customers")

	files, err := l.Artifacts("shop")
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}
