package formatter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/schema"
)

// MarkdownFormatter writes the database overview as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes one section per schema with its tables, columns and references.
func (f *MarkdownFormatter) Format(m *schema.Model) error {
	_, _ = fmt.Fprintf(f.writer, "# %s\n\n", m.Database)

	if len(m.Tables) == 0 {
		_, _ = fmt.Fprintln(f.writer, "No tables found.")
		return nil
	}

	for _, s := range m.Schemas {
		tables := m.TablesInSchema(s.Name)
		if len(tables) == 0 {
			continue
		}

		_, _ = fmt.Fprintf(f.writer, "## Schema %s\n\n", s.Name)
		if s.Description != nil && *s.Description != "" {
			_, _ = fmt.Fprintf(f.writer, "%s\n\n", escapeMarkdown(*s.Description))
		}

		for _, t := range tables {
			f.formatTable(m, t)
		}
	}
	return nil
}

func (f *MarkdownFormatter) formatTable(m *schema.Model, t schema.TableInfo) {
	_, _ = fmt.Fprintf(f.writer, "### %s\n\n", t.QualifiedName())
	if t.Description != nil && *t.Description != "" {
		_, _ = fmt.Fprintf(f.writer, "%s\n\n", escapeMarkdown(*t.Description))
	}

	for _, col := range m.ColumnsOf(t.Schema, t.Name) {
		attrs := columnAttributes(col)
		if attrs != "" {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", col.Name, col.Type, attrs)
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, col.Type)
		}
	}
	_, _ = fmt.Fprintln(f.writer)

	incoming := findIncomingReferences(m, t)
	if len(incoming) > 0 {
		_, _ = fmt.Fprintln(f.writer, "Referenced by:")
		_, _ = fmt.Fprintln(f.writer)
		for _, c := range incoming {
			_, _ = fmt.Fprintf(f.writer, "- %s.%s.%s → %s\n", c.Schema, c.Table, c.Name, c.ForeignKey.Column)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

// markdownEscaper backslash-escapes markdown and HTML syntax in free text
// taken from the catalog.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"<", `\<`,
	">", `\>`,
	"&", `\&`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func columnAttributes(col schema.ColumnInfo) string {
	var attrs []string

	if col.IsPrimaryKey {
		attrs = append(attrs, "PK")
	}
	if !col.Nullable {
		attrs = append(attrs, "NOT NULL")
	}
	if col.DefaultValue != nil {
		attrs = append(attrs, "DEFAULT "+escapeMarkdown(*col.DefaultValue))
	}
	if fk := col.ForeignKey; fk != nil {
		attrs = append(attrs, fmt.Sprintf("FK → %s.%s.%s", fk.Schema, fk.Table, fk.Column))
	}

	return strings.Join(attrs, ", ")
}

// findIncomingReferences returns the columns whose foreign key points at t.
func findIncomingReferences(m *schema.Model, t schema.TableInfo) []schema.ColumnInfo {
	var incoming []schema.ColumnInfo
	for _, c := range m.Columns {
		if c.ForeignKey != nil && c.ForeignKey.Schema == t.Schema && c.ForeignKey.Table == t.Name {
			incoming = append(incoming, c)
		}
	}
	return incoming
}

// OverviewExporter writes <dir>/<db>/<db>_overview.md.
type OverviewExporter struct {
	layout Layout
}

// NewOverviewExporter creates an exporter writing below layout.
func NewOverviewExporter(layout Layout) *OverviewExporter {
	return &OverviewExporter{layout: layout}
}

// Export renders the overview and returns its path.
func (e *OverviewExporter) Export(m *schema.Model) (string, error) {
	if _, err := e.layout.EnsureDatabaseDir(m.Database); err != nil {
		return "", apperr.Export("write overview", m.Database, err)
	}

	var buf bytes.Buffer
	if err := NewMarkdownFormatter(&buf).Format(m); err != nil {
		return "", apperr.Export("write overview", m.Database, err)
	}

	path := e.layout.OverviewPath(m.Database)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", apperr.Export("write overview", m.Database, err)
	}
	return path, nil
}
