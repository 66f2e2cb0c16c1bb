// Package diagram renders one entity-relationship diagram per schema.
package diagram

import (
	"context"
	"fmt"
	"strings"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/formatter"
	"github.com/tordrt/schemadocs/internal/runctx"
	"github.com/tordrt/schemadocs/internal/schema"
)

// Supported output formats.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// RenderRequest describes one diagram file to produce.
type RenderRequest struct {
	Database string
	Schema   string
	// DSN is limited to Schema where the driver supports it.
	DSN     string
	Tables  []schema.TableInfo
	Columns []schema.ColumnInfo
	Format  string
	Path    string
}

// Renderer writes a diagram file.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) error
}

// ParseFormats validates a list of format names. PNG is always included.
func ParseFormats(names []string) ([]string, error) {
	formats := []string{FormatPNG}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		switch n {
		case "", FormatPNG:
		case FormatSVG:
			if len(formats) == 1 {
				formats = append(formats, FormatSVG)
			}
		default:
			return nil, fmt.Errorf("unsupported diagram format %q", n)
		}
	}
	return formats, nil
}

// Generator produces the diagrams of a database.
type Generator struct {
	layout   formatter.Layout
	renderer Renderer
	formats  []string
}

// NewGenerator creates a generator writing the given formats below layout.
func NewGenerator(layout formatter.Layout, renderer Renderer, formats []string) *Generator {
	if len(formats) == 0 {
		formats = []string{FormatPNG}
	}
	return &Generator{layout: layout, renderer: renderer, formats: formats}
}

// Generate renders every schema of m that has tables. A schema that fails to
// render is recorded on rc and does not stop the others. It returns the paths
// written.
func (g *Generator) Generate(ctx context.Context, rc *runctx.Run, d config.Database, m *schema.Model) []string {
	var paths []string

	for _, s := range m.Schemas {
		unit := d.Name + "." + s.Name
		tables := m.TablesInSchema(s.Name)
		if len(tables) == 0 {
			rc.Skipped(runctx.PhaseDiagram, unit, "schema has no tables")
			continue
		}

		if _, err := g.layout.EnsureDatabaseDir(d.Name); err != nil {
			rc.Failed(runctx.PhaseDiagram, unit, apperr.Export("render diagram", unit, err))
			continue
		}

		var columns []schema.ColumnInfo
		for _, c := range m.Columns {
			if c.Schema == s.Name {
				columns = append(columns, c)
			}
		}

		written, err := g.renderSchema(ctx, d, s.Name, tables, columns)
		paths = append(paths, written...)
		if err != nil {
			rc.Failed(runctx.PhaseDiagram, unit, apperr.Export("render diagram", unit, err))
			continue
		}
		rc.Succeeded(runctx.PhaseDiagram, unit, "files", len(written))
	}

	return paths
}

func (g *Generator) renderSchema(ctx context.Context, d config.Database, schemaName string, tables []schema.TableInfo, columns []schema.ColumnInfo) ([]string, error) {
	var written []string
	for _, format := range g.formats {
		req := RenderRequest{
			Database: d.Name,
			Schema:   schemaName,
			DSN:      d.SchemaDSN(schemaName),
			Tables:   tables,
			Columns:  columns,
			Format:   format,
			Path:     g.layout.DiagramPath(d.Name, schemaName, format),
		}
		if err := g.renderer.Render(ctx, req); err != nil {
			return written, fmt.Errorf("failed to render %s: %w", format, err)
		}
		written = append(written, req.Path)
	}
	return written, nil
}
