package diagram

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/tordrt/schemadocs/internal/schema"
)

// GraphvizRenderer draws tables as record nodes and foreign keys as edges
// using the embedded graphviz library.
type GraphvizRenderer struct{}

// NewGraphvizRenderer creates the built-in renderer.
func NewGraphvizRenderer() *GraphvizRenderer {
	return &GraphvizRenderer{}
}

// Render implements Renderer.
func (r *GraphvizRenderer) Render(_ context.Context, req RenderRequest) error {
	format, err := graphvizFormat(req.Format)
	if err != nil {
		return err
	}

	g := graphviz.New()
	defer func() { _ = g.Close() }()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(req.Tables))
	for _, t := range req.Tables {
		n, err := graph.CreateNode(t.QualifiedName())
		if err != nil {
			return fmt.Errorf("failed to create node %s: %w", t.QualifiedName(), err)
		}
		n.SetShape(cgraph.Shape("record"))
		n.SetLabel(RecordLabel(t, columnsOf(req.Columns, t)))
		nodes[t.QualifiedName()] = n
	}

	for i, c := range req.Columns {
		if c.ForeignKey == nil {
			continue
		}
		from := nodes[c.Schema+"."+c.Table]
		if from == nil {
			continue
		}

		target := c.ForeignKey.Schema + "." + c.ForeignKey.Table
		to := nodes[target]
		if to == nil {
			// referenced table lives in another schema
			to, err = graph.CreateNode(target)
			if err != nil {
				return fmt.Errorf("failed to create node %s: %w", target, err)
			}
			to.SetShape(cgraph.BoxShape)
			nodes[target] = to
		}

		e, err := graph.CreateEdge(fmt.Sprintf("fk%d", i), from, to)
		if err != nil {
			return fmt.Errorf("failed to create edge for %s.%s: %w", c.Table, c.Name, err)
		}
		e.SetLabel(c.Name)
	}

	if err := g.RenderFilename(graph, format, req.Path); err != nil {
		return fmt.Errorf("failed to write %s: %w", req.Path, err)
	}
	return nil
}

func graphvizFormat(name string) (graphviz.Format, error) {
	switch name {
	case FormatPNG:
		return graphviz.PNG, nil
	case FormatSVG:
		return graphviz.SVG, nil
	default:
		return "", fmt.Errorf("unsupported diagram format %q", name)
	}
}

func columnsOf(columns []schema.ColumnInfo, t schema.TableInfo) []schema.ColumnInfo {
	var out []schema.ColumnInfo
	for _, c := range columns {
		if c.Schema == t.Schema && c.Table == t.Name {
			out = append(out, c)
		}
	}
	return out
}

var recordEscaper = strings.NewReplacer(
	`\`, `\\`,
	`{`, `\{`,
	`}`, `\}`,
	`|`, `\|`,
	`<`, `\<`,
	`>`, `\>`,
	`"`, `\"`,
)

// RecordLabel builds a graphviz record label: the table name on top and
// one left-aligned line per column.
func RecordLabel(t schema.TableInfo, columns []schema.ColumnInfo) string {
	var b strings.Builder
	b.WriteString("{")
	b.WriteString(recordEscaper.Replace(t.Name))
	b.WriteString("|")
	for _, c := range columns {
		line := c.Name + " : " + c.Type
		if c.IsPrimaryKey {
			line += " (PK)"
		}
		if c.ForeignKey != nil {
			line += " (FK)"
		}
		b.WriteString(recordEscaper.Replace(line))
		b.WriteString(`\l`)
	}
	b.WriteString("}")
	return b.String()
}
