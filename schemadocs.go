// Package schemadocs introspects relational databases and publishes their
// documentation to a Confluence wiki.
//
// For every database in the connections file a run reads the catalog, writes
// a data dictionary workbook and a markdown overview, and renders one
// entity-relationship diagram per schema. With publishing enabled each
// database then becomes a wiki page, its artifacts are attached, and older
// snapshots of the page are pruned by age tier.
//
// # Quick Start
//
//	conns, err := config.LoadConnections("config/connections.json")
//	if err != nil {
//		return err
//	}
//	rc := runctx.New(logging.New("info", "text", os.Stderr))
//	report, err := schemadocs.Run(ctx, rc, schemadocs.Options{
//		Connections: conns,
//		OutputDir:   "output/data_dictionary",
//	})
//
// # Failure isolation
//
// Only configuration problems make Run return an error. A database that cannot
// be reached, a table whose catalog cannot be read, a diagram that fails to
// render or a page that fails to publish is recorded on the run context and
// the run moves on to the next unit. The run summary tells partial results
// apart from complete ones.
package schemadocs

import (
	"context"
	"fmt"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/db"
	"github.com/tordrt/schemadocs/internal/diagram"
	"github.com/tordrt/schemadocs/internal/dictionary"
	"github.com/tordrt/schemadocs/internal/formatter"
	"github.com/tordrt/schemadocs/internal/publish"
	"github.com/tordrt/schemadocs/internal/runctx"
	"github.com/tordrt/schemadocs/internal/wiki"
)

// Generation types accepted by Options.Type.
const (
	TypeAll        = "all"
	TypeDictionary = "dictionary"
	TypeSchema     = "schema"
)

// DefaultOutputDir is where artifacts go when Options.OutputDir is empty.
const DefaultOutputDir = "output/data_dictionary"

// CatalogOpener connects to one database.
type CatalogOpener func(ctx context.Context, d config.Database, exclude []string) (db.Catalog, error)

// Options configures a run.
//
// Connections is required. Everything else has a default:
//   - Type: all
//   - OutputDir: output/data_dictionary
//   - DiagramFormats: png
//   - Renderer: the built-in graphviz renderer
//   - OpenCatalog: db.Open
//
// Publishing happens only when Publisher is set. Wiki replaces the Confluence
// client built from Publisher.
type Options struct {
	Connections *config.Connections

	// Type selects what to generate: all, dictionary or schema.
	Type string

	OutputDir string

	// ExcludeSchemas are hidden in every database, on top of each
	// database's own exclude_schemas.
	ExcludeSchemas []string

	DiagramFormats []string
	Renderer       diagram.Renderer

	OpenCatalog CatalogOpener

	Publisher *config.Publisher
	Wiki      publish.WikiClient
}

// DatabaseReport is what generation produced for one database.
type DatabaseReport struct {
	Name     string
	Workbook string
	Overview string
	Diagrams []string

	// Result is nil when the catalog could not be read at all.
	Result *dictionary.Result

	// Err is the error that stopped generation for this database, if any.
	Err error
}

// Report is the outcome of a run.
type Report struct {
	Databases []DatabaseReport
	Published []publish.Report
}

// Run generates documentation for every configured database and, when
// configured, publishes it. Per-unit failures are recorded on rc; only
// configuration errors are returned.
func Run(ctx context.Context, rc *runctx.Run, opts Options) (*Report, error) {
	if opts.Connections == nil || len(opts.Connections.Databases) == 0 {
		return nil, apperr.Config("run", fmt.Errorf("no databases configured"))
	}

	genType := opts.Type
	if genType == "" {
		genType = TypeAll
	}
	switch genType {
	case TypeAll, TypeDictionary, TypeSchema:
	default:
		return nil, apperr.Config("run", fmt.Errorf("invalid type %q (must be all, dictionary or schema)", genType))
	}

	formats, err := diagram.ParseFormats(opts.DiagramFormats)
	if err != nil {
		return nil, apperr.Config("diagram formats", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	layout := formatter.NewLayout(outputDir)

	var publisher *publish.Publisher
	if opts.Publisher != nil {
		names := make([]string, len(opts.Connections.Databases))
		for i, d := range opts.Connections.Databases {
			names[i] = d.Name
		}
		if err := opts.Publisher.CheckFamilies(names); err != nil {
			return nil, apperr.Config("page title", err)
		}
		client := opts.Wiki
		if client == nil {
			wc := wiki.NewClient(opts.Publisher.URL, opts.Publisher.Username, opts.Publisher.APIToken)
			defer wc.Close()
			client = wc
		}
		publisher, err = publish.New(client, *opts.Publisher, layout)
		if err != nil {
			return nil, err
		}
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = diagram.NewGraphvizRenderer()
	}

	g := &generator{
		open:       opts.OpenCatalog,
		exclude:    opts.ExcludeSchemas,
		dictionary: genType == TypeAll || genType == TypeDictionary,
		diagrams:   genType == TypeAll || genType == TypeSchema,
		workbook:   formatter.NewWorkbookExporter(layout),
		overview:   formatter.NewOverviewExporter(layout),
		diagram:    diagram.NewGenerator(layout, renderer, formats),
	}
	if g.open == nil {
		g.open = db.Open
	}

	report := &Report{}
	var ready []string
	for _, d := range opts.Connections.Databases {
		if err := ctx.Err(); err != nil {
			rc.Skipped(runctx.PhaseConnect, d.Name, "run cancelled")
			report.Databases = append(report.Databases, DatabaseReport{Name: d.Name, Err: err})
			continue
		}

		dr := g.generate(ctx, rc, d)
		report.Databases = append(report.Databases, dr)
		if dr.Err == nil {
			ready = append(ready, d.Name)
		} else if publisher != nil {
			rc.Skipped(runctx.PhasePublish, d.Name, "generation failed")
		}
	}

	if publisher != nil {
		report.Published = publisher.PublishAll(ctx, rc, ready)
	}

	return report, nil
}

type generator struct {
	open       CatalogOpener
	exclude    []string
	dictionary bool
	diagrams   bool
	workbook   *formatter.WorkbookExporter
	overview   *formatter.OverviewExporter
	diagram    *diagram.Generator
}

// generate runs connect, catalog, dictionary and diagram for one database.
func (g *generator) generate(ctx context.Context, rc *runctx.Run, d config.Database) DatabaseReport {
	dr := DatabaseReport{Name: d.Name}
	log := rc.Logger.With("database", d.Name)

	exclude := append(append([]string{}, g.exclude...), d.ExcludeSchemas...)
	cat, err := g.open(ctx, d, exclude)
	if err != nil {
		dr.Err = err
		rc.Failed(runctx.PhaseConnect, d.Name, err)
		return dr
	}
	defer func() {
		if err := cat.Close(ctx); err != nil {
			log.Warn("failed to close connection", "error", err)
		}
	}()
	rc.Succeeded(runctx.PhaseConnect, d.Name, "target", d.Redacted())

	res, err := dictionary.Collect(ctx, rc, cat, d.Name)
	if err != nil {
		dr.Err = err
		rc.Failed(runctx.PhaseCatalog, d.Name, err)
		return dr
	}
	dr.Result = res
	if !res.Complete() {
		log.Warn("catalog read partially",
			"tables_read", res.TablesRead,
			"tables_skipped", len(res.TablesSkipped),
			"schemas_skipped", len(res.SchemasSkipped))
	}

	if g.dictionary {
		if err := g.exportDictionary(&dr, res); err != nil {
			dr.Err = err
			rc.Failed(runctx.PhaseDictionary, d.Name, err)
		} else {
			rc.Succeeded(runctx.PhaseDictionary, d.Name, "tables", res.TablesRead, "complete", res.Complete())
		}
	}

	if g.diagrams {
		dr.Diagrams = g.diagram.Generate(ctx, rc, d, res.Model)
	}

	return dr
}

func (g *generator) exportDictionary(dr *DatabaseReport, res *dictionary.Result) error {
	path, err := g.workbook.Export(res.Model)
	if err != nil {
		return err
	}
	dr.Workbook = path

	path, err = g.overview.Export(res.Model)
	if err != nil {
		return err
	}
	dr.Overview = path
	return nil
}
