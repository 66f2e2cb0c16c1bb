package schemadocs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/db"
	"github.com/tordrt/schemadocs/internal/db/dbtest"
	"github.com/tordrt/schemadocs/internal/diagram"
	"github.com/tordrt/schemadocs/internal/formatter"
	"github.com/tordrt/schemadocs/internal/logging"
	"github.com/tordrt/schemadocs/internal/publish"
	"github.com/tordrt/schemadocs/internal/retention"
	"github.com/tordrt/schemadocs/internal/runctx"
	"github.com/tordrt/schemadocs/internal/wiki/wikitest"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// fileRenderer writes a placeholder diagram.
type fileRenderer struct {
	requests []diagram.RenderRequest
}

func (r *fileRenderer) Render(_ context.Context, req diagram.RenderRequest) error {
	r.requests = append(r.requests, req)
	return os.WriteFile(req.Path, []byte(req.Format), 0644)
}

func newRun() *runctx.Run {
	return runctx.New(logging.Discard(), runctx.WithClock(func() time.Time { return now }))
}

func connections(names ...string) *config.Connections {
	conns := &config.Connections{}
	for _, n := range names {
		conns.Databases = append(conns.Databases, config.Database{
			Name: n, Driver: config.DriverPostgres, Username: "app", Endpoint: "db.internal", Port: 5432, Database: n,
		})
	}
	return conns
}

func openFixtures(catalogs map[string]*dbtest.Catalog) CatalogOpener {
	return func(_ context.Context, d config.Database, _ []string) (db.Catalog, error) {
		c, ok := catalogs[d.Name]
		if !ok {
			return nil, apperr.Connection(d.Name, errors.New("connection refused"))
		}
		return c, nil
	}
}

func TestRun_OrdersEndToEnd(t *testing.T) {
	out := t.TempDir()
	renderer := &fileRenderer{}
	cat := dbtest.Orders()
	rc := newRun()

	report, err := Run(context.Background(), rc, Options{
		Connections: connections("shop"),
		OutputDir:   out,
		Renderer:    renderer,
		OpenCatalog: openFixtures(map[string]*dbtest.Catalog{"shop": cat}),
	})
	require.NoError(t, err)
	require.Len(t, report.Databases, 1)
	dr := report.Databases[0]
	require.NoError(t, dr.Err)
	assert.True(t, dr.Result.Complete())
	assert.True(t, cat.Closed)

	layout := formatter.NewLayout(out)
	assert.Equal(t, layout.WorkbookPath("shop"), dr.Workbook)
	assert.Equal(t, []string{filepath.Join(out, "shop", "public_schema.png")}, dr.Diagrams)
	assert.FileExists(t, filepath.Join(out, "shop", "public_schema.png"))
	assert.FileExists(t, layout.OverviewPath("shop"))

	require.Len(t, renderer.requests, 1)
	assert.Contains(t, renderer.requests[0].DSN, "search_path")

	f, err := excelize.OpenFile(dr.Workbook)
	require.NoError(t, err)
	defer f.Close()

	tables, err := f.GetRows(formatter.SheetTables)
	require.NoError(t, err)
	assert.Len(t, tables, 2, "header plus one table row")

	columns, err := f.GetRows(formatter.SheetColumns)
	require.NoError(t, err)
	require.Len(t, columns, 3, "header plus two column rows")

	header := columns[0]
	col := func(row []string, name string) string {
		for i, h := range header {
			if h == name && i < len(row) {
				return row[i]
			}
		}
		return ""
	}
	assert.Equal(t, "id", col(columns[1], "column_name"))
	assert.Equal(t, "YES", col(columns[1], "is_primary_key"))
	assert.Equal(t, "customer_id", col(columns[2], "column_name"))
	assert.Equal(t, "customers", col(columns[2], "foreign_table"))
	assert.Equal(t, "id", col(columns[2], "foreign_column"))

	s := rc.Summary()
	assert.Equal(t, 0, s.FailedTotal())
	assert.Equal(t, 1, s.Phase(runctx.PhaseConnect).Succeeded)
	assert.Equal(t, 1, s.Phase(runctx.PhaseCatalog).Succeeded)
	assert.Equal(t, 1, s.Phase(runctx.PhaseDictionary).Succeeded)
	assert.Equal(t, 1, s.Phase(runctx.PhaseDiagram).Succeeded)
}

func TestRun_IsolatesDatabases(t *testing.T) {
	out := t.TempDir()
	rc := newRun()

	report, err := Run(context.Background(), rc, Options{
		Connections: connections("down", "shop"),
		OutputDir:   out,
		Renderer:    &fileRenderer{},
		OpenCatalog: openFixtures(map[string]*dbtest.Catalog{"shop": dbtest.Orders()}),
	})
	require.NoError(t, err)
	require.Len(t, report.Databases, 2)
	assert.True(t, errors.Is(report.Databases[0].Err, apperr.ErrConnection))
	assert.NoError(t, report.Databases[1].Err)

	s := rc.Summary()
	assert.Equal(t, 1, s.Phase(runctx.PhaseConnect).Failed)
	assert.Equal(t, 1, s.Phase(runctx.PhaseConnect).Succeeded)
	assert.NoDirExists(t, filepath.Join(out, "down"))
}

func TestRun_TypeSelectsArtifacts(t *testing.T) {
	tests := []struct {
		genType      string
		wantWorkbook bool
		wantDiagram  bool
	}{
		{TypeAll, true, true},
		{TypeDictionary, true, false},
		{TypeSchema, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.genType, func(t *testing.T) {
			out := t.TempDir()
			_, err := Run(context.Background(), newRun(), Options{
				Connections: connections("shop"),
				Type:        tt.genType,
				OutputDir:   out,
				Renderer:    &fileRenderer{},
				OpenCatalog: openFixtures(map[string]*dbtest.Catalog{"shop": dbtest.Orders()}),
			})
			require.NoError(t, err)

			layout := formatter.NewLayout(out)
			_, werr := os.Stat(layout.WorkbookPath("shop"))
			_, derr := os.Stat(layout.DiagramPath("shop", "public", "png"))
			assert.Equal(t, tt.wantWorkbook, werr == nil)
			assert.Equal(t, tt.wantDiagram, derr == nil)
		})
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no connections", Options{}},
		{"bad type", Options{Connections: connections("shop"), Type: "everything"}},
		{"bad format", Options{Connections: connections("shop"), DiagramFormats: []string{"gif"}}},
		{"bad title strategy", Options{Connections: connections("shop"), Publisher: &config.Publisher{TitleStrategy: "daily"}}},
		{"shared page title", Options{Connections: connections("a", "b"), Publisher: &config.Publisher{PageTitle: "Docs_X"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), newRun(), tt.opts)
			require.Error(t, err)
			assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
		})
	}
}

func TestRun_PublishesAndPrunes(t *testing.T) {
	srv := wikitest.NewServer()
	defer srv.Close()

	family := retention.Family{BaseTitle: "Docs_X"}
	for _, age := range []int{2, 6, 13, 20, 27, 45, 90, 170, 250, 400} {
		srv.AddPage("DOCS", family.Title(now.Add(-time.Duration(age)*24*time.Hour)))
	}

	rc := newRun()
	report, err := Run(context.Background(), rc, Options{
		Connections: connections("X", "down"),
		OutputDir:   t.TempDir(),
		Renderer:    &fileRenderer{},
		OpenCatalog: openFixtures(map[string]*dbtest.Catalog{"X": dbtest.Orders()}),
		Publisher: &config.Publisher{
			URL:           srv.URL(),
			Username:      wikitest.Username,
			APIToken:      wikitest.APIToken,
			SpaceKey:      "DOCS",
			PageTitle:     "Docs_{database}",
			TitleStrategy: config.TitleTimestamped,
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Published, 1)
	pub := report.Published[0]
	assert.Equal(t, publish.StateDone, pub.State)
	assert.Equal(t, "Docs_X_2026-06-01_12-00-00", pub.Title)
	assert.Contains(t, pub.Attached, "public_schema.png")
	assert.Contains(t, pub.Attached, "X_data_dictionary.xlsx")

	live := 0
	for _, p := range srv.Pages("DOCS") {
		if _, ok := family.Parse(p.Title); ok {
			live++
		}
	}
	assert.LessOrEqual(t, live, 14)
	assert.Equal(t, 11-len(pub.Deleted), live)

	s := rc.Summary()
	assert.Equal(t, 1, s.Phase(runctx.PhasePublish).Succeeded)
	assert.Equal(t, 1, s.Phase(runctx.PhasePublish).Skipped)
	assert.Equal(t, 1, s.Phase(runctx.PhasePrune).Succeeded)
}

func TestRun_SharedPageTitlePublishesNothing(t *testing.T) {
	srv := wikitest.NewServer()
	defer srv.Close()

	out := t.TempDir()
	_, err := Run(context.Background(), newRun(), Options{
		Connections: connections("a", "b"),
		OutputDir:   out,
		Renderer:    &fileRenderer{},
		OpenCatalog: openFixtures(map[string]*dbtest.Catalog{"a": dbtest.Orders(), "b": dbtest.Orders()}),
		Publisher: &config.Publisher{
			URL:           srv.URL(),
			Username:      wikitest.Username,
			APIToken:      wikitest.APIToken,
			SpaceKey:      "DOCS",
			PageTitle:     "Docs_X",
			TitleStrategy: config.TitleTimestamped,
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfig)
	assert.Empty(t, srv.Pages("DOCS"))
	assert.NoDirExists(t, filepath.Join(out, "a"))
}
