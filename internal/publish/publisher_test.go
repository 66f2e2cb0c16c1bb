package publish

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/formatter"
	"github.com/tordrt/schemadocs/internal/logging"
	"github.com/tordrt/schemadocs/internal/retention"
	"github.com/tordrt/schemadocs/internal/runctx"
	"github.com/tordrt/schemadocs/internal/wiki"
	"github.com/tordrt/schemadocs/internal/wiki/wikitest"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixture struct {
	srv    *wikitest.Server
	layout formatter.Layout
	rc     *runctx.Run
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := wikitest.NewServer()
	t.Cleanup(srv.Close)
	return &fixture{
		srv:    srv,
		layout: formatter.NewLayout(t.TempDir()),
		rc:     runctx.New(logging.Discard(), runctx.WithClock(func() time.Time { return now })),
	}
}

func (f *fixture) writeArtifacts(t *testing.T, database string) {
	t.Helper()
	_, err := f.layout.EnsureDatabaseDir(database)
	require.NoError(t, err)
	files := map[string]string{
		f.layout.DiagramPath(database, "public", "png"): "PNG",
		f.layout.WorkbookPath(database):                 "XLSX",
		f.layout.OverviewPath(database):                 "# " + database + "\n\n## Schema public\n\n- **id:** integer, PK\n",
	}
	for path, data := range files {
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	}
}

func (f *fixture) publisher(t *testing.T, strategy string, mutate ...func(*config.Publisher)) *Publisher {
	t.Helper()
	cfg := config.Publisher{
		URL:           f.srv.URL(),
		Username:      wikitest.Username,
		APIToken:      wikitest.APIToken,
		SpaceKey:      "DOCS",
		PageTitle:     "Docs_{database}",
		TitleStrategy: strategy,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client := wiki.NewClient(cfg.URL, cfg.Username, cfg.APIToken)
	t.Cleanup(client.Close)
	p, err := New(client, cfg, f.layout)
	require.NoError(t, err)
	return p
}

func TestPublish_CreatesPageAndAttaches(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "shop")
	p := f.publisher(t, config.TitleTimestamped, func(c *config.Publisher) { c.ParentPageID = "77" })

	rep := p.Publish(context.Background(), f.rc, "shop")
	require.NoError(t, rep.Err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, "Docs_shop", rep.Family)
	assert.Equal(t, "Docs_shop_2026-06-01_12-00-00", rep.Title)
	assert.Equal(t, []string{"public_schema.png", "shop_data_dictionary.xlsx", "shop_overview.md"}, rep.Attached)

	page, ok := f.srv.Page("DOCS", rep.Title)
	require.True(t, ok)
	assert.Equal(t, rep.PageID, page.ID)
	assert.Equal(t, "77", page.ParentID)
	require.Len(t, page.Attachments, 3)
	assert.Equal(t, "image/png", page.Attachments["public_schema.png"].ContentType)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", page.Attachments["shop_data_dictionary.xlsx"].ContentType)
	assert.Equal(t, "XLSX", string(page.Attachments["shop_data_dictionary.xlsx"].Data))

	assert.Contains(t, page.Body, `<ri:attachment ri:filename="public_schema.png" />`)
	assert.Contains(t, page.Body, "<h2>Schema public</h2>")

	s := f.rc.Summary()
	assert.Equal(t, 1, s.Phase(runctx.PhasePublish).Succeeded)
	assert.Equal(t, 1, s.Phase(runctx.PhasePrune).Succeeded)
}

func TestPublish_FixedTitleUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "shop")
	id := f.srv.AddPage("DOCS", "Docs_shop")
	p := f.publisher(t, config.TitleFixed)

	for i := 0; i < 2; i++ {
		rep := p.Publish(context.Background(), f.rc, "shop")
		require.NoError(t, rep.Err)
		assert.Equal(t, id, rep.PageID)
		assert.Empty(t, rep.Deleted)
	}

	pages := f.srv.Pages("DOCS")
	require.Len(t, pages, 1)
	assert.Equal(t, 3, pages[0].Version)
}

func TestPublish_RetentionScenario(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "X")
	family := retention.Family{BaseTitle: "Docs_X"}

	ages := []time.Duration{2 * day, 6 * day, 13 * day, 20 * day, 27 * day, 45 * day, 90 * day, 170 * day, 250 * day, 400 * day}
	for _, a := range ages {
		f.srv.AddPage("DOCS", family.Title(now.Add(-a)))
	}
	f.srv.AddPage("DOCS", "Docs_X_draft")
	f.srv.AddPage("DOCS", "Unrelated")

	rep := f.publisher(t, config.TitleTimestamped).Publish(context.Background(), f.rc, "X")
	require.NoError(t, rep.Err)
	assert.Equal(t, StateDone, rep.State)

	// the new snapshot joins the weekly tier and pushes out the two oldest weeklies
	assert.ElementsMatch(t, []string{family.Title(now.Add(-20 * day)), family.Title(now.Add(-27 * day))}, rep.Deleted)

	counts := map[retention.Tier]int{}
	live := 0
	for _, pg := range f.srv.Pages("DOCS") {
		ts, ok := family.Parse(pg.Title)
		if !ok {
			continue
		}
		live++
		counts[retention.Classify(ts, now)]++
	}
	assert.LessOrEqual(t, live, 14)
	for tier, keep := range retention.DefaultKeepCounts() {
		assert.LessOrEqual(t, counts[tier], keep, tier.String())
	}

	_, ok := f.srv.Page("DOCS", "Docs_X_draft")
	assert.True(t, ok, "malformed snapshot titles are never deleted")
	_, ok = f.srv.Page("DOCS", "Unrelated")
	assert.True(t, ok)

	// a second pass with no new snapshots deletes nothing
	rep = f.publisher(t, config.TitleTimestamped).Publish(context.Background(), f.rc, "X")
	require.NoError(t, rep.Err)
	assert.Empty(t, rep.Deleted)
}

func TestPublish_MissingArtifacts(t *testing.T) {
	f := newFixture(t)
	p := f.publisher(t, config.TitleTimestamped)

	rep := p.Publish(context.Background(), f.rc, "shop")
	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, StateArtifactsReady, rep.FailedAt)
	assert.True(t, errors.Is(rep.Err, apperr.ErrPublish))
	assert.Empty(t, f.srv.Pages("DOCS"))
	assert.Equal(t, 1, f.rc.Summary().Phase(runctx.PhasePublish).Failed)
}

func TestPublishAll_IsolatesFamilies(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "b")
	p := f.publisher(t, config.TitleTimestamped)

	reports := p.PublishAll(context.Background(), f.rc, []string{"a", "b"})
	require.Len(t, reports, 2)
	assert.Equal(t, StateFailed, reports[0].State)
	assert.Equal(t, StateDone, reports[1].State)

	s := f.rc.Summary().Phase(runctx.PhasePublish)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Succeeded)
}

func TestPublish_AttachmentFailure(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "shop")
	f.srv.Fail = func(r *http.Request) int {
		if strings.HasSuffix(r.URL.Path, "/child/attachment") {
			return http.StatusInternalServerError
		}
		return 0
	}

	rep := f.publisher(t, config.TitleTimestamped).Publish(context.Background(), f.rc, "shop")
	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, StateAttachmentsUploaded, rep.FailedAt)
	assert.NotEmpty(t, rep.PageID)
	assert.Empty(t, rep.Attached)
	assert.Contains(t, rep.Err.Error(), "status 500")
	assert.Equal(t, 0, f.rc.Summary().Phase(runctx.PhasePrune).Succeeded)
}

func TestPublish_DeleteFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "shop")
	family := retention.Family{BaseTitle: "Docs_shop"}

	var stuck string
	for _, age := range []int{30, 40, 50, 60, 70, 80, 90, 100} {
		id := f.srv.AddPage("DOCS", family.Title(now.Add(-time.Duration(age)*day)))
		if age == 100 {
			stuck = id
		}
	}
	f.srv.Fail = func(r *http.Request) int {
		if r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/"+stuck) {
			return http.StatusInternalServerError
		}
		return 0
	}

	rep := f.publisher(t, config.TitleTimestamped).Publish(context.Background(), f.rc, "shop")
	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, StatePruned, rep.FailedAt)
	assert.Equal(t, []string{family.Title(now.Add(-90 * day))}, rep.Deleted)

	s := f.rc.Summary()
	assert.Equal(t, 1, s.Phase(runctx.PhasePublish).Succeeded)
	assert.Equal(t, 1, s.Phase(runctx.PhasePrune).Failed)
}

func TestKeepCountsOverride(t *testing.T) {
	zero := 0
	keep := keepCounts(config.Retention{Monthly: &zero})
	assert.Equal(t, retention.KeepCounts{retention.Weekly: 4, retention.Monthly: 0, retention.Quarterly: 4}, keep)
}

func TestNew_RejectsUnknownStrategy(t *testing.T) {
	_, err := New(nil, config.Publisher{TitleStrategy: "daily"}, formatter.NewLayout(t.TempDir()))
	assert.True(t, errors.Is(err, apperr.ErrConfig))
}

func TestTitleStrategies(t *testing.T) {
	fixed, err := StrategyFor(config.TitleFixed)
	require.NoError(t, err)
	assert.Equal(t, "Docs", fixed.Title("Docs", now))

	stamped, err := StrategyFor("")
	require.NoError(t, err)
	assert.Equal(t, "Docs_2026-06-01_12-00-00", stamped.Title("Docs", now))
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"public_schema.png", "image/png"},
		{"public_schema.PDF", "application/pdf"},
		{"db_data_dictionary.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"public_schema.svg", "image/svg+xml"},
		{"notes.csv", "application/octet-stream"},
		{"README", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentType(tt.name))
		})
	}
}

func TestRenderBody(t *testing.T) {
	out, err := RenderBody(Body{
		Database:    "shop",
		Generated:   now,
		Attachments: []string{"public_schema.png", "shop_data_dictionary.xlsx"},
		Overview:    []byte("# shop\n\n- **id:** integer & more\n"),
	})
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Database documentation: shop</h1>")
	assert.Contains(t, out, "Generated 2026-06-01 12:00:00 UTC")
	assert.Contains(t, out, `<ac:image><ri:attachment ri:filename="public_schema.png" /></ac:image>`)
	assert.Contains(t, out, "<![CDATA[shop_data_dictionary.xlsx]]>")
	assert.Contains(t, out, "<strong>id:</strong> integer &amp; more")
	assert.Contains(t, out, "<li>shop_data_dictionary.xlsx</li>")

	empty, err := RenderBody(Body{Database: "shop", Generated: now})
	require.NoError(t, err)
	assert.NotContains(t, empty, "<h2>")
}

// requireWellFormed parses a storage-format body as strict XML.
func requireWellFormed(t *testing.T, body string) {
	t.Helper()
	d := xml.NewDecoder(strings.NewReader("<page>" + body + "</page>"))
	d.Strict = true
	for {
		_, err := d.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err, body)
	}
}

func TestRenderBody_WellFormedWithMarkupInComments(t *testing.T) {
	tests := []struct {
		name     string
		overview string
		want     string
	}{
		{"escaped comment", "# shop\n\nOne row per \\<user\\> account \\& more\n", "One row per &lt;user&gt; account &amp; more"},
		{"raw html", "# shop\n\nOne row per <user> account\n\n<div>block</div>\n", "One row per"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RenderBody(Body{
				Database:    "shop",
				Generated:   now,
				Attachments: []string{"public_schema.png", "shop_data_dictionary.xlsx"},
				Overview:    []byte(tt.overview),
			})
			require.NoError(t, err)
			requireWellFormed(t, out)
			assert.Contains(t, out, tt.want)
			assert.NotContains(t, out, "<user>")
			assert.NotContains(t, out, "<div>")
		})
	}
}

func TestPublish_EscapedOverviewIsWellFormed(t *testing.T) {
	f := newFixture(t)
	f.writeArtifacts(t, "shop")
	require.NoError(t, os.WriteFile(f.layout.OverviewPath("shop"),
		[]byte("# shop\n\n### public.users\n\nOne row per \\<user\\> account\n"), 0644))

	rep := f.publisher(t, config.TitleFixed).Publish(context.Background(), f.rc, "shop")
	require.NoError(t, rep.Err)

	page, ok := f.srv.Page("DOCS", rep.Title)
	require.True(t, ok)
	requireWellFormed(t, page.Body)
	assert.Contains(t, page.Body, "One row per &lt;user&gt; account")
}
