// Package publish uploads generated documentation to the wiki and prunes old
// snapshots.
//
// Each database is one document family. A family moves through
//
//	START → ARTIFACTS_READY → PAGE_UPSERTED → ATTACHMENTS_UPLOADED → PRUNED → DONE
//
// and stops in FAILED at the first step that errors. A failed family never
// stops the next one.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/formatter"
	"github.com/tordrt/schemadocs/internal/retention"
	"github.com/tordrt/schemadocs/internal/runctx"
	"github.com/tordrt/schemadocs/internal/wiki"
)

// State is a step of the per-family state machine.
type State string

const (
	StateStart               State = "START"
	StateArtifactsReady      State = "ARTIFACTS_READY"
	StatePageUpserted        State = "PAGE_UPSERTED"
	StateAttachmentsUploaded State = "ATTACHMENTS_UPLOADED"
	StatePruned              State = "PRUNED"
	StateDone                State = "DONE"
	StateFailed              State = "FAILED"
)

// WikiClient is the part of the wiki API the publisher needs.
type WikiClient interface {
	FindPage(ctx context.Context, spaceKey, title string) (*wiki.Page, error)
	CreatePage(ctx context.Context, spaceKey, title, parentID, storageBody string) (*wiki.Page, error)
	UpdatePage(ctx context.Context, page wiki.Page, storageBody string) (*wiki.Page, error)
	AttachFile(ctx context.Context, pageID, name, contentType string, r io.Reader) error
	ListPages(ctx context.Context, spaceKey, prefix string) ([]wiki.Page, error)
	DeletePage(ctx context.Context, id string) error
}

// Report describes one family's pass.
type Report struct {
	Database string
	Family   string
	Title    string
	State    State
	// FailedAt is the step that was being attempted when the family failed.
	FailedAt State
	PageID   string
	Attached []string
	Deleted  []string
	Err      error
}

// Publisher publishes one document family per database.
type Publisher struct {
	client WikiClient
	cfg    config.Publisher
	layout formatter.Layout
	titles TitleStrategy
	keep   retention.KeepCounts
}

// New creates a publisher from a validated publisher config.
func New(client WikiClient, cfg config.Publisher, layout formatter.Layout) (*Publisher, error) {
	titles, err := StrategyFor(cfg.TitleStrategy)
	if err != nil {
		return nil, apperr.Config("title strategy", err)
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
		layout: layout,
		titles: titles,
		keep:   keepCounts(cfg.Retention),
	}, nil
}

func keepCounts(r config.Retention) retention.KeepCounts {
	keep := retention.DefaultKeepCounts()
	if r.Weekly != nil {
		keep[retention.Weekly] = *r.Weekly
	}
	if r.Monthly != nil {
		keep[retention.Monthly] = *r.Monthly
	}
	if r.Quarterly != nil {
		keep[retention.Quarterly] = *r.Quarterly
	}
	return keep
}

// PublishAll publishes every database in order.
func (p *Publisher) PublishAll(ctx context.Context, rc *runctx.Run, databases []string) []Report {
	reports := make([]Report, 0, len(databases))
	for _, db := range databases {
		reports = append(reports, p.Publish(ctx, rc, db))
	}
	return reports
}

// Publish runs the state machine for one database's document family. Failures
// are recorded on rc and in the report; nothing is returned as an error.
func (p *Publisher) Publish(ctx context.Context, rc *runctx.Run, database string) Report {
	base := p.cfg.BaseTitle(database)
	rep := Report{
		Database: database,
		Family:   base,
		Title:    p.titles.Title(base, rc.Now()),
		State:    StateStart,
	}
	log := rc.Logger.With("database", database, "page", rep.Title)

	fail := func(step State, phase runctx.Phase, op string, err error) Report {
		rep.State = StateFailed
		rep.FailedAt = step
		rep.Err = apperr.Publish(op, database, err)
		rc.Failed(phase, database, rep.Err)
		return rep
	}

	artifacts, err := p.artifacts(database)
	if err != nil {
		return fail(StateArtifactsReady, runctx.PhasePublish, "collect artifacts", err)
	}
	rep.State = StateArtifactsReady

	page, err := p.upsert(ctx, rep.Title, database, artifacts, rc.Now())
	if err != nil {
		return fail(StatePageUpserted, runctx.PhasePublish, "upsert page", err)
	}
	rep.PageID = page.ID
	rep.State = StatePageUpserted
	log.Debug("page upserted", "page_id", page.ID, "version", page.Version)

	for _, path := range artifacts {
		name := filepath.Base(path)
		if err := p.attach(ctx, page.ID, path); err != nil {
			return fail(StateAttachmentsUploaded, runctx.PhasePublish, "attach "+name, err)
		}
		rep.Attached = append(rep.Attached, name)
	}
	rep.State = StateAttachmentsUploaded
	rc.Succeeded(runctx.PhasePublish, database, "page_id", page.ID, "title", rep.Title, "attachments", len(rep.Attached))

	deleted, err := p.prune(ctx, rc, database, base)
	rep.Deleted = deleted
	if err != nil {
		return fail(StatePruned, runctx.PhasePrune, "prune snapshots", err)
	}
	rep.State = StatePruned
	rc.Succeeded(runctx.PhasePrune, database, "deleted", len(deleted))

	rep.State = StateDone
	return rep
}

func (p *Publisher) artifacts(database string) ([]string, error) {
	files, err := p.layout.Artifacts(database)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no artifacts in %s", p.layout.DatabaseDir(database))
	}
	return files, nil
}

func (p *Publisher) upsert(ctx context.Context, title, database string, artifacts []string, generated time.Time) (*wiki.Page, error) {
	names := make([]string, len(artifacts))
	for i, a := range artifacts {
		names[i] = filepath.Base(a)
	}

	overview, err := os.ReadFile(p.layout.OverviewPath(database))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read overview: %w", err)
	}

	body, err := RenderBody(Body{
		Database:    database,
		Generated:   generated,
		Attachments: names,
		Overview:    overview,
	})
	if err != nil {
		return nil, err
	}

	existing, err := p.client.FindPage(ctx, p.cfg.SpaceKey, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.client.UpdatePage(ctx, *existing, body)
	}
	return p.client.CreatePage(ctx, p.cfg.SpaceKey, title, p.cfg.ParentPageID, body)
}

func (p *Publisher) attach(ctx context.Context, pageID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	return p.client.AttachFile(ctx, pageID, name, ContentType(name), f)
}

// prune lists the family and deletes what retention marks. Every deletion is
// attempted; the error reports how many failed.
func (p *Publisher) prune(ctx context.Context, rc *runctx.Run, database, base string) ([]string, error) {
	pages, err := p.client.ListPages(ctx, p.cfg.SpaceKey, base)
	if err != nil {
		return nil, err
	}

	var snaps []retention.Snapshot
	for _, pg := range pages {
		if pg.Title == base || strings.HasPrefix(pg.Title, base+"_") {
			snaps = append(snaps, retention.Snapshot{ID: pg.ID, Title: pg.Title})
		}
	}

	family := retention.Family{BaseTitle: base}
	plan := retention.Prune(family, snaps, rc.Now(), p.keep)

	log := rc.Logger.With("database", database, "family", base)
	for _, s := range plan.Ignored {
		log.Debug("snapshot title not versioned, left alone", "title", s.Title)
	}

	var deleted []string
	failed := 0
	for _, s := range plan.Delete {
		if err := p.client.DeletePage(ctx, s.ID); err != nil {
			failed++
			log.Error("failed to delete snapshot", "title", s.Title, "page_id", s.ID, "error", err)
			continue
		}
		deleted = append(deleted, s.Title)
		log.Info("deleted snapshot", "title", s.Title, "page_id", s.ID)
	}

	if failed > 0 {
		return deleted, fmt.Errorf("%d of %d snapshot deletions failed", failed, len(plan.Delete))
	}
	return deleted, nil
}
