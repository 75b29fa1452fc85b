package pipeline

import (
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/extract"
	"covid19au/internal/reduce"
	"covid19au/internal/scrapers/healthgov"
	"covid19au/internal/scrapers/qlik"
	"covid19au/internal/snapshot"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const report_engine_fetcher = "engine_fetcher.fetch"

// EngineFetcher captures the dashboard engine document. The page embedding
// the dashboard is fetched alongside for the ids of its objects.
type EngineFetcher struct {
	engine    Engine
	page      Page
	extractor extract.Extractor
	loc       *time.Location
	tel       telemetry.API
}

func NewEngineFetcher(engine Engine, page Page, loc *time.Location, tel telemetry.API) EngineFetcher {
	assert.NotNil(engine)
	assert.NotNil(page)
	assert.NotNil(loc)
	assert.NotNil(tel)
	return EngineFetcher{
		engine:    engine,
		page:      page,
		extractor: extract.NewExtractor(tel),
		loc:       loc,
		tel:       telemetry.NewScopedAPI("pipeline", tel),
	}
}

func (f EngineFetcher) FetchSnapshot(ctx context.Context) (Capture, error) {
	var doc qlik.DocEntry
	var markup []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, err = f.engine.Document(gctx)
		if err != nil {
			return fmt.Errorf("engine document: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		markup, err = f.page.Page(gctx)
		return err
	})
	err := g.Wait()
	if err != nil {
		f.tel.ReportBroken(report_engine_fetcher, err)
		return Capture{}, err
	}

	graphIDs, err := healthgov.GraphIDs(markup)
	if errors.Is(err, healthgov.ErrNoGraphIDs) {
		f.tel.ReportWarning(report_engine_fetcher, err, "falling back to the known object ids")
		graphIDs = catalogGraphIDs()
	} else if err != nil {
		f.tel.ReportBroken(report_engine_fetcher, err)
		return Capture{}, err
	}

	layouts, err := f.engine.Layouts(ctx, doc.DocID, graphIDs)
	if err != nil {
		f.tel.ReportBroken(report_engine_fetcher, err)
		return Capture{}, err
	}

	document := extract.Document{
		LastModified: doc.Meta.ModifiedDate,
		Data:         layouts,
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return Capture{}, fmt.Errorf("encode engine document: %w", err)
	}

	date, err := DocumentDate(document, f.loc)
	if err != nil {
		return Capture{}, err
	}
	return Capture{
		Snapshot: snapshot.RawSnapshot{
			PublicationDate: date,
			Tables:          f.extractor.Document(ctx, document),
		},
		Document: encoded,
		Markup:   markup,
	}, nil
}

// DocumentDate is the publication date of an engine document, the calendar
// date of its modification time in loc.
func DocumentDate(doc extract.Document, loc *time.Location) (snapshot.Date, error) {
	modified, err := time.Parse(time.RFC3339, doc.LastModified)
	if err != nil {
		return snapshot.Date{}, fmt.Errorf("%w: last modified %q", reduce.ErrDateResolution, doc.LastModified)
	}
	return snapshot.DateOf(modified, loc), nil
}
