package pipeline

import (
	"bytes"
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/extract"
	"covid19au/internal/reduce"
	"covid19au/internal/scrapers/healthgov"
	"covid19au/internal/snapshot"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const report_page_fetcher = "page_fetcher.fetch"

// PageFetcher captures the tables rendered on the page. When a renderer is
// set the page is rendered instead of fetched as served.
type PageFetcher struct {
	page      Page
	renderer  healthgov.Renderer
	extractor extract.Extractor
	loc       *time.Location
	tel       telemetry.API
}

// NewPageFetcher creates a PageFetcher, renderer may be nil.
func NewPageFetcher(page Page, renderer healthgov.Renderer, loc *time.Location, tel telemetry.API) PageFetcher {
	assert.NotNil(page)
	assert.NotNil(loc)
	assert.NotNil(tel)
	return PageFetcher{
		page:      page,
		renderer:  renderer,
		extractor: extract.NewExtractor(tel),
		loc:       loc,
		tel:       telemetry.NewScopedAPI("pipeline", tel),
	}
}

func (f PageFetcher) fetch(ctx context.Context) ([]byte, error) {
	if f.renderer != nil {
		return f.renderer.Render(ctx, f.page.PageURL())
	}
	return f.page.Page(ctx)
}

func (f PageFetcher) FetchSnapshot(ctx context.Context) (Capture, error) {
	markup, err := f.fetch(ctx)
	if err != nil {
		f.tel.ReportBroken(report_page_fetcher, err)
		return Capture{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(markup))
	if err != nil {
		return Capture{}, fmt.Errorf("parse page: %w", err)
	}
	date, err := healthgov.PublicationDate(doc, f.loc)
	if err != nil {
		return Capture{}, fmt.Errorf("%w: %w", reduce.ErrDateResolution, err)
	}

	return Capture{
		Snapshot: snapshot.RawSnapshot{
			PublicationDate: date,
			Tables:          f.extractor.Markup(ctx, doc),
		},
		Markup: markup,
	}, nil
}
