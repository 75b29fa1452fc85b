// Package extract turns upstream payloads into raw tables: engine object
// layouts (hypercubes) and rendered html tables.
package extract

import (
	"bytes"
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/snapshot"
	"encoding/json"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("covid19au.internal.extract")

const (
	report_extractor_document = "extractor.document"
	report_extractor_markup   = "extractor.markup"
	report_extractor_rows     = "extractor.rows"
)

// Document is the raw capture of the dashboard engine: the layout of every
// dashboard object keyed by its id.
type Document struct {
	LastModified string                     `json:"lastModified"`
	Data         map[string]json.RawMessage `json:"data"`
}

func ParseDocument(data []byte) (Document, error) {
	var doc Document
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return Document{}, fmt.Errorf("decode engine document: %w", err)
	}
	return doc, nil
}

// Extractor extracts every table in the catalog. A table that cannot be
// found or decoded is reported and extracted with zero rows, it never fails
// the whole extraction.
type Extractor struct {
	tel telemetry.API
}

func NewExtractor(tel telemetry.API) Extractor {
	assert.NotNil(tel)
	return Extractor{tel: telemetry.NewScopedAPI("extract", tel)}
}

// Document extracts every catalog table from an engine document.
func (e Extractor) Document(ctx context.Context, doc Document) []snapshot.RawTable {
	_, span := tracer.Start(ctx, "Document")
	defer span.End()

	tables := make([]snapshot.RawTable, 0, len(Catalog))
	for _, source := range Catalog {
		layout, ok := doc.Data[source.GraphID]
		if !ok {
			e.tel.ReportWarning(
				report_extractor_document,
				fmt.Errorf("object %s of table %s is not in the document", source.GraphID, source.Table),
			)
			tables = append(tables, snapshot.RawTable{Name: source.Table})
			continue
		}

		table, err := HypercubeTable(source.Table, layout)
		if err != nil {
			e.tel.ReportWarning(report_extractor_document, err)
		}
		e.tel.ReportCount(fmt.Sprintf("%s.%s", report_extractor_rows, source.Table), int64(len(table.Rows)))
		span.SetAttributes(attribute.Int(string(source.Table), len(table.Rows)))
		tables = append(tables, table)
	}
	return tables
}

// Markup extracts every catalog table from a rendered page.
func (e Extractor) Markup(ctx context.Context, page *goquery.Document) []snapshot.RawTable {
	_, span := tracer.Start(ctx, "Markup")
	defer span.End()

	tables := make([]snapshot.RawTable, 0, len(Catalog))
	for _, source := range Catalog {
		sel, ok := FindTable(page, source)
		if !ok {
			e.tel.ReportWarning(
				report_extractor_markup,
				fmt.Errorf("table %s (number %d) is not on the page", source.Table, source.TableNumber),
			)
			tables = append(tables, snapshot.RawTable{Name: source.Table})
			continue
		}

		table := MarkupTable(source.Table, sel)
		e.tel.ReportCount(fmt.Sprintf("%s.%s", report_extractor_rows, source.Table), int64(len(table.Rows)))
		span.SetAttributes(attribute.Int(string(source.Table), len(table.Rows)))
		tables = append(tables, table)
	}
	return tables
}

// MarkupBytes parses a page then extracts it with Markup.
func (e Extractor) MarkupBytes(ctx context.Context, page []byte) ([]snapshot.RawTable, *goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, nil, fmt.Errorf("parse page: %w", err)
	}
	return e.Markup(ctx, doc), doc, nil
}
