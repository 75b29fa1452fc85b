// Package pipeline runs the daily capture: fetch a snapshot, reduce it,
// keep the raw capture and merge the result into the dataset.
package pipeline

import (
	"context"
	"covid19au/internal/extract"
	"covid19au/internal/scrapers/qlik"
	"covid19au/internal/snapshot"
	"encoding/json"
)

// Capture is everything fetched for one publication date.
type Capture struct {
	Snapshot snapshot.RawSnapshot
	// Document is the encoded engine document, nil for markup captures.
	Document []byte
	// Markup is the page as fetched or rendered.
	Markup []byte
}

type Fetcher interface {
	FetchSnapshot(ctx context.Context) (Capture, error)
}

// Engine is the part of the dashboard engine a fetch needs.
type Engine interface {
	Document(ctx context.Context) (qlik.DocEntry, error)
	Layouts(ctx context.Context, docID string, objectIDs []string) (map[string]json.RawMessage, error)
}

// Page is the page publishing the figures.
type Page interface {
	PageURL() string
	Page(ctx context.Context) ([]byte, error)
}

func catalogGraphIDs() []string {
	ids := make([]string, len(extract.Catalog))
	for i, s := range extract.Catalog {
		ids[i] = s.GraphID
	}
	return ids
}
