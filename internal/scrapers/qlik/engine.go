package qlik

import (
	"bytes"
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("covid19au.internal.scrapers.qlik")

const report_engine_fetch = "engine.fetch"

// DefaultURL is the prefix of every engine endpoint.
const DefaultURL = "wss://covid19-data.health.gov.au/app"

type patch struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// field decodes one field of a result. Delta encoded fields are a list of
// patches, against an empty previous state the first patch holds the whole
// value.
func field(result json.RawMessage, name string, out any) error {
	var fields map[string]json.RawMessage
	err := json.Unmarshal(result, &fields)
	if err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("result has no %s", name)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var patches []patch
		err := json.Unmarshal(raw, &patches)
		if err == nil && len(patches) > 0 && patches[0].Op != "" {
			raw = patches[0].Value
		}
	}
	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

type DocMeta struct {
	ModifiedDate string `json:"modifiedDate"`
}

type DocEntry struct {
	DocID   string  `json:"qDocId"`
	DocName string  `json:"qDocName"`
	Meta    DocMeta `json:"qMeta"`
}

// ObjectRef is a reference to an opened object, further calls on the object
// are made with its Handle.
type ObjectRef struct {
	Type        string `json:"qType"`
	Handle      int    `json:"qHandle"`
	GenericID   string `json:"qGenericId"`
	GenericType string `json:"qGenericType"`
}

func (s *Session) GetDocList(ctx context.Context) ([]DocEntry, error) {
	result, err := s.Call(ctx, GlobalHandle, "GetDocList")
	if err != nil {
		return nil, err
	}
	var docs []DocEntry
	err = field(result, "qDocList", &docs)
	if err != nil {
		return nil, fmt.Errorf("GetDocList: %w", err)
	}
	return docs, nil
}

// OpenDoc opens a document and returns the handle of the opened document.
func (s *Session) OpenDoc(ctx context.Context, docID string) (int, error) {
	result, err := s.Call(ctx, GlobalHandle, "OpenDoc", docID)
	if err != nil {
		return 0, err
	}
	var ref ObjectRef
	err = field(result, "qReturn", &ref)
	if err != nil {
		return 0, fmt.Errorf("OpenDoc: %w", err)
	}
	return ref.Handle, nil
}

func (s *Session) GetObject(ctx context.Context, docHandle int, objectID string) (ObjectRef, error) {
	result, err := s.Call(ctx, docHandle, "GetObject", objectID)
	if err != nil {
		return ObjectRef{}, err
	}
	var ref ObjectRef
	err = field(result, "qReturn", &ref)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("GetObject %s: %w", objectID, err)
	}
	return ref, nil
}

func (s *Session) GetLayout(ctx context.Context, objectHandle int) (json.RawMessage, error) {
	result, err := s.Call(ctx, objectHandle, "GetLayout")
	if err != nil {
		return nil, err
	}
	var layout json.RawMessage
	err = field(result, "qLayout", &layout)
	if err != nil {
		return nil, fmt.Errorf("GetLayout: %w", err)
	}
	return layout, nil
}

// FetchLayouts gets the layout of every object concurrently over one
// session, the result is keyed by object id. An object the engine refuses
// with an RPC error is reported and left out, any other failure fails the
// whole fetch.
func FetchLayouts(ctx context.Context, s *Session, docHandle int, objectIDs []string, tel telemetry.API) (map[string]json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "FetchLayouts")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("objects", objectIDs))

	var mutex sync.Mutex
	layouts := make(map[string]json.RawMessage, len(objectIDs))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range objectIDs {
		g.Go(func() error {
			layout, err := fetchLayout(gctx, s, docHandle, id)
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				tel.ReportWarning(report_engine_fetch, err, id)
				return nil
			}
			if err != nil {
				return err
			}
			mutex.Lock()
			layouts[id] = layout
			mutex.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		return nil, err
	}
	return layouts, nil
}

func fetchLayout(ctx context.Context, s *Session, docHandle int, id string) (json.RawMessage, error) {
	ref, err := s.GetObject(ctx, docHandle, id)
	if err != nil {
		return nil, err
	}
	layout, err := s.GetLayout(ctx, ref.Handle)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	return layout, nil
}

// Engine opens sessions against the endpoints of one engine.
type Engine struct {
	baseURL string
	referer string
	header  http.Header
	// sessions scope their own reports
	sessionTel telemetry.API
	tel        telemetry.API
}

// NewEngine creates an Engine. baseURL is the endpoint prefix (DefaultURL
// when empty), referer is the page embedding the dashboard.
func NewEngine(baseURL, referer, userAgent string, tel telemetry.API) Engine {
	assert.NotNil(tel)
	if baseURL == "" {
		baseURL = DefaultURL
	}
	header := http.Header{}
	if userAgent != "" {
		header.Set("user-agent", userAgent)
	}
	return Engine{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		referer:    referer,
		header:     header,
		sessionTel: tel,
		tel:        telemetry.NewScopedAPI("qlik", tel),
	}
}

func (e Engine) endpoint(app string) string {
	u := fmt.Sprintf("%s/%s", e.baseURL, url.PathEscape(app))
	if e.referer != "" {
		u += "?reloadUri=" + url.QueryEscape(e.referer)
	}
	return u
}

// Document returns the published document, the engine serves only one.
func (e Engine) Document(ctx context.Context) (DocEntry, error) {
	s, err := Dial(ctx, e.endpoint("engineData"), e.header, e.sessionTel)
	if err != nil {
		return DocEntry{}, err
	}
	defer s.Close()

	err = s.WaitFor(ctx, "OnConnected")
	if err != nil {
		return DocEntry{}, err
	}
	docs, err := s.GetDocList(ctx)
	if err != nil {
		return DocEntry{}, err
	}
	if len(docs) == 0 {
		return DocEntry{}, fmt.Errorf("engine lists no documents")
	}
	return docs[0], nil
}

// Layouts opens a document and fetches the layout of every object given.
func (e Engine) Layouts(ctx context.Context, docID string, objectIDs []string) (map[string]json.RawMessage, error) {
	s, err := Dial(ctx, e.endpoint(docID), e.header, e.sessionTel)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	handle, err := s.OpenDoc(ctx, docID)
	if err != nil {
		e.tel.ReportBroken(report_engine_fetch, err, docID)
		return nil, err
	}
	layouts, err := FetchLayouts(ctx, s, handle, objectIDs, e.tel)
	if err != nil {
		e.tel.ReportBroken(report_engine_fetch, err, docID)
		return nil, err
	}
	e.tel.ReportCount(report_engine_fetch, int64(len(layouts)))
	return layouts, nil
}
