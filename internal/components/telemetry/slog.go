package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("covid19au.components.telemetry")

// SlogAPI implements API using the log/slog package, counts are additionally
// recorded as an otel gauge so they reach whatever exporter lib/telemetry set up.
type SlogAPI struct {
	gaugeOnce *sync.Once
	gauge     metric.Int64Gauge
}

func NewSlogAPI() *SlogAPI {
	return &SlogAPI{gaugeOnce: &sync.Once{}}
}

func (*SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		if err, ok := p.(error); ok {
			*out = append(*out, fmt.Sprintf("params.%d", i), err.Error())
			continue
		}
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s *SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Error("broken component", remainingPairs...)
}

func (s *SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Warn("warning", remainingPairs...)
}

func (s *SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	slog.Debug(message, remainingPairs...)
}

func (s *SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)

	if s.gaugeOnce == nil {
		return
	}
	s.gaugeOnce.Do(func() {
		gauge, err := meter.Int64Gauge("report_count")
		if err != nil {
			slog.Warn("create count gauge", "err", err.Error())
			return
		}
		s.gauge = gauge
	})
	if s.gauge == nil {
		return
	}
	s.gauge.Record(
		context.Background(),
		count,
		metric.WithAttributes(attribute.String("id", id)),
	)
}
