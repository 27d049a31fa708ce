package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

type counterInstrument struct {
	id  goSession.MetricID
	ins metric.Int64ObservableCounter
}

// histogramInstrument publishes a fixed-bucket latency histogram as one
// cumulative gauge keyed by an "le" attribute plus a sample count.
type histogramInstrument struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes Manager metrics as OTel observable instruments.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
}

// NewExporter registers instruments on meter that read from manager.
func NewExporter(meter metric.Meter, manager *goSession.Manager) (*Exporter, error) {
	if manager == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, manager)
}

// NewExporterFromSource registers instruments that read from source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	var observables []metric.Observable

	counters := make([]counterInstrument, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		counters = append(counters, counterInstrument{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	histograms := make([]histogramInstrument, 0, len(internaldefs.HistogramDefs))
	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		histograms = append(histograms, histogramInstrument{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	auditDropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped under dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	observables = append(observables, auditDropped)

	bucketAttrs := make([]metric.ObserveOption, len(internaldefs.NormalizeBuckets(nil)))
	for i := range bucketAttrs {
		bucketAttrs[i] = metric.WithAttributes(attribute.String("le", internaldefs.BucketLabel(i)))
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := source.MetricsSnapshot()
		for _, c := range counters {
			if v, ok := snap.Counters[c.id]; ok {
				o.ObserveInt64(c.ins, int64(v))
			}
		}
		for _, h := range histograms {
			raw, ok := snap.Histograms[h.id]
			if !ok {
				continue
			}
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
			for i, v := range cumulative {
				o.ObserveInt64(h.buckets, int64(v), bucketAttrs[i])
			}
			o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		o.ObserveInt64(auditDropped, int64(source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	return &Exporter{source: source, registration: reg}, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
