package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authsession.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authsession.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      authsession.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter observes authsession metrics through OTel asynchronous
// instruments. Call Close to unregister its callback.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
	observables  []metric.Observable
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *authsession.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	for _, def := range internaldefs.CounterDefs {
		if err := e.addCounter(meter, def); err != nil {
			return nil, err
		}
	}
	for _, def := range internaldefs.HistogramDefs {
		if err := e.addHistogram(meter, def); err != nil {
			return nil, err
		}
	}

	dropped, err := meter.Int64ObservableCounter(
		"authsession_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	e.observables = append(e.observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) addCounter(meter metric.Meter, def internaldefs.CounterDef) error {
	ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
	if err != nil {
		return fmt.Errorf("create observable counter %s: %w", def.Name, err)
	}
	e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
	e.observables = append(e.observables, ins)
	return nil
}

// addHistogram exposes def as one cumulative gauge per bucket plus a count
// gauge; asynchronous OTel instruments have no histogram kind.
func (e *OTelExporter) addHistogram(meter metric.Meter, def internaldefs.HistogramDef) error {
	h := observedHistogram{id: def.ID}
	for _, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative session fetch count at or below the bound."))
		if err != nil {
			return fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		h.buckets = append(h.buckets, ins)
		e.observables = append(e.observables, ins)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Observed session fetches."))
	if err != nil {
		return fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
	}
	h.count = count
	e.observables = append(e.observables, count)
	e.histograms = append(e.histograms, h)
	return nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, ins := range h.buckets {
			o.ObserveInt64(ins, int64(cum[i]))
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the observation callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
