package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/internal/backendtest"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authsession.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authsession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authsession.MetricsSnapshot{
		Counters:   make(map[authsession.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[authsession.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsession-test")

	src := &fakeSource{
		snapshot: authsession.MetricsSnapshot{
			Counters: map[authsession.MetricID]uint64{
				authsession.MetricLoginSuccess: 3,
			},
			Histograms: map[authsession.MetricID][]uint64{
				authsession.MetricSessionFetchLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}

	if got := sumValue(t, rm, "authsession_login_success_total"); got != 3 {
		t.Fatalf("expected login counter 3, got %d", got)
	}
	if got := gaugeValue(t, rm, "authsession_session_fetch_latency_seconds_bucket_le_inf"); got != 8 {
		t.Fatalf("expected +Inf bucket 8, got %d", got)
	}
	if got := sumValue(t, rm, "authsession_audit_dropped_total"); got != 1 {
		t.Fatalf("expected audit dropped 1, got %d", got)
	}
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Metrics{}
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	sum, ok := findMetric(t, rm, name).Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("metric %s is not a single-point int64 sum", name)
	}
	return sum.DataPoints[0].Value
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	g, ok := findMetric(t, rm, name).Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) != 1 {
		t.Fatalf("metric %s is not a single-point int64 gauge", name)
	}
	return g.DataPoints[0].Value
}

func TestExporterReadsLiveClient(t *testing.T) {
	be := backendtest.New(t)
	cfg := authsession.DefaultConfig()
	cfg.API.BaseURL = be.URL()
	client, err := authsession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()

	ctrl, err := client.Mount(context.Background(), authsession.MountOptions{
		Navigator: authsession.NavigatorFunc(func(context.Context, string) error { return nil }),
	})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	defer ctrl.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exp, err := NewOTelExporter(provider.Meter("authsession-test"), client)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := sumValue(t, rm, "authsession_session_fetch_failure_total"); got != 1 {
		t.Fatalf("expected one failed fetch, got %d", got)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsession-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsession-test")

	src := &fakeSource{
		snapshot: authsession.MetricsSnapshot{
			Counters: map[authsession.MetricID]uint64{
				authsession.MetricLoginSuccess: 1,
			},
			Histograms: map[authsession.MetricID][]uint64{
				authsession.MetricSessionFetchLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authsession.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
