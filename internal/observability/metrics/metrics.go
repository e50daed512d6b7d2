package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the OTLP meter provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the domain counters pushed over OTLP. Scheduler internals are
// exposed separately on /metrics, see SchedulerMetrics.
type Metrics struct {
	ledgerEntries      metric.Int64Counter
	subscriptionChecks metric.Int64Counter
	auditFailures      metric.Int64Counter
}

// NewProvider installs the global meter provider. With export disabled it is a
// no-op provider, so instruments stay cheap to call.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)
	lc.Append(fx.StopHook(provider.Shutdown))

	log.Info("metrics export enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "botquota"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ledgerEntries, "botquota_ledger_entries_total", "Ledger entries written, by kind, pool and source."},
		{&m.subscriptionChecks, "botquota_subscription_checks_total", "Subscription lookups, by checker and result."},
		{&m.auditFailures, "botquota_audit_append_failures_total", "Audit records dropped after retries, by event."},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}

func (m *Metrics) RecordLedgerEntry(ctx context.Context, kind, pool, source string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, labels(
		attribute.String("kind", kind),
		attribute.String("pool", pool),
		attribute.String("source", source),
	))
}

// RecordSubscriptionCheck counts a checker call; result is subscribed,
// unsubscribed or error.
func (m *Metrics) RecordSubscriptionCheck(ctx context.Context, checker, result string) {
	if m == nil {
		return
	}
	m.subscriptionChecks.Add(ctx, 1, labels(
		attribute.String("checker", checker),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordAuditFailure(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.auditFailures.Add(ctx, 1, labels(attribute.String("event", event)))
}

func labels(attrs ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// Labels that may appear on domain counters. Account and bot ids never do.
var allowedLabels = map[attribute.Key]bool{
	"kind":    true,
	"pool":    true,
	"source":  true,
	"checker": true,
	"result":  true,
	"event":   true,
	"reason":  true,
}

// FilterAttributes drops any label outside the allowed set and trims values.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if !allowedLabels[attr.Key] {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
		}
		out = append(out, attr)
	}
	return out
}
