package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsIdentifiers(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("pool", " trial "),
		attribute.String("account_id", "456"),
		attribute.String("source", "payment"),
	)

	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String("pool", "trial"), attrs[0])
	assert.Equal(t, attribute.String("source", "payment"), attrs[1])
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordLedgerEntry(ctx, "grant", "paid", "payment")
	m.RecordSubscriptionCheck(ctx, "telegram", "error")
	m.RecordAuditFailure(ctx, "STATUS_CHANGED")

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordAuditFailure(ctx, "STATUS_CHANGED") })
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("thrift", "")
	assert.Error(t, err)
}
