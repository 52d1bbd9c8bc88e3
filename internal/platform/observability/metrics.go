package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the counters the commerce API records. All instruments are
// registered on the global meter provider; without an SDK configured they are
// no-ops.
type Metrics struct {
	rateCalculations metric.Int64Counter
	payments         metric.Int64Counter
	trackingLookups  metric.Int64Counter
}

// NewMetrics registers the API instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/gaaka/commerce")

	rateCalculations, err := meter.Int64Counter("commerce.shipping.rate_calculations",
		metric.WithDescription("Shipping rate calculations, by outcome"))
	if err != nil {
		return nil, err
	}
	payments, err := meter.Int64Counter("commerce.checkout.payments",
		metric.WithDescription("Payment submissions, by method and outcome"))
	if err != nil {
		return nil, err
	}
	trackingLookups, err := meter.Int64Counter("commerce.shipping.tracking_lookups",
		metric.WithDescription("Carrier tracking lookups, by carrier"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rateCalculations: rateCalculations,
		payments:         payments,
		trackingLookups:  trackingLookups,
	}, nil
}

// RecordRateCalculation counts one rate calculation.
func (m *Metrics) RecordRateCalculation(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.rateCalculations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordPayment counts one payment submission.
func (m *Metrics) RecordPayment(ctx context.Context, method string, success bool) {
	if m == nil {
		return
	}
	m.payments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", success),
	))
}

// RecordTrackingLookup counts one tracking lookup.
func (m *Metrics) RecordTrackingLookup(ctx context.Context, carrier string) {
	if m == nil {
		return
	}
	m.trackingLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("carrier", carrier)))
}
