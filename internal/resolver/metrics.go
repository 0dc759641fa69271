package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type resolverMetrics struct {
	resolutions   metric.Int64Counter
	cacheHits     metric.Int64Counter
	invalidations metric.Int64Counter
	hops          metric.Int64Histogram
}

func newResolverMetrics(logger pslog.Logger) *resolverMetrics {
	meter := otel.Meter("github.com/UOR-Foundation/uordb/resolver")
	m := &resolverMetrics{}
	var err error

	m.resolutions, err = meter.Int64Counter(
		"uordb.resolver.resolutions",
		metric.WithDescription("Completed resolution attempts by outcome"),
	)
	logMetricInitError(logger, "uordb.resolver.resolutions", err)

	m.cacheHits, err = meter.Int64Counter(
		"uordb.resolver.cache.hits",
		metric.WithDescription("Resolutions served from the cache"),
	)
	logMetricInitError(logger, "uordb.resolver.cache.hits", err)

	m.invalidations, err = meter.Int64Counter(
		"uordb.resolver.cache.invalidations",
		metric.WithDescription("Cache entries dropped by namespace invalidation"),
	)
	logMetricInitError(logger, "uordb.resolver.cache.invalidations", err)

	m.hops, err = meter.Int64Histogram(
		"uordb.resolver.hops",
		metric.WithDescription("Namespace hops per successful resolution"),
	)
	logMetricInitError(logger, "uordb.resolver.hops", err)

	return m
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}

func (m *resolverMetrics) recordOutcome(ctx context.Context, outcome string, hops int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("uordb.resolver.outcome", outcome))
	if m.resolutions != nil {
		m.resolutions.Add(ctx, 1, attrs)
	}
	if outcome == "ok" && m.hops != nil {
		m.hops.Record(ctx, int64(hops))
	}
}

func (m *resolverMetrics) recordCacheHit(ctx context.Context) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}

func (m *resolverMetrics) recordInvalidations(ctx context.Context, namespace string, dropped int) {
	if m == nil || m.invalidations == nil || dropped == 0 {
		return
	}
	m.invalidations.Add(ctx, int64(dropped),
		metric.WithAttributes(attribute.String("uordb.namespace", namespace)))
}
