package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys used across BuildGraph, Simulate, and
// ComputeSavings spans.
const (
	AttrGraphNodes  = attribute.Key("simload.graph.nodes")
	AttrGraphEdges  = attribute.Key("simload.graph.edges")
	AttrRootURL     = attribute.Key("simload.graph.root_url")
	AttrOriginCount = attribute.Key("simload.graph.origins")

	AttrFCPMs   = attribute.Key("simload.metric.fcp_ms")
	AttrLCPMs   = attribute.Key("simload.metric.lcp_ms")
	AttrTTIMs   = attribute.Key("simload.metric.tti_ms")
	AttrTotalMs = attribute.Key("simload.metric.total_ms")

	AttrWastedMs     = attribute.Key("simload.savings.wasted_ms")
	AttrBeforeMs     = attribute.Key("simload.savings.before_ms")
	AttrAfterMs      = attribute.Key("simload.savings.after_ms")
	AttrTargetMetric = attribute.Key("simload.savings.metric")

	AttrIterations   = attribute.Key("simload.scheduler.iterations")
	AttrReadySetPeak = attribute.Key("simload.scheduler.ready_set_peak")

	AttrCPUSlowdown = attribute.Key("simload.settings.cpu_slowdown_multiplier")
	AttrRTTMs       = attribute.Key("simload.settings.default_rtt_ms")

	AttrValidationErrors   = attribute.Key("simload.validation.errors")
	AttrValidationWarnings = attribute.Key("simload.validation.warnings")
)

// GraphAttributes describes a built request graph.
func GraphAttributes(nodeCount, edgeCount, originCount int, rootURL string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGraphNodes.Int(nodeCount),
		AttrGraphEdges.Int(edgeCount),
		AttrOriginCount.Int(originCount),
		AttrRootURL.String(rootURL),
	}
}

// SimulationAttributes describes one simulate() run.
func SimulationAttributes(totalMs float64, iterations, readySetPeak int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTotalMs.Float64(totalMs),
		AttrIterations.Int(iterations),
		AttrReadySetPeak.Int(readySetPeak),
	}
}

// MetricAttributes describes the result of the FCP/LCP/TTI computers.
func MetricAttributes(fcpMs, lcpMs, ttiMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFCPMs.Float64(fcpMs),
		AttrLCPMs.Float64(lcpMs),
		AttrTTIMs.Float64(ttiMs),
	}
}

// SavingsAttributes describes one computeSavings() call.
func SavingsAttributes(metric string, beforeMs, afterMs, wastedMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTargetMetric.String(metric),
		AttrBeforeMs.Float64(beforeMs),
		AttrAfterMs.Float64(afterMs),
		AttrWastedMs.Float64(wastedMs),
	}
}

// ValidationAttributes describes a ValidationErrors result.
func ValidationAttributes(errorCount, warningCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrValidationErrors.Int(errorCount),
		AttrValidationWarnings.Int(warningCount),
	}
}
