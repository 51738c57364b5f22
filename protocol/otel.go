package protocol

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("pptio-protocol")

	completions metric.Int64Counter
	failures    metric.Int64Counter
)

func init() {
	meter := otel.Meter("pptio-go")
	completions, _ = meter.Int64Counter("pptio_sessions_completed_total")
	failures, _ = meter.Int64Counter("pptio_sessions_failed_total")
}

func failureAttr(reason FailReason) metric.AddOption {
	return metric.WithAttributes(attribute.String("reason", string(reason)))
}
