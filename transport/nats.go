package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/ioc"
	"github.com/mitanshubhoot/PP-TIO/protocol"
)

// DefaultSubject is the overlap request/reply subject.
const DefaultSubject = "pptio.v1.overlap"

var propagator = propagation.TraceContext{}

// RequestOverlap sends an offer to the responder listening on subject
// and decodes its reply. The traceparent travels in NATS headers.
func RequestOverlap(ctx context.Context, nc *nats.Conn, subject string, codec he.Codec, offer protocol.Offer, timeout time.Duration) (protocol.Reply, error) {
	ctx, span := otel.Tracer("pptio-transport").Start(ctx, "transport.request_overlap",
		trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	data, err := EncodeOffer(codec, offer)
	if err != nil {
		return protocol.Reply{}, err
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: subject, Data: data, Header: hdr}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(reqCtx, msg)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("transport: request: %w", err)
	}
	return DecodeReply(codec, resp.Data)
}

// ServeResponder subscribes a responder's set on subject. Each offer is
// answered with the multiplied ciphertext or an error envelope; the
// consumer span is a child of the initiator's via the traceparent header.
func ServeResponder(nc *nats.Conn, subject string, codec he.Codec, responder *protocol.Responder, set []ioc.Indicator) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		ctx, span := otel.Tracer("pptio-transport").Start(ctx, "transport.respond",
			trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		offer, err := DecodeOffer(codec, m.Data)
		if err != nil {
			respondError(m, "", err)
			return
		}
		reply, err := responder.Respond(ctx, offer, set)
		if err != nil {
			slog.Warn("responder rejected offer", "session_id", offer.SessionID, "error", err)
			respondError(m, offer.SessionID, err)
			return
		}
		data, err := EncodeReply(codec, reply)
		if err != nil {
			respondError(m, offer.SessionID, err)
			return
		}
		if err := m.Respond(data); err != nil {
			slog.Warn("reply publish failed", "session_id", offer.SessionID, "error", err)
		}
	})
}

func respondError(m *nats.Msg, sessionID string, err error) {
	data, encErr := EncodeReplyError(sessionID, err)
	if encErr != nil {
		return
	}
	_ = m.Respond(data)
}
