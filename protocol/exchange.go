package protocol

import (
	"context"
	"errors"

	"github.com/mitanshubhoot/PP-TIO/bloom"
	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/ioc"
)

// Exchange runs both roles of one session in-process: the simulation
// path used by the CLI, the daemon, and tests. The confidentiality
// boundary still holds inside the orchestration — the responder role
// only ever receives the Offer artifacts — but since one process can see
// both plaintext filters, the union bit count is taken from their
// bitwise OR, the estimator's preferred signal.
type Exchange struct {
	initiator *Initiator
	responder *Responder
}

// NewExchange creates a paired initiator/responder over one capability.
func NewExchange(capability he.Capability, m, k int) *Exchange {
	return &Exchange{
		initiator: NewInitiator(capability, m, k),
		responder: NewResponder(capability, m, k),
	}
}

// Session exposes the underlying session for progress consumers. Consume
// Events from a separate goroutine while Run executes.
func (e *Exchange) Session() *Session { return e.initiator.Session() }

// Run drives the full three-phase exchange. Cancellation via ctx between
// phases moves the session to Failed(cancelled).
func (e *Exchange) Run(ctx context.Context, setA, setB []ioc.Indicator) (*Estimate, error) {
	if err := e.initiator.GenerateKeys(ctx); err != nil {
		return nil, err
	}
	offer, err := e.initiator.EncryptFilter(ctx, setA)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = e.initiator.abort(ctx, FailCancelled, err)
		return nil, err
	}

	reply, err := e.responder.Respond(ctx, offer, setB)
	if err != nil {
		return nil, e.initiator.abort(ctx, respondFailReason(err), err)
	}

	unionBits := -1
	if fB, encErr := bloom.Encode(setB, e.responder.m, e.responder.k); encErr == nil {
		if or, orErr := bloom.Or(e.initiator.filter, fB); orErr == nil {
			unionBits = or.SetBitCount()
		}
	}
	return e.initiator.Finalize(ctx, reply, unionBits)
}

// respondFailReason maps a responder error onto the session taxonomy.
func respondFailReason(err error) FailReason {
	switch {
	case errors.Is(err, ErrParameterMismatch):
		return FailParameterMismatch
	case errors.Is(err, he.ErrNoiseBudgetExhausted):
		return FailNoiseBudget
	case errors.Is(err, bloom.ErrInvalidParameter):
		return FailEncoding
	default:
		return FailEncoding
	}
}
