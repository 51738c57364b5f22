package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mitanshubhoot/PP-TIO/bloom"
	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/ioc"
)

// Offer is everything that crosses from initiator to responder: the
// encrypted filter, the public context it was produced under, and the
// Bloom parameters for the mismatch check. Never the plaintext filter.
type Offer struct {
	SessionID string
	M, K      int
	Context   he.PublicContext
	Cipher    he.Ciphertext
}

// Reply is everything that crosses back: the multiplied ciphertext plus
// the responder's aggregate scalars (set-bit count and element count).
type Reply struct {
	SessionID string
	Cipher    he.Ciphertext
	BitCount  int
	Inserted  int
}

// Initiator drives the key-holding side of a session. The private key
// never leaves it and is destroyed at session termination.
type Initiator struct {
	sess   *Session
	cap    he.Capability
	pc     he.PublicContext
	priv   he.PrivateKey
	filter *bloom.Filter
}

// NewInitiator creates a session with the given Bloom parameters.
func NewInitiator(capability he.Capability, m, k int) *Initiator {
	return &Initiator{sess: newSession(m, k), cap: capability}
}

// Session exposes the session for progress consumers.
func (in *Initiator) Session() *Session { return in.sess }

// GenerateKeys runs Created -> KeysGenerated.
func (in *Initiator) GenerateKeys(ctx context.Context) error {
	if err := in.checkOpen(ctx); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "protocol.generate_keys")
	defer span.End()

	pc, priv, err := in.cap.GenerateKeys()
	if err != nil {
		return in.abort(ctx, FailKeyGeneration, err)
	}
	in.pc, in.priv = pc, priv
	if err := in.sess.advance(PhaseKeysGenerated, "key pair generated"); err != nil {
		priv.Destroy()
		return err
	}
	slog.Debug("session keys generated", "session_id", in.sess.id, "context_id", pc.ID())
	return nil
}

// EncryptFilter runs KeysGenerated -> FilterAEncrypted: encodes the
// initiator's set and encrypts the filter. The returned Offer is the
// only artifact handed to the responder.
func (in *Initiator) EncryptFilter(ctx context.Context, set []ioc.Indicator) (Offer, error) {
	if err := in.checkOpen(ctx); err != nil {
		return Offer{}, err
	}
	if in.sess.Phase() != PhaseKeysGenerated {
		return Offer{}, fmt.Errorf("%w: encrypt before key generation", ErrPhaseOrder)
	}
	ctx, span := tracer.Start(ctx, "protocol.encrypt_filter")
	defer span.End()

	f, err := bloom.Encode(set, in.sess.m, in.sess.k)
	if err != nil {
		return Offer{}, in.abort(ctx, FailEncoding, err)
	}
	ct, err := in.cap.Encrypt(in.pc, f.Bits())
	if err != nil {
		return Offer{}, in.abort(ctx, FailEncoding, err)
	}
	in.filter = f
	if err := in.sess.advance(PhaseFilterAEncrypted, "filter encoded and encrypted"); err != nil {
		return Offer{}, err
	}
	return Offer{
		SessionID: in.sess.id,
		M:         in.sess.m,
		K:         in.sess.k,
		Context:   in.pc,
		Cipher:    ct,
	}, nil
}

// Finalize consumes the responder's reply: FilterBComputed ->
// ResultDecrypted -> Completed. unionBits is the set-bit count of the
// two filters' OR when a party can compute it locally; pass a negative
// value to derive it from the exchanged scalar counts (the two are
// identical because the decrypted AND equals the plaintext AND).
func (in *Initiator) Finalize(ctx context.Context, reply Reply, unionBits int) (*Estimate, error) {
	if err := in.checkOpen(ctx); err != nil {
		return nil, err
	}
	if in.sess.Phase() != PhaseFilterAEncrypted {
		return nil, fmt.Errorf("%w: finalize before encryption", ErrPhaseOrder)
	}
	ctx, span := tracer.Start(ctx, "protocol.finalize")
	defer span.End()
	defer in.releaseKey()

	if err := in.sess.advance(PhaseFilterBComputed, "responder computed encrypted intersection"); err != nil {
		return nil, err
	}

	slots, err := in.cap.Decrypt(in.priv, reply.Cipher)
	if err != nil {
		reason := FailEncoding
		if isNoiseBudget(err) {
			reason = FailNoiseBudget
		}
		return nil, in.abort(ctx, reason, err)
	}
	if err := in.sess.advance(PhaseResultDecrypted, "intersection decrypted"); err != nil {
		return nil, err
	}

	andBits := 0
	for i := 0; i < in.sess.m && i < len(slots); i++ {
		if slots[i] != 0 {
			andBits++
		}
	}
	countA := in.filter.SetBitCount()
	if unionBits < 0 {
		unionBits = countA + reply.BitCount - andBits
	}

	est, err := EstimateOverlap(EstimateInput{
		CountA:           countA,
		CountB:           reply.BitCount,
		IntersectionBits: andBits,
		UnionBits:        unionBits,
		M:                in.sess.m,
		K:                in.sess.k,
		InsertedA:        in.filter.InsertedCount(),
		InsertedB:        reply.Inserted,
	})
	if err != nil {
		return nil, in.abort(ctx, FailEncoding, err)
	}
	in.sess.setEstimate(&est)
	if err := in.sess.advance(PhaseCompleted, "overlap estimate computed"); err != nil {
		return nil, err
	}
	completions.Add(ctx, 1)
	slog.Info("session completed",
		"session_id", in.sess.id,
		"intersection", est.Intersection,
		"jaccard", est.Jaccard)
	return &est, nil
}

// Cancel aborts the session between phases and releases key material.
func (in *Initiator) Cancel(ctx context.Context) error {
	return in.abort(ctx, FailCancelled, context.Canceled)
}

// checkOpen folds caller cancellation into the session outcome before a
// phase starts; capability calls themselves are atomic.
func (in *Initiator) checkOpen(ctx context.Context) error {
	if in.sess.Phase().terminal() {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		_ = in.abort(ctx, FailCancelled, err)
		return err
	}
	return nil
}

func (in *Initiator) abort(ctx context.Context, reason FailReason, err error) error {
	in.releaseKey()
	if ferr := in.sess.fail(reason, err); ferr != nil {
		return ferr
	}
	failures.Add(ctx, 1, failureAttr(reason))
	slog.Warn("session failed",
		"session_id", in.sess.id,
		"phase", in.sess.Phase().String(),
		"reason", string(reason),
		"error", err)
	return err
}

// releaseKey drops the private key; the core never uses it again after
// session termination.
func (in *Initiator) releaseKey() {
	if in.priv != nil {
		in.priv.Destroy()
		in.priv = nil
	}
}

// Responder is the key-less side: it never sees the initiator's
// plaintext filter or private key.
type Responder struct {
	cap  he.Capability
	m, k int
}

// NewResponder creates a responder expecting the given Bloom parameters.
func NewResponder(capability he.Capability, m, k int) *Responder {
	return &Responder{cap: capability, m: m, k: k}
}

// Respond encodes the responder's own set and multiplies it into the
// offered ciphertext. Parameter mismatch is detected from the offer
// metadata before any homomorphic work.
func (r *Responder) Respond(ctx context.Context, offer Offer, set []ioc.Indicator) (Reply, error) {
	ctx, span := tracer.Start(ctx, "protocol.respond",
		trace.WithAttributes(attribute.String("session_id", offer.SessionID)))
	defer span.End()

	if offer.M != r.m || offer.K != r.k {
		return Reply{}, fmt.Errorf("%w: offer m=%d k=%d, local m=%d k=%d",
			ErrParameterMismatch, offer.M, offer.K, r.m, r.k)
	}
	if !offer.Cipher.CanMultiply() {
		return Reply{}, he.ErrNoiseBudgetExhausted
	}
	f, err := bloom.Encode(set, r.m, r.k)
	if err != nil {
		return Reply{}, err
	}
	out, err := r.cap.MultiplyPlain(offer.Cipher, f.Bits())
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		SessionID: offer.SessionID,
		Cipher:    out,
		BitCount:  f.SetBitCount(),
		Inserted:  f.InsertedCount(),
	}, nil
}

func isNoiseBudget(err error) bool {
	return errors.Is(err, he.ErrNoiseBudgetExhausted)
}
