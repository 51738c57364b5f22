package he

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v3/bfv"
	"github.com/tuneinsight/lattigo/v3/rlwe"
)

// defaultMultiplyBudget is the number of plaintext multiplications a
// fresh ciphertext under defaultParameters can absorb before decryption
// becomes unreliable. The protocol needs exactly one.
const defaultMultiplyBudget = 1

// BFV implements Capability over the lattigo BFV scheme. The scheme does
// not expose a measured noise budget, so the engine tracks the remaining
// plaintext-multiply depth per ciphertext and reports it via
// Ciphertext.CanMultiply.
type BFV struct {
	mu      sync.Mutex // encoder/evaluator are not safe for concurrent use
	params  bfv.Parameters
	encoder bfv.Encoder
	eval    bfv.Evaluator
}

// NewBFV builds an engine from PN13QP218 with a batching-friendly
// plaintext modulus (T = 2^16+1, T ≡ 1 mod 2N), giving 8192 slots.
func NewBFV() (*BFV, error) {
	lit := bfv.PN13QP218
	lit.T = 65537
	return NewBFVFromLiteral(lit)
}

// NewBFVFromLiteral builds an engine from explicit scheme parameters.
func NewBFVFromLiteral(lit bfv.ParametersLiteral) (*BFV, error) {
	params, err := bfv.NewParametersFromLiteral(lit)
	if err != nil {
		return nil, fmt.Errorf("bfv parameters: %w", err)
	}
	return &BFV{
		params:  params,
		encoder: bfv.NewEncoder(params),
		eval:    bfv.NewEvaluator(params, rlwe.EvaluationKey{}),
	}, nil
}

// Slots returns the scheme's vector width.
func (e *BFV) Slots() int { return e.params.N() }

type bfvContext struct {
	pk    *rlwe.PublicKey
	ctxID string
	slots int
}

func (c *bfvContext) Slots() int { return c.slots }
func (c *bfvContext) ID() string { return c.ctxID }

type bfvKey struct {
	mu    sync.Mutex
	sk    *rlwe.SecretKey
	ctxID string
}

// Destroy drops the secret key reference; subsequent decrypts fail with
// ErrKeyDestroyed.
func (k *bfvKey) Destroy() {
	k.mu.Lock()
	k.sk = nil
	k.mu.Unlock()
}

func (k *bfvKey) take() (*rlwe.SecretKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.sk == nil {
		return nil, ErrKeyDestroyed
	}
	return k.sk, nil
}

type bfvCiphertext struct {
	ct        *bfv.Ciphertext
	ctxID     string
	depthLeft int
}

func (c *bfvCiphertext) ContextID() string { return c.ctxID }
func (c *bfvCiphertext) CanMultiply() bool { return c.depthLeft > 0 }

func (e *BFV) GenerateKeys() (PublicContext, PrivateKey, error) {
	kgen := bfv.NewKeyGenerator(e.params)
	sk, pk := kgen.GenKeyPair()
	raw, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	sum := sha256.Sum256(raw)
	id := hex.EncodeToString(sum[:8])
	return &bfvContext{pk: pk, ctxID: id, slots: e.params.N()},
		&bfvKey{sk: sk, ctxID: id}, nil
}

func (e *BFV) Encrypt(pc PublicContext, bits []uint64) (Ciphertext, error) {
	ctx, ok := pc.(*bfvContext)
	if !ok {
		return nil, ErrContextMismatch
	}
	if len(bits) > e.params.N() {
		return nil, ErrVectorTooWide
	}
	padded := make([]uint64, e.params.N())
	copy(padded, bits)

	e.mu.Lock()
	pt := bfv.NewPlaintext(e.params)
	e.encoder.Encode(padded, pt)
	e.mu.Unlock()

	enc := bfv.NewEncryptor(e.params, ctx.pk)
	ct := enc.EncryptNew(pt)
	return &bfvCiphertext{ct: ct, ctxID: ctx.ctxID, depthLeft: defaultMultiplyBudget}, nil
}

func (e *BFV) MultiplyPlain(ct Ciphertext, bits []uint64) (Ciphertext, error) {
	bct, ok := ct.(*bfvCiphertext)
	if !ok {
		return nil, ErrContextMismatch
	}
	if !bct.CanMultiply() {
		return nil, ErrNoiseBudgetExhausted
	}
	if len(bits) > e.params.N() {
		return nil, ErrVectorTooWide
	}
	padded := make([]uint64, e.params.N())
	copy(padded, bits)

	e.mu.Lock()
	defer e.mu.Unlock()
	ptMul := bfv.NewPlaintextMul(e.params)
	e.encoder.EncodeMul(padded, ptMul)
	out := e.eval.MulNew(bct.ct, ptMul)
	return &bfvCiphertext{ct: out, ctxID: bct.ctxID, depthLeft: bct.depthLeft - 1}, nil
}

func (e *BFV) Decrypt(sk PrivateKey, ct Ciphertext) ([]uint64, error) {
	key, ok := sk.(*bfvKey)
	if !ok {
		return nil, ErrContextMismatch
	}
	bct, ok := ct.(*bfvCiphertext)
	if !ok || bct.ctxID != key.ctxID {
		return nil, ErrContextMismatch
	}
	if bct.depthLeft < 0 {
		return nil, ErrNoiseBudgetExhausted
	}
	secret, err := key.take()
	if err != nil {
		return nil, err
	}
	dec := bfv.NewDecryptor(e.params, secret)
	pt := dec.DecryptNew(bct.ct)

	e.mu.Lock()
	coeffs := e.encoder.DecodeUintNew(pt)
	e.mu.Unlock()
	return coeffs, nil
}

// Wire envelopes carry the depth counter alongside the lattigo blobs so
// budget accounting survives a transport hop.

type bfvContextWire struct {
	ID    string `json:"id"`
	Slots int    `json:"slots"`
	PK    []byte `json:"pk"`
}

type bfvCiphertextWire struct {
	CtxID     string `json:"ctx_id"`
	DepthLeft int    `json:"depth_left"`
	CT        []byte `json:"ct"`
}

func (e *BFV) MarshalPublicContext(pc PublicContext) ([]byte, error) {
	ctx, ok := pc.(*bfvContext)
	if !ok {
		return nil, ErrContextMismatch
	}
	raw, err := ctx.pk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(bfvContextWire{ID: ctx.ctxID, Slots: ctx.slots, PK: raw})
}

func (e *BFV) UnmarshalPublicContext(data []byte) (PublicContext, error) {
	var w bfvContextWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	pk := new(rlwe.PublicKey)
	if err := pk.UnmarshalBinary(w.PK); err != nil {
		return nil, err
	}
	return &bfvContext{pk: pk, ctxID: w.ID, slots: w.Slots}, nil
}

func (e *BFV) MarshalCiphertext(ct Ciphertext) ([]byte, error) {
	bct, ok := ct.(*bfvCiphertext)
	if !ok {
		return nil, ErrContextMismatch
	}
	raw, err := bct.ct.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(bfvCiphertextWire{CtxID: bct.ctxID, DepthLeft: bct.depthLeft, CT: raw})
}

func (e *BFV) UnmarshalCiphertext(data []byte) (Ciphertext, error) {
	var w bfvCiphertextWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	ct := bfv.NewCiphertext(e.params, 1)
	if err := ct.UnmarshalBinary(w.CT); err != nil {
		return nil, err
	}
	return &bfvCiphertext{ct: ct, ctxID: w.CtxID, depthLeft: w.DepthLeft}, nil
}

// ExportKeys serializes a key pair for keystore persistence. The private
// blob must never cross the trust boundary.
func (e *BFV) ExportKeys(pc PublicContext, sk PrivateKey) (public, private []byte, err error) {
	public, err = e.MarshalPublicContext(pc)
	if err != nil {
		return nil, nil, err
	}
	key, ok := sk.(*bfvKey)
	if !ok {
		return nil, nil, ErrContextMismatch
	}
	secret, err := key.take()
	if err != nil {
		return nil, nil, err
	}
	raw, err := secret.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	private, err = json.Marshal(struct {
		CtxID string `json:"ctx_id"`
		SK    []byte `json:"sk"`
	}{key.ctxID, raw})
	return public, private, err
}

// ImportKeys restores a key pair previously produced by ExportKeys.
func (e *BFV) ImportKeys(public, private []byte) (PublicContext, PrivateKey, error) {
	pc, err := e.UnmarshalPublicContext(public)
	if err != nil {
		return nil, nil, err
	}
	var w struct {
		CtxID string `json:"ctx_id"`
		SK    []byte `json:"sk"`
	}
	if err := json.Unmarshal(private, &w); err != nil {
		return nil, nil, err
	}
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(w.SK); err != nil {
		return nil, nil, err
	}
	return pc, &bfvKey{sk: sk, ctxID: w.CtxID}, nil
}
