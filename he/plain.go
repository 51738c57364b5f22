package he

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Plain is an in-process capability double: it performs the slot-wise
// AND in plaintext while honoring the full interface contract, including
// a simulated noise budget. It lets the orchestrator and estimator be
// unit-tested without real cryptography.
type Plain struct {
	slots  int
	budget int // plaintext multiplies a fresh ciphertext can absorb
}

// NewPlain returns a plaintext capability with the given slot width and
// a budget of one multiplication, matching the protocol's single
// homomorphic step.
func NewPlain(slots int) *Plain {
	return &Plain{slots: slots, budget: 1}
}

// NewPlainWithBudget allows tests to exhaust the simulated noise budget.
func NewPlainWithBudget(slots, budget int) *Plain {
	return &Plain{slots: slots, budget: budget}
}

type plainContext struct {
	CtxID    string `json:"id"`
	SlotsNum int    `json:"slots"`
}

func (c plainContext) Slots() int { return c.SlotsNum }
func (c plainContext) ID() string { return c.CtxID }

type plainKey struct {
	ctxID     string
	destroyed bool
}

func (k *plainKey) Destroy() { k.destroyed = true }

type plainCiphertext struct {
	CtxID  string   `json:"ctx_id"`
	Slots  []uint64 `json:"slots"`
	Budget int      `json:"budget"`
}

func (c *plainCiphertext) ContextID() string { return c.CtxID }
func (c *plainCiphertext) CanMultiply() bool { return c.Budget > 0 }

func (p *Plain) GenerateKeys() (PublicContext, PrivateKey, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	id := hex.EncodeToString(b[:])
	return plainContext{CtxID: id, SlotsNum: p.slots}, &plainKey{ctxID: id}, nil
}

func (p *Plain) Encrypt(pc PublicContext, bits []uint64) (Ciphertext, error) {
	if len(bits) > pc.Slots() {
		return nil, ErrVectorTooWide
	}
	slots := make([]uint64, len(bits))
	copy(slots, bits)
	return &plainCiphertext{CtxID: pc.ID(), Slots: slots, Budget: p.budget}, nil
}

func (p *Plain) MultiplyPlain(ct Ciphertext, bits []uint64) (Ciphertext, error) {
	pct, ok := ct.(*plainCiphertext)
	if !ok {
		return nil, ErrContextMismatch
	}
	if pct.Budget <= 0 {
		return nil, ErrNoiseBudgetExhausted
	}
	if len(bits) != len(pct.Slots) {
		return nil, ErrVectorLength
	}
	out := make([]uint64, len(bits))
	for i := range bits {
		out[i] = pct.Slots[i] * bits[i]
	}
	return &plainCiphertext{CtxID: pct.CtxID, Slots: out, Budget: pct.Budget - 1}, nil
}

func (p *Plain) Decrypt(sk PrivateKey, ct Ciphertext) ([]uint64, error) {
	key, ok := sk.(*plainKey)
	if !ok {
		return nil, ErrContextMismatch
	}
	if key.destroyed {
		return nil, ErrKeyDestroyed
	}
	pct, ok := ct.(*plainCiphertext)
	if !ok || pct.CtxID != key.ctxID {
		return nil, ErrContextMismatch
	}
	if pct.Budget < 0 {
		return nil, ErrNoiseBudgetExhausted
	}
	out := make([]uint64, len(pct.Slots))
	copy(out, pct.Slots)
	return out, nil
}

// Codec implementation (JSON; the double has nothing to hide).

func (p *Plain) MarshalPublicContext(pc PublicContext) ([]byte, error) {
	c, ok := pc.(plainContext)
	if !ok {
		return nil, ErrContextMismatch
	}
	return json.Marshal(c)
}

func (p *Plain) UnmarshalPublicContext(data []byte) (PublicContext, error) {
	var c plainContext
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Plain) MarshalCiphertext(ct Ciphertext) ([]byte, error) {
	c, ok := ct.(*plainCiphertext)
	if !ok {
		return nil, ErrContextMismatch
	}
	return json.Marshal(c)
}

func (p *Plain) UnmarshalCiphertext(data []byte) (Ciphertext, error) {
	var c plainCiphertext
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
