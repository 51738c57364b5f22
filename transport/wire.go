// Package transport moves protocol artifacts between two processes over
// NATS request/reply. Only the Offer and Reply shapes are representable
// on the wire; private keys have no encoding.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/protocol"
)

// ErrRemote wraps a failure reported by the far side.
var ErrRemote = errors.New("transport: remote error")

type offerWire struct {
	SessionID string `json:"session_id"`
	M         int    `json:"m"`
	K         int    `json:"k"`
	Context   []byte `json:"context"`
	Cipher    []byte `json:"cipher"`
}

type replyWire struct {
	SessionID string `json:"session_id"`
	Cipher    []byte `json:"cipher,omitempty"`
	BitCount  int    `json:"bit_count"`
	Inserted  int    `json:"inserted"`
	Error     string `json:"error,omitempty"`
}

// EncodeOffer serializes an offer with the capability's codec.
func EncodeOffer(codec he.Codec, offer protocol.Offer) ([]byte, error) {
	pc, err := codec.MarshalPublicContext(offer.Context)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal context: %w", err)
	}
	ct, err := codec.MarshalCiphertext(offer.Cipher)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal cipher: %w", err)
	}
	return json.Marshal(offerWire{
		SessionID: offer.SessionID,
		M:         offer.M,
		K:         offer.K,
		Context:   pc,
		Cipher:    ct,
	})
}

// DecodeOffer reverses EncodeOffer.
func DecodeOffer(codec he.Codec, data []byte) (protocol.Offer, error) {
	var w offerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return protocol.Offer{}, fmt.Errorf("transport: decode offer: %w", err)
	}
	pc, err := codec.UnmarshalPublicContext(w.Context)
	if err != nil {
		return protocol.Offer{}, fmt.Errorf("transport: unmarshal context: %w", err)
	}
	ct, err := codec.UnmarshalCiphertext(w.Cipher)
	if err != nil {
		return protocol.Offer{}, fmt.Errorf("transport: unmarshal cipher: %w", err)
	}
	return protocol.Offer{SessionID: w.SessionID, M: w.M, K: w.K, Context: pc, Cipher: ct}, nil
}

// EncodeReply serializes a reply with the capability's codec.
func EncodeReply(codec he.Codec, reply protocol.Reply) ([]byte, error) {
	ct, err := codec.MarshalCiphertext(reply.Cipher)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal cipher: %w", err)
	}
	return json.Marshal(replyWire{
		SessionID: reply.SessionID,
		Cipher:    ct,
		BitCount:  reply.BitCount,
		Inserted:  reply.Inserted,
	})
}

// EncodeReplyError serializes a failure so the initiator can classify it.
func EncodeReplyError(sessionID string, err error) ([]byte, error) {
	return json.Marshal(replyWire{SessionID: sessionID, Error: err.Error()})
}

// DecodeReply reverses EncodeReply. A remote error becomes ErrRemote;
// a remote parameter mismatch keeps its protocol identity.
func DecodeReply(codec he.Codec, data []byte) (protocol.Reply, error) {
	var w replyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return protocol.Reply{}, fmt.Errorf("transport: decode reply: %w", err)
	}
	if w.Error != "" {
		// sentinel identity does not survive the wire; recover the one
		// classification the initiator acts on
		if strings.Contains(w.Error, "parameters disagree") {
			return protocol.Reply{}, fmt.Errorf("%w: %s", protocol.ErrParameterMismatch, w.Error)
		}
		return protocol.Reply{}, fmt.Errorf("%w: %s", ErrRemote, w.Error)
	}
	ct, err := codec.UnmarshalCiphertext(w.Cipher)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("transport: unmarshal cipher: %w", err)
	}
	return protocol.Reply{SessionID: w.SessionID, Cipher: ct, BitCount: w.BitCount, Inserted: w.Inserted}, nil
}
