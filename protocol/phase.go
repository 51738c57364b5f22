// Package protocol implements the two-party overlap exchange: a
// three-phase state machine in which the initiator encrypts its Bloom
// filter, the responder multiplies in its own filter under encryption,
// and the initiator decrypts the AND result and converts it into an
// unbiased intersection estimate. Only ciphertexts and aggregate scalar
// counts ever cross the trust boundary.
package protocol

import "errors"

// Phase is the session's position in the exchange.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseKeysGenerated
	PhaseFilterAEncrypted
	PhaseFilterBComputed
	PhaseResultDecrypted
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseKeysGenerated:
		return "keys_generated"
	case PhaseFilterAEncrypted:
		return "filter_a_encrypted"
	case PhaseFilterBComputed:
		return "filter_b_computed"
	case PhaseResultDecrypted:
		return "result_decrypted"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// terminal reports whether no further transitions are accepted.
func (p Phase) terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

// percent maps a phase to coarse progress for event consumers.
func (p Phase) percent() int {
	switch p {
	case PhaseCreated:
		return 0
	case PhaseKeysGenerated:
		return 20
	case PhaseFilterAEncrypted:
		return 40
	case PhaseFilterBComputed:
		return 60
	case PhaseResultDecrypted:
		return 80
	case PhaseCompleted:
		return 100
	}
	return 0
}

// FailReason classifies a terminal failure.
type FailReason string

const (
	FailKeyGeneration     FailReason = "key_generation_failed"
	FailEncoding          FailReason = "encoding_failed"
	FailNoiseBudget       FailReason = "noise_budget_exhausted"
	FailParameterMismatch FailReason = "parameter_mismatch"
	FailCancelled         FailReason = "cancelled"
)

var (
	// ErrSessionClosed is returned for phase calls on a terminal session.
	ErrSessionClosed = errors.New("protocol: session is closed")
	// ErrParameterMismatch indicates the two parties' m/k disagree.
	ErrParameterMismatch = errors.New("protocol: bloom parameters disagree between parties")
	// ErrPhaseOrder indicates a phase method called out of sequence.
	ErrPhaseOrder = errors.New("protocol: phase called out of order")
	// ErrInvalidParameter covers malformed estimator input.
	ErrInvalidParameter = errors.New("protocol: invalid parameter")
)
