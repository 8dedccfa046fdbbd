// Package errkind defines the small, closed set of user-visible error
// kinds the system reports across the IPC surface, the Commit Gate CLI,
// and the Verifier, plus the process exit code each one maps to.
package errkind

// Kind is a user-visible error classification. Every Kind maps to exactly
// one process exit code; internal transport/serialization failures are
// logged at the daemon and surfaced to clients as DaemonUnreachable
// rather than leaking internal detail.
type Kind string

const (
	InsufficientEnergy Kind = "InsufficientEnergy"
	CausalityBroken    Kind = "CausalityBroken"
	SensorUnavailable  Kind = "SensorUnavailable"
	PuzzleTimeout      Kind = "PuzzleTimeout"
	DaemonUnreachable  Kind = "DaemonUnreachable"
	SchemaError        Kind = "SchemaError"
	RateLimited        Kind = "RateLimited"

	// Verifier-only outcomes; never returned from the IPC surface.
	BadSignature Kind = "BadSignature"
	BadPuzzle    Kind = "BadPuzzle"
	TreeMismatch Kind = "TreeMismatch"
)

// ExitCode returns the process exit code for k, per the external
// interface's exit code table. Unknown kinds map to 2, the generic
// schema/config error code, since an error kind the client doesn't
// recognize is itself a schema mismatch between daemon and client.
func (k Kind) ExitCode() int {
	switch k {
	case InsufficientEnergy:
		return 10
	case CausalityBroken:
		return 11
	case SensorUnavailable:
		return 12
	case PuzzleTimeout:
		return 13
	case DaemonUnreachable:
		return 14
	case RateLimited:
		return 15
	case SchemaError, BadSignature, BadPuzzle, TreeMismatch:
		return 2
	default:
		return 2
	}
}

// Error implements error so a Kind can be wrapped with fmt.Errorf or
// compared with errors.Is after round-tripping through a GateError.
func (k Kind) Error() string { return string(k) }

// GateError pairs a Kind with a human-readable detail message, the shape
// carried over IPC as {"ok":false,"kind":"...","detail":"..."}.
type GateError struct {
	Kind   Kind
	Detail string
}

func (e *GateError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *GateError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Wrap builds a GateError.
func Wrap(k Kind, detail string) *GateError {
	return &GateError{Kind: k, Detail: detail}
}
