// Package ipcproto implements the line-delimited JSON control protocol
// between the long-running daemon and short-lived gate/CLI clients, over
// a Unix stream socket.
package ipcproto

// Request is the generic envelope every client request arrives as; Op
// selects which fields the daemon expects to find populated.
type Request struct {
	Op string `json:"op"`

	// verify-work fields. AddedBytes/RemovedBytes carry the actual blob
	// content the gate runs its compression distance (NCD) over; DiffHash lets the daemon bind
	// the manifest to a client-computed digest of that content without
	// itself trusting the digest for cost calculation.
	Tree         string `json:"tree,omitempty"`
	Added        uint32 `json:"added,omitempty"`
	Removed      uint32 `json:"removed,omitempty"`
	DiffHash     string `json:"diff_hash,omitempty"`
	AddedBytes   []byte `json:"added_bytes,omitempty"`
	RemovedBytes []byte `json:"removed_bytes,omitempty"`

	// history fields (supplemented op)
	Limit int `json:"limit,omitempty"`
}

// Known operation names.
const (
	OpMetrics      = "metrics"
	OpStatus       = "status"
	OpVerifyWork   = "verify-work"
	OpReloadConfig = "reload-config"
	OpHistory      = "history"
	OpDoctor       = "doctor"
)

// StatusResponse answers {"op":"status"}.
type StatusResponse struct {
	State   string  `json:"state"`
	Balance float64 `json:"balance"`
	CNS     float64 `json:"cns"`
}

// MetricsResponse answers {"op":"metrics"}: the most recent analysis
// window's derived statistics plus daemon-level counters.
type MetricsResponse struct {
	LDLJ            float64 `json:"ldlj"`
	SpectralEntropy float64 `json:"spec_entropy"`
	CurvEntropy     float64 `json:"curv_entropy"`
	Burstiness      float64 `json:"burstiness"`
	NCD             float64 `json:"ncd"`
	HumanScore      float64 `json:"human_score"`
	CNS             float64 `json:"cns"`
	SampleCount     int     `json:"sample_count"`
	RingDropped     uint64  `json:"ring_dropped"`
	CausalityState  string  `json:"causality_state"`
}

// VerifyWorkResponse answers a successful {"op":"verify-work"}.
type VerifyWorkResponse struct {
	OK      bool   `json:"ok"`
	Trailer string `json:"trailer"`
}

// ErrorResponse answers a failed request of any kind.
type ErrorResponse struct {
	OK     bool   `json:"ok"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// DoctorResponse answers {"op":"doctor"}: the daemon's self-check result,
// supplementing the spec's core op set with a single round-trip health
// report a CLI can print directly, grounded on the predecessor project's
// sentinel self-check routine.
type DoctorResponse struct {
	OK       bool     `json:"ok"`
	Checks   []string `json:"checks"`
	Warnings []string `json:"warnings"`
}

// HistoryResponse answers {"op":"history"}: recent manifest ledger
// entries, supplementing the spec's core op set so a CLI can show commit
// provenance history without reading the ledger file directly.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryEntry is one row surfaced by the history op.
type HistoryEntry struct {
	CommitTreeHash string  `json:"commit_tree_hash"`
	TimestampNs    uint64  `json:"timestamp_ns"`
	CNSScore       uint8   `json:"cns_score"`
	CreditsCharged float64 `json:"credits_charged"`
}

// ReloadConfigResponse answers {"op":"reload-config"}.
type ReloadConfigResponse struct {
	OK bool `json:"ok"`
}
