package model

// FailureKind classifies why a sync run ended early.
type FailureKind string

const (
	FailureAuth      FailureKind = "auth"
	FailureTransport FailureKind = "transport"
	FailureCancelled FailureKind = "cancelled"
	FailureInternal  FailureKind = "internal"
)

// Failure is attached to the terminal progress event of a run that did
// not complete.
type Failure struct {
	Kind        FailureKind `json:"kind"`
	Message     string      `json:"message"`
	Recoverable bool        `json:"recoverable"`
}

// ProgressEvent is one observation of a running sync. Events are not
// persisted.
type ProgressEvent struct {
	RunID          string          `json:"run_id"`
	Seq            int             `json:"seq"`
	Phase          Phase           `json:"phase"`
	ProcessedCount int             `json:"processed_count"`
	TotalEstimate  int             `json:"total_estimate"`
	NewCount       int             `json:"new_count"`
	SkippedCount   int             `json:"skipped_count"`
	Message        string          `json:"message,omitempty"`
	LastFound      *ReleaseSummary `json:"last_found,omitempty"`
	Done           bool            `json:"done"`
	Failure        *Failure        `json:"failure,omitempty"`
}

// Succeeded reports whether the event is a terminal event without a
// failure attached.
func (e ProgressEvent) Succeeded() bool {
	return e.Done && e.Failure == nil
}
