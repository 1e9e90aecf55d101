package commit

// Status is the per-task result of a commit.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Skip reasons.
const (
	// ReasonNotStaged means no staging entry exists: it was committed or
	// discarded earlier, expired, or never existed.
	ReasonNotStaged = "not_staged"

	// ReasonAlreadyCommitted means the statement for this task is already
	// persisted and only the leftover staging entry was cleared.
	ReasonAlreadyCommitted = "already_committed"
)

// Outcome describes what happened to one task id.
type Outcome struct {
	TaskID       string `json:"task_id"`
	Status       Status `json:"status"`
	Reason       string `json:"reason,omitempty"`
	StatementID  int64  `json:"statement_id,omitempty"`
	ExpenseCount int    `json:"expense_count"`
	Dropped      int    `json:"dropped"`
	Warning      string `json:"warning,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Result holds one outcome per distinct requested task id, in request order.
type Result struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have the given status.
func (r *Result) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for taskID, if present.
func (r *Result) Outcome(taskID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.TaskID == taskID {
			return o, true
		}
	}
	return Outcome{}, false
}
