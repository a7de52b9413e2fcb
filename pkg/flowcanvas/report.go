package flowcanvas

import "time"

// RunStatus is the overall outcome of a run.
type RunStatus string

// Run statuses.
const (
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// NodeStatus is the outcome of one node.
type NodeStatus string

// Node statuses.
const (
	NodeSucceeded NodeStatus = "success"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// Reasons recorded for skipped nodes.
const (
	SkipDisabled       = "disabled"
	SkipUpstreamFailed = "upstream failed"
)

// NodeRecord is the report entry for one node.
type NodeRecord struct {
	NodeID    string        `json:"node_id"`
	NodeType  string        `json:"node_type"`
	Status    NodeStatus    `json:"status"`
	Output    Output        `json:"output,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// RunReport lists every node the run touched, in dispatch order.
type RunReport struct {
	RunID      string       `json:"run_id"`
	WorkflowID string       `json:"workflow_id,omitempty"`
	Status     RunStatus    `json:"status"`
	Records    []NodeRecord `json:"records"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`

	// Err is the first node failure, or the cancellation cause.
	Err error `json:"-"`
}

// Record returns the record for a node.
func (r *RunReport) Record(nodeID string) (NodeRecord, bool) {
	for _, rec := range r.Records {
		if rec.NodeID == nodeID {
			return rec, true
		}
	}
	return NodeRecord{}, false
}

// Count returns how many records have the given status.
func (r *RunReport) Count(status NodeStatus) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Status == status {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) add(rec NodeRecord) {
	if rec.Err != nil {
		rec.Error = rec.Err.Error()
	}
	r.Records = append(r.Records, rec)
}
