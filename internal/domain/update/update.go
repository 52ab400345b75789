// Package update defines the append-only audit record produced by every
// mutating operation and its synthetic operator identities
//.
package update

import "github.com/komodo-run/core/internal/domain/resource"

// Status tracks an Update's lifecycle.
type Status string

const (
	StatusQueued     Status = "Queued"
	StatusInProgress Status = "InProgress"
	StatusComplete   Status = "Complete"
)

// Operation enumerates the kinds of mutating operation an Update records.
type Operation string

const (
	OpCreate  Operation = "Create"
	OpUpdate  Operation = "Update"
	OpDelete  Operation = "Delete"
	OpRename  Operation = "Rename"
	OpRun     Operation = "Run"
	OpDeploy  Operation = "Deploy"
	OpBuild   Operation = "Build"
	OpSync    Operation = "Sync"
	OpPrune   Operation = "Prune"
	OpCloneRepo Operation = "CloneRepo"
	OpPullRepo  Operation = "PullRepo"
)

// Synthetic operator identities used by non-interactive callers. These are
// granted admin-equivalent permission in-process only — they are never
// persisted as User rows and never gain a JWT/API key of their own.
const (
	OperatorGitWebhook    = "Git Webhook"
	OperatorProcedure     = "Procedure"
	OperatorResourceSync  = "Resource Sync"
	OperatorAutoRedeploy  = "Auto Redeploy"
)

// Log is one stage of an Update: a command run, its output, and whether it
// succeeded.
type Log struct {
	Stage     string `json:"stage"`
	Command   string `json:"command,omitempty"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	Success   bool   `json:"success"`
	StartTs   int64  `json:"start_ts"`
	EndTs     int64  `json:"end_ts"`
}

// Update is the append-only audit record for one operation.
type Update struct {
	Id         string             `json:"id"`
	Operation  Operation          `json:"operation"`
	Target     resource.TargetRef `json:"target"`
	StartTs    int64              `json:"start_ts"`
	EndTs      int64              `json:"end_ts,omitempty"`
	Status     Status             `json:"status"`
	Success    bool               `json:"success"`
	Operator   string             `json:"operator"`
	Logs       []Log              `json:"logs,omitempty"`
	Version    string             `json:"version,omitempty"`
	CommitHash string             `json:"commit_hash,omitempty"`
	OtherData  string             `json:"other_data,omitempty"`
}

// AddLog appends a stage log; it never mutates prior logs, matching the
// mutated-in-place-as-logs-accumulate rule.
func (u *Update) AddLog(l Log) {
	u.Logs = append(u.Logs, l)
}

// Finalize computes overall success as the AND of every log's success,
// sets EndTs, and marks the update Complete. It is idempotent: calling it
// twice leaves the same result.
func (u *Update) Finalize(endTs int64) {
	success := true
	for _, l := range u.Logs {
		if !l.Success {
			success = false
			break
		}
	}
	u.Success = success
	u.EndTs = endTs
	u.Status = StatusComplete
}
