// api/schemas/task.go
package schemas

import "time"

// -- Task Lifecycle Schemas --

// TaskStatus is the control loop's state machine position.
type TaskStatus string

const (
	StatusPlanning             TaskStatus = "PLANNING"
	StatusRunning              TaskStatus = "RUNNING"
	StatusAwaitingConfirmation TaskStatus = "AWAITING_CONFIRMATION"
	StatusAwaitingUserInput    TaskStatus = "AWAITING_USER_INPUT"
	StatusComplete             TaskStatus = "COMPLETE"
	StatusFailed               TaskStatus = "FAILED"
	StatusAborted              TaskStatus = "ABORTED"
)

// IsTerminal reports whether no transition may leave the status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// ActionResult is the outcome of executing one decision.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	// Denied marks results synthesized when a confirmation collaborator
	// rejected the action; the action itself was never executed.
	Denied      bool      `json:"denied,omitempty"`
	Screenshot  []byte    `json:"-"`
	CompletedAt time.Time `json:"completed_at"`
}

// HistoryEntry is one (decision, outcome) pair in a task's append-only
// history. A contiguous prefix of entries may be collapsed into a single
// entry with Summary set; collapsing is one-way, the originals are gone.
type HistoryEntry struct {
	Decision Decision     `json:"decision"`
	Result   ActionResult `json:"result"`
	Summary  string       `json:"summary,omitempty"`
}

// IsSummary reports whether the entry replaces a collapsed prefix.
func (h HistoryEntry) IsSummary() bool {
	return h.Summary != ""
}

// Line renders the entry as a single history line for the decision prompt.
func (h HistoryEntry) Line() string {
	if h.IsSummary() {
		return "[earlier steps] " + h.Summary
	}
	marker := "OK"
	detail := h.Result.Message
	if !h.Result.Success {
		marker = "FAIL"
		detail = h.Result.Error
	}
	if h.Result.Denied {
		marker = "DENIED"
	}
	if detail == "" {
		return marker + " " + h.Decision.Describe()
	}
	return marker + " " + h.Decision.Describe() + " -> " + detail
}

// TokenUsage accumulates prompt/completion token counts across a task.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// Add folds another usage sample into the running totals.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.EstimatedCost += other.EstimatedCost
}

// Task is one natural-language mission being driven by the control loop.
// It is owned exclusively by that loop; callers observe it through the
// result returned at termination.
type Task struct {
	ID             string         `json:"id"`
	Request        string         `json:"request"`
	Status         TaskStatus     `json:"status"`
	IterationCount int            `json:"iteration_count"`
	History        []HistoryEntry `json:"history"`
	// ExtractedData accumulates extract_data results; complete_task falls
	// back to it when the model omits an explicit result.
	ExtractedData []string   `json:"extracted_data,omitempty"`
	Usage         TokenUsage `json:"usage"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

// TaskResult is the terminal outcome surfaced to the caller.
type TaskResult struct {
	TaskID     string        `json:"task_id"`
	Status     TaskStatus    `json:"status"`
	Success    bool          `json:"success"`
	Result     string        `json:"result,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Error      string        `json:"error,omitempty"`
	Iterations int           `json:"iterations"`
	Usage      TokenUsage    `json:"usage"`
	Duration   time.Duration `json:"duration"`
}
