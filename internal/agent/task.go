// internal/agent/task.go
package agent

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// newTask builds a fresh task in PLANNING for a natural-language request.
func newTask(request string) *schemas.Task {
	return &schemas.Task{
		ID:        uuid.NewString(),
		Request:   request,
		Status:    schemas.StatusPlanning,
		StartedAt: time.Now(),
	}
}

// transition moves the task's state machine. Terminal states are final: a
// transition out of one is refused, logged, and otherwise ignored rather
// than panicking mid-task.
func transition(task *schemas.Task, to schemas.TaskStatus, logger *zap.Logger) bool {
	if task.Status == to {
		return true
	}
	if task.Status.IsTerminal() {
		logger.Warn("Refusing transition out of terminal state.",
			zap.String("task_id", task.ID),
			zap.String("from", string(task.Status)),
			zap.String("to", string(to)))
		return false
	}
	logger.Debug("Task state transition.",
		zap.String("task_id", task.ID),
		zap.String("from", string(task.Status)),
		zap.String("to", string(to)))
	task.Status = to
	if to.IsTerminal() {
		task.FinishedAt = time.Now()
	}
	return true
}

// fail moves the task to FAILED with a reason, recording it once; the first
// failure reason wins.
func fail(task *schemas.Task, reason string, logger *zap.Logger) {
	if transition(task, schemas.StatusFailed, logger) && task.FailureReason == "" {
		task.FailureReason = reason
	}
}

// buildResult converts a finished task into the caller-facing outcome. For
// tasks that never reached an explicit completion, extracted data collected
// along the way is surfaced rather than discarded.
func buildResult(task *schemas.Task, completion *schemas.Completion) schemas.TaskResult {
	result := schemas.TaskResult{
		TaskID:     task.ID,
		Status:     task.Status,
		Iterations: task.IterationCount,
		Usage:      task.Usage,
		Error:      task.FailureReason,
	}
	if !task.FinishedAt.IsZero() {
		result.Duration = task.FinishedAt.Sub(task.StartedAt)
	}

	if completion != nil {
		result.Success = completion.Success && task.Status == schemas.StatusComplete
		result.Result = completion.Result
		result.Summary = completion.Summary
	}
	if result.Result == "" && len(task.ExtractedData) > 0 {
		result.Result = joinExtracted(task.ExtractedData)
	}
	return result
}

func joinExtracted(data []string) string {
	if len(data) == 1 {
		return data[0]
	}
	var out string
	for i, item := range data {
		if i > 0 {
			out += "\n\n---\n\n"
		}
		out += item
	}
	return out
}
