// internal/agent/compactor_test.go
package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

func compactorConfig(tokenLimit, recentWindow int) config.AgentConfig {
	cfg := testAgentConfig()
	cfg.ContextTokenLimit = tokenLimit
	cfg.RecentWindow = recentWindow
	return cfg
}

func historyOf(n int) []schemas.HistoryEntry {
	entries := make([]schemas.HistoryEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, schemas.HistoryEntry{
			Decision: schemas.Decision{
				Kind:   schemas.DecisionAct,
				Action: &schemas.BrowserAction{Tool: schemas.ToolNavigate, URL: strings.Repeat("x", 80)},
			},
			Result: schemas.ActionResult{Success: true, Message: strings.Repeat("m", 80)},
		})
	}
	return entries
}

func TestCompactor_NoopUnderBudget(t *testing.T) {
	c := NewCompactor(compactorConfig(1_000_000, 2), nil, zap.NewNop())
	task := newTask("simple task")
	task.History = historyOf(6)

	block := c.Compact(context.Background(), task, "system", "snapshot")
	assert.Len(t, task.History, 6, "under budget the history must be untouched")
	assert.Contains(t, block, "1. ")
	assert.Contains(t, block, "6. ")
}

func TestCompactor_CollapsesPrefixIntoSummary(t *testing.T) {
	// A tiny budget forces compaction no matter how tokens are estimated.
	c := NewCompactor(compactorConfig(10, 2), nil, zap.NewNop())
	task := newTask("long task")
	task.History = historyOf(6)

	c.Compact(context.Background(), task, "system", "snapshot")

	require.Len(t, task.History, 3, "expected summary + RecentWindow entries")
	assert.True(t, task.History[0].IsSummary())
	assert.False(t, task.History[1].IsSummary())
	assert.Contains(t, task.History[0].Summary, "4 actions", "summary must cover the collapsed prefix")
}

func TestCompactor_FixedPointIsNeverShrunkFurther(t *testing.T) {
	c := NewCompactor(compactorConfig(10, 2), nil, zap.NewNop())
	task := newTask("long task")
	task.History = historyOf(6)

	c.Compact(context.Background(), task, "system", "snapshot")
	require.Len(t, task.History, 3)
	summary := task.History[0].Summary

	// Still over budget, but summary + last-K is the floor.
	c.Compact(context.Background(), task, "system", "snapshot")
	assert.Len(t, task.History, 3)
	assert.Equal(t, summary, task.History[0].Summary, "the summary entry must not be re-collapsed")
}

func TestCompactor_RecompactsWhenHistoryGrowsAgain(t *testing.T) {
	c := NewCompactor(compactorConfig(10, 2), nil, zap.NewNop())
	task := newTask("long task")
	task.History = historyOf(6)

	c.Compact(context.Background(), task, "system", "snapshot")
	task.History = append(task.History, historyOf(3)...)

	c.Compact(context.Background(), task, "system", "snapshot")
	require.Len(t, task.History, 3)
	assert.True(t, task.History[0].IsSummary())
}

func TestCompactor_ShortHistoryIsNeverCollapsed(t *testing.T) {
	c := NewCompactor(compactorConfig(10, 10), nil, zap.NewNop())
	task := newTask("short task")
	task.History = historyOf(4)

	c.Compact(context.Background(), task, "system", "snapshot")
	assert.Len(t, task.History, 4, "fewer than RecentWindow entries must never collapse")
}

func TestCompactor_UsesLLMSummaryWhenAvailable(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Visited six pages looking for pricing."}}
	c := NewCompactor(compactorConfig(10, 2), llm, zap.NewNop())
	task := newTask("long task")
	task.History = historyOf(6)

	c.Compact(context.Background(), task, "system", "snapshot")

	require.True(t, task.History[0].IsSummary())
	assert.Equal(t, "Visited six pages looking for pricing.", task.History[0].Summary)
	assert.Equal(t, 1, llm.calls)
}

func TestCompactor_FallsBackWhenSummaryGenerationFails(t *testing.T) {
	llm := &scriptedLLM{err: schemas.NewAgentError(schemas.ErrProviderError, "down", nil)}
	c := NewCompactor(compactorConfig(10, 2), llm, zap.NewNop())
	task := newTask("long task")
	task.History = historyOf(6)

	c.Compact(context.Background(), task, "system", "snapshot")

	require.True(t, task.History[0].IsSummary())
	assert.Contains(t, task.History[0].Summary, "collapsed")
}

func TestRenderHistory_Empty(t *testing.T) {
	assert.Equal(t, "(no actions taken yet)", renderHistory(nil))
}
