// internal/agent/compactor.go
package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// Compactor bounds the history sent with each decision request. When the
// estimated token cost of (system + task + history + snapshot) exceeds the
// budget, all but the most recent K entries are collapsed into a single
// summary entry. Collapsing is one-way; the originals are not recoverable.
type Compactor struct {
	cfg    config.AgentConfig
	llm    schemas.LLMClient
	logger *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewCompactor builds a compactor. llm may be nil; summaries then use the
// deterministic local fallback only.
func NewCompactor(cfg config.AgentConfig, llm schemas.LLMClient, logger *zap.Logger) *Compactor {
	return &Compactor{
		cfg:    cfg,
		llm:    llm,
		logger: logger.Named("history_compactor"),
	}
}

// encoding lazily loads the BPE tables. A load failure downgrades token
// estimation to the bytes/4 heuristic rather than failing the loop.
func (c *Compactor) encoding() *tiktoken.Tiktoken {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("Failed to load token encoding, falling back to heuristic estimation.", zap.Error(err))
			return
		}
		c.enc = enc
	})
	return c.enc
}

// EstimateTokens returns the token count of text.
func (c *Compactor) EstimateTokens(text string) int {
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// budget is the token ceiling for one assembled decision request.
func (c *Compactor) budget() int {
	return int(float64(c.cfg.ContextTokenLimit) * c.cfg.BudgetFraction)
}

// Compact mutates task.History in place when the assembled request would
// blow the budget, and returns the rendered history block either way.
// Compacted history is a fixed point: a summary entry followed by at most
// K verbatim entries is never shrunk further.
func (c *Compactor) Compact(ctx context.Context, task *schemas.Task, systemPrompt, snapshotBlock string) string {
	historyBlock := renderHistory(task.History)

	estimate := c.EstimateTokens(systemPrompt) +
		c.EstimateTokens(task.Request) +
		c.EstimateTokens(historyBlock) +
		c.EstimateTokens(snapshotBlock)
	if estimate <= c.budget() {
		return historyBlock
	}

	k := c.cfg.RecentWindow
	if len(task.History) <= k {
		// Nothing to collapse; the snapshot or prompts dominate the cost.
		return historyBlock
	}
	if len(task.History) == k+1 && task.History[0].IsSummary() {
		// Already at the summary + last-K fixed point.
		return historyBlock
	}

	prefix := task.History[:len(task.History)-k]
	recent := task.History[len(task.History)-k:]

	summary := c.summarize(ctx, task.Request, prefix)
	collapsed := make([]schemas.HistoryEntry, 0, k+1)
	collapsed = append(collapsed, schemas.HistoryEntry{Summary: summary})
	collapsed = append(collapsed, recent...)
	task.History = collapsed

	c.logger.Info("History compacted.",
		zap.Int("collapsed_entries", len(prefix)),
		zap.Int("retained_entries", k),
		zap.Int("token_estimate", estimate),
		zap.Int("budget", c.budget()))

	return renderHistory(task.History)
}

// summarize produces the collapsed-prefix summary, preferring the fast LLM
// tier and falling back to a deterministic digest when it is unavailable.
func (c *Compactor) summarize(ctx context.Context, request string, prefix []schemas.HistoryEntry) string {
	fallback := deterministicSummary(prefix)
	if c.llm == nil {
		return fallback
	}

	var sb strings.Builder
	sb.WriteString("Task: " + request + "\n\nSteps taken so far:\n")
	for _, entry := range prefix {
		sb.WriteString("- " + entry.Line() + "\n")
	}
	sb.WriteString("\nSummarize these steps in at most three sentences, keeping URLs, extracted values and failures.")

	result, err := c.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: "You compress browsing history into terse factual summaries.",
		UserPrompt:   sb.String(),
		Options:      schemas.GenerationOptions{Temperature: 0.1},
		Tier:         schemas.TierFast,
	})
	if err != nil {
		c.logger.Warn("Summary generation failed, using deterministic fallback.", zap.Error(err))
		return fallback
	}
	summary := strings.TrimSpace(result.Content)
	if summary == "" {
		return fallback
	}
	return summary
}

// deterministicSummary digests collapsed entries without a model call.
func deterministicSummary(prefix []schemas.HistoryEntry) string {
	total, failed := 0, 0
	var lines []string
	for _, entry := range prefix {
		if entry.IsSummary() {
			lines = append(lines, entry.Summary)
			continue
		}
		total++
		if !entry.Result.Success {
			failed++
			lines = append(lines, entry.Line())
		}
	}

	var sb strings.Builder
	sb.WriteString("Earlier steps collapsed: ")
	sb.WriteString(strings.TrimSpace(strings.Join(lines, "; ")))
	if len(lines) == 0 {
		sb.WriteString("no notable events")
	}
	fmt.Fprintf(&sb, " (%d actions, %d failed)", total, failed)
	return sb.String()
}

// renderHistory flattens entries into the block embedded in the decision
// prompt, oldest first.
func renderHistory(history []schemas.HistoryEntry) string {
	if len(history) == 0 {
		return "(no actions taken yet)"
	}
	lines := make([]string, 0, len(history))
	for i, entry := range history {
		lines = append(lines, strconv.Itoa(i+1)+". "+entry.Line())
	}
	return strings.Join(lines, "\n")
}
