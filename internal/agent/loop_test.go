// internal/agent/loop_test.go
package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

type loopFixture struct {
	session   *fakeSession
	snapshots *fakeSnapshots
	resolver  *fakeResolver
	llm       *scriptedLLM
	confirmer *staticConfirmer
	prompter  *staticPrompter
	loop      *Loop
}

func newLoopFixture(t *testing.T, cfg config.AgentConfig, llm *scriptedLLM) *loopFixture {
	t.Helper()
	f := &loopFixture{
		session:   &fakeSession{outerHTML: "<html><body><p>hello</p></body></html>"},
		snapshots: &fakeSnapshots{snapshot: testSnapshot()},
		resolver:  &fakeResolver{selector: "#resolved"},
		llm:       llm,
		confirmer: &staticConfirmer{answer: schemas.ConfirmationAllow},
		prompter:  &staticPrompter{answer: "the blue one"},
	}
	f.loop = NewLoop(cfg, testRiskConfig(), LoopDeps{
		Session:   f.session,
		Snapshots: f.snapshots,
		Resolver:  f.resolver,
		LLM:       f.llm,
		Confirmer: f.confirmer,
		Prompter:  f.prompter,
	}, zap.NewNop())
	return f
}

const (
	decideNavigate = `{"reasoning":"open the site","tool":"navigate","args":{"url":"https://example.com/"}}`
	decideScroll   = `{"reasoning":"look around","tool":"scroll","args":{"direction":"down","amount":"medium"}}`
	decideClick    = `{"reasoning":"follow the link","tool":"click","args":{"target":{"index":0}}}`
	decideComplete = `{"reasoning":"done","tool":"complete_task","args":{"success":true,"result":"the answer is 42","summary":"found it"}}`
)

func TestLoop_RunsTaskToCompletion(t *testing.T) {
	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{
		decideNavigate,
		decideClick,
		decideComplete,
	}})

	result, err := f.loop.Run(context.Background(), "find the answer")
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusComplete, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, "the answer is 42", result.Result)
	assert.Equal(t, "found it", result.Summary)
	assert.Equal(t, 3, result.Iterations)

	assert.Equal(t, []string{"https://example.com/"}, f.session.navigations)
	assert.Equal(t, []string{"#resolved"}, f.session.clicks)
	assert.Positive(t, result.Usage.PromptTokens)
}

func TestLoop_RejectsEmptyRequest(t *testing.T) {
	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{decideComplete}})
	_, err := f.loop.Run(context.Background(), "   ")
	require.Error(t, err)
	assert.Zero(t, f.llm.calls)
}

func TestLoop_IterationCeilingIsExact(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxIterations = 3

	// The model never completes; the ceiling has to stop it.
	f := newLoopFixture(t, cfg, &scriptedLLM{responses: []string{decideScroll}})

	result, err := f.loop.Run(context.Background(), "scroll forever")
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusFailed, result.Status)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Iterations, "the ceiling must allow exactly MaxIterations cycles")
	assert.Equal(t, 3, f.llm.calls)
	assert.Contains(t, result.Error, string(schemas.ErrIterationLimitExceeded))
}

func TestLoop_DeniedActionIsRecordedAndReplanned(t *testing.T) {
	// "purchase" trips the payment keyword category, forcing confirmation.
	decideBuy := `{"reasoning":"buy it","tool":"click","args":{"target":{"text":"Purchase now"}}}`
	giveUp := `{"reasoning":"not allowed","tool":"complete_task","args":{"success":false,"result":"","summary":"user declined the purchase"}}`

	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{decideBuy, giveUp}})
	f.confirmer.answer = schemas.ConfirmationDeny

	result, err := f.loop.Run(context.Background(), "buy the widget")
	require.NoError(t, err)

	require.Len(t, f.confirmer.requests, 1)
	assert.Equal(t, schemas.RiskHigh, f.confirmer.requests[0].Level)

	// Nothing was clicked, and the task went on to a model-declared failure.
	assert.Empty(t, f.session.clicks)
	assert.Equal(t, schemas.StatusComplete, result.Status)
	assert.False(t, result.Success)
}

func TestLoop_HighRiskActionAllowedAfterConfirmation(t *testing.T) {
	decideBuy := `{"reasoning":"buy it","tool":"click","args":{"target":{"text":"Purchase now"}}}`

	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{decideBuy, decideComplete}})

	result, err := f.loop.Run(context.Background(), "buy the widget")
	require.NoError(t, err)

	require.Len(t, f.confirmer.requests, 1)
	assert.Equal(t, []string{"#resolved"}, f.session.clicks)
	assert.True(t, result.Success)
}

func TestLoop_ActionFailureRecoversViaReplan(t *testing.T) {
	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{decideClick, decideComplete}})
	f.resolver.failures = 1

	result, err := f.loop.Run(context.Background(), "click the link")
	require.NoError(t, err)

	// The failed click became a history entry instead of killing the task.
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)
	assert.Empty(t, f.session.clicks)
}

func TestLoop_ProviderErrorFailsTask(t *testing.T) {
	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{
		err: schemas.NewAgentError(schemas.ErrProviderError, "gemini generation failed", nil),
	})

	result, err := f.loop.Run(context.Background(), "do anything")
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusFailed, result.Status)
	assert.Contains(t, result.Error, string(schemas.ErrProviderError))
	assert.Equal(t, 1, f.llm.calls, "client-level retries already happened; the loop must not retry again")
}

func TestLoop_UnparseableResponseFailsTask(t *testing.T) {
	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{"I think we should click something."}})

	result, err := f.loop.Run(context.Background(), "do anything")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusFailed, result.Status)
	assert.Contains(t, result.Error, string(schemas.ErrProviderError))
}

func TestLoop_AskUserFeedsAnswerIntoHistory(t *testing.T) {
	ask := `{"reasoning":"ambiguous","tool":"ask_user","args":{"question":"Which variant do you want?","options":["red","blue"]}}`

	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{ask, decideComplete}})

	result, err := f.loop.Run(context.Background(), "order the right variant")
	require.NoError(t, err)

	require.Len(t, f.prompter.questions, 1)
	assert.Equal(t, "Which variant do you want?", f.prompter.questions[0])
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)
}

func TestLoop_ExtractDataFallsBackIntoResult(t *testing.T) {
	extract := `{"reasoning":"grab it","tool":"extract_data","args":{"description":"page greeting"}}`
	completeNoResult := `{"reasoning":"done","tool":"complete_task","args":{"success":true,"result":"","summary":"collected"}}`

	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{extract, completeNoResult}})

	result, err := f.loop.Run(context.Background(), "what does the page say")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Result, "hello", "extracted data must back an empty completion result")
}

func TestLoop_CanceledContextAbortsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{decideScroll}})
	result, err := f.loop.Run(ctx, "anything")
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusAborted, result.Status)
	assert.Zero(t, f.llm.calls)
}

func TestLoop_PersistentSnapshotFailureFailsTask(t *testing.T) {
	f := newLoopFixture(t, testAgentConfig(), &scriptedLLM{responses: []string{decideScroll}})
	f.snapshots.err = schemas.NewAgentError(schemas.ErrUnexpectedPageState, "page walk evaluation failed", nil)

	result, err := f.loop.Run(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "page state could not be captured")
	assert.Equal(t, 3, f.snapshots.builds)
	assert.Zero(t, f.llm.calls)
}

func TestLoop_CostCeilingStopsTask(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxCostPerTask = 0.015 // each scripted call costs 0.01

	f := newLoopFixture(t, cfg, &scriptedLLM{responses: []string{decideScroll}})
	result, err := f.loop.Run(context.Background(), "scroll forever")
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "ceiling")
	assert.Equal(t, 2, f.llm.calls)
}

func TestDetectLoop(t *testing.T) {
	entry := func(content string) schemas.HistoryEntry {
		return schemas.HistoryEntry{Decision: schemas.Decision{
			Kind:   schemas.DecisionAct,
			Action: &schemas.BrowserAction{Tool: schemas.ToolNavigate, URL: content},
		}}
	}

	t.Run("three identical actions", func(t *testing.T) {
		history := []schemas.HistoryEntry{entry("a"), entry("a"), entry("a")}
		assert.True(t, detectLoop(history))
	})

	t.Run("ABAB oscillation", func(t *testing.T) {
		history := []schemas.HistoryEntry{entry("a"), entry("b"), entry("a"), entry("b")}
		assert.True(t, detectLoop(history))
	})

	t.Run("varied actions", func(t *testing.T) {
		history := []schemas.HistoryEntry{entry("a"), entry("b"), entry("c"), entry("a")}
		assert.False(t, detectLoop(history))
	})

	t.Run("too short", func(t *testing.T) {
		history := []schemas.HistoryEntry{entry("a"), entry("a")}
		assert.False(t, detectLoop(history))
	})

	t.Run("summary breaks the window", func(t *testing.T) {
		history := []schemas.HistoryEntry{entry("a"), {Summary: "earlier"}, entry("a"), entry("a")}
		assert.False(t, detectLoop(history))
	})
}

func TestWantVision(t *testing.T) {
	navEntry := schemas.HistoryEntry{
		Decision: schemas.Decision{Kind: schemas.DecisionAct, Action: &schemas.BrowserAction{Tool: schemas.ToolNavigate}},
		Result:   schemas.ActionResult{Success: true},
	}
	scrollEntry := schemas.HistoryEntry{
		Decision: schemas.Decision{Kind: schemas.DecisionAct, Action: &schemas.BrowserAction{Tool: schemas.ToolScroll}},
		Result:   schemas.ActionResult{Success: true},
	}
	failedEntry := schemas.HistoryEntry{
		Decision: schemas.Decision{Kind: schemas.DecisionAct, Action: &schemas.BrowserAction{Tool: schemas.ToolClick}},
		Result:   schemas.ActionResult{Success: false, Error: "nope"},
	}

	cases := []struct {
		name    string
		mode    string
		history []schemas.HistoryEntry
		want    bool
	}{
		{"always", config.VisionAlways, []schemas.HistoryEntry{scrollEntry}, true},
		{"never", config.VisionNever, []schemas.HistoryEntry{navEntry}, false},
		{"on_navigation first iteration", config.VisionOnNavigation, nil, true},
		{"on_navigation after navigate", config.VisionOnNavigation, []schemas.HistoryEntry{navEntry}, true},
		{"on_navigation after scroll", config.VisionOnNavigation, []schemas.HistoryEntry{scrollEntry}, false},
		{"on_error after failure", config.VisionOnError, []schemas.HistoryEntry{failedEntry}, true},
		{"on_error after success", config.VisionOnError, []schemas.HistoryEntry{scrollEntry}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testAgentConfig()
			cfg.VisionMode = tc.mode
			f := newLoopFixture(t, cfg, &scriptedLLM{responses: []string{decideComplete}})
			task := newTask("x")
			task.History = tc.history
			assert.Equal(t, tc.want, f.loop.wantVision(task))
		})
	}
}
