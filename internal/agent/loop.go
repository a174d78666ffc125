// internal/agent/loop.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/browser"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// TargetResolver maps a symbolic action target to a concrete handle against
// the live page. Satisfied by *browser.Resolver.
type TargetResolver interface {
	Resolve(ctx context.Context, target schemas.ActionTarget, pointer browser.PointerAction) (browser.Handle, error)
}

// LoopDeps bundles the collaborators the control loop drives.
type LoopDeps struct {
	Session   schemas.BrowserSession
	Snapshots schemas.SnapshotBuilder
	Resolver  TargetResolver
	LLM       schemas.LLMClient
	Confirmer schemas.Confirmer
	Prompter  schemas.UserPrompter
}

// Loop is the agent's control loop: perceive, decide, assess, act, record,
// repeat. It owns exactly one Task at a time and is not safe for concurrent
// Run calls.
type Loop struct {
	cfg       config.AgentConfig
	deps      LoopDeps
	protocol  *Protocol
	risk      *RiskClassifier
	compactor *Compactor
	extractor *Extractor
	logger    *zap.Logger

	// lastURL is the URL of the most recent snapshot, used for risk
	// assessment between perceptions.
	lastURL string
}

// NewLoop wires a control loop from configuration and collaborators.
func NewLoop(cfg config.AgentConfig, riskCfg config.RiskConfig, deps LoopDeps, logger *zap.Logger) *Loop {
	return &Loop{
		cfg:       cfg,
		deps:      deps,
		protocol:  NewProtocol(logger),
		risk:      NewRiskClassifier(riskCfg, logger),
		compactor: NewCompactor(cfg, deps.LLM, logger),
		extractor: NewExtractor(logger),
		logger:    logger.Named("agent_loop"),
	}
}

// Run drives one task from request to terminal state. The returned error is
// non-nil only for setup-level failures; task-level failures are reported
// through the TaskResult.
func (l *Loop) Run(ctx context.Context, request string) (schemas.TaskResult, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return schemas.TaskResult{}, fmt.Errorf("task request must not be empty")
	}

	task := newTask(request)
	logger := l.logger.With(zap.String("task_id", task.ID))
	logger.Info("Task started.", zap.String("request", request))

	if l.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.TaskTimeout)
		defer cancel()
	}

	transition(task, schemas.StatusRunning, logger)

	var completion *schemas.Completion
	snapshotFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			l.abort(task, logger)
			break
		}
		if task.IterationCount >= l.cfg.MaxIterations {
			fail(task, fmt.Sprintf("%s: reached %d iterations without completing the task",
				schemas.ErrIterationLimitExceeded, l.cfg.MaxIterations), logger)
			break
		}
		task.IterationCount++

		if l.cfg.MaxCostPerTask > 0 && task.Usage.EstimatedCost >= l.cfg.MaxCostPerTask {
			fail(task, fmt.Sprintf("estimated cost $%.4f reached the per-task ceiling $%.4f",
				task.Usage.EstimatedCost, l.cfg.MaxCostPerTask), logger)
			break
		}

		snapshot, err := l.deps.Snapshots.BuildSnapshot(ctx, l.wantVision(task))
		if err != nil {
			if ctx.Err() != nil {
				l.abort(task, logger)
				break
			}
			snapshotFailures++
			logger.Warn("Snapshot failed.", zap.Int("consecutive", snapshotFailures), zap.Error(err))
			if snapshotFailures >= 3 {
				fail(task, "page state could not be captured: "+err.Error(), logger)
				break
			}
			continue
		}
		snapshotFailures = 0
		l.lastURL = snapshot.URL

		decision, err := l.decide(ctx, task, snapshot)
		if err != nil {
			if ctx.Err() != nil {
				l.abort(task, logger)
				break
			}
			// The client already retried transient provider failures; a
			// surfaced error here is not recoverable by replanning.
			task.History = append(task.History, schemas.HistoryEntry{
				Decision: schemas.Decision{Kind: schemas.DecisionAct, Reasoning: "decision request"},
				Result: schemas.ActionResult{
					Success:     false,
					Error:       err.Error(),
					CompletedAt: time.Now(),
				},
			})
			fail(task, err.Error(), logger)
			break
		}

		logger.Info("Decision.",
			zap.Int("iteration", task.IterationCount),
			zap.String("decision", decision.Describe()),
			zap.String("reasoning", decision.Reasoning))

		switch decision.Kind {
		case schemas.DecisionComplete:
			completion = decision.Completion
			task.History = append(task.History, schemas.HistoryEntry{
				Decision: decision,
				Result:   schemas.ActionResult{Success: true, CompletedAt: time.Now()},
			})
			transition(task, schemas.StatusComplete, logger)

		case schemas.DecisionAskUser:
			l.handleAskUser(ctx, task, decision, logger)

		case schemas.DecisionAct:
			l.handleAction(ctx, task, decision, logger)

		default:
			fail(task, fmt.Sprintf("decision with unknown kind %q", decision.Kind), logger)
		}

		if task.Status.IsTerminal() {
			break
		}
	}

	result := buildResult(task, completion)
	logger.Info("Task finished.",
		zap.String("status", string(task.Status)),
		zap.Bool("success", result.Success),
		zap.Int("iterations", task.IterationCount),
		zap.Float64("estimated_cost", task.Usage.EstimatedCost),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (l *Loop) abort(task *schemas.Task, logger *zap.Logger) {
	if transition(task, schemas.StatusAborted, logger) && task.FailureReason == "" {
		task.FailureReason = string(schemas.ErrUserAborted) + ": task canceled"
	}
}

// decide assembles one decision request from the snapshot and history, sends
// it to the powerful tier, and parses the response.
func (l *Loop) decide(ctx context.Context, task *schemas.Task, snapshot *schemas.PageSnapshot) (schemas.Decision, error) {
	snapshotBlock := l.protocol.RenderSnapshot(snapshot)
	historyBlock := l.compactor.Compact(ctx, task, systemPrompt, snapshotBlock)

	warning := ""
	if detectLoop(task.History) {
		warning = loopWarning
		l.logger.Warn("Action loop detected, injecting warning.", zap.String("task_id", task.ID))
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   l.protocol.BuildUserPrompt(task.Request, historyBlock, snapshotBlock, warning),
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
		Tier:         schemas.TierPowerful,
	}
	if len(snapshot.Screenshot) > 0 {
		req.Images = []schemas.ImageAttachment{{MIMEType: "image/jpeg", Data: snapshot.Screenshot}}
	}

	result, err := l.deps.LLM.Generate(ctx, req)
	if err != nil {
		return schemas.Decision{}, err
	}
	task.Usage.Add(result.Usage)

	decision, err := l.protocol.ParseDecision(result.Content)
	if err != nil {
		return schemas.Decision{}, err
	}

	if decision.Kind == schemas.DecisionAct && decision.Action.Tool == schemas.ToolTypeText {
		if l.risk.IsSensitiveField(decision.Action.Target) {
			decision.Action.Sensitive = true
		}
	}
	return decision, nil
}

// handleAskUser suspends the loop on the prompter until the human answers.
func (l *Loop) handleAskUser(ctx context.Context, task *schemas.Task, decision schemas.Decision, logger *zap.Logger) {
	transition(task, schemas.StatusAwaitingUserInput, logger)
	answer, err := l.deps.Prompter.AskUser(ctx, *decision.Query)
	if err != nil {
		l.abort(task, logger)
		return
	}
	transition(task, schemas.StatusRunning, logger)

	message := "user answered: " + answer
	if l.risk.IsSensitiveField(schemas.ActionTarget{Text: decision.Query.Question}) {
		message = "user provided the requested input"
	}
	task.History = append(task.History, schemas.HistoryEntry{
		Decision: decision,
		Result:   schemas.ActionResult{Success: true, Message: message, CompletedAt: time.Now()},
	})
}

// handleAction runs the risk gate and then executes the chosen action.
// Execution failures are folded into history as failed entries; the next
// iteration replans against the fresh page state.
func (l *Loop) handleAction(ctx context.Context, task *schemas.Task, decision schemas.Decision, logger *zap.Logger) {
	action := *decision.Action

	verdict := l.risk.Assess(action, l.lastURL)
	if verdict.RequiresConfirmation {
		transition(task, schemas.StatusAwaitingConfirmation, logger)
		answer, err := l.deps.Confirmer.RequestConfirmation(ctx, action, verdict)
		if err != nil {
			l.abort(task, logger)
			return
		}
		transition(task, schemas.StatusRunning, logger)

		if answer == schemas.ConfirmationDeny {
			logger.Info("Action denied by user.", zap.String("action", action.Describe()))
			task.History = append(task.History, schemas.HistoryEntry{
				Decision: decision,
				Result: schemas.ActionResult{
					Success:     false,
					Denied:      true,
					Error:       "denied by user: " + verdict.Reason,
					CompletedAt: time.Now(),
				},
			})
			return
		}
	}

	result := l.execute(ctx, task, action)
	task.History = append(task.History, schemas.HistoryEntry{Decision: decision, Result: result})

	if !result.Success {
		if ctx.Err() != nil {
			l.abort(task, logger)
			return
		}
		logger.Warn("Action failed.",
			zap.String("action", action.Describe()),
			zap.String("error", result.Error))
	}
}

// execute performs one browser action and reports its outcome. Element
// resolution for pointer-capable tools passes a PointerAction so the
// coordinate strategy can act during resolution.
func (l *Loop) execute(ctx context.Context, task *schemas.Task, action schemas.BrowserAction) schemas.ActionResult {
	result := schemas.ActionResult{Success: true}
	session := l.deps.Session

	var err error
	switch action.Tool {
	case schemas.ToolNavigate:
		if err = session.Navigate(ctx, action.URL); err == nil {
			result.Message = "navigated to " + action.URL
		}

	case schemas.ToolClick:
		var handle browser.Handle
		handle, err = l.deps.Resolver.Resolve(ctx, action.Target, session.ClickAt)
		if err == nil && !handle.Fused {
			err = session.Click(ctx, handle.Selector)
		}
		if err == nil {
			result.Message = "clicked " + action.Target.Describe()
		}

	case schemas.ToolClickAtCoordinates:
		if action.Target.Coordinates == nil {
			err = schemas.NewAgentError(schemas.ErrElementNotFound, "no coordinates given", nil)
			break
		}
		if err = session.ClickAt(ctx, *action.Target.Coordinates); err == nil {
			result.Message = "clicked " + action.Target.Describe()
		}

	case schemas.ToolTypeText:
		var handle browser.Handle
		handle, err = l.deps.Resolver.Resolve(ctx, action.Target, nil)
		if err == nil {
			err = session.Type(ctx, handle.Selector, action.Text)
		}
		if err == nil {
			result.Message = "typed into " + action.Target.Describe()
		}

	case schemas.ToolSelectOption:
		var handle browser.Handle
		handle, err = l.deps.Resolver.Resolve(ctx, action.Target, nil)
		if err == nil {
			err = session.SelectOption(ctx, handle.Selector, action.Value)
		}
		if err == nil {
			result.Message = fmt.Sprintf("selected %q in %s", action.Value, action.Target.Describe())
		}

	case schemas.ToolScroll:
		if action.Amount == "page" {
			err = session.ScrollByPage(ctx, action.Direction)
		} else {
			err = session.Scroll(ctx, action.Direction, schemas.ScrollAmounts[action.Amount])
		}
		if err == nil {
			result.Message = fmt.Sprintf("scrolled %s (%s)", action.Direction, action.Amount)
		}

	case schemas.ToolWait:
		if err = session.WaitFor(ctx, action.DurationMs); err == nil {
			result.Message = fmt.Sprintf("waited %dms", action.DurationMs)
		}

	case schemas.ToolExtractData:
		var pageHTML, digest string
		pageHTML, err = session.OuterHTML(ctx)
		if err == nil {
			digest, err = l.extractor.Extract(pageHTML, action.Description)
		}
		if err == nil {
			task.ExtractedData = append(task.ExtractedData, digest)
			result.Message = "extracted:\n" + digest
		}

	case schemas.ToolGoBack:
		if err = session.GoBack(ctx); err == nil {
			result.Message = "went back"
		}

	case schemas.ToolRefresh:
		if err = session.Reload(ctx); err == nil {
			result.Message = "page refreshed"
		}

	case schemas.ToolTakeScreenshot:
		var shot []byte
		if shot, err = session.Screenshot(ctx, false); err == nil {
			result.Screenshot = shot
			result.Message = fmt.Sprintf("screenshot captured (%d bytes)", len(shot))
		}

	default:
		err = schemas.NewAgentError(schemas.ErrProviderError, fmt.Sprintf("unexecutable tool %q", action.Tool), nil)
	}

	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	result.CompletedAt = time.Now()
	return result
}

// wantVision decides whether the upcoming snapshot should carry a
// screenshot, per the configured vision mode.
func (l *Loop) wantVision(task *schemas.Task) bool {
	switch l.cfg.VisionMode {
	case config.VisionAlways:
		return true
	case config.VisionNever:
		return false
	case config.VisionOnError:
		last, ok := lastConcrete(task.History)
		return ok && !last.Result.Success
	case config.VisionOnNavigation:
		if len(task.History) == 0 {
			return true
		}
		last, ok := lastConcrete(task.History)
		if !ok || last.Decision.Action == nil {
			return false
		}
		switch last.Decision.Action.Tool {
		case schemas.ToolNavigate, schemas.ToolGoBack, schemas.ToolRefresh:
			return true
		}
	}
	return false
}

// lastConcrete returns the newest non-summary history entry.
func lastConcrete(history []schemas.HistoryEntry) (schemas.HistoryEntry, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsSummary() {
			return history[i], true
		}
	}
	return schemas.HistoryEntry{}, false
}

// detectLoop reports whether recent history shows the agent spinning: the
// same action three times running, or a two-action A-B-A-B oscillation.
func detectLoop(history []schemas.HistoryEntry) bool {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < 4; i-- {
		if history[i].IsSummary() {
			break
		}
		sigs = append(sigs, history[i].Decision.Describe())
	}

	if len(sigs) >= 3 && sigs[0] == sigs[1] && sigs[1] == sigs[2] {
		return true
	}
	if len(sigs) == 4 && sigs[0] == sigs[2] && sigs[1] == sigs[3] && sigs[0] != sigs[1] {
		return true
	}
	return false
}
