// internal/agent/mocks_test.go
package agent

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/browser"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// -- Shared Test Configuration --

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxIterations:     5,
		RecentWindow:      10,
		ContextTokenLimit: 32000,
		BudgetFraction:    0.7,
		VisionMode:        config.VisionNever,
	}
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		DangerousKeywords:      config.DefaultDangerousKeywords(),
		SensitiveURLPatterns:   config.DefaultSensitiveURLPatterns(),
		SensitiveFieldKeywords: config.DefaultSensitiveFieldKeywords(),
		ConfirmMediumRisk:      true,
	}
}

// -- Browser Session Fake --

type fakeSession struct {
	navigations []string
	clicks      []string
	typed       []string
	scrolls     []string
	pointer     []schemas.Point
	outerHTML   string
	failNext    error
}

var _ schemas.BrowserSession = (*fakeSession)(nil)

func (f *fakeSession) step() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeSession) ID() string { return "fake-session" }

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	if err := f.step(); err != nil {
		return err
	}
	f.navigations = append(f.navigations, url)
	return nil
}

func (f *fakeSession) Click(ctx context.Context, selector string) error {
	if err := f.step(); err != nil {
		return err
	}
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakeSession) ClickAt(ctx context.Context, point schemas.Point) error {
	if err := f.step(); err != nil {
		return err
	}
	f.pointer = append(f.pointer, point)
	return nil
}

func (f *fakeSession) Type(ctx context.Context, selector, text string) error {
	if err := f.step(); err != nil {
		return err
	}
	f.typed = append(f.typed, selector+"="+text)
	return nil
}

func (f *fakeSession) SelectOption(ctx context.Context, selector, value string) error {
	return f.step()
}

func (f *fakeSession) Scroll(ctx context.Context, direction string, amountPx int) error {
	if err := f.step(); err != nil {
		return err
	}
	f.scrolls = append(f.scrolls, fmt.Sprintf("%s:%d", direction, amountPx))
	return nil
}

func (f *fakeSession) ScrollByPage(ctx context.Context, direction string) error {
	if err := f.step(); err != nil {
		return err
	}
	f.scrolls = append(f.scrolls, direction+":page")
	return nil
}

func (f *fakeSession) WaitFor(ctx context.Context, milliseconds int) error { return f.step() }
func (f *fakeSession) GoBack(ctx context.Context) error                   { return f.step() }
func (f *fakeSession) Reload(ctx context.Context) error                   { return f.step() }

func (f *fakeSession) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := f.step(); err != nil {
		return nil, err
	}
	return []byte{0xFF, 0xD8}, nil
}

func (f *fakeSession) Evaluate(ctx context.Context, script string, res interface{}) error {
	return f.step()
}

func (f *fakeSession) OuterHTML(ctx context.Context) (string, error) {
	if err := f.step(); err != nil {
		return "", err
	}
	return f.outerHTML, nil
}

func (f *fakeSession) CurrentURL(ctx context.Context) (string, error) { return "", f.step() }
func (f *fakeSession) Title(ctx context.Context) (string, error)      { return "", f.step() }
func (f *fakeSession) Close(ctx context.Context) error                { return nil }

// -- Snapshot Builder Fake --

type fakeSnapshots struct {
	snapshot *schemas.PageSnapshot
	err      error
	builds   int
}

var _ schemas.SnapshotBuilder = (*fakeSnapshots)(nil)

func (f *fakeSnapshots) BuildSnapshot(ctx context.Context, withScreenshot bool) (*schemas.PageSnapshot, error) {
	f.builds++
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.snapshot
	return &snap, nil
}

func testSnapshot() *schemas.PageSnapshot {
	return &schemas.PageSnapshot{
		URL:   "https://example.com/",
		Title: "Example",
		InteractiveElements: []schemas.InteractiveElement{
			{Index: 0, Tag: "a", Role: "link", Text: "Learn more", Enabled: true},
			{Index: 1, Tag: "input", Role: "textbox", Enabled: true},
		},
		StructureSummary: "1 forms, 3 links, 1 buttons, 1 inputs.",
	}
}

// -- Target Resolver Fake --

type fakeResolver struct {
	selector string
	failures int
	resolved []schemas.ActionTarget
}

func (f *fakeResolver) Resolve(ctx context.Context, target schemas.ActionTarget, pointer browser.PointerAction) (browser.Handle, error) {
	if f.failures > 0 {
		f.failures--
		return browser.Handle{}, schemas.NewAgentError(schemas.ErrElementNotFound,
			"could not resolve "+target.Describe(), nil)
	}
	f.resolved = append(f.resolved, target)
	if target.Coordinates != nil && pointer != nil {
		if err := pointer(ctx, *target.Coordinates); err != nil {
			return browser.Handle{}, err
		}
		return browser.Handle{Fused: true}, nil
	}
	return browser.Handle{Selector: f.selector}, nil
}

// -- LLM Fake --

// scriptedLLM replays canned responses; the last one repeats once the
// script is exhausted.
type scriptedLLM struct {
	responses []string
	err       error
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	s.calls++
	if s.err != nil {
		return schemas.GenerationResult{}, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return schemas.GenerationResult{
		Content: s.responses[idx],
		Usage:   schemas.TokenUsage{PromptTokens: 100, CompletionTokens: 20, EstimatedCost: 0.01},
	}, nil
}

// -- Human Collaborator Fakes --

type staticConfirmer struct {
	answer   schemas.ConfirmationAnswer
	err      error
	requests []schemas.RiskVerdict
}

func (s *staticConfirmer) RequestConfirmation(ctx context.Context, action schemas.BrowserAction, verdict schemas.RiskVerdict) (schemas.ConfirmationAnswer, error) {
	s.requests = append(s.requests, verdict)
	return s.answer, s.err
}

type staticPrompter struct {
	answer    string
	err       error
	questions []string
}

func (s *staticPrompter) AskUser(ctx context.Context, query schemas.UserQuery) (string, error) {
	s.questions = append(s.questions, query.Question)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}
