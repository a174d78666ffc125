// api/schemas/schemas_test.go
package schemas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionTarget_DescribePrecedence(t *testing.T) {
	idx := 4
	full := ActionTarget{
		Index:       &idx,
		Text:        "Sign in",
		Role:        &RoleTarget{Role: "button", Name: "Sign in"},
		Selector:    "#login",
		Coordinates: &Point{X: 10, Y: 20},
	}
	assert.Equal(t, "element #4", full.Describe(), "index is the most specific strategy")

	full.Index = nil
	assert.Equal(t, `element with text "Sign in"`, full.Describe())

	full.Text = ""
	assert.Equal(t, `button "Sign in"`, full.Describe())

	full.Role = nil
	assert.Equal(t, `selector "#login"`, full.Describe())

	full.Selector = ""
	assert.Equal(t, "point (10, 20)", full.Describe())

	assert.Equal(t, "unspecified target", ActionTarget{}.Describe())
	assert.True(t, ActionTarget{}.IsZero())
	assert.False(t, full.IsZero())
}

func TestBrowserAction_DescribeMasksSensitiveText(t *testing.T) {
	action := BrowserAction{
		Tool:      ToolTypeText,
		Target:    ActionTarget{Selector: "#password"},
		Text:      "hunter2",
		Sensitive: true,
	}
	described := action.Describe()
	assert.NotContains(t, described, "hunter2")
	assert.Contains(t, described, "********")

	action.Sensitive = false
	assert.Contains(t, action.Describe(), "hunter2")
}

func TestHistoryEntry_Line(t *testing.T) {
	ok := HistoryEntry{
		Decision: Decision{Kind: DecisionAct, Action: &BrowserAction{Tool: ToolNavigate, URL: "https://a.com"}},
		Result:   ActionResult{Success: true, Message: "navigated to https://a.com"},
	}
	assert.Equal(t, "OK navigate to https://a.com -> navigated to https://a.com", ok.Line())

	failed := HistoryEntry{
		Decision: Decision{Kind: DecisionAct, Action: &BrowserAction{Tool: ToolClick, Target: ActionTarget{Text: "Next"}}},
		Result:   ActionResult{Success: false, Error: "element not found"},
	}
	assert.Contains(t, failed.Line(), "FAIL")
	assert.Contains(t, failed.Line(), "element not found")

	denied := HistoryEntry{
		Decision: Decision{Kind: DecisionAct, Action: &BrowserAction{Tool: ToolClick, Target: ActionTarget{Text: "Buy"}}},
		Result:   ActionResult{Success: false, Denied: true, Error: "denied by user"},
	}
	assert.Contains(t, denied.Line(), "DENIED")

	summary := HistoryEntry{Summary: "navigated around"}
	assert.True(t, summary.IsSummary())
	assert.Equal(t, "[earlier steps] navigated around", summary.Line())
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	for _, s := range []TaskStatus{StatusComplete, StatusFailed, StatusAborted} {
		assert.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []TaskStatus{StatusPlanning, StatusRunning, StatusAwaitingConfirmation, StatusAwaitingUserInput} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestTokenUsage_Add(t *testing.T) {
	usage := TokenUsage{PromptTokens: 10, CompletionTokens: 5, EstimatedCost: 0.01}
	usage.Add(TokenUsage{PromptTokens: 90, CompletionTokens: 15, EstimatedCost: 0.04})
	assert.Equal(t, 100, usage.PromptTokens)
	assert.Equal(t, 20, usage.CompletionTokens)
	assert.InDelta(t, 0.05, usage.EstimatedCost, 1e-9)
}

func TestAgentError_CategoryHelpers(t *testing.T) {
	base := errors.New("boom")
	err := NewAgentError(ErrElementNotFound, "could not resolve element #3", base)

	assert.Equal(t, ErrElementNotFound, CategoryOf(err))
	assert.True(t, IsCategory(err, ErrElementNotFound))
	assert.False(t, IsCategory(err, ErrTimeout))
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ErrElementNotFound, CategoryOf(wrapped), "category must survive wrapping")

	assert.Equal(t, ErrorCategory(""), CategoryOf(errors.New("plain")))
}

func TestErrorCategory_IsFatal(t *testing.T) {
	assert.True(t, ErrIterationLimitExceeded.IsFatal())
	assert.True(t, ErrUserAborted.IsFatal())
	assert.False(t, ErrElementNotFound.IsFatal())
	assert.False(t, ErrProviderError.IsFatal())
}

func TestPageSnapshot_ElementAt(t *testing.T) {
	snap := &PageSnapshot{InteractiveElements: []InteractiveElement{
		{Index: 0, Tag: "a"},
		{Index: 1, Tag: "button"},
	}}

	el, ok := snap.ElementAt(1)
	assert.True(t, ok)
	assert.Equal(t, "button", el.Tag)

	_, ok = snap.ElementAt(2)
	assert.False(t, ok)
	_, ok = snap.ElementAt(-1)
	assert.False(t, ok)
	assert.Equal(t, 2, snap.ElementCount())
}
