// internal/agent/risk_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func newTestClassifier(confirmMedium bool) *RiskClassifier {
	cfg := testRiskConfig()
	cfg.ConfirmMediumRisk = confirmMedium
	return NewRiskClassifier(cfg, zap.NewNop())
}

func clickText(text string) schemas.BrowserAction {
	return schemas.BrowserAction{
		Tool:   schemas.ToolClick,
		Target: schemas.ActionTarget{Text: text},
	}
}

func TestRiskClassifier_KeywordForcesHigh(t *testing.T) {
	rc := newTestClassifier(true)

	verdict := rc.Assess(clickText("Purchase now"), "https://example.com/")
	assert.Equal(t, schemas.RiskHigh, verdict.Level)
	assert.True(t, verdict.RequiresConfirmation)
	assert.Contains(t, verdict.Reason, "payment")
	assert.Contains(t, verdict.Reason, "purchase")
}

func TestRiskClassifier_KeywordWinsOverURL(t *testing.T) {
	rc := newTestClassifier(true)

	// Both indicators present: the keyword rule dominates, High not Medium.
	verdict := rc.Assess(clickText("Delete my account"), "https://bank.example.com/admin")
	assert.Equal(t, schemas.RiskHigh, verdict.Level)
	assert.True(t, verdict.RequiresConfirmation)
}

func TestRiskClassifier_SensitiveURLIsMedium(t *testing.T) {
	rc := newTestClassifier(true)

	verdict := rc.Assess(clickText("Continue"), "https://shop.example.com/checkout/step1")
	assert.Equal(t, schemas.RiskMedium, verdict.Level)
	assert.True(t, verdict.RequiresConfirmation)
	assert.Contains(t, verdict.Reason, "checkout")
}

func TestRiskClassifier_MediumConfirmationIsConfigurable(t *testing.T) {
	rc := newTestClassifier(false)

	verdict := rc.Assess(clickText("Continue"), "https://shop.example.com/checkout/step1")
	assert.Equal(t, schemas.RiskMedium, verdict.Level)
	assert.False(t, verdict.RequiresConfirmation, "medium risk must honor the confirmation policy")
}

func TestRiskClassifier_NoIndicatorsIsLow(t *testing.T) {
	rc := newTestClassifier(true)

	verdict := rc.Assess(clickText("Learn more"), "https://example.com/docs")
	assert.Equal(t, schemas.RiskLow, verdict.Level)
	assert.False(t, verdict.RequiresConfirmation)
	assert.Equal(t, "no risk indicators matched", verdict.Reason)
}

func TestRiskClassifier_KeywordMatchingIsCaseInsensitive(t *testing.T) {
	rc := newTestClassifier(true)

	verdict := rc.Assess(clickText("UNSUBSCRIBE"), "https://example.com/")
	assert.Equal(t, schemas.RiskHigh, verdict.Level)
}

func TestRiskClassifier_IsSensitiveField(t *testing.T) {
	rc := newTestClassifier(true)

	assert.True(t, rc.IsSensitiveField(schemas.ActionTarget{Text: "Password"}))
	assert.True(t, rc.IsSensitiveField(schemas.ActionTarget{Selector: "#cc-cvv"}))
	assert.True(t, rc.IsSensitiveField(schemas.ActionTarget{
		Role: &schemas.RoleTarget{Role: "textbox", Name: "Card number"},
	}))
	assert.False(t, rc.IsSensitiveField(schemas.ActionTarget{Text: "Search"}))
}
