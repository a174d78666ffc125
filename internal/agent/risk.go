// internal/agent/risk.go
package agent

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// RiskClassifier scores a pending action against sensitivity heuristics.
// It is conservative and false-positive-tolerant: it may over-flag a safe
// action, but a matched keyword or URL pattern is never silently
// downgraded. Absence of any match is the only path to a Low verdict.
type RiskClassifier struct {
	cfg    config.RiskConfig
	logger *zap.Logger

	// categories is kept sorted so verdict reasons are deterministic.
	categories []string
}

// NewRiskClassifier builds the classifier from configuration.
func NewRiskClassifier(cfg config.RiskConfig, logger *zap.Logger) *RiskClassifier {
	categories := make([]string, 0, len(cfg.DangerousKeywords))
	for category := range cfg.DangerousKeywords {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	return &RiskClassifier{
		cfg:        cfg,
		logger:     logger.Named("risk_classifier"),
		categories: categories,
	}
}

// Assess returns the verdict for a candidate action at the current URL.
// The rule is a max over two independent checks: a dangerous keyword in the
// action's textual description forces High regardless of URL; otherwise a
// sensitive URL substring yields Medium; otherwise Low.
func (rc *RiskClassifier) Assess(action schemas.BrowserAction, currentURL string) schemas.RiskVerdict {
	description := strings.ToLower(action.Describe() + " " + action.Target.Describe())

	for _, category := range rc.categories {
		for _, keyword := range rc.cfg.DangerousKeywords[category] {
			if strings.Contains(description, strings.ToLower(keyword)) {
				verdict := schemas.RiskVerdict{
					Level:                schemas.RiskHigh,
					RequiresConfirmation: true,
					Reason:               fmt.Sprintf("action matches %s keyword %q", category, keyword),
				}
				rc.logger.Info("High risk action flagged.",
					zap.String("action", action.Describe()),
					zap.String("reason", verdict.Reason))
				return verdict
			}
		}
	}

	loweredURL := strings.ToLower(currentURL)
	for _, pattern := range rc.cfg.SensitiveURLPatterns {
		if strings.Contains(loweredURL, strings.ToLower(pattern)) {
			verdict := schemas.RiskVerdict{
				Level:                schemas.RiskMedium,
				RequiresConfirmation: rc.cfg.ConfirmMediumRisk,
				Reason:               fmt.Sprintf("current URL matches sensitive pattern %q", pattern),
			}
			rc.logger.Info("Medium risk action flagged.",
				zap.String("action", action.Describe()),
				zap.String("url", currentURL),
				zap.String("reason", verdict.Reason))
			return verdict
		}
	}

	return schemas.RiskVerdict{
		Level:                schemas.RiskLow,
		RequiresConfirmation: false,
		Reason:               "no risk indicators matched",
	}
}

// IsSensitiveField reports whether a targeted form field looks like it
// receives secrets, based on the configured field keywords. Used to mask
// typed text in logs, history and prompts.
func (rc *RiskClassifier) IsSensitiveField(target schemas.ActionTarget) bool {
	hints := strings.ToLower(target.Text + " " + target.Selector)
	if target.Role != nil {
		hints += " " + strings.ToLower(target.Role.Name)
	}
	for _, keyword := range rc.cfg.SensitiveFieldKeywords {
		if strings.Contains(hints, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
