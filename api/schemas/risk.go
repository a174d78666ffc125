// api/schemas/risk.go
package schemas

// -- Risk Assessment Schemas --

// RiskLevel is the classifier's severity tier for a pending action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskVerdict is the classifier's judgment for a single pending action.
// Computed fresh per action, never cached across actions.
type RiskVerdict struct {
	Level                RiskLevel `json:"level"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	Reason               string    `json:"reason"`
}

// ConfirmationAnswer is the confirmation collaborator's response.
type ConfirmationAnswer string

const (
	ConfirmationAllow ConfirmationAnswer = "ALLOW"
	ConfirmationDeny  ConfirmationAnswer = "DENY"
)
