// api/schemas/actions.go
package schemas

import "fmt"

// -- Tool Catalog --

// ToolName identifies one callable action in the decision protocol's catalog.
type ToolName string

const (
	ToolNavigate           ToolName = "navigate"
	ToolClick              ToolName = "click"
	ToolClickAtCoordinates ToolName = "click_at_coordinates"
	ToolTypeText           ToolName = "type_text"
	ToolSelectOption       ToolName = "select_option"
	ToolScroll             ToolName = "scroll"
	ToolWait               ToolName = "wait"
	ToolExtractData        ToolName = "extract_data"
	ToolGoBack             ToolName = "go_back"
	ToolRefresh            ToolName = "refresh"
	ToolTakeScreenshot     ToolName = "take_screenshot"
	ToolCompleteTask       ToolName = "complete_task"
	ToolAskUser            ToolName = "ask_user"
)

// ScrollAmounts maps the symbolic scroll distances the model may request to
// pixel deltas. "page" is resolved against the live viewport height.
var ScrollAmounts = map[string]int{
	"small":  200,
	"medium": 500,
	"large":  1000,
}

// -- Action Targets --

// RoleTarget pairs an accessibility role with an accessible name.
type RoleTarget struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// ActionTarget is a symbolic reference to a page element. The decision
// protocol may populate several fields; the resolver tries them in the
// fixed order index, text, role, selector, coordinates, and the first
// strategy that succeeds wins.
type ActionTarget struct {
	Index       *int        `json:"index,omitempty"`
	Text        string      `json:"text,omitempty"`
	Role        *RoleTarget `json:"role,omitempty"`
	Selector    string      `json:"selector,omitempty"`
	Coordinates *Point      `json:"coordinates,omitempty"`
}

// Describe renders the target for logs, history entries and confirmation
// prompts, naming the most specific populated strategy.
func (t ActionTarget) Describe() string {
	switch {
	case t.Index != nil:
		return fmt.Sprintf("element #%d", *t.Index)
	case t.Text != "":
		return fmt.Sprintf("element with text %q", t.Text)
	case t.Role != nil:
		return fmt.Sprintf("%s %q", t.Role.Role, t.Role.Name)
	case t.Selector != "":
		return fmt.Sprintf("selector %q", t.Selector)
	case t.Coordinates != nil:
		return fmt.Sprintf("point (%.0f, %.0f)", t.Coordinates.X, t.Coordinates.Y)
	default:
		return "unspecified target"
	}
}

// IsZero reports whether the target carries no strategy at all.
func (t ActionTarget) IsZero() bool {
	return t.Index == nil && t.Text == "" && t.Role == nil &&
		t.Selector == "" && t.Coordinates == nil
}

// -- Browser Actions --

// BrowserAction is one concrete, executable browser operation chosen by the
// decision protocol. Fields beyond Tool are populated per the tool's
// argument schema; Target is set for element-addressed tools only.
type BrowserAction struct {
	Tool        ToolName     `json:"tool"`
	Target      ActionTarget `json:"target,omitempty"`
	URL         string       `json:"url,omitempty"`
	Text        string       `json:"text,omitempty"`
	Value       string       `json:"value,omitempty"`
	Direction   string       `json:"direction,omitempty"`
	Amount      string       `json:"amount,omitempty"`
	DurationMs  int          `json:"duration_ms,omitempty"`
	Description string       `json:"description,omitempty"`
	// Sensitive marks actions whose Text must be masked in logs, history
	// and confirmation prompts (passwords, card numbers).
	Sensitive bool `json:"sensitive,omitempty"`
}

// Describe renders a human readable summary of the action. Sensitive text is
// always masked here; there is no unmasked variant.
func (a BrowserAction) Describe() string {
	switch a.Tool {
	case ToolNavigate:
		return fmt.Sprintf("navigate to %s", a.URL)
	case ToolClick, ToolClickAtCoordinates:
		return fmt.Sprintf("click %s", a.Target.Describe())
	case ToolTypeText:
		text := a.Text
		if a.Sensitive {
			text = "********"
		}
		return fmt.Sprintf("type %q into %s", text, a.Target.Describe())
	case ToolSelectOption:
		return fmt.Sprintf("select %q in %s", a.Value, a.Target.Describe())
	case ToolScroll:
		return fmt.Sprintf("scroll %s (%s)", a.Direction, a.Amount)
	case ToolWait:
		return fmt.Sprintf("wait %dms", a.DurationMs)
	case ToolExtractData:
		return fmt.Sprintf("extract data: %s", a.Description)
	case ToolGoBack:
		return "go back"
	case ToolRefresh:
		return "refresh page"
	case ToolTakeScreenshot:
		return "take screenshot"
	default:
		return string(a.Tool)
	}
}

// -- Decisions --

// DecisionKind discriminates the Decision union.
type DecisionKind string

const (
	DecisionAct      DecisionKind = "act"
	DecisionComplete DecisionKind = "complete"
	DecisionAskUser  DecisionKind = "ask_user"
)

// Completion carries the terminal outcome the model reported.
type Completion struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// UserQuery is a request for free-text human input.
type UserQuery struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// Decision is the typed outcome of one decision-protocol round trip. Exactly
// one variant is populated, indicated by Kind; it is produced once per loop
// iteration and never partially applied.
type Decision struct {
	Kind       DecisionKind   `json:"kind"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Action     *BrowserAction `json:"action,omitempty"`
	Completion *Completion    `json:"completion,omitempty"`
	Query      *UserQuery     `json:"query,omitempty"`
}

// Describe renders the decision for history summaries.
func (d Decision) Describe() string {
	switch d.Kind {
	case DecisionAct:
		if d.Action == nil {
			return "act (no action)"
		}
		return d.Action.Describe()
	case DecisionComplete:
		if d.Completion == nil {
			return "complete task"
		}
		return fmt.Sprintf("complete task (success=%t)", d.Completion.Success)
	case DecisionAskUser:
		if d.Query == nil {
			return "ask user"
		}
		return fmt.Sprintf("ask user: %s", d.Query.Question)
	default:
		return "unknown decision"
	}
}
