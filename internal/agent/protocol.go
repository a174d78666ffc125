// internal/agent/protocol.go
package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/llmutil"
)

// wireDecision is the raw JSON envelope the model must emit: reasoning, one
// tool name from the catalog, and that tool's argument object.
type wireDecision struct {
	Reasoning string          `json:"reasoning"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
}

type navigateArgs struct {
	URL string `json:"url"`
}

type targetArgs struct {
	Target schemas.ActionTarget `json:"target"`
}

type clickAtArgs struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type typeTextArgs struct {
	Target schemas.ActionTarget `json:"target"`
	Text   string               `json:"text"`
}

type selectOptionArgs struct {
	Target schemas.ActionTarget `json:"target"`
	Value  string               `json:"value"`
}

type scrollArgs struct {
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
}

type waitArgs struct {
	DurationMs int `json:"duration_ms"`
}

type extractDataArgs struct {
	Description string `json:"description"`
}

type completeTaskArgs struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Summary string `json:"summary"`
}

type askUserArgs struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Protocol translates between the typed agent world and the model's JSON
// tool-call dialect: it renders snapshots and history into the user prompt
// and parses the response into a Decision. A response that cannot be parsed
// into a known tool call is a provider error; the model gets no partial
// credit for almost-JSON.
type Protocol struct {
	logger *zap.Logger
}

func NewProtocol(logger *zap.Logger) *Protocol {
	return &Protocol{logger: logger.Named("protocol")}
}

// BuildUserPrompt assembles the per-iteration user prompt. warning is an
// optional loop-detection notice injected ahead of the instruction line.
func (p *Protocol) BuildUserPrompt(request, historyBlock, snapshotBlock, warning string) string {
	var sb strings.Builder
	sb.WriteString("TASK:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nACTIONS SO FAR:\n")
	sb.WriteString(historyBlock)
	sb.WriteString("\n\nCURRENT PAGE:\n")
	sb.WriteString(snapshotBlock)
	if warning != "" {
		sb.WriteString("\n\nWARNING: ")
		sb.WriteString(warning)
	}
	sb.WriteString("\n\nRespond with the single JSON object for your next tool call.")
	return sb.String()
}

// RenderSnapshot flattens a snapshot into the element list the model targets
// by index.
func (p *Protocol) RenderSnapshot(snapshot *schemas.PageSnapshot) string {
	var sb strings.Builder
	sb.WriteString("URL: " + snapshot.URL + "\n")
	sb.WriteString("Title: " + snapshot.Title + "\n")
	if snapshot.StructureSummary != "" {
		sb.WriteString("Structure: " + snapshot.StructureSummary + "\n")
	}

	if len(snapshot.InteractiveElements) == 0 {
		sb.WriteString("Interactive elements: (none visible)")
		return sb.String()
	}

	sb.WriteString("Interactive elements:\n")
	for _, el := range snapshot.InteractiveElements {
		sb.WriteString(renderElement(el))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderElement formats one element line, e.g.
//
//	[3] <button> "Sign in" (id=login, type=submit)
func renderElement(el schemas.InteractiveElement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] <%s", el.Index, el.Tag)
	if el.Role != "" && el.Role != el.Tag {
		sb.WriteString(" role=" + el.Role)
	}
	sb.WriteByte('>')
	if el.Text != "" {
		fmt.Fprintf(&sb, " %q", el.Text)
	}
	if len(el.Attributes) > 0 {
		keys := make([]string, 0, len(el.Attributes))
		for key := range el.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			pairs = append(pairs, key+"="+el.Attributes[key])
		}
		sb.WriteString(" (" + strings.Join(pairs, ", ") + ")")
	}
	if !el.Enabled {
		sb.WriteString(" [disabled]")
	}
	return sb.String()
}

// ParseDecision converts raw model output into a typed Decision. Every
// failure path is a PROVIDER_ERROR: the caller treats it like any other
// unusable provider response.
func (p *Protocol) ParseDecision(content string) (schemas.Decision, error) {
	wire, err := llmutil.ParseJSONResponse[wireDecision](content)
	if err != nil {
		return schemas.Decision{}, schemas.NewAgentError(schemas.ErrProviderError, "unparseable decision response", err)
	}
	if wire.Tool == "" {
		return schemas.Decision{}, schemas.NewAgentError(schemas.ErrProviderError, "decision response missing tool name", nil)
	}

	decision, err := p.decodeTool(schemas.ToolName(wire.Tool), wire.Args)
	if err != nil {
		return schemas.Decision{}, err
	}
	decision.Reasoning = strings.TrimSpace(wire.Reasoning)

	p.logger.Debug("Decision parsed.",
		zap.String("kind", string(decision.Kind)),
		zap.String("decision", decision.Describe()))
	return decision, nil
}

func (p *Protocol) decodeTool(tool schemas.ToolName, args json.RawMessage) (schemas.Decision, error) {
	action := schemas.BrowserAction{Tool: tool}

	switch tool {
	case schemas.ToolNavigate:
		var a navigateArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		if a.URL == "" {
			return schemas.Decision{}, badArgs(tool, "url is required")
		}
		action.URL = a.URL

	case schemas.ToolClick:
		var a targetArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		if a.Target.IsZero() {
			return schemas.Decision{}, badArgs(tool, "target is required")
		}
		action.Target = a.Target

	case schemas.ToolClickAtCoordinates:
		var a clickAtArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		action.Target = schemas.ActionTarget{Coordinates: &schemas.Point{X: a.X, Y: a.Y}}

	case schemas.ToolTypeText:
		var a typeTextArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		if a.Target.IsZero() {
			return schemas.Decision{}, badArgs(tool, "target is required")
		}
		action.Target = a.Target
		action.Text = a.Text

	case schemas.ToolSelectOption:
		var a selectOptionArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		if a.Target.IsZero() || a.Value == "" {
			return schemas.Decision{}, badArgs(tool, "target and value are required")
		}
		action.Target = a.Target
		action.Value = a.Value

	case schemas.ToolScroll:
		var a scrollArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		switch a.Direction {
		case "up", "down", "top", "bottom":
		default:
			return schemas.Decision{}, badArgs(tool, fmt.Sprintf("unknown direction %q", a.Direction))
		}
		if a.Amount == "" {
			a.Amount = "medium"
		}
		if _, ok := schemas.ScrollAmounts[a.Amount]; !ok && a.Amount != "page" {
			return schemas.Decision{}, badArgs(tool, fmt.Sprintf("unknown amount %q", a.Amount))
		}
		action.Direction = a.Direction
		action.Amount = a.Amount

	case schemas.ToolWait:
		var a waitArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		if a.DurationMs <= 0 {
			a.DurationMs = 1000
		}
		action.DurationMs = a.DurationMs

	case schemas.ToolExtractData:
		var a extractDataArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		action.Description = a.Description

	case schemas.ToolGoBack, schemas.ToolRefresh, schemas.ToolTakeScreenshot:
		// No arguments.

	case schemas.ToolCompleteTask:
		var a completeTaskArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{
			Kind: schemas.DecisionComplete,
			Completion: &schemas.Completion{
				Success: a.Success,
				Result:  a.Result,
				Summary: a.Summary,
			},
		}, nil

	case schemas.ToolAskUser:
		var a askUserArgs
		if err := decodeArgs(tool, args, &a); err != nil {
			return schemas.Decision{}, err
		}
		if a.Question == "" {
			return schemas.Decision{}, badArgs(tool, "question is required")
		}
		return schemas.Decision{
			Kind:  schemas.DecisionAskUser,
			Query: &schemas.UserQuery{Question: a.Question, Options: a.Options},
		}, nil

	default:
		return schemas.Decision{}, schemas.NewAgentError(schemas.ErrProviderError,
			fmt.Sprintf("unknown tool %q", tool), nil)
	}

	return schemas.Decision{Kind: schemas.DecisionAct, Action: &action}, nil
}

func decodeArgs(tool schemas.ToolName, raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return schemas.NewAgentError(schemas.ErrProviderError,
			fmt.Sprintf("invalid arguments for %s", tool), err)
	}
	return nil
}

func badArgs(tool schemas.ToolName, reason string) error {
	return schemas.NewAgentError(schemas.ErrProviderError,
		fmt.Sprintf("invalid arguments for %s: %s", tool, reason), nil)
}
