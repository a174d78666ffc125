// internal/browser/resolver.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// Handle is a concrete actionable reference produced by resolution. Fused
// handles mark the coordinate strategy, which performs the pointer action
// itself during resolution because no stable handle exists for a raw point.
type Handle struct {
	Selector string
	Fused    bool
}

// PointerAction executes the pending action at raw viewport coordinates.
// Supplied by the caller so the coordinate strategy can fuse resolution and
// execution.
type PointerAction func(ctx context.Context, point schemas.Point) error

// elementSource supplies the current visible element list in snapshot
// order. Satisfied by *Snapshotter.
type elementSource interface {
	currentElements(ctx context.Context) ([]rawElement, error)
}

// scriptEvaluator runs a snippet against the live document. Satisfied by
// *Session.
type scriptEvaluator interface {
	Evaluate(ctx context.Context, script string, res interface{}) error
}

// Resolver maps a symbolic ActionTarget back to a concrete handle against
// the live document. Strategies run synchronously in fixed order (index,
// text, role, selector, coordinates); the first success wins and failures
// fall through to the next populated strategy.
type Resolver struct {
	elements  elementSource
	evaluator scriptEvaluator
	logger    *zap.Logger
}

// NewResolver builds a resolver sharing the snapshotter's element
// derivation, which keeps index resolution aligned with snapshot indices.
func NewResolver(snapshotter *Snapshotter, session *Session, logger *zap.Logger) *Resolver {
	return &Resolver{
		elements:  snapshotter,
		evaluator: session,
		logger:    logger.Named("resolver"),
	}
}

// Resolve returns a concrete handle for the target, or fails with
// ElementNotFound carrying the original target description once every
// populated strategy is exhausted. pointer may be nil for actions that
// cannot execute at raw coordinates; the coordinate strategy is then
// skipped.
func (r *Resolver) Resolve(ctx context.Context, target schemas.ActionTarget, pointer PointerAction) (Handle, error) {
	if target.IsZero() {
		return Handle{}, schemas.NewAgentError(schemas.ErrElementNotFound, "no target specified", nil)
	}

	// Re-derive the current interactive element list the same way the
	// snapshot builder did. The page may have changed since the snapshot
	// was taken; that is expected, and the stale snapshot is never
	// consulted.
	var elements []rawElement
	if target.Index != nil || target.Text != "" || target.Role != nil {
		var err error
		elements, err = r.elements.currentElements(ctx)
		if err != nil {
			return Handle{}, err
		}
	}

	if target.Index != nil {
		idx := *target.Index
		if idx >= 0 && idx < len(elements) {
			r.logger.Debug("Resolved target by index.", zap.Int("index", idx), zap.String("selector", elements[idx].Selector))
			return Handle{Selector: elements[idx].Selector}, nil
		}
		r.logger.Debug("Index strategy failed.", zap.Int("index", idx), zap.Int("available", len(elements)))
	}

	if target.Text != "" {
		if el, ok := findByText(elements, target.Text); ok {
			r.logger.Debug("Resolved target by text.", zap.String("text", target.Text), zap.String("selector", el.Selector))
			return Handle{Selector: el.Selector}, nil
		}
		r.logger.Debug("Text strategy failed.", zap.String("text", target.Text))
	}

	if target.Role != nil {
		if el, ok := findByRole(elements, target.Role.Role, target.Role.Name); ok {
			r.logger.Debug("Resolved target by role.", zap.String("role", target.Role.Role), zap.String("selector", el.Selector))
			return Handle{Selector: el.Selector}, nil
		}
		r.logger.Debug("Role strategy failed.", zap.String("role", target.Role.Role), zap.String("name", target.Role.Name))
	}

	if target.Selector != "" {
		exists, err := r.selectorExists(ctx, target.Selector)
		if err == nil && exists {
			r.logger.Debug("Resolved target by selector.", zap.String("selector", target.Selector))
			return Handle{Selector: target.Selector}, nil
		}
		r.logger.Debug("Selector strategy failed.", zap.String("selector", target.Selector), zap.Error(err))
	}

	if target.Coordinates != nil && pointer != nil {
		// Last resort: the pointer action is performed here, fusing
		// resolution and execution.
		if err := pointer(ctx, *target.Coordinates); err != nil {
			return Handle{}, schemas.NewAgentError(schemas.ErrElementNotFound,
				fmt.Sprintf("coordinate action at %s failed", target.Describe()), err)
		}
		r.logger.Debug("Executed target by coordinates.", zap.Float64("x", target.Coordinates.X), zap.Float64("y", target.Coordinates.Y))
		return Handle{Fused: true}, nil
	}

	return Handle{}, schemas.NewAgentError(schemas.ErrElementNotFound,
		fmt.Sprintf("could not resolve %s", target.Describe()), nil)
}

// selectorExists verifies a target-authored selector against the document.
func (r *Resolver) selectorExists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => { try { return document.querySelector(%q) !== null; } catch (e) { return false; } })()`, selector)
	var exists bool
	if err := r.evaluator.Evaluate(ctx, script, &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// findByText picks the first element in document order whose visible text
// contains the query (case-insensitive).
func findByText(elements []rawElement, query string) (rawElement, bool) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return rawElement{}, false
	}
	for _, el := range elements {
		if strings.Contains(strings.ToLower(el.Text), needle) {
			return el, true
		}
	}
	return rawElement{}, false
}

// findByRole matches accessibility role exactly and accessible name by
// contains, against both text and aria-label.
func findByRole(elements []rawElement, role, name string) (rawElement, bool) {
	roleNeedle := strings.ToLower(strings.TrimSpace(role))
	nameNeedle := strings.ToLower(strings.TrimSpace(name))
	for _, el := range elements {
		if strings.ToLower(el.Role) != roleNeedle {
			continue
		}
		if nameNeedle == "" ||
			strings.Contains(strings.ToLower(el.Text), nameNeedle) ||
			strings.Contains(strings.ToLower(el.AriaLabel), nameNeedle) {
			return el, true
		}
	}
	return rawElement{}, false
}
