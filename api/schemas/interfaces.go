// api/schemas/interfaces.go
package schemas

import (
	"context"
	"errors"
)

// -- Collaborator Interfaces --
// The control loop consumes every external capability through these
// interfaces; implementations live in internal/browser, internal/llmclient
// and the CLI layer.

// ErrSessionNotFound is returned by SessionStore.Load for unknown profiles.
var ErrSessionNotFound = errors.New("session state not found")

// BrowserSession is the browser capability the agent drives. Every call is
// treated as a possibly-failing, possibly-slow external request; all carry
// their own timeout semantics beneath the provided context.
type BrowserSession interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, point Point) error
	Type(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	Scroll(ctx context.Context, direction string, amountPx int) error
	ScrollByPage(ctx context.Context, direction string) error
	WaitFor(ctx context.Context, milliseconds int) error
	GoBack(ctx context.Context) error
	Reload(ctx context.Context) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Evaluate(ctx context.Context, script string, res interface{}) error
	OuterHTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// SnapshotBuilder produces one bounded PageSnapshot per loop iteration.
type SnapshotBuilder interface {
	BuildSnapshot(ctx context.Context, withScreenshot bool) (*PageSnapshot, error)
}

// Confirmer is the confirmation collaborator gating risky actions. It
// suspends (blocks on ctx) until the human answers or ctx is canceled.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, action BrowserAction, verdict RiskVerdict) (ConfirmationAnswer, error)
}

// UserPrompter supplies free-text answers for ask_user decisions.
type UserPrompter interface {
	AskUser(ctx context.Context, query UserQuery) (string, error)
}

// CookieRecord is one persisted cookie in a saved session profile.
type CookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

// SessionState is the persistable browser state for one named profile.
type SessionState struct {
	Name    string         `json:"name"`
	Cookies []CookieRecord `json:"cookies"`
}

// SessionStore persists browser state across tasks. Consumed only at task
// boundaries, never mid-loop.
type SessionStore interface {
	Save(ctx context.Context, state SessionState) error
	Load(ctx context.Context, name string) (SessionState, error)
}
