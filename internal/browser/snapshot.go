// internal/browser/snapshot.go
package browser

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// rawElement is the untrimmed candidate produced by the in-page walk.
type rawElement struct {
	Tag         string  `json:"tag"`
	Role        string  `json:"role"`
	Text        string  `json:"text"`
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Href        string  `json:"href"`
	Placeholder string  `json:"placeholder"`
	AriaLabel   string  `json:"ariaLabel"`
	Classes     string  `json:"classes"`
	Type        string  `json:"type"`
	Selector    string  `json:"selector"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Enabled     bool    `json:"enabled"`
	InViewport  bool    `json:"inViewport"`
}

// rawRegions is the in-page structural digest input.
type rawRegions struct {
	HasHeader   bool   `json:"hasHeader"`
	HasNav      bool   `json:"hasNav"`
	HasMain     bool   `json:"hasMain"`
	HasFooter   bool   `json:"hasFooter"`
	FormCount   int    `json:"formCount"`
	LinkCount   int    `json:"linkCount"`
	ButtonCount int    `json:"buttonCount"`
	InputCount  int    `json:"inputCount"`
	Headline    string `json:"headline"`
}

// rawSnapshot is the full structured value returned by the walk script.
type rawSnapshot struct {
	URL            string       `json:"url"`
	Title          string       `json:"title"`
	ViewportWidth  int          `json:"viewportWidth"`
	ViewportHeight int          `json:"viewportHeight"`
	ScrollY        float64      `json:"scrollY"`
	Regions        rawRegions   `json:"regions"`
	Elements       []rawElement `json:"elements"`
}

// Snapshotter is the page abstraction builder. It converts the live
// document into one bounded, indexed PageSnapshot per loop iteration, and
// re-derives the current element list for index/text resolution.
type Snapshotter struct {
	session *Session
	cfg     config.SnapshotConfig
	logger  *zap.Logger
}

var _ schemas.SnapshotBuilder = (*Snapshotter)(nil)

// NewSnapshotter builds a snapshotter over the given session.
func NewSnapshotter(session *Session, cfg config.SnapshotConfig, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		session: session,
		cfg:     cfg,
		logger:  logger.Named("snapshotter"),
	}
}

// derive runs the in-page walk and returns its raw result.
func (sn *Snapshotter) derive(ctx context.Context) (*rawSnapshot, error) {
	script := fmt.Sprintf(snapshotScriptTmpl, sn.cfg.MaxDepth)

	var raw rawSnapshot
	if err := sn.session.Evaluate(ctx, script, &raw); err != nil {
		return nil, schemas.NewAgentError(schemas.ErrUnexpectedPageState, "page walk evaluation failed", err)
	}
	return &raw, nil
}

// currentElements re-derives the visible element list from the live page.
// Index resolution consumes this so its indices line up with the ones a
// snapshot of the same document would carry.
func (sn *Snapshotter) currentElements(ctx context.Context) ([]rawElement, error) {
	raw, err := sn.derive(ctx)
	if err != nil {
		return nil, err
	}
	return sn.visibleElements(raw), nil
}

// visibleElements applies the viewport filter and the element cap. This is
// the single derivation both snapshot building and index resolution use, so
// indices stay aligned across the two.
func (sn *Snapshotter) visibleElements(raw *rawSnapshot) []rawElement {
	out := make([]rawElement, 0, len(raw.Elements))
	for _, el := range raw.Elements {
		if !el.InViewport {
			continue
		}
		if el.Width <= 0 || el.Height <= 0 {
			continue
		}
		out = append(out, el)
		if len(out) >= sn.cfg.MaxElements {
			break
		}
	}
	return out
}

// BuildSnapshot produces one immutable PageSnapshot within the configured
// size bounds. Given an unchanged document, two successive builds yield
// identical snapshots.
func (sn *Snapshotter) BuildSnapshot(ctx context.Context, withScreenshot bool) (*schemas.PageSnapshot, error) {
	raw, err := sn.derive(ctx)
	if err != nil {
		return nil, err
	}

	visible := sn.visibleElements(raw)
	elements := make([]schemas.InteractiveElement, 0, len(visible))
	for i, el := range visible {
		elements = append(elements, sn.convertElement(i, el))
	}

	snapshot := &schemas.PageSnapshot{
		URL:                 raw.URL,
		Title:               truncate(raw.Title, sn.cfg.MaxTextLength),
		Timestamp:           time.Now(),
		InteractiveElements: elements,
		StructureSummary:    summarizeRegions(raw.Regions),
	}

	sn.enforceByteLimit(snapshot)

	if withScreenshot {
		shot, err := sn.session.Screenshot(ctx, false)
		if err != nil {
			// Vision is an enhancement; a failed capture never fails the build.
			sn.logger.Warn("Screenshot capture failed, continuing without vision.", zap.Error(err))
		} else {
			snapshot.Screenshot = shot
		}
	}

	sn.logger.Debug("Snapshot built",
		zap.String("url", snapshot.URL),
		zap.Int("elements", len(snapshot.InteractiveElements)),
		zap.Uint64("fingerprint", Fingerprint(snapshot)),
	)
	return snapshot, nil
}

// convertElement trims a raw candidate into the bounded schema form.
func (sn *Snapshotter) convertElement(index int, el rawElement) schemas.InteractiveElement {
	attrs := make(map[string]string)
	if el.ID != "" {
		attrs["id"] = truncate(el.ID, sn.cfg.MaxAttrLength)
	}
	if el.Name != "" {
		attrs["name"] = truncate(el.Name, sn.cfg.MaxAttrLength)
	}
	if el.Href != "" {
		attrs["href"] = truncate(el.Href, sn.cfg.MaxHrefLength)
	}
	if el.Placeholder != "" {
		attrs["placeholder"] = truncate(el.Placeholder, sn.cfg.MaxAttrLength)
	}
	if el.AriaLabel != "" {
		attrs["aria-label"] = truncate(el.AriaLabel, sn.cfg.MaxAttrLength)
	}
	if el.Type != "" {
		attrs["type"] = truncate(el.Type, sn.cfg.MaxAttrLength)
	}
	if classes := truncateClassList(el.Classes, sn.cfg.MaxClassTokens); classes != "" {
		attrs["class"] = classes
	}

	return schemas.InteractiveElement{
		Index:      index,
		Tag:        el.Tag,
		Role:       el.Role,
		Text:       truncate(el.Text, sn.cfg.MaxTextLength),
		Attributes: attrs,
		Position:   schemas.Point{X: el.X, Y: el.Y},
		Size:       schemas.Dimensions{Width: el.Width, Height: el.Height},
		Enabled:    el.Enabled,
	}
}

// enforceByteLimit drops trailing elements (whole records, never partial)
// until the serialized snapshot fits the configured cap. The structural
// digest always survives; it is the cheap fallback under extreme pressure.
func (sn *Snapshotter) enforceByteLimit(snapshot *schemas.PageSnapshot) {
	if sn.cfg.MaxByteSize <= 0 {
		return
	}
	for len(snapshot.InteractiveElements) > 0 {
		data, err := json.Marshal(snapshot)
		if err != nil || len(data) <= sn.cfg.MaxByteSize {
			return
		}
		dropped := len(snapshot.InteractiveElements) - 1
		snapshot.InteractiveElements = snapshot.InteractiveElements[:dropped]
		sn.logger.Debug("Dropped element to satisfy snapshot byte limit.", zap.Int("remaining", dropped))
	}
}

// summarizeRegions renders the landmark digest as a short natural-language
// line, independent of the detailed element dump.
func summarizeRegions(r rawRegions) string {
	var landmarks []string
	if r.HasHeader {
		landmarks = append(landmarks, "header")
	}
	if r.HasNav {
		landmarks = append(landmarks, "nav")
	}
	if r.HasMain {
		landmarks = append(landmarks, "main")
	}
	if r.HasFooter {
		landmarks = append(landmarks, "footer")
	}

	var sb strings.Builder
	if len(landmarks) > 0 {
		sb.WriteString("Regions: " + strings.Join(landmarks, ", ") + ". ")
	}
	fmt.Fprintf(&sb, "%d forms, %d links, %d buttons, %d inputs.",
		r.FormCount, r.LinkCount, r.ButtonCount, r.InputCount)
	if r.Headline != "" {
		sb.WriteString(" Headline: " + r.Headline)
	}
	return sb.String()
}

var hasherPool = sync.Pool{
	New: func() interface{} { return fnv.New64a() },
}

// Fingerprint computes a stable FNV-64a digest of the snapshot's identity
// (URL plus element structure). Two builds of an unchanged document hash
// identically, which makes successive builds comparable in the debug log.
func Fingerprint(snapshot *schemas.PageSnapshot) uint64 {
	h := hasherPool.Get().(interface {
		Write([]byte) (int, error)
		Sum64() uint64
		Reset()
	})
	defer hasherPool.Put(h)
	h.Reset()

	h.Write([]byte(snapshot.URL))
	for _, el := range snapshot.InteractiveElements {
		h.Write([]byte(el.Tag))
		h.Write([]byte(el.Role))
		h.Write([]byte(el.Text))
		h.Write([]byte(el.Attributes["id"]))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncateClassList keeps at most n class tokens.
func truncateClassList(classes string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := strings.Fields(classes)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}
