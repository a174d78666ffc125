// api/schemas/snapshot.go
package schemas

import "time"

// -- Page Snapshot Schemas --

// PageSnapshot is one bounded semantic capture of the current page. It is
// immutable once built; the control loop discards it after folding the
// iteration's outcome into history.
type PageSnapshot struct {
	URL                 string               `json:"url"`
	Title               string               `json:"title"`
	Timestamp           time.Time            `json:"timestamp"`
	InteractiveElements []InteractiveElement `json:"interactive_elements"`
	StructureSummary    string               `json:"structure_summary"`
	// Screenshot is an opaque binary handle (JPEG bytes). Never inspected
	// internally; attached to the decision request when vision is enabled.
	Screenshot []byte `json:"-"`
}

// InteractiveElement is a single actionable node surfaced to the decision
// protocol. Index is stable within one snapshot (0-based, document order
// after filtering) and is the preferred targeting handle.
type InteractiveElement struct {
	Index      int               `json:"index"`
	Tag        string            `json:"tag"`
	Role       string            `json:"role,omitempty"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Position   Point             `json:"position"`
	Size       Dimensions        `json:"size"`
	Enabled    bool              `json:"enabled"`
}

// Point is a viewport coordinate pair (element center for snapshots).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions holds a rendered width/height in CSS pixels.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementCount returns how many interactive elements the snapshot carries.
func (s *PageSnapshot) ElementCount() int {
	return len(s.InteractiveElements)
}

// ElementAt returns the element with the given index, or false when the
// index is outside the snapshot's range.
func (s *PageSnapshot) ElementAt(index int) (InteractiveElement, bool) {
	if index < 0 || index >= len(s.InteractiveElements) {
		return InteractiveElement{}, false
	}
	return s.InteractiveElements[index], true
}
