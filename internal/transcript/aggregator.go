// ABOUTME: Streaming transcript aggregation for the active turn
// ABOUTME: Accumulates partial deltas and flushes completed turns to history
package transcript

import (
	"strings"
	"sync"

	"github.com/voxline/voxline-go/internal/history"
)

// Aggregator accumulates the input-side and output-side transcription
// deltas of the active turn. Partials are surfaced as a live preview and
// committed to history only at a turn boundary.
type Aggregator struct {
	mu        sync.Mutex
	input     strings.Builder
	output    strings.Builder
	onPreview func(input, output string)
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// SetOnPreview registers the live preview callback. It receives the
// running totals after every delta and the empty pair after each reset.
func (a *Aggregator) SetOnPreview(fn func(input, output string)) {
	a.mu.Lock()
	a.onPreview = fn
	a.mu.Unlock()
}

// AddInput appends an input-transcription delta.
func (a *Aggregator) AddInput(text string) {
	a.mu.Lock()
	a.input.WriteString(text)
	a.previewLocked()
	a.mu.Unlock()
}

// AddOutput appends an output-transcription delta.
func (a *Aggregator) AddOutput(text string) {
	a.mu.Lock()
	a.output.WriteString(text)
	a.previewLocked()
	a.mu.Unlock()
}

// Preview returns the current running totals.
func (a *Aggregator) Preview() (input, output string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.String(), a.output.String()
}

// FlushTurn commits the accumulated transcripts to history at a turn
// boundary. A non-empty user transcript is appended before a non-empty
// model transcript; both accumulators and the preview reset regardless
// of whether anything was flushed. Returns the number of appended
// messages.
func (a *Aggregator) FlushTurn(store *history.Store) int {
	a.mu.Lock()
	input := strings.TrimSpace(a.input.String())
	output := strings.TrimSpace(a.output.String())
	a.resetLocked()
	a.mu.Unlock()

	appended := 0
	if input != "" {
		store.Append(history.RoleUser, input)
		appended++
	}
	if output != "" {
		store.Append(history.RoleModel, output)
		appended++
	}
	return appended
}

// Reset discards any accumulated partials, e.g. at session start.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.resetLocked()
	a.mu.Unlock()
}

func (a *Aggregator) resetLocked() {
	a.input.Reset()
	a.output.Reset()
	a.previewLocked()
}

func (a *Aggregator) previewLocked() {
	if a.onPreview != nil {
		a.onPreview(a.input.String(), a.output.String())
	}
}
