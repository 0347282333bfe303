package search

import (
	"strings"
	"sync"
)

// Tracker debounces search input and orders responses.
//
// Every input event gets a new generation; a debounce timer carrying an older
// generation fires into nothing, which is how a newer keystroke cancels the
// pending query. Every issued query gets a new sequence number, and only the
// response tagged with the latest sequence may update the results.
type Tracker struct {
	mu        sync.Mutex
	minLength int
	gen       uint64
	pending   bool
	term      string
	seq       uint64
}

// NewTracker creates a tracker that ignores terms shorter than minLength.
func NewTracker(minLength int) *Tracker {
	return &Tracker{minLength: minLength}
}

// Input records a new input value. It returns the generation to schedule a
// debounce timer with, or ok=false when the term is too short; in that case
// any pending query is cancelled and results should be cleared.
func (t *Tracker) Input(raw string) (gen uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	term := strings.TrimSpace(raw)
	if len([]rune(term)) < t.minLength {
		t.pending = false
		t.term = ""
		// Results for a longer term must not land after the user cleared it.
		t.seq++
		return 0, false
	}

	t.pending = true
	t.term = term
	return t.gen, true
}

// Fire is called when the debounce timer for gen elapses. It returns the term
// to query only if gen is still the latest input and has not fired yet.
func (t *Tracker) Fire(gen uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.pending || gen != t.gen {
		return "", false
	}
	t.pending = false
	return t.term, true
}

// Begin allocates the sequence number for a query about to be issued.
func (t *Tracker) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return t.seq
}

// Accept reports whether a response for seq may be applied.
func (t *Tracker) Accept(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seq == t.seq
}

// Reset cancels any pending timer and invalidates in-flight responses.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.seq++
	t.pending = false
	t.term = ""
}
