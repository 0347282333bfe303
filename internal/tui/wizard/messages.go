package wizard

import (
	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/flow"
	"github.com/bridgestowork/bridges-forms/internal/search"
)

// gateReadyMsg carries the result of resuming an existing session at startup.
type gateReadyMsg struct {
	outcome auth.Outcome
	err     error
}

// signInDoneMsg is sent when an interactive sign-in finishes.
type signInDoneMsg struct {
	outcome auth.Outcome
	err     error
}

// signOutDoneMsg is sent when sign-out finishes.
type signOutDoneMsg struct {
	err error
}

// searchDebounceMsg fires when the debounce timer for an input generation elapses.
type searchDebounceMsg struct {
	gen uint64
}

// searchResultMsg carries the response for query seq.
type searchResultMsg struct {
	seq      uint64
	contacts []search.Contact
	err      error
}

// launchedMsg is sent after the browser was asked to open the form.
type launchedMsg struct {
	plan flow.LaunchPlan
	err  error
}

// launchResetMsg fires when the post-launch delay elapses.
type launchResetMsg struct {
	plan flow.LaunchPlan
}

// hintAnsweredMsg is sent once the setup hint answer was stored.
type hintAnsweredMsg struct {
	accepted bool
	err      error
}
