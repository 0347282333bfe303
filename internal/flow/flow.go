// Package flow is the wizard's navigation state machine. A Controller owns
// the session selection and the search state; every mutation goes through
// it and is serialized by its mutex.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bridgestowork/bridges-forms/internal/catalog"
	"github.com/bridgestowork/bridges-forms/internal/launch"
	"github.com/bridgestowork/bridges-forms/internal/search"
)

// Step is a wizard screen.
type Step int

const (
	StepSiteSelect Step = iota
	StepFormSelect
	StepSearchChoice
	StepSignIn
	StepSearch
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepSiteSelect:
		return "site-select"
	case StepFormSelect:
		return "form-select"
	case StepSearchChoice:
		return "search-choice"
	case StepSignIn:
		return "sign-in"
	case StepSearch:
		return "search"
	case StepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

var (
	// ErrContactRequired rejects launching a mandatory-contact form without one.
	ErrContactRequired = errors.New("a participant must be selected for this form")
	// ErrInvalidTransition rejects an operation that the current step does not offer.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnknownSite rejects a site that is not in the catalog.
	ErrUnknownSite = errors.New("unknown site")
	// ErrUnknownForm rejects a form that is not in the catalog or not offered for the site.
	ErrUnknownForm = errors.New("unknown form")
)

// Action tells the caller what to do after a selection.
type Action int

const (
	// ActionNone means the step changed and nothing else is needed.
	ActionNone Action = iota
	// ActionLaunch means the form opens now; call Launch.
	ActionLaunch
	// ActionSignIn means the sign-in prompt is showing for the pending form.
	ActionSignIn
)

// Selection is the session state. Only navigational choices are kept.
type Selection struct {
	Site          string
	FormID        string
	Contact       *search.Contact
	PendingFormID string
}

// SearchStatus is the outcome of the latest accepted query.
type SearchStatus int

const (
	SearchIdle SearchStatus = iota
	SearchLoading
	SearchDone
	SearchFailed
)

// SearchState is what the search step renders.
type SearchState struct {
	Term    string
	Status  SearchStatus
	Results []search.Contact
}

// Authorizer decides whether participant search may proceed for a form. When
// it may not, the implementation remembers the pending form for sign-in.
type Authorizer interface {
	Require(ctx context.Context, formID, site string) bool
}

// LaunchPlan is a form launch ready to open, plus the reset applied after Delay.
type LaunchPlan struct {
	URL         string
	Form        catalog.Form
	Site        string
	WithContact bool
	ResetTo     Step
	Delay       time.Duration

	rev uint64
}

// Controller drives the wizard. It is safe for concurrent use.
type Controller struct {
	cat     *catalog.Catalog
	auth    Authorizer
	baseURL string
	delay   time.Duration

	mu       sync.Mutex
	step     Step
	sel      Selection
	search   SearchState
	tracker  *search.Tracker
	rev      uint64
	optional []catalog.Form
}

// Options tune a Controller.
type Options struct {
	BaseURL         string
	MinSearchLength int
	LaunchDelay     time.Duration
}

// New creates a controller at the site-select step.
func New(cat *catalog.Catalog, auth Authorizer, opts Options) *Controller {
	return &Controller{
		cat:     cat,
		auth:    auth,
		baseURL: opts.BaseURL,
		delay:   opts.LaunchDelay,
		tracker: search.NewTracker(opts.MinSearchLength),
	}
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Selection returns a copy of the session selection.
func (c *Controller) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel := c.sel
	if sel.Contact != nil {
		contact := *sel.Contact
		sel.Contact = &contact
	}
	return sel
}

// Form returns the selected form, or the pending one while signing in.
func (c *Controller) Form() (catalog.Form, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentForm()
}

func (c *Controller) currentForm() (catalog.Form, bool) {
	id := c.sel.FormID
	if id == "" {
		id = c.sel.PendingFormID
	}
	if id == "" {
		return catalog.Form{}, false
	}
	return c.cat.Form(id)
}

// Search returns the search state.
func (c *Controller) Search() SearchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.search
	s.Results = append([]search.Contact(nil), s.Results...)
	return s
}

// VisibleOptionalForms returns the optional forms offered for the selected
// site. Empty hides the whole optional section.
func (c *Controller) VisibleOptionalForms() []catalog.Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]catalog.Form(nil), c.optional...)
}

// GoToSiteSelect clears the whole selection and the search state.
func (c *Controller) GoToSiteSelect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toSiteSelect()
}

func (c *Controller) toSiteSelect() {
	c.rev++
	c.sel = Selection{}
	c.optional = nil
	c.resetSearch()
	c.step = StepSiteSelect
}

// GoToFormSelect clears form, contact and search state and recomputes which
// optional forms the selected site offers.
func (c *Controller) GoToFormSelect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sel.Site == "" {
		return fmt.Errorf("%w: no site selected", ErrInvalidTransition)
	}
	c.toFormSelect()
	return nil
}

func (c *Controller) toFormSelect() {
	c.rev++
	c.sel.FormID = ""
	c.sel.Contact = nil
	c.sel.PendingFormID = ""
	c.resetSearch()
	c.optional = c.cat.VisibleOptional(c.sel.Site)
	c.step = StepFormSelect
}

// SelectSite records the site and moves to form select.
func (c *Controller) SelectSite(site string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSiteSelect {
		return fmt.Errorf("%w: select site from %s", ErrInvalidTransition, c.step)
	}
	if !c.cat.HasSite(site) {
		return fmt.Errorf("%w: %q", ErrUnknownSite, site)
	}
	c.sel.Site = site
	c.toFormSelect()
	return nil
}

// SelectForm routes the chosen form by kind: direct forms launch, mandatory
// contact forms pass the auth gate into search, optional contact forms offer
// a choice.
func (c *Controller) SelectForm(ctx context.Context, formID string) (Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepFormSelect {
		return ActionNone, fmt.Errorf("%w: select form from %s", ErrInvalidTransition, c.step)
	}
	form, ok := c.cat.Form(formID)
	if !ok || !c.cat.Available(formID, c.sel.Site) {
		return ActionNone, fmt.Errorf("%w: %q", ErrUnknownForm, formID)
	}

	c.rev++
	c.sel.FormID = form.ID
	c.sel.Contact = nil

	switch form.Kind() {
	case catalog.DirectLaunch:
		return ActionLaunch, nil
	case catalog.MandatoryContact:
		return c.gateSearch(ctx, form), nil
	default:
		c.step = StepSearchChoice
		return ActionNone, nil
	}
}

// ChooseSearch takes the search branch of an optional contact form.
func (c *Controller) ChooseSearch(ctx context.Context) (Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSearchChoice {
		return ActionNone, fmt.Errorf("%w: choose search from %s", ErrInvalidTransition, c.step)
	}
	form, _ := c.currentForm()
	c.rev++
	return c.gateSearch(ctx, form), nil
}

// ChooseBlank opens the optional contact form without a participant.
func (c *Controller) ChooseBlank() (LaunchPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSearchChoice {
		return LaunchPlan{}, fmt.Errorf("%w: open blank form from %s", ErrInvalidTransition, c.step)
	}
	c.sel.Contact = nil
	return c.plan()
}

func (c *Controller) gateSearch(ctx context.Context, form catalog.Form) Action {
	if form.RequiresAuth && c.auth != nil && !c.auth.Require(ctx, form.ID, c.sel.Site) {
		c.sel.PendingFormID = form.ID
		c.step = StepSignIn
		return ActionSignIn
	}
	c.toSearch()
	return ActionNone
}

func (c *Controller) toSearch() {
	c.rev++
	c.sel.PendingFormID = ""
	c.sel.Contact = nil
	c.resetSearch()
	c.step = StepSearch
}

// AwaitSignIn puts the wizard at the sign-in prompt for formID, restoring a
// site the wizard lost across a restart.
func (c *Controller) AwaitSignIn(formID, site string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	form, err := c.restore(formID, site)
	if err != nil {
		return err
	}
	c.sel.PendingFormID = form.ID
	c.step = StepSignIn
	return nil
}

// Resume enters search for formID after a successful sign-in.
func (c *Controller) Resume(formID, site string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.restore(formID, site); err != nil {
		return err
	}
	c.toSearch()
	return nil
}

func (c *Controller) restore(formID, site string) (catalog.Form, error) {
	form, ok := c.cat.Form(formID)
	if !ok {
		return catalog.Form{}, fmt.Errorf("%w: %q", ErrUnknownForm, formID)
	}
	if c.sel.Site == "" && site != "" {
		if !c.cat.HasSite(site) {
			return catalog.Form{}, fmt.Errorf("%w: %q", ErrUnknownSite, site)
		}
		c.sel.Site = site
		c.optional = c.cat.VisibleOptional(site)
	}
	c.rev++
	c.sel.FormID = form.ID
	return form, nil
}

// CancelSignIn leaves the sign-in prompt and returns to where the gate was
// reached: the choice step for optional contact forms, else form select.
func (c *Controller) CancelSignIn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSignIn {
		return fmt.Errorf("%w: cancel sign-in from %s", ErrInvalidTransition, c.step)
	}
	c.cancelSignIn()
	return nil
}

func (c *Controller) cancelSignIn() {
	form, ok := c.cat.Form(c.sel.PendingFormID)
	c.sel.PendingFormID = ""
	if ok && form.Kind() == catalog.OptionalContact {
		c.rev++
		c.sel.FormID = form.ID
		c.step = StepSearchChoice
		return
	}
	if c.sel.Site == "" {
		c.toSiteSelect()
		return
	}
	c.toFormSelect()
}

// Back moves one step back. Site select has no back.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step {
	case StepSiteSelect:
		return fmt.Errorf("%w: no step before site select", ErrInvalidTransition)
	case StepFormSelect:
		c.toSiteSelect()
	case StepSearchChoice:
		c.toFormSelect()
	case StepSignIn:
		c.cancelSignIn()
	case StepSearch:
		if form, ok := c.currentForm(); ok && form.Kind() == catalog.OptionalContact {
			c.rev++
			c.sel.Contact = nil
			c.resetSearch()
			c.step = StepSearchChoice
		} else {
			c.toFormSelect()
		}
	case StepConfirm:
		c.toSearch()
	}
	return nil
}

// SearchInput records the search field value. ok=false means the term is
// too short: nothing is queried and the results are cleared.
func (c *Controller) SearchInput(raw string) (gen uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search.Term = raw
	gen, ok = c.tracker.Input(raw)
	if !ok {
		c.search.Status = SearchIdle
		c.search.Results = nil
	}
	return gen, ok
}

// SearchFire is called when the debounce timer for gen elapses. It returns
// the query to issue and its sequence number, or ok=false when a newer input
// superseded gen.
func (c *Controller) SearchFire(gen uint64) (q search.Query, seq uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSearch {
		return search.Query{}, 0, false
	}
	term, ok := c.tracker.Fire(gen)
	if !ok {
		return search.Query{}, 0, false
	}
	form, _ := c.currentForm()
	c.search.Status = SearchLoading
	return search.Query{
		Term:        term,
		Site:        c.sel.Site,
		ProgramType: form.ProgramTypeFilter,
	}, c.tracker.Begin(), true
}

// SearchResult applies the response for seq. Responses for anything but the
// latest query are discarded and reported as false.
func (c *Controller) SearchResult(seq uint64, contacts []search.Contact, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSearch || !c.tracker.Accept(seq) {
		return false
	}
	if err != nil {
		c.search.Status = SearchFailed
		c.search.Results = nil
		return true
	}
	c.search.Status = SearchDone
	c.search.Results = contacts
	return true
}

func (c *Controller) resetSearch() {
	c.tracker.Reset()
	c.search = SearchState{}
}

// SelectContact attaches a participant and moves to confirm.
func (c *Controller) SelectContact(contact search.Contact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSearch {
		return fmt.Errorf("%w: select participant from %s", ErrInvalidTransition, c.step)
	}
	form, ok := c.currentForm()
	if !ok || !form.SupportsPreFill {
		return fmt.Errorf("%w: form does not take a participant", ErrInvalidTransition)
	}
	c.rev++
	c.sel.Contact = &contact
	c.step = StepConfirm
	return nil
}

// SkipSearch moves to confirm without a participant. Mandatory contact forms
// do not offer it.
func (c *Controller) SkipSearch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSearch {
		return fmt.Errorf("%w: skip search from %s", ErrInvalidTransition, c.step)
	}
	if form, ok := c.currentForm(); ok && form.RequiresContact {
		return ErrContactRequired
	}
	c.rev++
	c.sel.Contact = nil
	c.step = StepConfirm
	return nil
}

// Launch builds the plan for the selected form. It is offered right after a
// direct form is selected and from confirm.
func (c *Controller) Launch() (LaunchPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.step {
	case StepFormSelect, StepConfirm:
	default:
		return LaunchPlan{}, fmt.Errorf("%w: launch from %s", ErrInvalidTransition, c.step)
	}
	if c.step == StepFormSelect {
		if form, ok := c.currentForm(); !ok || form.Kind() != catalog.DirectLaunch {
			return LaunchPlan{}, fmt.Errorf("%w: form needs more steps before launch", ErrInvalidTransition)
		}
	}
	return c.plan()
}

func (c *Controller) plan() (LaunchPlan, error) {
	form, ok := c.currentForm()
	if !ok {
		return LaunchPlan{}, fmt.Errorf("%w: no form selected", ErrInvalidTransition)
	}
	if form.RequiresContact && c.sel.Contact == nil {
		return LaunchPlan{}, ErrContactRequired
	}

	contactID := ""
	if c.sel.Contact != nil && form.SupportsPreFill {
		contactID = c.sel.Contact.ID
	}

	// From confirm the user stays on the site for the next participant;
	// direct and blank launches start over.
	reset := StepSiteSelect
	if c.step == StepConfirm {
		reset = StepFormSelect
	}

	c.rev++
	return LaunchPlan{
		URL:         launch.BuildURL(c.baseURL, form, c.sel.Site, contactID),
		Form:        form,
		Site:        c.sel.Site,
		WithContact: contactID != "",
		ResetTo:     reset,
		Delay:       c.delay,
		rev:         c.rev,
	}, nil
}

// CompleteLaunch applies the delayed reset of plan. It does nothing and
// returns false when the user navigated after the launch.
func (c *Controller) CompleteLaunch(plan LaunchPlan) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if plan.rev != c.rev {
		return false
	}
	if plan.ResetTo == StepFormSelect && c.sel.Site != "" {
		c.toFormSelect()
	} else {
		c.toSiteSelect()
	}
	return true
}
