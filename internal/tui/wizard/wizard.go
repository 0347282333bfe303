// Package wizard is the terminal UI of the form launcher: site select, form
// select, the optional participant search behind sign-in, and confirmation.
package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	uv "github.com/charmbracelet/ultraviolet"

	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/catalog"
	"github.com/bridgestowork/bridges-forms/internal/flow"
	"github.com/bridgestowork/bridges-forms/internal/history"
	"github.com/bridgestowork/bridges-forms/internal/launch"
	"github.com/bridgestowork/bridges-forms/internal/logger"
	"github.com/bridgestowork/bridges-forms/internal/search"
	"github.com/bridgestowork/bridges-forms/internal/tui/theme"
)

// Gate is the part of the authentication gate the UI drives.
type Gate interface {
	Initialize(ctx context.Context) (auth.Outcome, error)
	SignIn(ctx context.Context, formID, site string) (auth.Outcome, error)
	SignOut(ctx context.Context) error
	Abandon(ctx context.Context) (formID, site string)
	User() (auth.Account, bool)
	Mode() auth.Mode
	Domain() string
}

// Searcher looks participants up.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Contact, error)
}

// Recorder keeps the launch history.
type Recorder interface {
	Record(ctx context.Context, l history.Launch) error
}

// Options wires the wizard to its collaborators.
type Options struct {
	Catalog    *catalog.Catalog
	Controller *flow.Controller
	Gate       Gate
	Searcher   Searcher
	Opener     launch.Opener
	// History is optional.
	History Recorder

	Debounce        time.Duration
	MinSearchLength int
	// Site preselects a site and skips site select.
	Site string
	// SetupHint shows the "save your setup" banner; OnSetupHint stores the answer.
	SetupHint   bool
	OnSetupHint func(accepted bool) error
	// Resume reopens a blocking sign-in that did not finish.
	Resume *Resume
}

// Resume describes a sign-in that ran outside the wizard and did not finish.
type Resume struct {
	FormID string
	Site   string
	// Err is why it failed; nil means the user cancelled.
	Err error
}

// Result reports why the wizard exited.
type Result struct {
	// Redirect means the user chose blocking sign-in: the caller completes it
	// outside the UI and starts the wizard again.
	Redirect bool
}

// Model is the BubbleTea model of the wizard.
type Model struct {
	ctx  context.Context
	opts Options
	ctrl *flow.Controller

	width  int
	height int

	step    flow.Step // step the widgets were last synced for
	list    selectList
	results selectList
	input   textinput.Model
	spinner spinner.Model
	choice  int // focused button on the choice and sign-in steps

	initializing bool
	signingIn    bool
	cancelSignIn context.CancelFunc
	signInErr    string

	status    string
	statusErr bool
	showHint  bool

	result   Result
	quitting bool
}

// New creates the wizard model.
func New(ctx context.Context, opts Options) *Model {
	s := theme.Current().S()

	input := textinput.New()
	input.Placeholder = "Type a name or email..."
	input.Prompt = "Search: "
	input.SetWidth(50)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.Spinner

	m := &Model{
		ctx:          ctx,
		opts:         opts,
		ctrl:         opts.Controller,
		input:        input,
		spinner:      sp,
		initializing: opts.Gate != nil,
		showHint:     opts.SetupHint,
		step:         -1,
	}

	if opts.Site != "" {
		if err := m.ctrl.SelectSite(opts.Site); err != nil {
			logger.Warn("Preselected site %q rejected: %v", opts.Site, err)
		}
	}
	if r := opts.Resume; r != nil && r.FormID != "" {
		m.resume(*r)
	}
	m.sync()
	return m
}

func (m *Model) resume(r Resume) {
	if err := m.ctrl.AwaitSignIn(r.FormID, r.Site); err != nil {
		logger.Warn("Restoring sign-in prompt failed: %v", err)
		return
	}
	if r.Err == nil {
		_ = m.ctrl.CancelSignIn()
		return
	}
	m.signInErr = auth.UserMessage(r.Err)
}

// Run starts the wizard as a standalone BubbleTea program and blocks until
// it exits.
func Run(ctx context.Context, opts Options) (Result, error) {
	m := New(ctx, opts)

	finalModel, err := tea.NewProgram(m).Run()
	if err != nil {
		return Result{}, fmt.Errorf("wizard failed: %w", err)
	}

	wizModel, ok := finalModel.(*Model)
	if !ok {
		return Result{}, fmt.Errorf("unexpected model type")
	}
	return wizModel.result, nil
}

// Result returns the exit result.
func (m *Model) Result() Result {
	return m.result
}

// Init resumes any existing session.
func (m *Model) Init() tea.Cmd {
	if m.opts.Gate == nil {
		return nil
	}
	gate, ctx := m.opts.Gate, m.ctx
	return tea.Batch(
		func() tea.Msg {
			out, err := gate.Initialize(ctx)
			return gateReadyMsg{outcome: out, err: err}
		},
		m.spinner.Tick,
	)
}

// Update handles messages for the wizard.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()
		return m, nil

	case tea.KeyPressMsg:
		return m, m.handleKey(msg)

	case gateReadyMsg:
		return m, m.handleGateReady(msg)

	case signInDoneMsg:
		return m, m.handleSignInDone(msg)

	case signOutDoneMsg:
		if msg.err != nil {
			m.setError("Sign out failed: " + msg.err.Error())
			return m, nil
		}
		m.ctrl.GoToSiteSelect()
		cmd := m.sync()
		m.setStatus("Signed out")
		return m, cmd

	case searchDebounceMsg:
		return m, m.handleDebounce(msg)

	case searchResultMsg:
		m.handleSearchResult(msg)
		return m, nil

	case launchedMsg:
		return m, m.handleLaunched(msg)

	case launchResetMsg:
		if m.ctrl.CompleteLaunch(msg.plan) {
			return m, m.sync()
		}
		return m, nil

	case hintAnsweredMsg:
		switch {
		case msg.err != nil:
			m.setError("Could not save settings: " + msg.err.Error())
		case msg.accepted:
			m.setStatus("Settings saved. Run bridges-forms setup --edit to change them.")
		}
		return m, nil

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.step == flow.StepSearch {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) busy() bool {
	return m.initializing || m.signingIn || m.ctrl.Search().Status == flow.SearchLoading
}

func (m *Model) handleKey(msg tea.KeyPressMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		m.abortSignIn()
		m.quitting = true
		return tea.Quit
	}

	if m.showHint {
		switch key {
		case "ctrl+y":
			return m.answerHint(true)
		case "ctrl+n":
			return m.answerHint(false)
		}
	}

	switch m.ctrl.Step() {
	case flow.StepSiteSelect:
		return m.keySiteSelect(key)
	case flow.StepFormSelect:
		return m.keyFormSelect(key)
	case flow.StepSearchChoice:
		return m.keySearchChoice(key)
	case flow.StepSignIn:
		return m.keySignIn(key)
	case flow.StepSearch:
		return m.keySearch(msg)
	case flow.StepConfirm:
		return m.keyConfirm(key)
	}
	return nil
}

func (m *Model) keySiteSelect(key string) tea.Cmd {
	switch key {
	case "up", "k":
		m.list.Up()
	case "down", "j":
		m.list.Down()
	case "enter":
		item, ok := m.list.Selected()
		if !ok {
			return nil
		}
		m.clearStatus()
		if err := m.ctrl.SelectSite(item.id); err != nil {
			m.setError(err.Error())
		}
		return m.sync()
	case "ctrl+o":
		return m.signOut()
	case "esc", "q":
		m.quitting = true
		return tea.Quit
	}
	return nil
}

func (m *Model) keyFormSelect(key string) tea.Cmd {
	switch key {
	case "up", "k":
		m.list.Up()
	case "down", "j":
		m.list.Down()
	case "enter":
		item, ok := m.list.Selected()
		if !ok {
			return nil
		}
		m.clearStatus()
		action, err := m.ctrl.SelectForm(m.ctx, item.id)
		if err != nil {
			m.setError(err.Error())
			return m.sync()
		}
		if action == flow.ActionLaunch {
			return tea.Batch(m.sync(), m.launchSelected())
		}
		return m.sync()
	case "ctrl+o":
		return m.signOut()
	case "esc":
		m.back()
		return m.sync()
	}
	return nil
}

func (m *Model) keySearchChoice(key string) tea.Cmd {
	switch key {
	case "left", "h", "up", "k", "shift+tab":
		m.choice = 0
	case "right", "l", "down", "j", "tab":
		m.choice = 1
	case "enter":
		m.clearStatus()
		if m.choice == 1 {
			plan, err := m.ctrl.ChooseBlank()
			if err != nil {
				m.setError(err.Error())
				return nil
			}
			return m.launch(plan)
		}
		if _, err := m.ctrl.ChooseSearch(m.ctx); err != nil {
			m.setError(err.Error())
		}
		return m.sync()
	case "esc":
		m.back()
		return m.sync()
	}
	return nil
}

func (m *Model) keySignIn(key string) tea.Cmd {
	if m.signingIn {
		if key == "esc" {
			m.abortSignIn()
		}
		return nil
	}
	switch key {
	case "enter":
		return m.startSignIn()
	case "esc":
		m.signInErr = ""
		if err := m.ctrl.CancelSignIn(); err != nil {
			m.setError(err.Error())
		}
		return tea.Batch(m.sync(), m.abandonSignIn())
	}
	return nil
}

func (m *Model) keySearch(msg tea.KeyPressMsg) tea.Cmd {
	switch msg.String() {
	case "up":
		m.results.Up()
		return nil
	case "down":
		m.results.Down()
		return nil
	case "enter":
		return m.selectResult()
	case "ctrl+s":
		if err := m.ctrl.SkipSearch(); err != nil {
			m.setError(err.Error())
			return nil
		}
		m.clearStatus()
		return m.sync()
	case "esc":
		m.back()
		return m.sync()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return cmd
	}
	return tea.Batch(cmd, m.onSearchInput(m.input.Value()))
}

func (m *Model) keyConfirm(key string) tea.Cmd {
	switch key {
	case "enter":
		plan, err := m.ctrl.Launch()
		if err != nil {
			m.setError(err.Error())
			return nil
		}
		return m.launch(plan)
	case "esc":
		m.back()
		return m.sync()
	}
	return nil
}

func (m *Model) back() {
	m.clearStatus()
	if err := m.ctrl.Back(); err != nil {
		m.setError(err.Error())
	}
}

func (m *Model) onSearchInput(value string) tea.Cmd {
	gen, ok := m.ctrl.SearchInput(value)
	m.syncResults()
	if !ok {
		return nil
	}
	return tea.Tick(m.opts.Debounce, func(time.Time) tea.Msg {
		return searchDebounceMsg{gen: gen}
	})
}

func (m *Model) handleDebounce(msg searchDebounceMsg) tea.Cmd {
	q, seq, ok := m.ctrl.SearchFire(msg.gen)
	if !ok {
		return nil
	}
	searcher, ctx := m.opts.Searcher, m.ctx
	return tea.Batch(
		func() tea.Msg {
			contacts, err := searcher.Search(ctx, q)
			return searchResultMsg{seq: seq, contacts: contacts, err: err}
		},
		m.spinner.Tick,
	)
}

func (m *Model) handleSearchResult(msg searchResultMsg) {
	if msg.err != nil {
		logger.Error("Search error: %v", msg.err)
	}
	if !m.ctrl.SearchResult(msg.seq, msg.contacts, msg.err) {
		logger.Debug("Discarding stale search response %d", msg.seq)
		return
	}
	m.syncResults()
}

func (m *Model) selectResult() tea.Cmd {
	item, ok := m.results.Selected()
	if !ok {
		return nil
	}
	for _, c := range m.ctrl.Search().Results {
		if c.ID == item.id {
			if err := m.ctrl.SelectContact(c); err != nil {
				m.setError(err.Error())
				return nil
			}
			m.clearStatus()
			return m.sync()
		}
	}
	return nil
}

func (m *Model) startSignIn() tea.Cmd {
	sel := m.ctrl.Selection()
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelSignIn = cancel
	m.signingIn = true
	m.signInErr = ""

	gate := m.opts.Gate
	return tea.Batch(
		func() tea.Msg {
			out, err := gate.SignIn(ctx, sel.PendingFormID, sel.Site)
			return signInDoneMsg{outcome: out, err: err}
		},
		m.spinner.Tick,
	)
}

func (m *Model) abortSignIn() {
	if m.cancelSignIn != nil {
		m.cancelSignIn()
	}
}

func (m *Model) handleSignInDone(msg signInDoneMsg) tea.Cmd {
	m.abortSignIn()
	m.cancelSignIn = nil
	m.signingIn = false
	out := msg.outcome

	switch {
	case out.Redirect:
		m.result.Redirect = true
		m.quitting = true
		return tea.Quit
	case out.Cancelled:
		if m.ctrl.Step() == flow.StepSignIn {
			_ = m.ctrl.CancelSignIn()
		}
	case msg.err != nil:
		m.signInErr = auth.UserMessage(msg.err)
	case out.Account != nil:
		formID := out.FormID
		if formID == "" {
			formID = m.ctrl.Selection().PendingFormID
		}
		if err := m.ctrl.Resume(formID, out.Site); err != nil {
			logger.Warn("Resuming after sign-in failed: %v", err)
			m.setError(err.Error())
		}
	}
	return m.sync()
}

func (m *Model) handleGateReady(msg gateReadyMsg) tea.Cmd {
	m.initializing = false
	out := msg.outcome

	if msg.err != nil {
		m.signInErr = auth.UserMessage(msg.err)
		if out.FormID != "" {
			if err := m.ctrl.AwaitSignIn(out.FormID, out.Site); err != nil {
				logger.Warn("Restoring sign-in prompt failed: %v", err)
			}
		}
		return m.sync()
	}
	if out.Account == nil {
		return m.sync()
	}

	formID := out.FormID
	if formID == "" && m.ctrl.Step() == flow.StepSignIn {
		// The user reached the prompt before the session was resumed.
		formID = m.ctrl.Selection().PendingFormID
	}
	if formID != "" {
		if err := m.ctrl.Resume(formID, out.Site); err != nil {
			logger.Warn("Resuming pending form failed: %v", err)
		}
	}
	return m.sync()
}

func (m *Model) abandonSignIn() tea.Cmd {
	if m.opts.Gate == nil {
		return nil
	}
	gate, ctx := m.opts.Gate, m.ctx
	return func() tea.Msg {
		gate.Abandon(ctx)
		return nil
	}
}

func (m *Model) signOut() tea.Cmd {
	if _, ok := m.opts.Gate.User(); !ok {
		return nil
	}
	gate, ctx := m.opts.Gate, m.ctx
	return func() tea.Msg {
		return signOutDoneMsg{err: gate.SignOut(ctx)}
	}
}

func (m *Model) launchSelected() tea.Cmd {
	plan, err := m.ctrl.Launch()
	if err != nil {
		m.setError(err.Error())
		return nil
	}
	return m.launch(plan)
}

func (m *Model) launch(plan flow.LaunchPlan) tea.Cmd {
	opener, rec, ctx := m.opts.Opener, m.opts.History, m.ctx
	return func() tea.Msg {
		err := opener.Open(ctx, plan.URL)
		if err == nil && rec != nil {
			entry := history.Launch{
				FormID:      plan.Form.ID,
				FormName:    plan.Form.Name,
				Site:        plan.Site,
				WithContact: plan.WithContact,
				At:          time.Now(),
			}
			if rerr := rec.Record(ctx, entry); rerr != nil {
				logger.Warn("Recording launch failed: %v", rerr)
			}
		}
		return launchedMsg{plan: plan, err: err}
	}
}

func (m *Model) handleLaunched(msg launchedMsg) tea.Cmd {
	if msg.err != nil {
		logger.Error("Opening form failed: %v", msg.err)
		m.setError("Could not open the browser. Open this link instead: " + msg.plan.URL)
	} else {
		m.setStatus(fmt.Sprintf("Opened %s", msg.plan.Form.Name))
	}
	plan := msg.plan
	return tea.Tick(plan.Delay, func(time.Time) tea.Msg {
		return launchResetMsg{plan: plan}
	})
}

func (m *Model) answerHint(accepted bool) tea.Cmd {
	m.showHint = false
	answer := m.opts.OnSetupHint
	if answer == nil {
		return nil
	}
	return func() tea.Msg {
		return hintAnsweredMsg{accepted: accepted, err: answer(accepted)}
	}
}

// sync refreshes the widgets for the controller's current step.
func (m *Model) sync() tea.Cmd {
	step := m.ctrl.Step()
	changed := step != m.step
	m.step = step

	switch step {
	case flow.StepSiteSelect:
		items := make([]listItem, 0, len(m.opts.Catalog.Sites()))
		for _, site := range m.opts.Catalog.Sites() {
			items = append(items, listItem{id: site, label: site})
		}
		m.list.SetItems(items)
	case flow.StepFormSelect:
		var items []listItem
		for _, f := range m.opts.Catalog.PrimaryForms() {
			items = append(items, formItem(f, "Participant forms"))
		}
		for _, f := range m.ctrl.VisibleOptionalForms() {
			items = append(items, formItem(f, "Other forms"))
		}
		m.list.SetItems(items)
	}

	if !changed {
		return nil
	}
	m.list.Reset()
	m.choice = 0
	if step != flow.StepSignIn {
		m.signInErr = ""
	}
	if step == flow.StepSearch {
		m.input.SetValue("")
		m.syncResults()
		m.results.Reset()
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func formItem(f catalog.Form, section string) listItem {
	detail := ""
	switch f.Kind() {
	case catalog.MandatoryContact:
		detail = "participant lookup"
	case catalog.OptionalContact:
		detail = "optional lookup"
	}
	return listItem{id: f.ID, label: f.Name, detail: detail, section: section}
}

func (m *Model) syncResults() {
	st := m.ctrl.Search()
	items := make([]listItem, 0, len(st.Results))
	for _, c := range st.Results {
		items = append(items, listItem{id: c.ID, label: contactLabel(c), detail: contactDetail(c)})
	}
	m.results.SetItems(items)
}

func contactLabel(c search.Contact) string {
	return "[" + search.Initials(c.Name) + "] " + c.Name
}

func contactDetail(c search.Contact) string {
	var parts []string
	if c.Email != "" {
		parts = append(parts, c.Email)
	}
	if c.Birthdate != "" {
		parts = append(parts, "DOB "+search.FormatBirthdate(c.Birthdate))
	}
	return strings.Join(parts, " • ")
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}

func (m *Model) updateSizes() {
	w := m.modalWidth() - 8
	m.input.SetWidth(w - len(m.input.Prompt) - 2)
	h := m.height - 16
	if h < 4 {
		h = 4
	}
	m.list.SetHeight(h)
	m.results.SetHeight(h - 2)
}

func (m *Model) modalWidth() int {
	w := m.width - 10
	if w < 60 {
		w = 60
	}
	if w > 100 {
		w = 100
	}
	return w
}

// View renders the wizard UI.
func (m *Model) View() tea.View {
	var view tea.View
	view.AltScreen = true
	if m.quitting {
		return view
	}

	canvas := uv.NewScreenBuffer(m.width, m.height)
	uv.NewStyledString(m.render()).Draw(canvas, uv.Rectangle{
		Min: uv.Position{X: 0, Y: 0},
		Max: uv.Position{X: m.width, Y: m.height},
	})

	view.Content = lipgloss.NewLayer(canvas.Render())
	return view
}

// render lays the current step out in a centered modal.
func (m *Model) render() string {
	s := theme.Current().S()
	width := m.modalWidth()

	var sections []string
	sections = append(sections, m.renderHeader(width-6))
	if m.showHint {
		sections = append(sections, s.Banner.Render("Save these settings for next time?")+"  "+
			renderHintBar("ctrl+y", "save", "ctrl+n", "not now"))
	}
	sections = append(sections, "")

	title, body, hints := m.renderStep(width - 6)
	sections = append(sections, s.ModalTitle.Render(title), "", body)

	if m.status != "" {
		line := s.Success.Render(m.status)
		if m.statusErr {
			line = s.Error.Render(m.status)
		}
		sections = append(sections, "", line)
	}
	sections = append(sections, "", hints)

	modal := s.ModalContainer.Width(width).Render(strings.Join(sections, "\n"))
	if m.width == 0 || m.height == 0 {
		return modal
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}

func (m *Model) renderHeader(width int) string {
	s := theme.Current().S()
	title := s.HeaderTitle.Render("Bridges Forms")

	var user string
	switch acct, ok := m.userAccount(); {
	case m.initializing:
		user = m.spinner.View() + " " + s.HeaderUser.Render("Checking sign-in...")
	case ok:
		user = s.HeaderUser.Render(acct.Name() + " · " + acct.Email)
	default:
		user = s.Muted.Render("Not signed in")
	}

	gap := width - lipgloss.Width(title) - lipgloss.Width(user)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + user
}

func (m *Model) userAccount() (auth.Account, bool) {
	if m.opts.Gate == nil {
		return auth.Account{}, false
	}
	return m.opts.Gate.User()
}
