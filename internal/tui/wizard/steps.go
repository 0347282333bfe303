package wizard

import (
	"fmt"
	"strings"

	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/flow"
	"github.com/bridgestowork/bridges-forms/internal/tui/theme"
)

const (
	msgNoResults    = "No participants found. Try a different search term."
	msgSearchFailed = "Unable to search. Please try again."
	msgSearchHint   = "Type at least %d characters to search."
)

// renderStep returns the title, body and hint bar for the current step.
func (m *Model) renderStep(width int) (string, string, string) {
	switch m.ctrl.Step() {
	case flow.StepFormSelect:
		return m.viewFormSelect(width)
	case flow.StepSearchChoice:
		return m.viewSearchChoice(width)
	case flow.StepSignIn:
		return m.viewSignIn(width)
	case flow.StepSearch:
		return m.viewSearch(width)
	case flow.StepConfirm:
		return m.viewConfirm(width)
	default:
		return m.viewSiteSelect(width)
	}
}

func (m *Model) signOutHint() []string {
	if _, ok := m.userAccount(); ok {
		return []string{"ctrl+o", "sign out"}
	}
	return nil
}

func (m *Model) viewSiteSelect(width int) (string, string, string) {
	hints := append([]string{"↑↓/jk", "navigate", "enter", "select"}, m.signOutHint()...)
	hints = append(hints, "esc", "quit")
	return "Select your site", m.list.View(width), renderHintBar(hints...)
}

func (m *Model) viewFormSelect(width int) (string, string, string) {
	sel := m.ctrl.Selection()
	s := theme.Current().S()
	body := s.Muted.Render("Site: "+sel.Site) + "\n\n" + m.list.View(width)
	hints := append([]string{"↑↓/jk", "navigate", "enter", "open"}, m.signOutHint()...)
	hints = append(hints, "esc", "change site")
	return "Select a form", body, renderHintBar(hints...)
}

func (m *Model) viewSearchChoice(width int) (string, string, string) {
	s := theme.Current().S()
	form, _ := m.ctrl.Form()

	bar := NewButtonBar(choiceButtons(m.choice, "Search for participant", "Open blank form"))
	bar.SetWidth(width)

	body := s.Muted.Render("Pre-fill the form with an existing participant, or start a blank one.") +
		"\n\n" + bar.Render()
	return form.Name, body, renderHintBar("←→/tab", "choose", "enter", "confirm", "esc", "back")
}

func (m *Model) viewSignIn(width int) (string, string, string) {
	s := theme.Current().S()
	form, _ := m.ctrl.Form()

	var b strings.Builder
	domain := "your organization"
	if m.opts.Gate != nil && m.opts.Gate.Domain() != "" {
		domain = "an @" + m.opts.Gate.Domain()
	}
	fmt.Fprintf(&b, "Searching participants for the %s requires signing in with %s account.", form.Name, domain)
	b.WriteString("\n\n")

	if m.opts.Gate != nil && m.opts.Gate.Mode() == auth.ModeBlocking {
		b.WriteString(s.Muted.Render("bridges-forms will close, show a sign-in code, and reopen here once you are signed in."))
		b.WriteString("\n\n")
	}

	if m.signingIn {
		b.WriteString(m.spinner.View() + " Waiting for sign-in to finish in your browser...")
		if m.signInErr != "" {
			b.WriteString("\n\n" + s.Error.Render(m.signInErr))
		}
		return "Sign in", b.String(), renderHintBar("esc", "cancel")
	}

	bar := NewButtonBar(choiceButtons(0, "Sign in"))
	bar.SetWidth(width)
	b.WriteString(bar.Render())
	if m.signInErr != "" {
		b.WriteString("\n\n" + s.Error.Render(m.signInErr))
	}
	return "Sign in", b.String(), renderHintBar("enter", "sign in", "esc", "cancel")
}

func (m *Model) viewSearch(width int) (string, string, string) {
	s := theme.Current().S()
	sel := m.ctrl.Selection()
	form, _ := m.ctrl.Form()
	st := m.ctrl.Search()

	var b strings.Builder
	b.WriteString(s.Muted.Render(form.Name + " · " + sel.Site))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch st.Status {
	case flow.SearchLoading:
		b.WriteString(m.spinner.View() + " Searching...")
	case flow.SearchFailed:
		b.WriteString(s.Error.Render(msgSearchFailed))
	case flow.SearchDone:
		if len(st.Results) == 0 {
			b.WriteString(s.Muted.Render(msgNoResults))
		} else {
			b.WriteString(m.results.View(width))
		}
	default:
		b.WriteString(s.Muted.Render(fmt.Sprintf(msgSearchHint, m.opts.MinSearchLength)))
	}

	hints := []string{"type", "search", "↑↓", "navigate", "enter", "select"}
	if !form.RequiresContact {
		hints = append(hints, "ctrl+s", "skip")
	}
	hints = append(hints, "esc", "back")
	return "Find participant", b.String(), renderHintBar(hints...)
}

func (m *Model) viewConfirm(width int) (string, string, string) {
	sel := m.ctrl.Selection()
	form, _ := m.ctrl.Form()

	rows := []string{
		renderRow("Site", sel.Site),
		renderRow("Form", form.Name),
	}
	if sel.Contact != nil {
		rows = append(rows, renderRow("Participant", sel.Contact.Name))
		if sel.Contact.Email != "" {
			rows = append(rows, renderRow("Email", sel.Contact.Email))
		}
	}

	bar := NewButtonBar(choiceButtons(0, "Open form"))
	bar.SetWidth(width)
	body := strings.Join(rows, "\n") + "\n\n" + bar.Render()
	return "Confirm", body, renderHintBar("enter", "open form", "esc", "back")
}
