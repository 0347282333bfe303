package wizard

import (
	"strings"

	"github.com/bridgestowork/bridges-forms/internal/tui/theme"
)

// listItem is one selectable row. Rows sharing a non-empty section are
// grouped under a heading.
type listItem struct {
	id      string
	label   string
	detail  string
	section string
}

// selectList is a cursor over a short list of rows. Lists in the wizard fit
// on one screen, so only a window around the cursor is rendered when they
// do not.
type selectList struct {
	items  []listItem
	cursor int
	height int
}

func (l *selectList) SetItems(items []listItem) {
	l.items = items
	l.clamp()
}

func (l *selectList) Reset() {
	l.cursor = 0
}

func (l *selectList) SetHeight(h int) {
	l.height = h
}

func (l *selectList) Up() {
	if l.cursor > 0 {
		l.cursor--
	}
}

func (l *selectList) Down() {
	if l.cursor < len(l.items)-1 {
		l.cursor++
	}
}

// Selected returns the row under the cursor.
func (l *selectList) Selected() (listItem, bool) {
	if l.cursor < 0 || l.cursor >= len(l.items) {
		return listItem{}, false
	}
	return l.items[l.cursor], true
}

// Select moves the cursor to the row with id.
func (l *selectList) Select(id string) {
	for i, it := range l.items {
		if it.id == id {
			l.cursor = i
			return
		}
	}
}

func (l *selectList) clamp() {
	if l.cursor >= len(l.items) {
		l.cursor = len(l.items) - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
}

func (l *selectList) View(width int) string {
	s := theme.Current().S()

	start, end := 0, len(l.items)
	if l.height > 0 && len(l.items) > l.height {
		start = l.cursor - l.height/2
		if start < 0 {
			start = 0
		}
		end = start + l.height
		if end > len(l.items) {
			end = len(l.items)
			start = end - l.height
		}
	}

	var lines []string
	section := ""
	for i := start; i < end; i++ {
		it := l.items[i]
		if it.section != section {
			section = it.section
			if section != "" {
				if len(lines) > 0 {
					lines = append(lines, "")
				}
				lines = append(lines, s.SectionTitle.Render(section))
			}
		}

		label := it.label
		if width > 8 && len([]rune(label)) > width-6 {
			label = string([]rune(label)[:width-9]) + "..."
		}
		line := s.Item.Render(label)
		if i == l.cursor {
			line = s.ItemSelected.Render("› " + label)
		}
		if it.detail != "" {
			line += "  " + s.ItemDetail.Render(it.detail)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
