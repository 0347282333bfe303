// Package markdown renders the form catalog for the terminal.
package markdown

import (
	"fmt"
	"strings"

	"charm.land/glamour/v2"

	"github.com/bridgestowork/bridges-forms/internal/catalog"
)

// Render renders markdown content using glamour.
// Falls back to plain text if rendering fails.
func Render(content string, width int) string {
	// Cap width to 120 for readability
	if width > 120 {
		width = 120
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	// Remove trailing newline that glamour adds
	return strings.TrimSuffix(rendered, "\n")
}

// Catalog describes every form as markdown: the forms offered at every site,
// then the site-dependent forms with the sites that may open them.
func Catalog(cat *catalog.Catalog, baseURL string) string {
	var b strings.Builder
	b.WriteString("# Bridges forms\n\n")
	fmt.Fprintf(&b, "Forms open under `%s`.\n\n", baseURL)

	b.WriteString("## Participant forms\n\n")
	b.WriteString("| Form | Path | Participant |\n|---|---|---|\n")
	for _, f := range cat.PrimaryForms() {
		fmt.Fprintf(&b, "| %s | `%s` | %s |\n", f.Name, f.Path, contactColumn(f))
	}

	var other []catalog.Form
	for _, f := range cat.Forms() {
		if f.Optional() {
			other = append(other, f)
		}
	}
	if len(other) == 0 {
		return b.String()
	}

	b.WriteString("\n## Other forms\n\n")
	b.WriteString("| Form | Path | Sites |\n|---|---|---|\n")
	for _, f := range other {
		var sites []string
		for _, site := range cat.Sites() {
			if cat.Available(f.ID, site) {
				sites = append(sites, site)
			}
		}
		list := strings.Join(sites, ", ")
		if list == "" {
			list = "none"
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s |\n", f.Name, f.Path, list)
	}
	return b.String()
}

func contactColumn(f catalog.Form) string {
	switch f.Kind() {
	case catalog.MandatoryContact:
		return "required, sign-in"
	case catalog.OptionalContact:
		return "optional, sign-in"
	default:
		return "none"
	}
}
