package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgestowork/bridges-forms/internal/catalog"
	"github.com/bridgestowork/bridges-forms/internal/config"
)

func TestCatalog(t *testing.T) {
	cat, err := catalog.FromConfig(config.Default())
	require.NoError(t, err)

	md := Catalog(cat, "https://example.org/s")

	require.Contains(t, md, "Forms open under `https://example.org/s`.")
	require.Contains(t, md, "| Interest Form | `/interest-form` | none |")
	require.Contains(t, md, "| Enrollment Form | `/bridges-enrollment` | required, sign-in |")
	require.Contains(t, md, "| Application Form | `/bridges-application` | optional, sign-in |")
	require.Contains(t, md, "| MIP Application Form | `/mip-application` | New York City |")
	require.Contains(t, md, "| Pre-ETS Interest Form | `/pre-ets-interest-form` | Atlanta, New York City, Philadelphia |")

	// Participant forms come before the site-dependent section.
	require.Less(t, strings.Index(md, "Enrollment Form"), strings.Index(md, "## Other forms"))
}

func TestCatalogWithoutOptionalForms(t *testing.T) {
	cat, err := catalog.New([]string{"Boston"}, []config.FormConfig{
		{ID: "interest", Name: "Interest Form", Path: "/interest-form"},
	}, nil)
	require.NoError(t, err)

	require.NotContains(t, Catalog(cat, "https://example.org"), "Other forms")
}

func TestRenderKeepsText(t *testing.T) {
	out := Render("# Title\n\nSome **bold** words.", 200)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
	require.False(t, strings.HasSuffix(out, "\n"))
}
