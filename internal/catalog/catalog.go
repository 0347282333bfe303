// Package catalog holds the immutable set of sites and forms the wizard offers,
// plus the rules deciding which optional forms a site may open.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"

	"github.com/bridgestowork/bridges-forms/internal/config"
)

// Form categories. Optional forms live in the "other" section and are only
// shown for sites named in their visibility rule.
const (
	CategoryParticipant = "participant"
	CategoryOther       = "other"
)

// Kind is the navigation branch a form takes after it is selected.
type Kind int

const (
	// DirectLaunch forms open immediately with no auth or search.
	DirectLaunch Kind = iota
	// MandatoryContact forms always go through the auth gate and search.
	MandatoryContact
	// OptionalContact forms offer a choice between search and a blank form.
	OptionalContact
)

func (k Kind) String() string {
	switch k {
	case DirectLaunch:
		return "direct"
	case MandatoryContact:
		return "mandatory-contact"
	case OptionalContact:
		return "optional-contact"
	default:
		return "unknown"
	}
}

// Form is one external form definition. Values are never mutated after New.
type Form struct {
	ID                string
	Name              string
	Path              string
	Category          string
	SupportsPreFill   bool
	RequiresAuth      bool
	RequiresContact   bool
	ProgramTypeFilter string
}

// Kind derives the navigation branch from the form flags.
func (f Form) Kind() Kind {
	switch {
	case !f.SupportsPreFill:
		return DirectLaunch
	case f.RequiresContact:
		return MandatoryContact
	default:
		return OptionalContact
	}
}

// Optional reports whether the form belongs to the site-dependent section.
func (f Form) Optional() bool {
	return f.Category == CategoryOther
}

// Catalog is the read-only description of sites, forms and visibility rules.
type Catalog struct {
	sites     []string
	siteSlugs map[string]string
	forms     []Form
	byID      map[string]int
	rules     map[string]map[string]struct{}
}

// FromConfig builds the catalog from loaded configuration.
func FromConfig(cfg *config.Config) (*Catalog, error) {
	return New(cfg.Sites, cfg.Forms, cfg.SiteFormRules)
}

// New validates and indexes the catalog. Forms keep their declared order.
func New(sites []string, forms []config.FormConfig, rules map[string][]string) (*Catalog, error) {
	c := &Catalog{
		siteSlugs: make(map[string]string, len(sites)),
		byID:      make(map[string]int, len(forms)),
		rules:     make(map[string]map[string]struct{}, len(rules)),
	}

	var errs []error

	for _, site := range sites {
		site = strings.TrimSpace(site)
		key := slug.Make(site)
		if key == "" {
			errs = append(errs, fmt.Errorf("site %q has no usable name", site))
			continue
		}
		if prev, dup := c.siteSlugs[key]; dup {
			errs = append(errs, fmt.Errorf("site %q duplicates %q", site, prev))
			continue
		}
		c.siteSlugs[key] = site
		c.sites = append(c.sites, site)
	}

	for _, fc := range forms {
		f := Form{
			ID:                fc.ID,
			Name:              fc.Name,
			Path:              fc.Path,
			Category:          fc.Category,
			SupportsPreFill:   fc.SupportsPreFill,
			RequiresAuth:      fc.RequiresAuth,
			RequiresContact:   fc.RequiresContact,
			ProgramTypeFilter: fc.ProgramTypeFilter,
		}
		if f.Category == "" {
			f.Category = CategoryParticipant
		}
		if err := validateForm(f); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.byID[f.ID]; dup {
			errs = append(errs, fmt.Errorf("form %q declared twice", f.ID))
			continue
		}
		c.byID[f.ID] = len(c.forms)
		c.forms = append(c.forms, f)
	}

	for formID, ruleSites := range rules {
		if _, ok := c.byID[formID]; !ok {
			errs = append(errs, fmt.Errorf("site_form_rules names unknown form %q", formID))
			continue
		}
		set := make(map[string]struct{}, len(ruleSites))
		for _, s := range ruleSites {
			canonical, ok := c.MatchSite(s)
			if !ok {
				errs = append(errs, fmt.Errorf("site_form_rules for %q names unknown site %q", formID, s))
				continue
			}
			set[canonical] = struct{}{}
		}
		c.rules[formID] = set
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

func validateForm(f Form) error {
	switch {
	case f.ID == "" || f.ID != slug.Make(f.ID):
		return fmt.Errorf("form id %q must be a lowercase slug", f.ID)
	case strings.TrimSpace(f.Name) == "":
		return fmt.Errorf("form %q has no name", f.ID)
	case !strings.HasPrefix(f.Path, "/"):
		return fmt.Errorf("form %q path must start with /", f.ID)
	case f.Category != CategoryParticipant && f.Category != CategoryOther:
		return fmt.Errorf("form %q has unknown category %q", f.ID, f.Category)
	case f.RequiresContact && !f.SupportsPreFill:
		return fmt.Errorf("form %q requires a contact but does not support pre-fill", f.ID)
	}
	return nil
}

// Sites returns the selectable sites in declared order.
func (c *Catalog) Sites() []string {
	return append([]string(nil), c.sites...)
}

// HasSite reports whether site is one of the declared sites (exact match).
func (c *Catalog) HasSite(site string) bool {
	canonical, ok := c.siteSlugs[slug.Make(site)]
	return ok && canonical == site
}

// MatchSite resolves loosely typed input ("new-york-city", "NEW YORK CITY")
// to the declared site name.
func (c *Catalog) MatchSite(input string) (string, bool) {
	site, ok := c.siteSlugs[slug.Make(input)]
	return site, ok
}

// Form looks up a form by ID.
func (c *Catalog) Form(id string) (Form, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Form{}, false
	}
	return c.forms[i], true
}

// Forms returns every form in declared order.
func (c *Catalog) Forms() []Form {
	return append([]Form(nil), c.forms...)
}

// PrimaryForms returns the forms that are shown for every site.
func (c *Catalog) PrimaryForms() []Form {
	var out []Form
	for _, f := range c.forms {
		if !f.Optional() {
			out = append(out, f)
		}
	}
	return out
}

// VisibleOptional returns the optional forms whose rule includes site.
// An empty result means the whole optional section is hidden.
func (c *Catalog) VisibleOptional(site string) []Form {
	var out []Form
	for _, f := range c.forms {
		if f.Optional() && c.ruleAllows(f.ID, site) {
			out = append(out, f)
		}
	}
	return out
}

// Available reports whether the form may be opened from site.
func (c *Catalog) Available(formID, site string) bool {
	f, ok := c.Form(formID)
	if !ok {
		return false
	}
	return !f.Optional() || c.ruleAllows(formID, site)
}

func (c *Catalog) ruleAllows(formID, site string) bool {
	set, ok := c.rules[formID]
	if !ok {
		return false
	}
	_, ok = set[site]
	return ok
}
