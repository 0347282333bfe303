// Package launch composes destination form URLs and opens them in the
// system browser, independently of the wizard.
package launch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/pkg/browser"

	"github.com/bridgestowork/bridges-forms/internal/catalog"
	"github.com/bridgestowork/bridges-forms/internal/logger"
)

// BuildURL returns base + form path with contactId (pre-fill forms only)
// and site appended, in that order. Values are percent-encoded.
func BuildURL(baseURL string, form catalog.Form, site, contactID string) string {
	target := strings.TrimRight(baseURL, "/") + form.Path

	var params []string
	if contactID != "" && form.SupportsPreFill {
		params = append(params, "contactId="+encodeComponent(contactID))
	}
	if site != "" {
		params = append(params, "site="+encodeComponent(site))
	}

	if len(params) > 0 {
		target += "?" + strings.Join(params, "&")
	}
	return target
}

// encodeComponent escapes like a URI component: spaces become %20, not +.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Opener opens a URL in a context the wizard does not control.
type Opener interface {
	Open(ctx context.Context, target string) error
}

// Browser opens URLs with the platform browser launcher.
type Browser struct {
	open func(string) error
}

// NewBrowser returns an Opener backed by the system browser.
func NewBrowser() *Browser {
	return &Browser{open: OpenURL}
}

// OpenURL hands url to the platform launcher. The launcher's own output is
// discarded so it cannot draw over the terminal UI.
func OpenURL(url string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(url)
}

// Open starts the browser and returns without waiting for the page.
func (b *Browser) Open(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("Opening form: %s", target)
	if err := b.open(target); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	return nil
}
