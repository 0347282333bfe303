// Package auth decides whether the signed-in identity may perform participant
// search and drives the sign-in flow through an external identity provider.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bridgestowork/bridges-forms/internal/config"
)

// Account is the signed-in identity as reported by the provider.
type Account struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Name is what the header shows for the account.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	local, _, _ := strings.Cut(a.Email, "@")
	return local
}

// Mode is the sign-in presentation mechanism.
type Mode int

const (
	// ModeOverlay keeps the wizard running while the user signs in elsewhere.
	ModeOverlay Mode = iota
	// ModeBlocking leaves the wizard, signs in, and restarts it.
	ModeBlocking
)

func (m Mode) String() string {
	if m == ModeBlocking {
		return "blocking"
	}
	return "overlay"
}

// SelectMode picks the presentation mechanism once at startup. An explicit
// setting wins; otherwise overlay is used only where the host can show it.
func SelectMode(setting string, overlayCapable bool) Mode {
	switch setting {
	case config.SignInModeOverlay:
		return ModeOverlay
	case config.SignInModeBlocking:
		return ModeBlocking
	}
	if overlayCapable {
		return ModeOverlay
	}
	return ModeBlocking
}

var (
	// ErrCancelled means the user abandoned an interactive sign-in.
	ErrCancelled = errors.New("sign-in cancelled")
	// ErrPresentationBlocked means the overlay mechanism could not be shown.
	ErrPresentationBlocked = errors.New("sign-in prompt blocked")
	// ErrRedirect means sign-in continues outside the wizard, which resumes
	// from the persisted checkpoint when it starts again.
	ErrRedirect = errors.New("sign-in continues after restart")
	// ErrNotConfigured means the identity provider settings are incomplete.
	ErrNotConfigured = errors.New("sign-in is not configured")
	// ErrNotReady means the identity provider could not be initialized.
	ErrNotReady = errors.New("authentication service unavailable")
	// ErrDomainNotAllowed is matched by every *DomainError.
	ErrDomainNotAllowed = errors.New("account domain not allowed")
)

// DomainError rejects an account outside the organization domain.
type DomainError struct {
	Email  string
	Domain string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("Only @%s accounts are allowed. You signed in with: %s", e.Domain, e.Email)
}

func (e *DomainError) Unwrap() error { return ErrDomainNotAllowed }

// AllowedDomain reports whether email belongs to domain, ignoring case.
func AllowedDomain(email, domain string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 || domain == "" {
		return false
	}
	return strings.EqualFold(email[at+1:], domain)
}

// UserMessage turns a sign-in error into the text shown at the prompt.
func UserMessage(err error) string {
	var domainErr *DomainError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &domainErr):
		return domainErr.Error()
	case errors.Is(err, ErrNotConfigured):
		return "Sign-in is not configured. Set auth.client_id with bridges-forms setup --edit."
	case errors.Is(err, ErrNotReady):
		return "Authentication service unavailable. Please restart bridges-forms."
	default:
		return "Sign in failed. Please try again."
	}
}
