package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bridgestowork/bridges-forms/internal/logger"
)

// Checkpoint keys. Both are consumed by the sign-in that follows.
const (
	KeyPendingForm = "pending_form"
	KeyPendingSite = "pending_site"
)

// Identity is the external identity provider.
type Identity interface {
	Initialize(ctx context.Context) error
	HandleRedirectReturn(ctx context.Context) (*Account, error)
	CachedAccounts(ctx context.Context) ([]Account, error)
	SignInInteractive(ctx context.Context, scopes []string, mode Mode) (*Account, error)
	SignInSilent(ctx context.Context, account Account, scopes []string) (string, error)
	SignOut(ctx context.Context, account Account) error
}

// Checkpoints is short-lived storage that survives a wizard restart.
type Checkpoints interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Take(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Outcome reports where the wizard should continue after a gate operation.
type Outcome struct {
	// Account is set when the user ends up authenticated.
	Account *Account
	// FormID is the form to resume into search; empty when nothing is pending.
	FormID string
	// Site is the site to restore when the wizard lost it.
	Site string
	// Redirect means the wizard must exit so sign-in can continue.
	Redirect bool
	// Cancelled means the user abandoned the sign-in; pending state is cleared.
	Cancelled bool
}

// Gate guards participant search behind a domain-verified identity.
type Gate struct {
	id     Identity
	cp     Checkpoints
	domain string
	scopes []string
	mode   Mode

	mu            sync.Mutex
	ready         bool
	authenticated bool
	user          *Account
}

// NewGate creates a gate. mode is the presentation strategy selected at startup.
func NewGate(id Identity, cp Checkpoints, domain string, scopes []string, mode Mode) *Gate {
	return &Gate{
		id:     id,
		cp:     cp,
		domain: domain,
		scopes: scopes,
		mode:   mode,
	}
}

// Authenticated reports whether a verified account is signed in.
func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

// User returns the signed-in account.
func (g *Gate) User() (Account, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return Account{}, false
	}
	return *g.user, true
}

// Mode returns the presentation strategy.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Domain returns the allowed organization domain.
func (g *Gate) Domain() string {
	return g.domain
}

// Initialize resumes any existing session when the wizard starts: a sign-in
// that completed outside the wizard first, then a cached account. Every path
// re-checks the account domain. A provider that fails to initialize is not
// fatal here; SignIn retries once.
func (g *Gate) Initialize(ctx context.Context) (Outcome, error) {
	if err := g.id.Initialize(ctx); err != nil {
		logger.Error("Identity initialization failed: %v", err)
		return Outcome{}, nil
	}
	g.setReady()

	acct, err := g.id.HandleRedirectReturn(ctx)
	if err != nil {
		logger.Warn("Reading sign-in return failed: %v", err)
	}
	if acct != nil {
		return g.Complete(ctx, *acct, "", "")
	}

	accounts, err := g.id.CachedAccounts(ctx)
	if err != nil {
		logger.Warn("Reading cached accounts failed: %v", err)
		return Outcome{}, nil
	}
	if len(accounts) == 0 {
		return Outcome{}, nil
	}

	cached := accounts[0]
	if !AllowedDomain(cached.Email, g.domain) {
		logger.Warn("Cached account %s is outside %s, signing out", cached.Email, g.domain)
		g.signOut(ctx, cached)
		return Outcome{}, nil
	}

	if _, err := g.id.SignInSilent(ctx, cached, g.scopes); err != nil {
		logger.Info("Silent token refresh failed, session may require re-auth: %v", err)
	}

	g.setAuthenticated(cached)
	return Outcome{Account: &cached}, nil
}

// Require reports whether search may proceed for formID. When it may not,
// the pending form and site are checkpointed so a sign-in that restarts the
// wizard can resume them.
func (g *Gate) Require(ctx context.Context, formID, site string) bool {
	if g.Authenticated() {
		return true
	}
	g.checkpoint(ctx, formID, site)
	return false
}

// SignIn checkpoints the pending form and site, then runs the interactive
// sign-in. A blocked overlay falls back to the blocking mechanism once; a
// user cancellation is never retried.
func (g *Gate) SignIn(ctx context.Context, formID, site string) (Outcome, error) {
	g.checkpoint(ctx, formID, site)

	if !g.isReady() {
		logger.Error("Identity not initialized, attempting to reinitialize")
		if err := g.id.Initialize(ctx); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		g.setReady()
	}

	acct, err := g.id.SignInInteractive(ctx, g.scopes, g.mode)
	if errors.Is(err, ErrPresentationBlocked) && g.mode != ModeBlocking {
		logger.Info("Sign-in prompt blocked, falling back to blocking sign-in: %v", err)
		acct, err = g.id.SignInInteractive(ctx, g.scopes, ModeBlocking)
	}

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		g.clearCheckpoint(context.WithoutCancel(ctx))
		return Outcome{Cancelled: true}, nil
	case errors.Is(err, ErrRedirect):
		return Outcome{Redirect: true}, nil
	case err != nil:
		logger.Error("Sign in failed: %v", err)
		return Outcome{}, fmt.Errorf("sign in failed: %w", err)
	case acct == nil:
		return Outcome{}, errors.New("sign in failed: provider returned no account")
	}

	return g.Complete(ctx, *acct, formID, site)
}

// Complete finishes a sign-in with the account the provider returned. The
// pending form and site come from memory when present, else from the
// checkpoint, which is cleared either way. A wrong-domain account is signed
// out and reported as *DomainError; the outcome still carries the pending
// form so the user can retry from the prompt.
func (g *Gate) Complete(ctx context.Context, acct Account, formID, site string) (Outcome, error) {
	formID, site = g.restore(ctx, formID, site)

	if !AllowedDomain(acct.Email, g.domain) {
		g.signOut(ctx, acct)
		return Outcome{FormID: formID, Site: site}, &DomainError{Email: acct.Email, Domain: g.domain}
	}

	g.setAuthenticated(acct)
	logger.Info("Signed in as %s", acct.Email)
	return Outcome{Account: &acct, FormID: formID, Site: site}, nil
}

// Pending returns the checkpointed form and site without consuming them.
func (g *Gate) Pending(ctx context.Context) (formID, site string) {
	get := func(key string) string {
		v, err := g.cp.Get(ctx, key)
		if err != nil {
			logger.Warn("Reading sign-in checkpoint %s failed: %v", key, err)
		}
		return v
	}
	return get(KeyPendingForm), get(KeyPendingSite)
}

// Abandon drops the checkpoint of a sign-in the user gave up on and returns
// what it held.
func (g *Gate) Abandon(ctx context.Context) (formID, site string) {
	return g.restore(ctx, "", "")
}

// SignOut forgets the current account, or every cached account when nobody
// is signed in.
func (g *Gate) SignOut(ctx context.Context) error {
	g.mu.Lock()
	user := g.user
	g.mu.Unlock()

	accounts := []Account{}
	if user != nil {
		accounts = append(accounts, *user)
	} else {
		cached, err := g.id.CachedAccounts(ctx)
		if err != nil {
			return fmt.Errorf("reading cached accounts: %w", err)
		}
		accounts = cached
	}

	var errs []error
	for _, a := range accounts {
		if err := g.signOut(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gate) signOut(ctx context.Context, acct Account) error {
	g.mu.Lock()
	g.authenticated = false
	g.user = nil
	g.mu.Unlock()

	if err := g.id.SignOut(ctx, acct); err != nil {
		logger.Error("Sign out failed for %s: %v", acct.Email, err)
		return fmt.Errorf("signing out %s: %w", acct.Email, err)
	}
	return nil
}

func (g *Gate) checkpoint(ctx context.Context, formID, site string) {
	put := func(key, value string) {
		var err error
		if value == "" {
			err = g.cp.Delete(ctx, key)
		} else {
			err = g.cp.Put(ctx, key, value)
		}
		if err != nil {
			logger.Warn("Persisting sign-in checkpoint %s failed: %v", key, err)
		}
	}
	put(KeyPendingForm, formID)
	put(KeyPendingSite, site)
}

func (g *Gate) restore(ctx context.Context, formID, site string) (string, string) {
	take := func(key, current string) string {
		stored, err := g.cp.Take(ctx, key)
		if err != nil {
			logger.Warn("Reading sign-in checkpoint %s failed: %v", key, err)
		}
		if current != "" {
			return current
		}
		return stored
	}
	return take(KeyPendingForm, formID), take(KeyPendingSite, site)
}

func (g *Gate) clearCheckpoint(ctx context.Context) {
	for _, key := range []string{KeyPendingForm, KeyPendingSite} {
		if err := g.cp.Delete(ctx, key); err != nil {
			logger.Warn("Clearing sign-in checkpoint %s failed: %v", key, err)
		}
	}
}

func (g *Gate) isReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *Gate) setReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = true
}

func (g *Gate) setAuthenticated(acct Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authenticated = true
	g.user = &acct
}
