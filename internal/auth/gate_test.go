package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	initErrs    []error
	initCalls   int
	redirect    *Account
	cached      []Account
	silentErr   error
	silentCalls int

	// interactive results, consumed in order
	results []signInResult
	modes   []Mode

	signedOut []Account
}

type signInResult struct {
	acct *Account
	err  error
}

func (f *fakeIdentity) Initialize(context.Context) error {
	f.initCalls++
	if len(f.initErrs) == 0 {
		return nil
	}
	err := f.initErrs[0]
	f.initErrs = f.initErrs[1:]
	return err
}

func (f *fakeIdentity) HandleRedirectReturn(context.Context) (*Account, error) {
	acct := f.redirect
	f.redirect = nil
	return acct, nil
}

func (f *fakeIdentity) CachedAccounts(context.Context) ([]Account, error) {
	return f.cached, nil
}

func (f *fakeIdentity) SignInInteractive(_ context.Context, _ []string, mode Mode) (*Account, error) {
	f.modes = append(f.modes, mode)
	if len(f.results) == 0 {
		return nil, errors.New("unexpected sign-in")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.acct, r.err
}

func (f *fakeIdentity) SignInSilent(context.Context, Account, []string) (string, error) {
	f.silentCalls++
	return "token", f.silentErr
}

func (f *fakeIdentity) SignOut(_ context.Context, acct Account) error {
	f.signedOut = append(f.signedOut, acct)
	f.cached = nil
	return nil
}

type memCheckpoints struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{values: map[string]string{}}
}

func (m *memCheckpoints) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memCheckpoints) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memCheckpoints) Take(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.values[key]
	delete(m.values, key)
	return v, nil
}

func (m *memCheckpoints) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

const domain = "bridgestowork.org"

var (
	staff    = Account{Email: "jane@bridgestowork.org", DisplayName: "Jane"}
	outsider = Account{Email: "x@other.org"}
)

func newTestGate(id *fakeIdentity, cp *memCheckpoints, mode Mode) *Gate {
	return NewGate(id, cp, domain, []string{"openid"}, mode)
}

func TestInitializeNoSession(t *testing.T) {
	g := newTestGate(&fakeIdentity{}, newMemCheckpoints(), ModeOverlay)

	out, err := g.Initialize(context.Background())
	require.NoError(t, err)
	require.Nil(t, out.Account)
	require.False(t, g.Authenticated())
}

func TestInitializeCachedAccount(t *testing.T) {
	id := &fakeIdentity{cached: []Account{staff}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	out, err := g.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, &staff, out.Account)
	require.True(t, g.Authenticated())
	require.Equal(t, 1, id.silentCalls)

	user, ok := g.User()
	require.True(t, ok)
	require.Equal(t, staff, user)
}

func TestInitializeSilentFailureStillAuthenticated(t *testing.T) {
	id := &fakeIdentity{cached: []Account{staff}, silentErr: errors.New("refresh expired")}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	_, err := g.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, g.Authenticated())
}

func TestInitializeCachedWrongDomainSignsOut(t *testing.T) {
	id := &fakeIdentity{cached: []Account{outsider}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	out, err := g.Initialize(context.Background())
	require.NoError(t, err)
	require.Nil(t, out.Account)
	require.False(t, g.Authenticated())
	require.Equal(t, []Account{outsider}, id.signedOut)
	require.Zero(t, id.silentCalls)
}

func TestInitializeRedirectReturnResumesPendingForm(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{redirect: &staff}
	g := newTestGate(id, cp, ModeBlocking)
	ctx := context.Background()

	require.NoError(t, cp.Put(ctx, KeyPendingForm, "enrollment"))
	require.NoError(t, cp.Put(ctx, KeyPendingSite, "Boston"))

	out, err := g.Initialize(ctx)
	require.NoError(t, err)
	require.True(t, g.Authenticated())
	require.Equal(t, "enrollment", out.FormID)
	require.Equal(t, "Boston", out.Site)
	require.Empty(t, cp.values, "checkpoint is consumed")
}

func TestInitializeRedirectReturnWrongDomain(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{redirect: &outsider}
	g := newTestGate(id, cp, ModeBlocking)
	ctx := context.Background()
	require.NoError(t, cp.Put(ctx, KeyPendingForm, "enrollment"))

	out, err := g.Initialize(ctx)
	require.ErrorIs(t, err, ErrDomainNotAllowed)
	require.Equal(t, "Only @bridgestowork.org accounts are allowed. You signed in with: x@other.org", err.Error())
	require.False(t, g.Authenticated())
	require.Nil(t, out.Account)
	require.Equal(t, "enrollment", out.FormID)
	require.Equal(t, []Account{outsider}, id.signedOut)
}

func TestInitializeFailureIsNotFatal(t *testing.T) {
	id := &fakeIdentity{initErrs: []error{errors.New("offline")}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	out, err := g.Initialize(context.Background())
	require.NoError(t, err)
	require.Nil(t, out.Account)
	require.False(t, g.Authenticated())
}

func TestRequire(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{}
	g := newTestGate(id, cp, ModeOverlay)
	ctx := context.Background()

	require.False(t, g.Require(ctx, "enrollment", "Boston"))
	require.Equal(t, "enrollment", cp.values[KeyPendingForm])
	require.Equal(t, "Boston", cp.values[KeyPendingSite])

	id.cached = []Account{staff}
	_, err := g.Initialize(ctx)
	require.NoError(t, err)
	require.True(t, g.Require(ctx, "application", "Chicago"))
	require.Equal(t, "enrollment", cp.values[KeyPendingForm], "authenticated require leaves checkpoint alone")
}

func TestSignInSuccess(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{results: []signInResult{{acct: &staff}}}
	g := newTestGate(id, cp, ModeOverlay)
	ctx := context.Background()
	_, err := g.Initialize(ctx)
	require.NoError(t, err)

	out, err := g.SignIn(ctx, "enrollment", "Boston")
	require.NoError(t, err)
	require.Equal(t, &staff, out.Account)
	require.Equal(t, "enrollment", out.FormID)
	require.Equal(t, "Boston", out.Site)
	require.True(t, g.Authenticated())
	require.Equal(t, []Mode{ModeOverlay}, id.modes)
	require.Empty(t, cp.values)
}

func TestSignInWrongDomain(t *testing.T) {
	id := &fakeIdentity{results: []signInResult{{acct: &outsider}}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	out, err := g.SignIn(context.Background(), "enrollment", "Boston")

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, "x@other.org", domainErr.Email)
	require.False(t, g.Authenticated())
	require.Equal(t, "enrollment", out.FormID)
	require.Equal(t, []Account{outsider}, id.signedOut)
}

func TestSignInCancelledClearsPending(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{results: []signInResult{{err: ErrCancelled}}}
	g := newTestGate(id, cp, ModeOverlay)

	out, err := g.SignIn(context.Background(), "enrollment", "Boston")
	require.NoError(t, err)
	require.True(t, out.Cancelled)
	require.Empty(t, cp.values)
	require.Len(t, id.modes, 1, "cancellation is never retried")
}

func TestSignInContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id := &fakeIdentity{results: []signInResult{{err: context.Canceled}}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	out, err := g.SignIn(ctx, "enrollment", "Boston")
	require.NoError(t, err)
	require.True(t, out.Cancelled)
}

func TestSignInBlockedFallsBackToBlocking(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{results: []signInResult{
		{err: ErrPresentationBlocked},
		{err: ErrRedirect},
	}}
	g := newTestGate(id, cp, ModeOverlay)

	out, err := g.SignIn(context.Background(), "enrollment", "Boston")
	require.NoError(t, err)
	require.True(t, out.Redirect)
	require.Equal(t, []Mode{ModeOverlay, ModeBlocking}, id.modes)
	require.Equal(t, "enrollment", cp.values[KeyPendingForm], "checkpoint survives for the restart")
	require.Equal(t, "Boston", cp.values[KeyPendingSite])
}

func TestSignInBlockedInBlockingModeNotRetried(t *testing.T) {
	id := &fakeIdentity{results: []signInResult{{err: ErrPresentationBlocked}}}
	g := newTestGate(id, newMemCheckpoints(), ModeBlocking)

	_, err := g.SignIn(context.Background(), "enrollment", "")
	require.ErrorIs(t, err, ErrPresentationBlocked)
	require.Len(t, id.modes, 1)
}

func TestSignInReinitializesOnce(t *testing.T) {
	id := &fakeIdentity{
		initErrs: []error{errors.New("offline")},
		results:  []signInResult{{acct: &staff}},
	}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)
	ctx := context.Background()
	_, err := g.Initialize(ctx)
	require.NoError(t, err)

	out, err := g.SignIn(ctx, "enrollment", "Boston")
	require.NoError(t, err)
	require.Equal(t, &staff, out.Account)
	require.Equal(t, 2, id.initCalls)
}

func TestSignInNotReady(t *testing.T) {
	id := &fakeIdentity{initErrs: []error{errors.New("offline"), errors.New("still offline")}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)
	ctx := context.Background()
	_, err := g.Initialize(ctx)
	require.NoError(t, err)

	_, err = g.SignIn(ctx, "enrollment", "Boston")
	require.ErrorIs(t, err, ErrNotReady)
	require.Empty(t, id.modes)
}

func TestSignInNotConfigured(t *testing.T) {
	notConfigured := fmt.Errorf("%w: auth.client_id", ErrNotConfigured)
	id := &fakeIdentity{initErrs: []error{notConfigured, notConfigured}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)
	ctx := context.Background()
	_, err := g.Initialize(ctx)
	require.NoError(t, err)

	_, err = g.SignIn(ctx, "enrollment", "Boston")
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Contains(t, UserMessage(err), "auth.client_id")
}

func TestBlockingSignInPendingThenAbandon(t *testing.T) {
	cp := newMemCheckpoints()
	id := &fakeIdentity{results: []signInResult{{err: ErrRedirect}}}
	g := newTestGate(id, cp, ModeBlocking)
	ctx := context.Background()

	out, err := g.SignIn(ctx, "application", "Chicago")
	require.NoError(t, err)
	require.True(t, out.Redirect)

	formID, site := g.Pending(ctx)
	require.Equal(t, "application", formID)
	require.Equal(t, "Chicago", site)
	formID, site = g.Pending(ctx)
	require.Equal(t, "application", formID, "reading leaves the checkpoint in place")
	require.Equal(t, "Chicago", site)

	formID, site = g.Abandon(ctx)
	require.Equal(t, "application", formID)
	require.Equal(t, "Chicago", site)
	require.Empty(t, cp.values)

	formID, site = g.Pending(ctx)
	require.Empty(t, formID)
	require.Empty(t, site)
}

func TestSignInGenericFailure(t *testing.T) {
	id := &fakeIdentity{results: []signInResult{{err: errors.New("token endpoint 500")}}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	_, err := g.SignIn(context.Background(), "enrollment", "Boston")
	require.Error(t, err)
	require.Equal(t, "Sign in failed. Please try again.", UserMessage(err))
}

func TestCompleteRestoresFromCheckpointOnlyWhenLost(t *testing.T) {
	cp := newMemCheckpoints()
	g := newTestGate(&fakeIdentity{}, cp, ModeOverlay)
	ctx := context.Background()
	require.NoError(t, cp.Put(ctx, KeyPendingForm, "application"))
	require.NoError(t, cp.Put(ctx, KeyPendingSite, "Chicago"))

	out, err := g.Complete(ctx, staff, "enrollment", "")
	require.NoError(t, err)
	require.Equal(t, "enrollment", out.FormID, "in-memory form wins")
	require.Equal(t, "Chicago", out.Site, "lost site restored")
	require.Empty(t, cp.values)
}

func TestSignOut(t *testing.T) {
	id := &fakeIdentity{cached: []Account{staff}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)
	ctx := context.Background()
	_, err := g.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, g.SignOut(ctx))
	require.False(t, g.Authenticated())
	_, ok := g.User()
	require.False(t, ok)
	require.Equal(t, []Account{staff}, id.signedOut)
}

func TestSignOutWithoutSessionClearsCache(t *testing.T) {
	id := &fakeIdentity{cached: []Account{staff, outsider}}
	g := newTestGate(id, newMemCheckpoints(), ModeOverlay)

	require.NoError(t, g.SignOut(context.Background()))
	require.Equal(t, []Account{staff, outsider}, id.signedOut)
}
