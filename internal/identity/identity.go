// Package identity signs staff in against the organization tenant with
// OAuth2 / OpenID Connect and caches the resulting account locally.
//
// Two presentation mechanisms exist. Overlay opens the system browser on an
// authorization-code + PKCE request and receives the callback on a loopback
// listener while the wizard keeps running. Blocking cannot run inside the
// wizard: SignInInteractive returns auth.ErrRedirect, the caller leaves the
// wizard, runs CompleteRedirect (device-code flow on the plain terminal) and
// starts the wizard again, which picks the result up via HandleRedirectReturn.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/config"
	"github.com/bridgestowork/bridges-forms/internal/launch"
	"github.com/bridgestowork/bridges-forms/internal/logger"
)

// Stored keys.
const (
	KeyAccount        = "account"
	KeyRefreshToken   = "refresh_token"
	KeyRedirectReturn = "redirect_return"
)

// DefaultCallbackTimeout bounds how long the overlay waits for the browser.
const DefaultCallbackTimeout = 5 * time.Minute

// ErrNoSession is returned by silent sign-in when nothing is cached.
var ErrNoSession = errors.New("no cached session")

// KV is string storage. *store.KV satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Take(ctx context.Context, key string) (string, error)
}

// Provider implements auth.Identity.
type Provider struct {
	cfg      config.AuthConfig
	accounts KV
	session  KV

	endpoint        *oauth2.Endpoint
	httpClient      *http.Client
	openURL         func(string) error
	callbackTimeout time.Duration

	mu    sync.Mutex
	oauth *oauth2.Config
	token *oauth2.Token
}

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint overrides the endpoint derived from tenant or authority.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(p *Provider) { p.endpoint = &ep }
}

// WithHTTPClient sets the client used to talk to the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithOpenURL sets how the overlay presents the authorization page.
func WithOpenURL(open func(string) error) Option {
	return func(p *Provider) { p.openURL = open }
}

// WithCallbackTimeout bounds the wait for the overlay callback.
func WithCallbackTimeout(d time.Duration) Option {
	return func(p *Provider) { p.callbackTimeout = d }
}

// New creates a provider. accounts holds the identity cache; session holds
// the redirect return between wizard runs.
func New(cfg config.AuthConfig, accounts, session KV, opts ...Option) *Provider {
	p := &Provider{
		cfg:             cfg,
		accounts:        accounts,
		session:         session,
		openURL:         launch.OpenURL,
		callbackTimeout: DefaultCallbackTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Endpoint resolves the OAuth endpoints for an authority URL or tenant.
func Endpoint(cfg config.AuthConfig) oauth2.Endpoint {
	var ep oauth2.Endpoint
	if cfg.Authority != "" {
		base := strings.TrimSuffix(cfg.Authority, "/")
		ep = oauth2.Endpoint{
			AuthURL:       base + "/oauth2/v2.0/authorize",
			TokenURL:      base + "/oauth2/v2.0/token",
			DeviceAuthURL: base + "/oauth2/v2.0/devicecode",
		}
	} else {
		ep = microsoft.AzureADEndpoint(cfg.Tenant)
		if ep.DeviceAuthURL == "" {
			ep.DeviceAuthURL = "https://login.microsoftonline.com/" + cfg.Tenant + "/oauth2/v2.0/devicecode"
		}
	}
	// Public client: no secret, client id travels in the body.
	ep.AuthStyle = oauth2.AuthStyleInParams
	return ep
}

// Initialize prepares the OAuth configuration.
func (p *Provider) Initialize(context.Context) error {
	if p.cfg.ClientID == "" {
		return fmt.Errorf("%w: auth.client_id is empty", auth.ErrNotConfigured)
	}
	if p.cfg.Tenant == "" && p.cfg.Authority == "" && p.endpoint == nil {
		return fmt.Errorf("%w: auth.tenant or auth.authority is required", auth.ErrNotConfigured)
	}

	ep := Endpoint(p.cfg)
	if p.endpoint != nil {
		ep = *p.endpoint
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.oauth = &oauth2.Config{
		ClientID: p.cfg.ClientID,
		Endpoint: ep,
		Scopes:   p.cfg.Scopes,
	}
	return nil
}

func (p *Provider) config(scopes []string) (*oauth2.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauth == nil {
		return nil, errors.New("identity provider not initialized")
	}
	conf := *p.oauth
	if len(scopes) > 0 {
		conf.Scopes = scopes
	}
	return &conf, nil
}

func (p *Provider) withClient(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// HandleRedirectReturn consumes the result of a blocking sign-in completed
// by the previous run, if any.
func (p *Provider) HandleRedirectReturn(ctx context.Context) (*auth.Account, error) {
	raw, err := p.session.Take(ctx, KeyRedirectReturn)
	if err != nil {
		return nil, fmt.Errorf("reading redirect return: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var acct auth.Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return nil, fmt.Errorf("decoding redirect return: %w", err)
	}
	return &acct, nil
}

// CachedAccounts returns the account cached by the last sign-in.
func (p *Provider) CachedAccounts(ctx context.Context) ([]auth.Account, error) {
	raw, err := p.accounts.Get(ctx, KeyAccount)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var acct auth.Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return nil, fmt.Errorf("decoding cached account: %w", err)
	}
	return []auth.Account{acct}, nil
}

// SignInInteractive runs the overlay flow, or returns auth.ErrRedirect for
// the blocking mechanism.
func (p *Provider) SignInInteractive(ctx context.Context, scopes []string, mode auth.Mode) (*auth.Account, error) {
	if mode == auth.ModeBlocking {
		return nil, auth.ErrRedirect
	}
	conf, err := p.config(scopes)
	if err != nil {
		return nil, err
	}
	tok, err := p.browserFlow(ctx, conf)
	if err != nil {
		return nil, err
	}
	return p.accept(ctx, tok)
}

// CompleteRedirect runs the blocking sign-in on a plain terminal: it prints
// the device code to w, waits for the user to finish, caches the account and
// leaves it for HandleRedirectReturn.
func (p *Provider) CompleteRedirect(ctx context.Context, w io.Writer) (*auth.Account, error) {
	conf, err := p.config(nil)
	if err != nil {
		return nil, err
	}
	ctx = p.withClient(ctx)

	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}
	fmt.Fprintf(w, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
	logger.Info("Waiting for device sign-in at %s", da.VerificationURI)

	tok, err := conf.DeviceAccessToken(ctx, da)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, auth.ErrCancelled
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "access_denied" || re.ErrorCode == "authorization_declined") {
			return nil, auth.ErrCancelled
		}
		return nil, fmt.Errorf("waiting for device sign-in: %w", err)
	}

	acct, err := p.accept(ctx, tok)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(acct)
	if err != nil {
		return nil, fmt.Errorf("encoding redirect return: %w", err)
	}
	if err := p.session.Put(ctx, KeyRedirectReturn, string(raw)); err != nil {
		return nil, err
	}
	return acct, nil
}

// SignInSilent refreshes the access token with the cached refresh token.
func (p *Provider) SignInSilent(ctx context.Context, acct auth.Account, scopes []string) (string, error) {
	conf, err := p.config(scopes)
	if err != nil {
		return "", err
	}
	refresh, err := p.accounts.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", ErrNoSession
	}

	tok, err := conf.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("refreshing token for %s: %w", acct.Email, err)
	}
	if err := p.storeToken(ctx, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Token makes the provider an oauth2.TokenSource for the search client. A
// valid in-memory token is reused; otherwise the cached account is refreshed.
func (p *Provider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()
	if tok.Valid() {
		return tok, nil
	}

	ctx := context.Background()
	accounts, err := p.CachedAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoSession
	}
	if _, err := p.SignInSilent(ctx, accounts[0], nil); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, nil
}

// SignOut forgets the cached account and tokens.
func (p *Provider) SignOut(ctx context.Context, acct auth.Account) error {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()

	errs := []error{
		p.accounts.Delete(ctx, KeyAccount),
		p.accounts.Delete(ctx, KeyRefreshToken),
	}
	logger.Info("Signed out %s", acct.Email)
	return errors.Join(errs...)
}

// accept reads the account from a fresh token and caches both.
func (p *Provider) accept(ctx context.Context, tok *oauth2.Token) (*auth.Account, error) {
	acct, err := AccountFromToken(tok)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(acct)
	if err != nil {
		return nil, fmt.Errorf("encoding account: %w", err)
	}
	if err := p.accounts.Put(ctx, KeyAccount, string(raw)); err != nil {
		return nil, err
	}
	if err := p.storeToken(ctx, tok); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (p *Provider) storeToken(ctx context.Context, tok *oauth2.Token) error {
	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()

	if tok.RefreshToken == "" {
		return nil
	}
	return p.accounts.Put(ctx, KeyRefreshToken, tok.RefreshToken)
}

type idClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	jwt.RegisteredClaims
}

// AccountFromToken reads the account from the ID token in tok. The token was
// received directly from the token endpoint, so its signature is not checked.
func AccountFromToken(tok *oauth2.Token) (auth.Account, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return auth.Account{}, errors.New("token response has no id_token")
	}

	var claims idClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return auth.Account{}, fmt.Errorf("parsing id_token: %w", err)
	}

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	if email == "" {
		return auth.Account{}, errors.New("id_token carries no email")
	}
	return auth.Account{Email: email, DisplayName: claims.Name}, nil
}
