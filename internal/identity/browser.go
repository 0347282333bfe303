package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/logger"
)

const callbackPage = `<html><body><p>Signed in. You can close this window and return to bridges-forms.</p></body></html>`

// CanOpenBrowser reports whether this host can show the overlay sign-in.
func CanOpenBrowser() bool {
	return canOpenBrowser(runtime.GOOS, os.Getenv)
}

func canOpenBrowser(goos string, getenv func(string) string) bool {
	if getenv("SSH_CONNECTION") != "" || getenv("SSH_TTY") != "" {
		return false
	}
	switch goos {
	case "darwin", "windows":
		return true
	}
	return getenv("DISPLAY") != "" || getenv("WAYLAND_DISPLAY") != ""
}

type callback struct {
	code string
	err  error
}

// browserFlow runs authorization code + PKCE with a loopback redirect.
func (p *Provider) browserFlow(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: listening for callback: %v", auth.ErrPresentationBlocked, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	conf.RedirectURL = fmt.Sprintf("http://localhost:%d/", port)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callback, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Sign-in callback server stopped: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	if err := p.openURL(authURL); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrPresentationBlocked, err)
	}
	logger.Debug("Waiting for sign-in callback on port %d", port)

	timer := time.NewTimer(p.callbackTimeout)
	defer timer.Stop()

	var cb callback
	select {
	case <-ctx.Done():
		return nil, auth.ErrCancelled
	case <-timer.C:
		return nil, errors.New("timed out waiting for browser sign-in")
	case cb = <-results:
	}
	if cb.err != nil {
		return nil, cb.err
	}

	tok, err := conf.Exchange(p.withClient(ctx), cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}

func callbackHandler(state string, results chan<- callback) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "unexpected sign-in state", http.StatusBadRequest)
			return
		}

		var cb callback
		switch e := q.Get("error"); {
		case e == "access_denied":
			cb.err = auth.ErrCancelled
		case e != "":
			cb.err = fmt.Errorf("authorization failed: %s: %s", e, q.Get("error_description"))
		case q.Get("code") == "":
			cb.err = errors.New("authorization response has no code")
		default:
			cb.code = q.Get("code")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, callbackPage)

		select {
		case results <- cb:
		default:
		}
	})
}
