package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/config"
	"github.com/bridgestowork/bridges-forms/internal/flow"
	"github.com/bridgestowork/bridges-forms/internal/history"
	"github.com/bridgestowork/bridges-forms/internal/launch"
	"github.com/bridgestowork/bridges-forms/internal/logger"
	"github.com/bridgestowork/bridges-forms/internal/search"
	"github.com/bridgestowork/bridges-forms/internal/state"
	"github.com/bridgestowork/bridges-forms/internal/tui/wizard"
)

func runWizard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch rootFlags.signInMode {
	case "":
	case config.SignInModeAuto, config.SignInModeOverlay, config.SignInModeBlocking:
		cfg.Auth.SignInMode = rootFlags.signInMode
	default:
		return fmt.Errorf("invalid --sign-in-mode %q (use auto, overlay or blocking)", rootFlags.signInMode)
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	site := ""
	if rootFlags.site != "" {
		var ok bool
		if site, ok = a.catalog.MatchSite(rootFlags.site); !ok {
			return fmt.Errorf("unknown site %q", rootFlags.site)
		}
	}

	hist, err := history.Open(ctx, a.store.JetStream())
	if err != nil {
		return fmt.Errorf("failed to open launch history: %w", err)
	}

	searcher := search.NewClient(cfg.SearchURL, cfg.SearchTimeout, search.WithTokenSource(a.provider))
	opener := launch.NewBrowser()
	ui := state.Load(cfg.DataDir)

	var resume *wizard.Resume
	for {
		ctrl := flow.New(a.catalog, a.gate, flow.Options{
			BaseURL:         cfg.BaseURL,
			MinSearchLength: cfg.MinSearchLength,
			LaunchDelay:     cfg.LaunchDelay,
		})

		res, err := wizard.Run(ctx, wizard.Options{
			Catalog:         a.catalog,
			Controller:      ctrl,
			Gate:            a.gate,
			Searcher:        searcher,
			Opener:          opener,
			History:         hist,
			Debounce:        cfg.SearchDebounce,
			MinSearchLength: cfg.MinSearchLength,
			Site:            site,
			SetupHint:       ui.ShouldSuggest(time.Now(), config.Exists()),
			OnSetupHint: func(accepted bool) error {
				return answerSetupHint(cfg, ui, accepted)
			},
			Resume: resume,
		})
		if err != nil {
			return err
		}
		if !res.Redirect {
			return nil
		}

		resume = completeSignIn(ctx, a.provider, a.gate, os.Stdout, os.Stderr)
	}
}

type redirectSignIn interface {
	Initialize(ctx context.Context) error
	CompleteRedirect(ctx context.Context, w io.Writer) (*auth.Account, error)
}

type signInCheckpoint interface {
	Pending(ctx context.Context) (formID, site string)
	Abandon(ctx context.Context) (formID, site string)
}

// completeSignIn runs the blocking sign-in in the plain terminal. On success
// the wizard that starts next picks the account up from the session store;
// otherwise the returned Resume puts the user back where sign-in started.
func completeSignIn(ctx context.Context, p redirectSignIn, cp signInCheckpoint, stdout, stderr io.Writer) *wizard.Resume {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := p.Initialize(ctx); err != nil {
		err = fmt.Errorf("%w: %w", auth.ErrNotReady, err)
		logger.Error("Blocking sign-in unavailable: %v", err)
		fmt.Fprintf(stderr, "%s\n\n", auth.UserMessage(err))
		return pendingResume(ctx, cp, err)
	}

	acct, err := p.CompleteRedirect(ctx, stdout)
	switch {
	case errors.Is(err, auth.ErrCancelled), errors.Is(err, context.Canceled):
		fmt.Fprintln(stdout, "Sign-in cancelled.")
		formID, site := cp.Abandon(context.WithoutCancel(ctx))
		return &wizard.Resume{FormID: formID, Site: site}
	case err != nil:
		logger.Error("Blocking sign-in failed: %v", err)
		fmt.Fprintf(stderr, "%s\n\n", auth.UserMessage(err))
		return pendingResume(ctx, cp, err)
	}
	fmt.Fprintf(stdout, "Signed in as %s. Returning to bridges-forms...\n", acct.Email)
	return nil
}

func pendingResume(ctx context.Context, cp signInCheckpoint, err error) *wizard.Resume {
	formID, site := cp.Pending(context.WithoutCancel(ctx))
	return &wizard.Resume{FormID: formID, Site: site, Err: err}
}

func answerSetupHint(cfg *config.Config, ui *state.UIState, accepted bool) error {
	if accepted {
		if err := config.WriteGlobal(cfg); err != nil {
			return err
		}
		ui.Accepted()
	} else {
		ui.Dismiss(time.Now())
	}
	return state.Save(cfg.DataDir, ui)
}
