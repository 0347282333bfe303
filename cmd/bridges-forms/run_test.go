package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgestowork/bridges-forms/internal/auth"
)

type fakeRedirect struct {
	initErr error
	acct    *auth.Account
	err     error
}

func (f *fakeRedirect) Initialize(context.Context) error { return f.initErr }

func (f *fakeRedirect) CompleteRedirect(context.Context, io.Writer) (*auth.Account, error) {
	return f.acct, f.err
}

type fakeCheckpoint struct {
	formID, site string
}

func (f *fakeCheckpoint) Pending(context.Context) (string, string) { return f.formID, f.site }

func (f *fakeCheckpoint) Abandon(context.Context) (string, string) {
	formID, site := f.formID, f.site
	f.formID, f.site = "", ""
	return formID, site
}

func TestCompleteSignInSuccess(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cp := &fakeCheckpoint{formID: "enrollment", site: "Boston"}

	res := completeSignIn(context.Background(), &fakeRedirect{acct: &auth.Account{Email: "sam@bridgestowork.org"}}, cp, &stdout, &stderr)
	require.Nil(t, res)
	require.Contains(t, stdout.String(), "Signed in as sam@bridgestowork.org")
	require.Equal(t, "enrollment", cp.formID, "checkpoint is left for the next wizard")
}

func TestCompleteSignInCancelledAbandonsCheckpoint(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cp := &fakeCheckpoint{formID: "application", site: "Chicago"}

	res := completeSignIn(context.Background(), &fakeRedirect{err: auth.ErrCancelled}, cp, &stdout, &stderr)
	require.NotNil(t, res)
	require.Equal(t, "application", res.FormID)
	require.Equal(t, "Chicago", res.Site)
	require.NoError(t, res.Err)
	require.Empty(t, cp.formID)
	require.Contains(t, stdout.String(), "Sign-in cancelled.")
}

func TestCompleteSignInFailureKeepsCheckpoint(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cp := &fakeCheckpoint{formID: "enrollment", site: "Boston"}

	res := completeSignIn(context.Background(), &fakeRedirect{err: errors.New("device code expired")}, cp, &stdout, &stderr)
	require.NotNil(t, res)
	require.Equal(t, "enrollment", res.FormID)
	require.Equal(t, "Boston", res.Site)
	require.Error(t, res.Err)
	require.Equal(t, "enrollment", cp.formID)
	require.Contains(t, stderr.String(), "Sign in failed. Please try again.")
}

func TestCompleteSignInNotConfigured(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cp := &fakeCheckpoint{formID: "enrollment", site: "Boston"}
	p := &fakeRedirect{initErr: auth.ErrNotConfigured}

	res := completeSignIn(context.Background(), p, cp, &stdout, &stderr)
	require.NotNil(t, res)
	require.ErrorIs(t, res.Err, auth.ErrNotReady)
	require.ErrorIs(t, res.Err, auth.ErrNotConfigured)
	require.Contains(t, stderr.String(), "auth.client_id")
}
