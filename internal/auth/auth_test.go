package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowedDomain(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"jane@bridgestowork.org", true},
		{"Jane@BridgesToWork.ORG", true},
		{"jane@other.org", false},
		{"jane@sub.bridgestowork.org", false},
		{"jane@bridgestowork.org.evil.com", false},
		{"odd@name@bridgestowork.org", true},
		{"noatsign", false},
		{"trailing@", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			require.Equal(t, tt.want, AllowedDomain(tt.email, "bridgestowork.org"))
		})
	}

	require.False(t, AllowedDomain("jane@bridgestowork.org", ""))
}

func TestDomainErrorMessage(t *testing.T) {
	err := &DomainError{Email: "x@other.org", Domain: "bridgestowork.org"}

	require.Equal(t, "Only @bridgestowork.org accounts are allowed. You signed in with: x@other.org", err.Error())
	require.ErrorIs(t, err, ErrDomainNotAllowed)
	require.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrDomainNotAllowed)
}

func TestSelectMode(t *testing.T) {
	require.Equal(t, ModeOverlay, SelectMode("auto", true))
	require.Equal(t, ModeBlocking, SelectMode("auto", false))
	require.Equal(t, ModeBlocking, SelectMode("", false))
	require.Equal(t, ModeOverlay, SelectMode("overlay", false))
	require.Equal(t, ModeBlocking, SelectMode("blocking", true))
}

func TestAccountName(t *testing.T) {
	require.Equal(t, "Jane Doe", Account{Email: "jane@bridgestowork.org", DisplayName: "Jane Doe"}.Name())
	require.Equal(t, "jane", Account{Email: "jane@bridgestowork.org"}.Name())
}

func TestUserMessage(t *testing.T) {
	require.Empty(t, UserMessage(nil))
	require.Equal(t, "Only @d.org accounts are allowed. You signed in with: a@b.org",
		UserMessage(fmt.Errorf("complete: %w", &DomainError{Email: "a@b.org", Domain: "d.org"})))
	require.Contains(t, UserMessage(fmt.Errorf("%w: boom", ErrNotReady)), "restart")
	require.Contains(t, UserMessage(fmt.Errorf("%w: %w", ErrNotReady, ErrNotConfigured)), "auth.client_id")
	require.Equal(t, "Sign in failed. Please try again.", UserMessage(errors.New("network")))
}
