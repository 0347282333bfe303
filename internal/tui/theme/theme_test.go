package theme

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentDefaultsToMocha(t *testing.T) {
	require.Equal(t, "catppuccin-mocha", Current().Name)
}

func TestStylesBuiltOnce(t *testing.T) {
	th := NewCatppuccinMocha()
	require.Same(t, th.S(), th.S())
}

func TestSetCurrent(t *testing.T) {
	orig := Current()
	t.Cleanup(func() { SetCurrent(orig) })

	custom := NewCatppuccinMocha()
	custom.Name = "custom"
	SetCurrent(custom)
	require.Equal(t, "custom", Current().Name)
}
