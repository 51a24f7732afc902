package subrelay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUserAgent asserts that the instance name is cleaned and capped.
func TestUserAgent(t *testing.T) {
	prefix := "relayd/v" + semanticVersion() + "/commit=" + Commit

	require.Equal(t, prefix, UserAgent(""))
	require.Equal(t, prefix, UserAgent("  $%&  "))
	require.Equal(t, prefix+",instance=relay 1.eu", UserAgent("relay 1.eu!"))

	long := UserAgent(strings.Repeat("a", 100))
	require.Equal(t, prefix+",instance="+strings.Repeat("a", 64), long)
}

// TestSemanticVersion asserts the pre-release suffix.
func TestSemanticVersion(t *testing.T) {
	require.Equal(t, "0.3.0-beta", semanticVersion())
	require.True(t, strings.HasPrefix(Version(), "0.3.0-beta commit="))
}
