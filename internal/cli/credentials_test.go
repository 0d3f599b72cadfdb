package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_ResolveFromEnv(t *testing.T) {
	t.Setenv("COROS_USERNAME", "env@example.com")
	t.Setenv("COROS_PASSWORD", "env-password")
	t.Setenv("COROS_ACCESS_TOKEN", "env-token")

	c := &Credentials{}
	require.NoError(t, c.Resolve())

	assert.Equal(t, "env@example.com", c.Username)
	assert.Equal(t, "env-password", c.Password)
	assert.Equal(t, "env-token", c.AccessToken)
}

func TestCredentials_FlagsBeatEnv(t *testing.T) {
	t.Setenv("COROS_USERNAME", "env@example.com")
	t.Setenv("COROS_ACCESS_TOKEN", "env-token")

	c := &Credentials{Username: "flag@example.com", AccessToken: "flag-token"}
	require.NoError(t, c.Resolve())

	assert.Equal(t, "flag@example.com", c.Username)
	assert.Equal(t, "flag-token", c.AccessToken)
}

func TestCredentials_TokenSkipsPrompting(t *testing.T) {
	// No username/password anywhere, but the token alone is enough; Resolve
	// must not touch stdin.
	t.Setenv("COROS_USERNAME", "")
	t.Setenv("COROS_PASSWORD", "")

	c := &Credentials{AccessToken: "tok"}
	require.NoError(t, c.Resolve())
	assert.Equal(t, "", c.Username)
}
