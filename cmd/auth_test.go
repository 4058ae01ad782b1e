package cmd

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/meetiq/credentials"
)

const (
	testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testToken         = "semantic-token-abcdefghijklmnop"
)

// isolateCredentials points the credential store at a temp dir with an
// environment key so no keyring is touched.
func isolateCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("MEETIQ_CONFIG_DIR", t.TempDir())
	t.Setenv(credentials.EncryptionKeyEnvVar, testEncryptionKey)
	t.Setenv(credentials.PassphraseEnvVar, "")
	t.Setenv(credentials.TokenEnvVar, "")
}

func executeAuth(t *testing.T, deps *AuthCommandDeps, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewAuthCommand(deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func lineDeps() *AuthCommandDeps {
	return &AuthCommandDeps{NewStore: credentials.NewStore}
}

func TestAuthCommand_Structure(t *testing.T) {
	cmd := NewAuthCommand(nil)
	assert.Equal(t, "auth", cmd.Use)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["set-token"])
	assert.True(t, names["clear-token"])
	assert.True(t, names["status"])
}

func TestAuth_Lifecycle(t *testing.T) {
	isolateCredentials(t)
	deps := lineDeps()

	out, _, err := executeAuth(t, deps, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: no token")

	out, _, err = executeAuth(t, deps, "", "set-token", "--token", testToken, "--address", "classifier:443", "--expires", "48h")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved.")
	assert.Contains(t, out, "semantic...ijklmnop")
	assert.NotContains(t, out, testToken)
	assert.Contains(t, out, "Address: classifier:443")
	assert.Contains(t, out, credentials.EncryptionKeyEnvVar)

	out, _, err = executeAuth(t, deps, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: token configured")
	assert.Contains(t, out, "Address: classifier:443")
	assert.Contains(t, out, "Expires: ")

	creds, err := credentials.ActiveToken()
	require.NoError(t, err)
	assert.Equal(t, testToken, creds.Token)

	out, _, err = executeAuth(t, deps, "", "clear-token")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored token removed.")

	out, _, err = executeAuth(t, deps, "", "clear-token")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored token.")
}

func TestAuth_PromptsForToken(t *testing.T) {
	isolateCredentials(t)

	t.Run("line input", func(t *testing.T) {
		out, prompt, err := executeAuth(t, lineDeps(), testToken+"\n", "set-token")
		require.NoError(t, err)
		assert.Contains(t, prompt, "Token: ")
		assert.Contains(t, out, "Token saved.")
	})

	t.Run("secret reader", func(t *testing.T) {
		deps := lineDeps()
		deps.ReadSecret = func() (string, error) { return "  " + testToken + "  ", nil }
		_, _, err := executeAuth(t, deps, "", "set-token")
		require.NoError(t, err)

		creds, err := credentials.ActiveToken()
		require.NoError(t, err)
		assert.Equal(t, testToken, creds.Token)
	})
}

func TestAuth_SetTokenRejectsInvalidInput(t *testing.T) {
	isolateCredentials(t)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"empty prompt", "\n", []string{"set-token"}, "token cannot be empty"},
		{"blank flag", "", []string{"set-token", "--token", "   "}, "token cannot be empty"},
		{"negative expiry", "", []string{"set-token", "--token", testToken, "--expires", "-1h"}, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeAuth(t, lineDeps(), tt.stdin, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestAuth_StatusExpired(t *testing.T) {
	isolateCredentials(t)

	store, err := credentials.NewStore()
	require.NoError(t, err)
	require.NoError(t, store.Save(&credentials.Credentials{
		Token:     testToken,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	out, _, err := executeAuth(t, lineDeps(), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: token expired")
}

func TestAuth_StatusFromEnvironment(t *testing.T) {
	isolateCredentials(t)
	t.Setenv(credentials.TokenEnvVar, testToken)

	out, _, err := executeAuth(t, lineDeps(), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Source:  "+credentials.TokenEnvVar)
	assert.NotContains(t, out, "Key:")
}

func TestReadSecret(t *testing.T) {
	got, err := readSecret(&AuthCommandDeps{}, strings.NewReader("abc\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	got, err = readSecret(&AuthCommandDeps{}, strings.NewReader("no newline"))
	require.NoError(t, err)
	assert.Equal(t, "no newline", got)

	_, err = readSecret(&AuthCommandDeps{}, strings.NewReader(""))
	assert.ErrorIs(t, err, io.EOF)
}
