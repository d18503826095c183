package sheets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gsheet "google.golang.org/api/sheets/v4"
)

const installedClient = `{"installed":{"client_id":"client-id","client_secret":"secret",` +
	`"redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth",` +
	`"token_uri":"https://oauth2.googleapis.com/token"}}`

func TestOAuthConfigFromEnv(t *testing.T) {
	clearCredentialEnv(t)

	_, err := OAuthConfigFromEnv()
	require.Error(t, err)

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", installedClient)
	cfg, err := OAuthConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "client-id", cfg.ClientID)
	assert.Equal(t, []string{gsheet.SpreadsheetsScope}, cfg.Scopes)

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", `{"web":`)
	_, err = OAuthConfigFromEnv()
	assert.Error(t, err)
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).UTC()}

	require.NoError(t, SaveToken(path, tok))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", loaded.RefreshToken)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	_, err = LoadToken(path)
	assert.Error(t, err)
}

func TestTokenFile(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")
	assert.Equal(t, DefaultTokenFile, TokenFile())
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "/tmp/x.json")
	assert.Equal(t, "/tmp/x.json", TokenFile())
}

func TestCredentialsFromEnvOAuthFallback(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), "token.json")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", installedClient)
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", path)

	_, err := CredentialsFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets-auth")

	require.NoError(t, SaveToken(path, &oauth2.Token{RefreshToken: "refresh"}))
	opts, err := CredentialsFromEnv(context.Background())
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}
