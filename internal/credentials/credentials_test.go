package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example/auth", TokenURL: tokenURL},
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	creds := `{"installed":{"client_id":"abc.apps.googleusercontent.com","client_secret":"s3cret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(path, []byte(creds), 0o600))

	cfg, err := LoadConfig(path, "https://www.googleapis.com/auth/drive")
	require.NoError(t, err)
	assert.Equal(t, "abc.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/drive"}, cfg.Scopes)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTokenFile_MissingToken(t *testing.T) {
	tf := NewTokenFile(filepath.Join(t.TempDir(), "token.json"), testConfig("http://unused"))

	_, err := tf.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, os.WriteFile(tf.Path(), []byte("{}"), 0o600))
	_, err = tf.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenFile_ValidTokenNoRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	tf := NewTokenFile(filepath.Join(t.TempDir(), "token.json"), testConfig(srv.URL))
	require.NoError(t, tf.Save(&oauth2.Token{
		AccessToken:  "still-good",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))

	ts, err := tf.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)

	assert.Equal(t, "still-good", tok.AccessToken)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTokenFile_RefreshIsPersisted(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	tf := NewTokenFile(filepath.Join(t.TempDir(), "nested", "token.json"), testConfig(srv.URL))
	require.NoError(t, tf.Save(&oauth2.Token{
		AccessToken:  "expired",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	ts, err := tf.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)

	stored, err := tf.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh", stored.RefreshToken)

	info, err := os.Stat(tf.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTokenFile_Exchange(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	tf := NewTokenFile(filepath.Join(t.TempDir(), "token.json"), testConfig(srv.URL))

	assert.Contains(t, tf.AuthCodeURL("state-1"), "access_type=offline")

	tok, err := tf.Exchange(context.Background(), "code-123")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)

	stored, err := tf.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}
