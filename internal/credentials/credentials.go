package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken means no usable token is stored and the operator must authorize once.
var ErrNoToken = errors.New("no stored OAuth token: run `ledgersync auth` to authorize")

// LoadConfig reads an OAuth client credentials file downloaded from the
// Google Cloud console.
func LoadConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: read %q: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: parse %q: %w", credentialsFile, err)
	}
	return cfg, nil
}

// TokenFile stores one user token as JSON and keeps it current as it refreshes.
type TokenFile struct {
	path   string
	config *oauth2.Config
	mu     sync.Mutex
}

// NewTokenFile binds a token file to the OAuth client that issued it.
func NewTokenFile(path string, config *oauth2.Config) *TokenFile {
	return &TokenFile{path: path, config: config}
}

// Path returns the token file location.
func (f *TokenFile) Path() string {
	return f.path
}

// Load reads the stored token. A missing or unreadable file yields ErrNoToken.
func (f *TokenFile) Load() (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("TokenFile.Load: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("TokenFile.Load: %w: %v", ErrNoToken, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}

// Save writes the token with owner-only permissions.
func (f *TokenFile) Save(tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("TokenFile.Save: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("TokenFile.Save: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("TokenFile.Save: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("TokenFile.Save: %w", err)
	}
	return nil
}

// TokenSource returns a source that refreshes the stored token as needed and
// writes every new token back to the file.
func (f *TokenFile) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := f.Load()
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		file: f,
		src:  oauth2.ReuseTokenSource(tok, f.config.TokenSource(ctx, tok)),
		last: tok.AccessToken,
	}, nil
}

// AuthCodeURL returns the consent page URL for the one-off authorization.
func (f *TokenFile) AuthCodeURL(state string) string {
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (f *TokenFile) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("TokenFile.Exchange: %w", err)
	}
	if err := f.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

type persistingSource struct {
	file *TokenFile
	src  oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.file.Save(tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
