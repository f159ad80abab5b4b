package auth

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"drivesync/internal/ds"
)

// Provider issues Drive credentials from an installed-app client secret and
// the token kept in a TokenStore.
type Provider struct {
	oauthConfig *oauth2.Config
	store       *TokenStore
	logger      ds.Logger
}

// NewProvider reads the client secret JSON downloaded from the Google Cloud
// console.
func NewProvider(clientSecretPath string, store *TokenStore, logger ds.Logger) (*Provider, error) {
	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret file: %w", err)
	}
	return NewProviderFromConfig(cfg, store, logger), nil
}

// NewProviderFromConfig wraps an existing OAuth configuration.
func NewProviderFromConfig(cfg *oauth2.Config, store *TokenStore, logger ds.Logger) *Provider {
	return &Provider{oauthConfig: cfg, store: store, logger: logger}
}

// AuthCodeURL returns the consent page URL. Offline access with forced
// consent guarantees a refresh token is issued.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (p *Provider) Exchange(ctx context.Context, code string) error {
	tok, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := p.store.Save(tok); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// TokenSource returns a source that refreshes the stored token as needed and
// writes every refreshed token back to the store.
func (p *Provider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	base := p.oauthConfig.TokenSource(ctx, tok)
	return oauth2.ReuseTokenSource(tok, &persistingTokenSource{
		base:   base,
		store:  p.store,
		logger: p.logger,
		last:   tok.AccessToken,
	}), nil
}

type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  *TokenStore
	logger ds.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
