package driveapi

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthEndpoint is the hosted drive service's token endpoint, used for both
// the authorization_code and refresh_token grants.
var OAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Scope is the single OAuth2 scope this client requests: full access to the
// files the service exposes. No incremental/narrower scopes — matching the
// single-root-folder model this client operates under.
const Scope = "https://www.googleapis.com/auth/drive"

// OnRefresh is called whenever a SessionTokenSource obtains a new access
// token through the refresh grant, so the caller can persist the updated
// session. refreshToken is empty when the grant did not return a new one
// (the hosted drive's refresh grant normally omits it — the original token
// stays valid).
type OnRefresh func(accessToken, refreshToken string) error

// SessionTokenSource adapts an oauth2.Config + refresh token into the
// driveapi.TokenSource this client's HTTP layer consumes. Construction
// makes no request; because it hands oauth2 a token with no access token,
// the first Token call always performs a refresh, which is exactly the C2
// refresh_token operation.
type SessionTokenSource struct {
	mu       sync.Mutex
	cfg      *oauth2.Config
	ctx      context.Context
	source   oauth2.TokenSource
	lastAT   string
	onRefresh OnRefresh
}

// NewOAuthConfig builds the non-interactive OAuth2 config used for
// authorize_with_code and refresh_token. It deliberately carries none of
// the interactive device-code or browser+PKCE machinery — those flows are
// out of scope for this client.
func NewOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     OAuthEndpoint,
		Scopes:       []string{Scope},
	}
}

// AuthorizeWithCode exchanges a one-time authorization code (obtained by
// the caller out of band, e.g. by visiting the consent URL and pasting the
// redirected code) for an initial access/refresh token pair.
func AuthorizeWithCode(ctx context.Context, cfg *oauth2.Config, code string) (accessToken, refreshToken string, err error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("driveapi: exchanging authorization code: %w", err)
	}

	return tok.AccessToken, tok.RefreshToken, nil
}

// NewSessionTokenSource builds a TokenSource backed by a stored refresh
// token. onRefresh is invoked synchronously whenever a new access token is
// minted, so the caller can persist it before the token is used.
func NewSessionTokenSource(ctx context.Context, cfg *oauth2.Config, refreshToken string, onRefresh OnRefresh) *SessionTokenSource {
	seed := &oauth2.Token{RefreshToken: refreshToken}

	return &SessionTokenSource{
		cfg:       cfg,
		ctx:       ctx,
		source:    cfg.TokenSource(ctx, seed),
		onRefresh: onRefresh,
	}
}

// Token returns a current bearer token, refreshing if the cached one is
// missing or expired. Implements driveapi.TokenSource.
func (s *SessionTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.source.Token()
	if err != nil {
		return "", fmt.Errorf("driveapi: refreshing access token: %w", err)
	}

	if tok.AccessToken != s.lastAT {
		s.lastAT = tok.AccessToken

		if s.onRefresh != nil {
			if err := s.onRefresh(tok.AccessToken, tok.RefreshToken); err != nil {
				return "", fmt.Errorf("driveapi: persisting refreshed session: %w", err)
			}
		}
	}

	return tok.AccessToken, nil
}

// ForceRefresh discards the cached access token and obtains a fresh one
// immediately, independent of expiry. This is the refresh_token operation
// the remote and local daemons invoke after an Unauthorized response — the
// hosted drive API gives no reliable way to distinguish "expired" from
// "revoked" ahead of time, so a 401 is always treated as "refresh once."
func (s *SessionTokenSource) ForceRefresh(refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	s.mu.Lock()
	s.source = s.cfg.TokenSource(s.ctx, &oauth2.Token{RefreshToken: refreshToken})
	s.lastAT = ""
	s.mu.Unlock()

	return s.Token()
}
