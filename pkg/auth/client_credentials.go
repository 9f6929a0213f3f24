package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Sternrassler/spotify-catalog-client/pkg/backoff"
)

// DefaultTokenURL is Spotify's accounts service token endpoint.
const DefaultTokenURL = "https://accounts.spotify.com/api/token"

// Credentials identify the application to the accounts service.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// TokenURL defaults to DefaultTokenURL.
	TokenURL string
}

// ClientCredentials obtains app tokens with the OAuth2 client-credentials
// grant. Token endpoint failures are retried along the shared backoff curve;
// rejected credentials are not.
type ClientCredentials struct {
	config     clientcredentials.Config
	policy     backoff.Policy
	maxRetries int
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCredentials creates a provider. maxRetries bounds token endpoint retries.
func NewClientCredentials(creds Credentials, policy backoff.Policy, maxRetries int, logger zerolog.Logger) (*ClientCredentials, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		policy:     policy,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *ClientCredentials) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Token implements TokenProvider. A cached token is reused while valid.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token.AccessToken, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok

	c.logger.Debug().
		Time("expiry", tok.Expiry).
		Msg("Obtained access token")
	return tok.AccessToken, nil
}

func (c *ClientCredentials) fetch(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var tok *oauth2.Token
	attempt := 0
	op := func() error {
		attempt++
		t, err := c.config.Token(ctx)
		if err != nil {
			if rejected(err) {
				return cbackoff.Permanent(err)
			}
			c.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Msg("Token request failed")
			return err
		}
		tok = t
		return nil
	}

	b := cbackoff.WithContext(cbackoff.WithMaxRetries(c.policy.BackOff(), uint64(c.maxRetries)), ctx)
	if err := cbackoff.Retry(op, b); err != nil {
		return nil, errors.Wrapf(err, "client credentials token after %d attempts", attempt)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token endpoint returned an empty access token")
	}
	return tok, nil
}

// rejected reports whether the token endpoint refused the request outright.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return false
	}
	status := re.Response.StatusCode
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
