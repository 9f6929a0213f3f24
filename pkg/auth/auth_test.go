package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/spotify-catalog-client/pkg/backoff"
)

func fastPolicy() backoff.Policy {
	return backoff.Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "abc" {
		t.Errorf("Token() = %q, want %q", tok, "abc")
	}

	if _, err := StaticToken("").Token(context.Background()); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Token() on empty = %v, want ErrEmptyToken", err)
	}
}

func TestNewClientCredentials_Validation(t *testing.T) {
	tests := []struct {
		name        string
		creds       Credentials
		expectError bool
	}{
		{"valid", Credentials{ClientID: "id", ClientSecret: "secret"}, false},
		{"missing id", Credentials{ClientSecret: "secret"}, true},
		{"missing secret", Credentials{ClientID: "id"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := NewClientCredentials(tt.creds, fastPolicy(), 3, zerolog.Nop())
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cc.config.TokenURL != DefaultTokenURL {
				t.Errorf("TokenURL = %q, want %q", cc.config.TokenURL, DefaultTokenURL)
			}
		})
	}
}

// tokenServer answers the first failures requests with status, then issues tokens.
func tokenServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"server_error"}`)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func TestClientCredentials_TokenCached(t *testing.T) {
	server, calls := tokenServer(t, 0, 0)

	cc, err := NewClientCredentials(Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}, fastPolicy(), 3, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClientCredentials() error = %v", err)
	}
	cc.SetHTTPClient(server.Client())

	for i := 0; i < 3; i++ {
		tok, err := cc.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok != "token-1" {
			t.Errorf("Token() = %q, want token-1", tok)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("Token endpoint calls = %d, want 1", got)
	}
}

func TestClientCredentials_RetriesServerErrors(t *testing.T) {
	server, calls := tokenServer(t, 2, http.StatusServiceUnavailable)

	cc, _ := NewClientCredentials(Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}, fastPolicy(), 3, zerolog.Nop())
	cc.SetHTTPClient(server.Client())

	tok, err := cc.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "token-3" {
		t.Errorf("Token() = %q, want token-3", tok)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Token endpoint calls = %d, want 3", got)
	}
}

func TestClientCredentials_RetryBudget(t *testing.T) {
	server, calls := tokenServer(t, 100, http.StatusInternalServerError)

	cc, _ := NewClientCredentials(Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}, fastPolicy(), 2, zerolog.Nop())
	cc.SetHTTPClient(server.Client())

	if _, err := cc.Token(context.Background()); err == nil {
		t.Fatal("Expected error after retries, got nil")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Token endpoint calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestClientCredentials_RejectedNotRetried(t *testing.T) {
	server, calls := tokenServer(t, 0, 0)

	cc, _ := NewClientCredentials(Credentials{ClientID: "id", ClientSecret: "wrong", TokenURL: server.URL}, fastPolicy(), 5, zerolog.Nop())
	cc.SetHTTPClient(server.Client())

	if _, err := cc.Token(context.Background()); err == nil {
		t.Fatal("Expected error for rejected credentials, got nil")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Token endpoint calls = %d, want 1", got)
	}
}

func TestClientCredentials_ContextCancelled(t *testing.T) {
	server, _ := tokenServer(t, 0, 0)

	cc, _ := NewClientCredentials(Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}, fastPolicy(), 3, zerolog.Nop())
	cc.SetHTTPClient(server.Client())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cc.Token(ctx); err == nil {
		t.Error("Expected error for cancelled context, got nil")
	}
}
