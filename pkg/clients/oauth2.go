package clients

import (
	"context"
	"net/http"
	"strings"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"golang.org/x/oauth2"
)

// AuthConfig selects how API requests are authenticated.
type AuthConfig struct {
	// Type is none, basic, bearer or oauth2
	Type string
	// Credentials carries username/password, token, or
	// client_id/client_secret/token_url/refresh_token/scopes.
	Credentials map[string]string
	// Host, when set, limits credentials to requests for that host.
	// Requests to any other host go out unauthenticated.
	Host string
}

// NewAuthTransport wraps base with the credentials described by cfg.
// Bearer tokens and refreshed OAuth2 tokens go through x/oauth2's
// transport; basic auth sets the header directly.
func NewAuthTransport(ctx context.Context, cfg *AuthConfig, base http.RoundTripper) (http.RoundTripper, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	authed, err := newCredentialTransport(ctx, cfg, base)
	if err != nil || cfg.Host == "" || !hasCredentials(cfg) {
		return authed, err
	}
	return &hostScopedTransport{host: strings.ToLower(cfg.Host), authed: authed, base: base}, nil
}

func hasCredentials(cfg *AuthConfig) bool {
	t := strings.ToLower(cfg.Type)
	return t != "" && t != "none"
}

func newCredentialTransport(ctx context.Context, cfg *AuthConfig, base http.RoundTripper) (http.RoundTripper, error) {
	creds := cfg.Credentials

	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return base, nil

	case "basic":
		if creds["username"] == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "basic auth requires a username")
		}
		return &basicAuthTransport{username: creds["username"], password: creds["password"], base: base}, nil

	case "bearer":
		if creds["token"] == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "bearer auth requires a token")
		}
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds["token"], TokenType: "Bearer"})
		return &oauth2.Transport{Source: src, Base: base}, nil

	case "oauth2":
		if creds["client_id"] == "" || creds["token_url"] == "" || creds["refresh_token"] == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "oauth2 auth requires client_id, token_url and refresh_token")
		}
		oc := &oauth2.Config{
			ClientID:     creds["client_id"],
			ClientSecret: creds["client_secret"],
			Endpoint:     oauth2.Endpoint{TokenURL: creds["token_url"]},
		}
		if scopes := strings.TrimSpace(creds["scopes"]); scopes != "" {
			oc.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
		}
		// token refreshes use an untuned client so they bypass pacing
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
		src := oc.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: creds["refresh_token"]})
		return &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, src), Base: base}, nil

	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported auth type %q", cfg.Type)
	}
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(clone)
}

// hostScopedTransport sends credentials only to host. Every hop of a
// redirect is a separate round trip, so redirects off host lose them too.
type hostScopedTransport struct {
	host   string
	authed http.RoundTripper
	base   http.RoundTripper
}

func (t *hostScopedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.ToLower(req.URL.Host) == t.host {
		return t.authed.RoundTrip(req)
	}
	if req.Header.Get("Authorization") != "" {
		req = req.Clone(req.Context())
		req.Header.Del("Authorization")
	}
	return t.base.RoundTrip(req)
}
