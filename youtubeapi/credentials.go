package youtubeapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// CredentialKind distinguishes plain API keys from OAuth refresh tokens.
type CredentialKind int

const (
	KindAPIKey CredentialKind = iota
	KindOAuth
)

const oauthPrefix = "oauth:"

// Credential is one entry of the rotation pool. Each entry is expected to carry its own quota.
type Credential struct {
	Kind   CredentialKind
	Secret string
}

// String masks the secret so credentials can be logged.
func (c Credential) String() string {
	tail := c.Secret
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	if c.Kind == KindOAuth {
		return "oauth:***" + tail
	}
	return "key:***" + tail
}

// ParseCredentials turns raw pool entries into credentials. Entries prefixed with "oauth:" are
// OAuth refresh tokens; anything else is an API key. Blank entries are dropped.
func ParseCredentials(raw []string) ([]Credential, error) {
	out := make([]Credential, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.HasPrefix(r, oauthPrefix) {
			tok := strings.TrimPrefix(r, oauthPrefix)
			if tok == "" {
				return nil, fmt.Errorf("empty oauth refresh token in credential pool")
			}
			out = append(out, Credential{Kind: KindOAuth, Secret: tok})
			continue
		}
		out = append(out, Credential{Kind: KindAPIKey, Secret: r})
	}
	if len(out) == 0 {
		return nil, ErrNoCredentials
	}
	return out, nil
}

// ClientFactory builds a YouTube service bound to one credential.
type ClientFactory func(ctx context.Context, cred Credential) (*yt.Service, error)

// ClientOptions configures NewClientFactory.
type ClientOptions struct {
	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout time.Duration
	// ClientID and ClientSecret are required for OAuth credentials.
	ClientID     string
	ClientSecret string
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// Transport overrides the base round tripper.
	Transport http.RoundTripper
}

// NewClientFactory returns the default factory: API keys are attached with a key transport,
// OAuth refresh tokens go through an oauth2 token source against Google's endpoint.
func NewClientFactory(o ClientOptions) ClientFactory {
	return func(ctx context.Context, cred Credential) (*yt.Service, error) {
		base := o.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		var client *http.Client
		switch cred.Kind {
		case KindOAuth:
			if o.ClientID == "" || o.ClientSecret == "" {
				return nil, fmt.Errorf("oauth credential requires client id and secret")
			}
			oc := &oauth2.Config{
				ClientID:     o.ClientID,
				ClientSecret: o.ClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{yt.YoutubeReadonlyScope},
			}
			// The token source outlives the call that built it.
			tctx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Transport: base, Timeout: o.Timeout})
			client = oc.Client(tctx, &oauth2.Token{RefreshToken: cred.Secret})
			client.Timeout = o.Timeout
		default:
			client = &http.Client{
				Transport: &transport.APIKey{Key: cred.Secret, Transport: base},
				Timeout:   o.Timeout,
			}
		}
		opts := []option.ClientOption{option.WithHTTPClient(client)}
		if o.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(o.Endpoint))
		}
		svc, err := yt.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create youtube service: %w", err)
		}
		return svc, nil
	}
}
