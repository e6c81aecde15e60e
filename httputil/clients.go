package httputil

import (
	"net/http"
	"time"
)

const userAgent = "ghstats/1.0"

type Clients struct {
	GitHub *http.Client // authenticated, for the hosting API
	API    *http.Client // direct, for SendGrid/Event Grid
}

func NewClients(githubToken string) *Clients {
	return &Clients{
		GitHub: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &tokenTransport{
				token: githubToken,
				base:  http.DefaultTransport,
			},
		},
		API: &http.Client{Timeout: 30 * time.Second},
	}
}

// tokenTransport adds the bearer token and user agent to every request.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.token != "" {
		req.Header.Set("Authorization", "bearer "+t.token)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}
