// Package github talks to the hosting API: organization listings over REST and
// batched repository statistics over GraphQL.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"ghstats/models"
)

const reposPerPage = 100

var (
	// ErrQueryFailed marks a query attempt that may succeed when retried.
	ErrQueryFailed = errors.New("github: query failed")
	ErrRateLimited = errors.New("github: rate limited")
)

type Client struct {
	httpClient *http.Client
	rest       *gh.Client
	graphqlURL string
}

// NewClient talks REST to apiURL and GraphQL to graphqlURL through httpClient,
// which is expected to carry the token.
func NewClient(httpClient *http.Client, apiURL, graphqlURL string) (*Client, error) {
	rest := gh.NewClient(httpClient)
	if apiURL != "" {
		base, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse GitHub API URL: %w", err)
		}
		rest.BaseURL = base
	}

	return &Client{
		httpClient: httpClient,
		rest:       rest,
		graphqlURL: graphqlURL,
	}, nil
}

// ListOrgRepos returns "owner/name" for every repository of the organization,
// skipping bare names listed in its exclude value.
func (c *Client) ListOrgRepos(ctx context.Context, org models.OrgSource) ([]string, error) {
	opts := &gh.RepositoryListByOrgOptions{
		ListOptions: gh.ListOptions{PerPage: reposPerPage},
	}

	var repos []string
	for {
		page, resp, err := c.rest.Repositories.ListByOrg(ctx, org.OrgName, opts)
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", org.OrgName, max(opts.Page, 1), rateLimited(err))
		}

		for _, r := range page {
			repos = append(repos, r.GetFullName())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	repos = org.Filter(repos)
	log.Printf("GitHub: %s has %d repositories to sync", org.OrgName, len(repos))
	return repos, nil
}

// rateLimited maps the client's rate limit errors onto ErrRateLimited.
func rateLimited(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w until %s: %v", ErrRateLimited, rateErr.Rate.Reset.UTC().Format(time.RFC3339), err)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type graphqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []graphqlError             `json:"errors,omitempty"`
}

// ExecuteQuery runs one composite query and returns its data object keyed by alias.
// Every failure wraps ErrQueryFailed.
func (c *Client) ExecuteQuery(ctx context.Context, query string) (map[string]json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		log.Printf("GitHub: rate limit remaining %s", remaining)
	}
	if err := checkRateLimit(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrQueryFailed, resp.StatusCode, string(respBody))
	}

	var result graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrQueryFailed, err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, strings.Join(msgs, "; "))
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%w: response has no data", ErrQueryFailed)
	}

	return result.Data, nil
}

func checkRateLimit(resp *http.Response) error {
	if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) &&
		resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return fmt.Errorf("%w until %s", ErrRateLimited, resp.Header.Get("X-RateLimit-Reset"))
	}
	return nil
}
