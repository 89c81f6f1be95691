// Package hunter provides a client for the Hunter.io email finder and verifier.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/resilience"
)

const provider = "hunter"

// Client defines the Hunter operations used by enrichment.
type Client interface {
	// FindEmail looks up a work address. companyOrDomain may be a company
	// name or a bare domain. A miss is a permanent no-data failure.
	FindEmail(ctx context.Context, first, last, companyOrDomain string) (*EmailResult, error)
	// VerifyEmail checks deliverability of an address.
	VerifyEmail(ctx context.Context, email string) (*Verification, error)
}

// EmailResult is a found address and Hunter's confidence in it.
type EmailResult struct {
	Email string `json:"email"`
	Score int    `json:"score"`
}

// Verification is the deliverability verdict for an address.
type Verification struct {
	Email  string `json:"email"`
	Status string `json:"status"` // valid, invalid, accept_all, webmail, disposable, unknown
	Result string `json:"result"` // deliverable, undeliverable, risky
	Score  int    `json:"score"`
}

// Deliverable reports whether the address can receive mail.
func (v *Verification) Deliverable() bool {
	return v.Status == "valid" || v.Result == "deliverable"
}

// Option configures the Hunter client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the in-call retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a new Hunter client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.hunter.io/v2",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger(provider, "request")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, resilience.NewPermanent(provider, eris.Wrap(err, "create request"))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransient(provider, eris.Wrap(err, "request failed"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransient(provider, eris.Wrap(err, "read response body"), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.FromHTTPStatus(provider, resp.StatusCode, string(b))
		}
		return b, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.NewTransient(provider, eris.Wrap(err, "decode response"), http.StatusOK)
	}
	return nil
}

func (c *httpClient) FindEmail(ctx context.Context, first, last, companyOrDomain string) (*EmailResult, error) {
	params := url.Values{}
	params.Set("first_name", first)
	params.Set("last_name", last)
	if isDomain(companyOrDomain) {
		params.Set("domain", companyOrDomain)
	} else {
		params.Set("company", companyOrDomain)
	}

	var resp struct {
		Data EmailResult `json:"data"`
	}
	if err := c.get(ctx, "/email-finder", params, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Email == "" {
		return nil, resilience.NoData(provider)
	}
	return &resp.Data, nil
}

func (c *httpClient) VerifyEmail(ctx context.Context, email string) (*Verification, error) {
	params := url.Values{}
	params.Set("email", email)

	var resp struct {
		Data Verification `json:"data"`
	}
	if err := c.get(ctx, "/email-verifier", params, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Status == "" && resp.Data.Result == "" {
		return nil, resilience.NoData(provider)
	}
	return &resp.Data, nil
}

func isDomain(s string) bool {
	return !strings.Contains(s, " ") && strings.Contains(s, ".")
}
