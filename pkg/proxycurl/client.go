// Package proxycurl provides a client for the Proxycurl LinkedIn profile,
// contact and company APIs.
package proxycurl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/resilience"
)

const provider = "proxycurl"

// Client defines the Proxycurl operations used by enrichment.
type Client interface {
	// Profile scrapes a public LinkedIn profile.
	Profile(ctx context.Context, linkedinURL string) (*Profile, error)
	// PersonalNumbers returns phone numbers tied to a LinkedIn profile.
	PersonalNumbers(ctx context.Context, linkedinURL string) ([]string, error)
	// Company resolves a company by name and returns its profile.
	Company(ctx context.Context, name string) (*Company, error)
}

// Date is Proxycurl's split date.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// String formats the date as YYYY-MM, or YYYY when the month is unknown.
func (d *Date) String() string {
	switch {
	case d == nil || d.Year == 0:
		return ""
	case d.Month == 0:
		return fmt.Sprintf("%04d", d.Year)
	default:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	}
}

// Experience is one position on a profile.
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	StartsAt    *Date  `json:"starts_at"`
	EndsAt      *Date  `json:"ends_at"`
	Description string `json:"description"`
}

// Education is one school on a profile.
type Education struct {
	School       string `json:"school"`
	DegreeName   string `json:"degree_name"`
	FieldOfStudy string `json:"field_of_study"`
	StartsAt     *Date  `json:"starts_at"`
	EndsAt       *Date  `json:"ends_at"`
}

// Certification is one certification on a profile.
type Certification struct {
	Name      string `json:"name"`
	Authority string `json:"authority"`
}

// Profile is a scraped LinkedIn profile.
type Profile struct {
	PublicIdentifier string          `json:"public_identifier"`
	FirstName        string          `json:"first_name"`
	LastName         string          `json:"last_name"`
	ProfilePicURL    string          `json:"profile_pic_url"`
	Headline         string          `json:"headline"`
	Summary          string          `json:"summary"`
	City             string          `json:"city"`
	Country          string          `json:"country_full_name"`
	Experiences      []Experience    `json:"experiences"`
	Education        []Education     `json:"education"`
	Certifications   []Certification `json:"certifications"`
	Skills           []string        `json:"skills"`
}

// Company is a resolved LinkedIn company profile.
type Company struct {
	Name          string   `json:"name"`
	Website       string   `json:"website"`
	Industry      string   `json:"industry"`
	CompanySize   []*int   `json:"company_size"`
	FoundedYear   int      `json:"founded_year"`
	Description   string   `json:"description"`
	Specialities  []string `json:"specialities"`
	LinkedInURL   string   `json:"-"`
	HQ           *struct {
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"hq"`
}

// SizeRange formats the employee count range, e.g. "51-200" or "10001+".
func (c *Company) SizeRange() string {
	if len(c.CompanySize) != 2 || c.CompanySize[0] == nil {
		return ""
	}
	if c.CompanySize[1] == nil {
		return fmt.Sprintf("%d+", *c.CompanySize[0])
	}
	return fmt.Sprintf("%d-%d", *c.CompanySize[0], *c.CompanySize[1])
}

// Headquarters formats the HQ location as "City, State, Country", skipping blanks.
func (c *Company) Headquarters() string {
	if c.HQ == nil {
		return ""
	}
	var parts []string
	for _, p := range []string{c.HQ.City, c.HQ.State, c.HQ.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Option configures the Proxycurl client.
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

// NewClient creates a new Proxycurl client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://nubela.co/proxycurl",
		http: &http.Client{
			Timeout: 60 * time.Second,
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
	reqURL := c.baseURL + path + "?" + params.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, resilience.NewPermanent(provider, eris.Wrap(err, "create request"))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return resilience.NewTransient(provider, eris.Wrapf(err, "decode %s response", path), http.StatusOK)
	}
	return nil
}

func (c *httpClient) Profile(ctx context.Context, linkedinURL string) (*Profile, error) {
	params := url.Values{}
	params.Set("url", linkedinURL)
	params.Set("skills", "include")
	params.Set("use_cache", "if-present")

	var p Profile
	if err := c.get(ctx, "/api/v2/linkedin", params, &p); err != nil {
		return nil, err
	}
	if p.PublicIdentifier == "" && p.Headline == "" && len(p.Experiences) == 0 {
		return nil, resilience.NoData(provider)
	}
	return &p, nil
}

func (c *httpClient) PersonalNumbers(ctx context.Context, linkedinURL string) ([]string, error) {
	params := url.Values{}
	params.Set("linkedin_profile_url", linkedinURL)

	var resp struct {
		Numbers []string `json:"numbers"`
	}
	if err := c.get(ctx, "/api/contact-api/personal-numbers", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Numbers) == 0 {
		return nil, resilience.NoData(provider)
	}
	return resp.Numbers, nil
}

func (c *httpClient) Company(ctx context.Context, name string) (*Company, error) {
	params := url.Values{}
	params.Set("company_name", name)

	var resolved struct {
		URL string `json:"url"`
	}
	if err := c.get(ctx, "/api/linkedin/company/resolve", params, &resolved); err != nil {
		return nil, err
	}
	if resolved.URL == "" {
		return nil, resilience.NoData(provider)
	}

	params = url.Values{}
	params.Set("url", resolved.URL)
	params.Set("use_cache", "if-present")

	var co Company
	if err := c.get(ctx, "/api/linkedin/company", params, &co); err != nil {
		return nil, err
	}
	co.LinkedInURL = resolved.URL
	return &co, nil
}
