package proxycurl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient("test-key", WithBaseURL(ts.URL), WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
}

func TestProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/linkedin", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://linkedin.com/in/janedoe", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{
			"public_identifier": "janedoe",
			"profile_pic_url": "https://img/jane.png",
			"headline": "Staff Engineer",
			"summary": "Builds things",
			"experiences": [{"title": "Engineer", "company": "Acme", "starts_at": {"day": 1, "month": 3, "year": 2019}, "ends_at": null}],
			"education": [{"school": "MIT", "degree_name": "BS", "field_of_study": "CS", "starts_at": {"year": 2011}}],
			"certifications": [{"name": "CKA"}],
			"skills": ["Go", "Kubernetes"]
		}`))
	})

	p, err := c.Profile(context.Background(), "https://linkedin.com/in/janedoe")
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", p.Headline)
	require.Len(t, p.Experiences, 1)
	assert.Equal(t, "2019-03", p.Experiences[0].StartsAt.String())
	assert.Empty(t, p.Experiences[0].EndsAt.String())
	assert.Equal(t, "2011", p.Education[0].StartsAt.String())
	assert.Equal(t, []string{"Go", "Kubernetes"}, p.Skills)
	assert.Equal(t, "CKA", p.Certifications[0].Name)
}

func TestProfile_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Profile(context.Background(), "https://linkedin.com/in/ghost")
	require.Error(t, err)
	assert.Equal(t, resilience.Permanent, resilience.Classify(err))
}

func TestProfile_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Profile(context.Background(), "https://linkedin.com/in/janedoe")
	require.Error(t, err)
	assert.Equal(t, resilience.RateLimited, resilience.Classify(err))
}

func TestPersonalNumbers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/contact-api/personal-numbers", r.URL.Path)
		_, _ = w.Write([]byte(`{"numbers": ["+1 555 0100"]}`))
	})

	nums, err := c.PersonalNumbers(context.Background(), "https://linkedin.com/in/janedoe")
	require.NoError(t, err)
	assert.Equal(t, []string{"+1 555 0100"}, nums)
}

func TestPersonalNumbers_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"numbers": []}`))
	})

	_, err := c.PersonalNumbers(context.Background(), "https://linkedin.com/in/janedoe")
	assert.ErrorIs(t, err, resilience.ErrNoData)
}

func TestCompany(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/linkedin/company/resolve":
			assert.Equal(t, "Acme", r.URL.Query().Get("company_name"))
			_, _ = w.Write([]byte(`{"url": "https://linkedin.com/company/acme"}`))
		case "/api/linkedin/company":
			assert.Equal(t, "https://linkedin.com/company/acme", r.URL.Query().Get("url"))
			_, _ = w.Write([]byte(`{
				"name": "Acme",
				"website": "https://acme.com",
				"industry": "Software",
				"company_size": [51, 200],
				"hq": {"city": "Austin", "state": "TX", "country": "US"}
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	co, err := c.Company(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Software", co.Industry)
	assert.Equal(t, "51-200", co.SizeRange())
	assert.Equal(t, "Austin, TX, US", co.Headquarters())
	assert.Equal(t, "https://linkedin.com/company/acme", co.LinkedInURL)
}

func TestCompany_Unresolved(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url": null}`))
	})

	_, err := c.Company(context.Background(), "Nobody Inc")
	assert.ErrorIs(t, err, resilience.ErrNoData)
}

func TestCompany_SizeRangeOpenEnded(t *testing.T) {
	n := 10001
	co := &Company{CompanySize: []*int{&n, nil}}
	assert.Equal(t, "10001+", co.SizeRange())
	assert.Empty(t, (&Company{}).SizeRange())
	assert.Empty(t, (&Company{}).Headquarters())
}
