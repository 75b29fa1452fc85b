// Package healthgov fetches the case numbers page of the health department.
package healthgov

import (
	"context"
	"covid19au/internal/assert"
	"covid19au/internal/components/telemetry"
	tracing "covid19au/lib/telemetry"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultPageURL serves the figures as rendered html tables.
	DefaultPageURL = "https://www.health.gov.au/health-alerts/covid-19/case-numbers-and-statistics"
	// LegacyPageURL embedded the dashboard objects instead.
	LegacyPageURL = "https://www.health.gov.au/news/health-alerts/novel-coronavirus-2019-ncov-health-alert/coronavirus-covid-19-current-situation-and-case-numbers"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

const report_client_page = "client.page"

type Client struct {
	pageURL string
	http    *resty.Client
	tel     telemetry.API
}

func NewClient(pageURL, userAgent string, tel telemetry.API) (Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("healthgov", tel)

	if pageURL == "" {
		pageURL = DefaultPageURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Client{}, err
	}

	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return Client{}, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsed.Hostname()))
	httpClient.SetTimeout(30 * time.Second)

	// 2 requests max per second
	rateLimiter := rate.NewLimiter(2, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	tracing.TraceResty(httpClient, "covid19au.internal.scrapers.healthgov")
	telemetry.InstrumentResty(httpClient, tel)

	return Client{
		pageURL: pageURL,
		http:    httpClient,
		tel:     tel,
	}, nil
}

func (c Client) PageURL() string {
	return c.pageURL
}

// Page returns the markup of the page as served, without running scripts.
func (c Client) Page(ctx context.Context) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(c.pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	if res.IsError() {
		err := fmt.Errorf("fetch page: unexpected status %s", res.Status())
		c.tel.ReportBroken(report_client_page, err, c.pageURL)
		return nil, err
	}
	return res.Body(), nil
}
