package engines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-odds/internal/weather"
)

// Catalog finds source locators for a dataset within a date range.
type Catalog interface {
	Locators(ctx context.Context, shortName string, span weather.DateRange) ([]string, error)
}

const (
	defaultCMRURL = "https://cmr.earthdata.nasa.gov/search/granules.json"
	cmrPageSize   = 2000
	searchAfter   = "CMR-Search-After"
)

// CMRCatalog searches NASA's Common Metadata Repository for granules and
// returns their OPeNDAP locators.
type CMRCatalog struct {
	baseURL  string
	pageSize int
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewCMRCatalog(httpCfg HTTPClientConfig) *CMRCatalog {
	if httpCfg.Backoff == (BackoffConfig{}) {
		httpCfg.Backoff = defaultBackoff()
	}
	return &CMRCatalog{
		baseURL:  defaultCMRURL,
		pageSize: cmrPageSize,
		httpCfg:  httpCfg,
		circuit:  newBreaker("cmr"),
	}
}

type cmrFeed struct {
	Feed struct {
		Entry []struct {
			Links []struct {
				Href string `json:"href"`
			} `json:"links"`
		} `json:"entry"`
	} `json:"feed"`
}

// Locators returns sorted, de-duplicated OPeNDAP URLs for every .nc4 granule
// in span, following CMR's search-after paging.
func (c *CMRCatalog) Locators(ctx context.Context, shortName string, span weather.DateRange) ([]string, error) {
	seen := make(map[string]struct{})
	cursor := ""

	for {
		page, next, err := c.page(ctx, shortName, span, cursor)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Feed.Entry {
			for _, link := range entry.Links {
				if u, ok := opendapLocator(link.Href); ok {
					seen[u] = struct{}{}
				}
			}
		}
		if next == "" || len(page.Feed.Entry) < c.pageSize {
			break
		}
		cursor = next
	}

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	slices.Sort(out)
	return out, nil
}

func (c *CMRCatalog) page(ctx context.Context, shortName string, span weather.DateRange, cursor string) (cmrFeed, string, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("short_name", shortName)
		values.Set("temporal", span.Start.String()+"T00:00:00Z,"+span.End.String()+"T23:59:59Z")
		values.Set("page_size", strconv.Itoa(c.pageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if cursor != "" {
			req.Header.Set(searchAfter, cursor)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, "cmr", c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return cmrFeed{}, "", err
	}
	defer resp.Body.Close()

	var feed cmrFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return cmrFeed{}, "", eris.Wrap(err, "decode cmr response")
	}
	return feed, resp.Header.Get(searchAfter), nil
}

// opendapLocator keeps data links to netCDF-4 granules and points them at
// the OPeNDAP front-end.
func opendapLocator(href string) (string, bool) {
	if !strings.HasSuffix(href, ".nc4") || !hasAny(href, "/data/", "/opendap/") {
		return "", false
	}
	if strings.Contains(href, "/opendap/") {
		return href, true
	}
	return strings.Replace(href, "/data/", "/opendap/", 1), true
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
