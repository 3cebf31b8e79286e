package engines

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/weather-odds/internal/observability"
	"github.com/i474232898/weather-odds/internal/weather"
)

// Dataset is an open remote dataset that can be sampled at a point. Callers
// must Close it.
type Dataset interface {
	Variables() []string
	// Point returns each requested variable's series at the grid cell
	// nearest to lat/lon. Missing values are NaN.
	Point(ctx context.Context, lat, lon float64, vars ...string) (map[string][]float64, error)
	Close() error
}

// Opener performs the network steps of a single fetch attempt.
type Opener interface {
	// Probe is a cheap metadata request.
	Probe(ctx context.Context, rawURL string) error
	Open(ctx context.Context, rawURL string) (Dataset, error)
}

// FetchConfig bounds the resilient fetch.
type FetchConfig struct {
	// Mirrors lists alternative hosts per canonical host.
	Mirrors map[string][]string
	// Endpoints are path prefixes addressing the same resource through
	// different server front-ends, tried in order.
	Endpoints      []string
	AttemptTimeout time.Duration
	TotalDeadline  time.Duration
}

// DefaultFetchConfig covers the GES DISC hosts serving MERRA-2 and IMERG.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Mirrors: map[string][]string{
			"goldsmr4.gesdisc.eosdis.nasa.gov": {"goldsmr4.gesdisc.eosdis.nasa.gov", "goldsmr5.gesdisc.eosdis.nasa.gov"},
			"gpm1.gesdisc.eosdis.nasa.gov":     {"gpm1.gesdisc.eosdis.nasa.gov", "gpm2.gesdisc.eosdis.nasa.gov"},
		},
		Endpoints:      []string{"/opendap/", "/opendap/hyrax/"},
		AttemptTimeout: 20 * time.Second,
		TotalDeadline:  60 * time.Second,
	}
}

// resourcePrefixes are stripped from a locator path to find the resource.
var resourcePrefixes = []string{"/opendap/hyrax/", "/opendap/", "/data/"}

// Fetcher opens datasets, falling back across hosts and endpoints.
type Fetcher struct {
	opener  Opener
	cfg     FetchConfig
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewFetcher(opener Opener, cfg FetchConfig, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics) *Fetcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{opener: opener, cfg: cfg, clock: clock, logger: logger, metrics: metrics}
}

// Hosts returns the locator's host first, then its mirrors.
func (f *Fetcher) Hosts(u *url.URL) []string {
	hosts := []string{u.Host}
	for _, h := range f.cfg.Mirrors[u.Host] {
		if h != u.Host {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Candidates lists every host × endpoint URL in attempt order, followed by
// the final fallback: the canonical host with the locator's own path.
func (f *Fetcher) Candidates(locator string) ([]string, string, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return nil, "", fmt.Errorf("invalid source locator %q", locator)
	}
	resource := strings.TrimPrefix(u.Path, "/")
	for _, p := range resourcePrefixes {
		if strings.HasPrefix(u.Path, p) {
			resource = strings.TrimPrefix(u.Path, p)
			break
		}
	}

	var out []string
	for _, host := range f.Hosts(u) {
		for _, ep := range f.cfg.Endpoints {
			c := *u
			c.Host = host
			c.Path = "/" + strings.Trim(ep, "/") + "/" + resource
			out = append(out, c.String())
		}
	}
	return out, u.String(), nil
}

// Fetch returns an open dataset for the locator. Per-attempt failures are
// suppressed while alternatives remain; the last one is reported through a
// *weather.FetchError once the candidates or the deadline run out.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (Dataset, error) {
	candidates, fallback, err := f.Candidates(locator)
	if err != nil {
		return nil, err
	}

	start := f.clock.Now()
	var last error
	attempts := 0

	expired := func() bool {
		return attempts > 0 && f.clock.Since(start) > f.cfg.TotalDeadline
	}

	for _, candidate := range candidates {
		if expired() {
			return nil, &weather.FetchError{Kind: weather.ErrDeadlineExceeded, Last: last, Attempts: attempts}
		}
		if ctx.Err() != nil {
			return nil, &weather.FetchError{Kind: weather.ErrDeadlineExceeded, Last: lastOr(last, ctx.Err()), Attempts: attempts}
		}

		ds, err := f.attempt(ctx, candidate, start)
		attempts++
		if err == nil {
			return ds, nil
		}
		last = err
		f.logger.Debug("fetch attempt failed", zap.String("url", candidate), zap.Error(err))
	}

	if expired() {
		return nil, &weather.FetchError{Kind: weather.ErrDeadlineExceeded, Last: last, Attempts: attempts}
	}
	if ctx.Err() != nil {
		return nil, &weather.FetchError{Kind: weather.ErrDeadlineExceeded, Last: lastOr(last, ctx.Err()), Attempts: attempts}
	}

	ds, err := f.attempt(ctx, fallback, start)
	attempts++
	if err == nil {
		f.count("fallback", "success")
		return ds, nil
	}
	f.count("fallback", "error")
	return nil, &weather.FetchError{Kind: weather.ErrFetchExhausted, Last: err, Attempts: attempts}
}

// attempt probes then opens one URL. Each step gets the per-attempt timeout,
// capped by what is left of the total deadline.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, start time.Time) (Dataset, error) {
	timeout := f.cfg.AttemptTimeout
	if remaining := f.cfg.TotalDeadline - f.clock.Since(start); remaining > 0 && (timeout <= 0 || remaining < timeout) {
		timeout = remaining
	}

	probeCtx, cancel := withOptionalTimeout(ctx, timeout)
	err := f.opener.Probe(probeCtx, rawURL)
	cancel()
	if err != nil {
		f.count("probe", "error")
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	f.count("probe", "success")

	openCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()
	ds, err := f.opener.Open(openCtx, rawURL)
	if err != nil {
		f.count("open", "error")
		return nil, fmt.Errorf("open %s: %w", rawURL, err)
	}
	f.count("open", "success")
	return ds, nil
}

func (f *Fetcher) count(stage, outcome string) {
	if f.metrics != nil {
		f.metrics.FetchAttempts.WithLabelValues(stage, outcome).Inc()
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func lastOr(last, fallback error) error {
	if last != nil {
		return last
	}
	return fallback
}
