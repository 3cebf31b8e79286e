package engines

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/i474232898/weather-odds/internal/weather"
)

// DAPClient opens OPeNDAP (DAP2) resources using the .dds and .ascii
// responses. Data hosts redirect unauthenticated requests to the login
// host and set a session cookie on the way back, so the client keeps a
// cookie jar and re-sends credentials on redirects to a login host.
type DAPClient struct {
	client    *http.Client
	creds     CredentialProvider
	authHosts []string

	credsOnce sync.Once
	resolved  Credentials
	credsErr  error
}

// NewDAPClient wraps client with a cookie jar and redirect authentication.
// authHosts defaults to the Earthdata login host.
func NewDAPClient(client *http.Client, creds CredentialProvider, authHosts ...string) *DAPClient {
	if client == nil {
		client = http.DefaultClient
	}
	if len(authHosts) == 0 {
		authHosts = []string{EarthdataHost}
	}
	c := &DAPClient{creds: creds, authHosts: authHosts}

	hc := *client
	if hc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		hc.Jar = jar
	}
	next := hc.CheckRedirect
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if next != nil {
			if err := next(req, via); err != nil {
				return err
			}
		} else if len(via) >= 10 {
			return eris.New("stopped after 10 redirects")
		}
		if c.isAuthHost(req.URL) {
			creds, err := c.credentials()
			if err != nil {
				return err
			}
			creds.Apply(req)
		}
		return nil
	}
	c.client = &hc
	return c
}

// isAuthHost matches a configured host with or without its port.
func (c *DAPClient) isAuthHost(u *url.URL) bool {
	for _, h := range c.authHosts {
		if strings.EqualFold(u.Host, h) || strings.EqualFold(u.Hostname(), h) {
			return true
		}
	}
	return false
}

// credentials resolves the provider once; netrc is read a single time.
func (c *DAPClient) credentials() (Credentials, error) {
	c.credsOnce.Do(func() {
		if c.creds == nil {
			return
		}
		c.resolved, c.credsErr = c.creds.Credentials()
	})
	return c.resolved, c.credsErr
}

// Probe fetches the DDS and checks it declares at least one variable.
func (c *DAPClient) Probe(ctx context.Context, rawURL string) error {
	body, err := c.get(ctx, rawURL+".dds")
	if err != nil {
		return err
	}
	if len(parseDDS(body)) == 0 {
		return eris.New("dds declares no variables")
	}
	return nil
}

// Open reads the DDS and the latitude/longitude axes.
func (c *DAPClient) Open(ctx context.Context, rawURL string) (Dataset, error) {
	body, err := c.get(ctx, rawURL+".dds")
	if err != nil {
		return nil, err
	}
	vars := parseDDS(body)

	latName, lonName := axisName(vars, "lat", "latitude"), axisName(vars, "lon", "longitude")
	if latName == "" || lonName == "" {
		return nil, eris.New("dataset has no lat/lon axes")
	}

	axes, err := c.get(ctx, rawURL+".ascii?"+escapeConstraint(latName+","+lonName))
	if err != nil {
		return nil, err
	}
	values := parseASCII(axes)
	ds := &dapDataset{
		client:  c,
		url:     rawURL,
		vars:    vars,
		latName: latName,
		lonName: lonName,
		lats:    lookup(values, latName),
		lons:    lookup(values, lonName),
	}
	if len(ds.lats) == 0 || len(ds.lons) == 0 {
		return nil, eris.New("empty lat/lon axes")
	}
	return ds, nil
}

func (c *DAPClient) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "create request")
	}
	creds, err := c.credentials()
	if err != nil {
		return "", err
	}
	// Tokens are accepted by data hosts; passwords only go to login hosts.
	if creds.Token != "" || c.isAuthHost(req.URL) {
		creds.Apply(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return "", weather.NewUpstreamError("opendap", resp.StatusCode, body)
	}
	return string(body), nil
}

type dapDataset struct {
	client           *DAPClient
	url              string
	vars             map[string][]dapDim
	latName, lonName string
	lats, lons       []float64

	mu     sync.Mutex
	closed bool
}

func (d *dapDataset) Variables() []string {
	out := make([]string, 0, len(d.vars))
	for name, dims := range d.vars {
		if len(dims) > 1 {
			out = append(out, name)
		}
	}
	return out
}

func (d *dapDataset) Point(ctx context.Context, lat, lon float64, vars ...string) (map[string][]float64, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, eris.New("dataset closed")
	}

	if maxOf(d.lons) > 180 && lon < 0 {
		lon += 360
	}
	i, j := nearest(d.lats, lat), nearest(d.lons, lon)

	var constraints []string
	for _, v := range vars {
		dims, ok := d.vars[v]
		if !ok {
			continue
		}
		var b strings.Builder
		b.WriteString(v)
		for _, dim := range dims {
			switch dim.name {
			case d.latName:
				fmt.Fprintf(&b, "[%d:%d]", i, i)
			case d.lonName:
				fmt.Fprintf(&b, "[%d:%d]", j, j)
			default:
				fmt.Fprintf(&b, "[0:%d]", dim.size-1)
			}
		}
		constraints = append(constraints, b.String())
	}
	if len(constraints) == 0 {
		return map[string][]float64{}, nil
	}

	body, err := d.client.get(ctx, d.url+".ascii?"+escapeConstraint(strings.Join(constraints, ",")))
	if err != nil {
		return nil, err
	}
	values := parseASCII(body)
	out := make(map[string][]float64, len(vars))
	for _, v := range vars {
		if series := lookup(values, v); series != nil {
			out[v] = series
		}
	}
	return out, nil
}

func (d *dapDataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type dapDim struct {
	name string
	size int
}

var (
	ddsDecl = regexp.MustCompile(`(?m)^\s*(?:Byte|Int16|UInt16|Int32|UInt32|Float32|Float64)\s+(\w+)((?:\[[^\]]+\])+);`)
	ddsDim  = regexp.MustCompile(`\[\s*(?:(\w+)\s*=\s*)?(\d+)\s*\]`)
	// asciiHeader matches "T2M.T2M[24][1][1]" or "lat, -90, -89.5".
	asciiHeader = regexp.MustCompile(`^([A-Za-z_][\w.]*)((?:\[\d+\])*)\s*(?:,(.*))?$`)
	indexPrefix = regexp.MustCompile(`^(?:\[\d+\])+\s*,?\s*`)
)

// parseDDS maps each declared variable to its dimensions. The first
// declaration wins, so a Grid's array keeps the data dimensions.
func parseDDS(dds string) map[string][]dapDim {
	vars := make(map[string][]dapDim)
	for _, m := range ddsDecl.FindAllStringSubmatch(dds, -1) {
		name := m[1]
		if _, seen := vars[name]; seen {
			continue
		}
		var dims []dapDim
		for _, dm := range ddsDim.FindAllStringSubmatch(m[2], -1) {
			size, _ := strconv.Atoi(dm[2])
			dims = append(dims, dapDim{name: dm[1], size: size})
		}
		vars[name] = dims
	}
	return vars
}

// parseASCII reads a DAP2 .ascii response into name → flattened values.
// Fill values become NaN.
func parseASCII(body string) map[string][]float64 {
	if i := strings.Index(body, "\n-----"); i >= 0 {
		if j := strings.Index(body[i+1:], "\n"); j >= 0 {
			body = body[i+1+j+1:]
		}
	}

	out := make(map[string][]float64)
	current := ""
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := asciiHeader.FindStringSubmatch(line); m != nil && !isNumberWord(m[1]) {
			current = m[1]
			if _, ok := out[current]; !ok {
				out[current] = nil
			}
			if m[3] != "" {
				out[current] = append(out[current], parseValues(m[3])...)
			}
			continue
		}
		if current == "" {
			continue
		}
		out[current] = append(out[current], parseValues(indexPrefix.ReplaceAllString(line, ""))...)
	}
	return out
}

func parseValues(s string) []float64 {
	var vals []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil || isFill(v) {
			v = math.NaN()
		}
		vals = append(vals, v)
	}
	return vals
}

// isFill catches the MERRA-2 (1e15) and IMERG (-9999.9) fill values.
func isFill(v float64) bool {
	return math.Abs(v) >= 1e14 || v <= -9999
}

func isNumberWord(s string) bool {
	switch strings.ToLower(s) {
	case "nan", "inf", "infinity":
		return true
	}
	return false
}

// lookup resolves a variable by exact name, then as a Grid member ("T2M.T2M"),
// then by any ".name" suffix.
func lookup(values map[string][]float64, name string) []float64 {
	if v, ok := values[name]; ok {
		return v
	}
	if v, ok := values[name+"."+name]; ok {
		return v
	}
	for k, v := range values {
		if strings.HasSuffix(k, "."+name) {
			return v
		}
	}
	return nil
}

func axisName(vars map[string][]dapDim, names ...string) string {
	for _, n := range names {
		if _, ok := vars[n]; ok {
			return n
		}
	}
	return ""
}

func escapeConstraint(s string) string {
	return strings.NewReplacer("[", "%5B", "]", "%5D").Replace(s)
}

func nearest(axis []float64, v float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, a := range axis {
		if d := math.Abs(a - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func maxOf(vals []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
