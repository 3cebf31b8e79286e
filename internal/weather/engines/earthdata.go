package engines

import (
	"context"
	"fmt"
	"math"
	"path"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-odds/internal/observability"
	"github.com/i474232898/weather-odds/internal/weather"
)

// DatasetFamily is a catalog collection and the variables read from it.
type DatasetFamily struct {
	ShortName string
	Label     string
	Variables []string
}

var (
	// MERRA2 hourly single-level diagnostics: temperature, wind, humidity.
	MERRA2 = DatasetFamily{
		ShortName: "M2T1NXSLV",
		Label:     "MERRA-2",
		Variables: []string{"T2M", "U10M", "V10M", "RH2M", "QV2M", "PS"},
	}
	// IMERG final daily precipitation.
	IMERG = DatasetFamily{
		ShortName: "GPM_3IMERGDF",
		Label:     "GPM IMERG",
		Variables: []string{"precipitation", "precipitationCal"},
	}
)

// EarthdataConfig tunes the remote engine.
type EarthdataConfig struct {
	// Concurrency bounds simultaneous catalog searches and granule reads.
	Concurrency int
	// SeriesDeadline is the budget shared by every fetch of one series.
	// Outstanding fetches are cancelled when it expires.
	SeriesDeadline time.Duration
}

// EarthdataEngine samples MERRA-2 and GPM IMERG granules from NASA Earthdata
// at the grid cell nearest the query location.
type EarthdataEngine struct {
	catalog Catalog
	fetcher *Fetcher
	creds   CredentialProvider
	cfg     EarthdataConfig
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewEarthdataEngine(
	catalog Catalog,
	fetcher *Fetcher,
	creds CredentialProvider,
	cfg EarthdataConfig,
	clock clockwork.Clock,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *EarthdataEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EarthdataEngine{
		catalog: catalog,
		fetcher: fetcher,
		creds:   creds,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

func (e *EarthdataEngine) Name() string { return "earthdata" }

func (e *EarthdataEngine) Datasets(condition string) []string {
	if weather.NeedsPrecip(condition) {
		return []string{IMERG.Label}
	}
	return []string{MERRA2.Label}
}

type granuleJob struct {
	family  DatasetFamily
	locator string
	date    weather.Date
}

// AssembleSeries searches the catalog per year window, reads every granule
// and merges both datasets on date. Precipitation is only fetched when the
// request needs it.
func (e *EarthdataEngine) AssembleSeries(ctx context.Context, req weather.SeriesRequest) ([]weather.DailyRecord, error) {
	if _, err := e.creds.Credentials(); err != nil {
		return nil, err
	}
	start := e.clock.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.EngineSeconds.WithLabelValues(e.Name()).Observe(e.clock.Since(start).Seconds())
		}
	}()

	if e.cfg.SeriesDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SeriesDeadline)
		defer cancel()
	}

	families := []DatasetFamily{MERRA2}
	if req.NeedsPrecip {
		families = append(families, IMERG)
	}
	windows := req.Window.Windows()

	jobs, err := e.searchGranules(ctx, windows, families)
	if err != nil {
		return nil, err
	}

	acc := newDayAccumulator()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			return e.readGranule(gctx, req.Location, job, acc)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]weather.DailyRecord, 0, req.Window.ExpectedDays())
	for _, w := range windows {
		for _, d := range w.Days() {
			records = append(records, acc.record(d))
		}
	}

	e.logger.Info("earthdata series assembled",
		zap.Int("granules", len(jobs)),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", e.clock.Since(start)),
	)
	return records, nil
}

func (e *EarthdataEngine) searchGranules(ctx context.Context, windows []weather.DateRange, families []DatasetFamily) ([]granuleJob, error) {
	slots := make([][]granuleJob, len(windows)*len(families))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for wi, w := range windows {
		for fi, fam := range families {
			g.Go(func() error {
				locators, err := e.catalog.Locators(gctx, fam.ShortName, w)
				if err != nil {
					return fmt.Errorf("%s catalog search %s..%s: %w", fam.Label, w.Start, w.End, upstreamErr("cmr", err))
				}
				if len(locators) == 0 {
					return fmt.Errorf("%w: %s %s..%s", weather.ErrNoMatchingSource, fam.ShortName, w.Start, w.End)
				}
				var found []granuleJob
				for _, l := range locators {
					if d, ok := granuleDate(l); ok && w.Contains(d) {
						found = append(found, granuleJob{family: fam, locator: l, date: d})
					}
				}
				slots[wi*len(families)+fi] = found
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var jobs []granuleJob
	for _, s := range slots {
		jobs = append(jobs, s...)
	}
	return jobs, nil
}

// readGranule opens one granule, samples it and releases it on every path.
func (e *EarthdataEngine) readGranule(ctx context.Context, loc weather.Location, job granuleJob, acc *dayAccumulator) error {
	ds, err := e.fetcher.Fetch(ctx, job.locator)
	if err != nil {
		return err
	}
	defer ds.Close()

	available := ds.Variables()
	var vars []string
	for _, v := range job.family.Variables {
		if slices.Contains(available, v) {
			vars = append(vars, v)
		}
	}

	series, err := ds.Point(ctx, loc.Lat, loc.Lon, vars...)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", weather.ErrUpstream, job.locator, err)
	}

	switch job.family.ShortName {
	case IMERG.ShortName:
		acc.setPrecip(job.date, imergDaily(series))
	default:
		acc.setAtmosphere(job.date, merraDaily(series))
	}
	return nil
}

// merraDaily reduces hourly MERRA-2 steps to daily extremes in °C and km/h.
func merraDaily(s map[string][]float64) weather.DailyRecord {
	var r weather.DailyRecord

	tempC := mapVals(s["T2M"], func(k float64) float64 { return k - 273.15 })
	r.TempMax = reduce(tempC, math.Max).Round(2)
	r.TempMin = reduce(tempC, math.Min).Round(2)

	if u, v := s["U10M"], s["V10M"]; len(u) > 0 && len(u) == len(v) {
		speeds := make([]float64, len(u))
		for i := range u {
			speeds[i] = math.Sqrt(u[i]*u[i]+v[i]*v[i]) * 3.6
		}
		r.WindSpeedMax = reduce(speeds, math.Max).Round(2)
		if clean := dropNaN(speeds); len(clean) > 0 {
			r.WindGustP95 = weather.Some(weather.Percentile(clean, 95)).Round(2)
		}
	}

	switch rh, q, ps := s["RH2M"], s["QV2M"], s["PS"]; {
	case len(rh) > 0:
		scale := 1.0
		if m, ok := reduce(rh, math.Max).Get(); ok && m <= 1.5 {
			scale = 100
		}
		r.RHMax = reduce(mapVals(rh, func(x float64) float64 { return x * scale }), math.Max).Round(2)
	case len(q) > 0 && len(q) == len(ps) && len(q) == len(tempC):
		derived := make([]float64, len(q))
		for i := range q {
			derived[i] = math.NaN()
			if v, ok := weather.RelativeHumidity(weather.Some(tempC[i]), weather.Some(q[i]), weather.Some(ps[i])).Get(); ok {
				derived[i] = v
			}
		}
		r.RHMax = reduce(derived, math.Max).Round(2)
	}
	return r
}

// imergDaily sums the precipitation steps (mm).
func imergDaily(s map[string][]float64) weather.Value {
	vals := s["precipitation"]
	if len(vals) == 0 {
		vals = s["precipitationCal"]
	}
	clean := dropNaN(vals)
	if len(clean) == 0 {
		return weather.None
	}
	var sum float64
	for _, v := range clean {
		sum += v
	}
	return weather.Some(sum).Round(2)
}

var granuleDatePattern = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(\d{2})(\d{2})(?:\D|$)`)

// granuleDate reads the YYYYMMDD stamp from a granule file name.
func granuleDate(locator string) (weather.Date, bool) {
	m := granuleDatePattern.FindStringSubmatch(path.Base(locator))
	if m == nil {
		return weather.Date{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	date := weather.NewDate(y, time.Month(mo), d)
	if date.Year() != y || int(date.Month()) != mo || date.Day() != d {
		return weather.Date{}, false
	}
	return date, true
}

// dayAccumulator merges per-granule results by date.
type dayAccumulator struct {
	mu   sync.Mutex
	days map[weather.Date]weather.DailyRecord
}

func newDayAccumulator() *dayAccumulator {
	return &dayAccumulator{days: make(map[weather.Date]weather.DailyRecord)}
}

func (a *dayAccumulator) setAtmosphere(d weather.Date, m weather.DailyRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.days[d]
	r.TempMax, r.TempMin = m.TempMax, m.TempMin
	r.WindSpeedMax, r.WindGustP95 = m.WindSpeedMax, m.WindGustP95
	r.RHMax = m.RHMax
	a.days[d] = r
}

func (a *dayAccumulator) setPrecip(d weather.Date, v weather.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.days[d]
	r.PrecipDaily = v
	a.days[d] = r
}

// record returns the merged, derived record for d. Days without any granule
// come back with every field absent.
func (a *dayAccumulator) record(d weather.Date) weather.DailyRecord {
	a.mu.Lock()
	r := a.days[d]
	a.mu.Unlock()
	r.Date = d
	return r.WithDerived(r.WindSpeedMax)
}

func reduce(vals []float64, fn func(a, b float64) float64) weather.Value {
	acc, ok := 0.0, false
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if !ok {
			acc, ok = v, true
			continue
		}
		acc = fn(acc, v)
	}
	if !ok {
		return weather.None
	}
	return weather.Some(acc)
}

func mapVals(vals []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = fn(v)
	}
	return out
}

func dropNaN(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
