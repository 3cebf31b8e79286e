package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-odds/internal/observability"
	"github.com/i474232898/weather-odds/internal/weather"
)

const meteomaticsBaseURL = "https://api.meteomatics.com"

// meteomaticsParams maps API parameters to record fields, in request order.
var meteomaticsParams = []struct {
	param string
	field string
}{
	{"t_max_2m_24h:C", "t2m_max"},
	{"t_min_2m_24h:C", "t2m_min"},
	{"wind_speed_max_10m_24h:kmh", "wind_speed_max"},
	{"wind_speed_10m:kmh", "wind_speed_mean"},
	{"wind_gusts_10m_24h:kmh", "wind_gust_p95"},
	{"precip_24h:mm", "precip_daily"},
	{"relative_humidity_max_2m_24h:p", "rh_max"},
}

// MeteomaticsEngine reads daily aggregates from the Meteomatics API with a
// single range request covering every year window.
type MeteomaticsEngine struct {
	name     string
	baseURL  string
	username string
	password string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	metrics  *observability.Metrics
}

func NewMeteomaticsEngine(httpCfg HTTPClientConfig, username, password string, metrics *observability.Metrics) *MeteomaticsEngine {
	if httpCfg.Backoff == (BackoffConfig{}) {
		httpCfg.Backoff = defaultBackoff()
	}
	return &MeteomaticsEngine{
		name:     "meteomatics",
		baseURL:  meteomaticsBaseURL,
		username: username,
		password: password,
		httpCfg:  httpCfg,
		circuit:  newBreaker("meteomatics"),
		metrics:  metrics,
	}
}

func (e *MeteomaticsEngine) Name() string { return e.name }

func (e *MeteomaticsEngine) Datasets(string) []string { return []string{"Meteomatics API"} }

func (e *MeteomaticsEngine) rangeURL(span weather.DateRange, loc weather.Location) string {
	params := make([]string, len(meteomaticsParams))
	for i, p := range meteomaticsParams {
		params[i] = p.param
	}
	return fmt.Sprintf("%s/%sT00:00:00Z--%sT00:00:00Z:PT24H/%s/%.4f,%.4f/json",
		e.baseURL, span.Start, span.End, strings.Join(params, ","), loc.Lat, loc.Lon)
}

type meteomaticsPayload struct {
	Data []struct {
		Parameter   string `json:"parameter"`
		Coordinates []struct {
			Dates []struct {
				Date  string   `json:"date"`
				Value *float64 `json:"value"`
			} `json:"dates"`
		} `json:"coordinates"`
	} `json:"data"`
}

func (e *MeteomaticsEngine) AssembleSeries(ctx context.Context, req weather.SeriesRequest) ([]weather.DailyRecord, error) {
	if e.username == "" || e.password == "" {
		return nil, fmt.Errorf("%w: METEOMATICS_USERNAME and METEOMATICS_PASSWORD are required", weather.ErrCredentialsMissing)
	}

	u := e.rangeURL(req.Window.Span(), req.Location)
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		r.SetBasicAuth(e.username, e.password)
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, e.name, e.httpCfg, e.circuit, buildRequest)
	e.observe(err)
	if err != nil {
		return nil, upstreamErr(e.name, err)
	}
	defer resp.Body.Close()

	var payload meteomaticsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", weather.ErrUpstream, eris.Wrap(err, "decode meteomatics response"))
	}

	fields := make(map[string]string, len(meteomaticsParams))
	for _, p := range meteomaticsParams {
		fields[p.param] = p.field
	}

	rows := make(map[weather.Date]map[string]weather.Value)
	for _, entry := range payload.Data {
		field, ok := fields[entry.Parameter]
		if !ok {
			continue
		}
		for _, coord := range entry.Coordinates {
			for _, item := range coord.Dates {
				if len(item.Date) < 10 {
					continue
				}
				t, err := time.Parse(time.DateOnly, item.Date[:10])
				if err != nil {
					continue
				}
				day := weather.DateOf(t)
				if rows[day] == nil {
					rows[day] = make(map[string]weather.Value)
				}
				rows[day][field] = weather.Ptr(item.Value).Round(2)
			}
		}
	}

	records := make([]weather.DailyRecord, 0, len(rows))
	for day, raw := range rows {
		rec := weather.DailyRecord{
			Date:         day,
			TempMax:      raw["t2m_max"],
			TempMin:      raw["t2m_min"],
			WindSpeedMax: raw["wind_speed_max"],
			WindGustP95:  raw["wind_gust_p95"],
			PrecipDaily:  raw["precip_daily"],
			RHMax:        raw["rh_max"],
		}
		wind := rec.WindSpeedMax
		if !wind.Valid() {
			wind = raw["wind_speed_mean"]
		}
		records = append(records, rec.WithDerived(wind))
	}
	sortByDate(records)
	return weather.DailyFromWindow(req.Window, records), nil
}

func (e *MeteomaticsEngine) observe(err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.UpstreamCalls.WithLabelValues(e.name, outcome).Inc()
}

// upstreamErr makes sure transport failures carry ErrUpstream. Errors that
// already belong to the taxonomy pass through.
func upstreamErr(provider string, err error) error {
	if weather.IsEngineError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", weather.ErrUpstream, provider, err)
}

func sortByDate(records []weather.DailyRecord) {
	slices.SortFunc(records, func(a, b weather.DailyRecord) int {
		return a.Date.Compare(b.Date.Time)
	})
}
