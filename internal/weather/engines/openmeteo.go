package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-odds/internal/observability"
	"github.com/i474232898/weather-odds/internal/weather"
)

var openMeteoDaily = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"wind_speed_10m_max",
	"wind_gusts_10m_max",
	"precipitation_sum",
	"relative_humidity_2m_max",
}

// OpenMeteoEngine reads daily aggregates from the keyless Open-Meteo
// historical archive.
type OpenMeteoEngine struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

func NewOpenMeteoEngine(httpCfg HTTPClientConfig, metrics *observability.Metrics) *OpenMeteoEngine {
	if httpCfg.Backoff == (BackoffConfig{}) {
		httpCfg.Backoff = defaultBackoff()
	}
	return &OpenMeteoEngine{
		name:    "openmeteo",
		baseURL: "https://archive-api.open-meteo.com/v1/archive",
		httpCfg: httpCfg,
		circuit: newBreaker("openmeteo"),
		metrics: metrics,
	}
}

func (e *OpenMeteoEngine) Name() string { return e.name }

func (e *OpenMeteoEngine) Datasets(string) []string { return []string{"Open-Meteo ERA5 archive"} }

type openMeteoPayload struct {
	Daily struct {
		Time     []string   `json:"time"`
		TempMax  []*float64 `json:"temperature_2m_max"`
		TempMin  []*float64 `json:"temperature_2m_min"`
		WindMax  []*float64 `json:"wind_speed_10m_max"`
		GustMax  []*float64 `json:"wind_gusts_10m_max"`
		Precip   []*float64 `json:"precipitation_sum"`
		HumidMax []*float64 `json:"relative_humidity_2m_max"`
	} `json:"daily"`
}

func (e *OpenMeteoEngine) AssembleSeries(ctx context.Context, req weather.SeriesRequest) ([]weather.DailyRecord, error) {
	span := req.Window.Span()
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%.4f", req.Location.Lat))
		values.Set("longitude", fmt.Sprintf("%.4f", req.Location.Lon))
		values.Set("start_date", span.Start.String())
		values.Set("end_date", span.End.String())
		for _, d := range openMeteoDaily {
			values.Add("daily", d)
		}
		values.Set("timezone", "UTC")

		return http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", e.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, e.name, e.httpCfg, e.circuit, buildRequest)
	if e.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		e.metrics.UpstreamCalls.WithLabelValues(e.name, outcome).Inc()
	}
	if err != nil {
		return nil, upstreamErr(e.name, err)
	}
	defer resp.Body.Close()

	var payload openMeteoPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", weather.ErrUpstream, eris.Wrap(err, "decode open-meteo response"))
	}

	d := payload.Daily
	at := func(vals []*float64, i int) weather.Value {
		if i >= len(vals) {
			return weather.None
		}
		return weather.Ptr(vals[i]).Round(2)
	}

	records := make([]weather.DailyRecord, 0, len(d.Time))
	for i, ts := range d.Time {
		t, err := time.Parse(time.DateOnly, ts)
		if err != nil {
			continue
		}
		rec := weather.DailyRecord{
			Date:         weather.DateOf(t),
			TempMax:      at(d.TempMax, i),
			TempMin:      at(d.TempMin, i),
			WindSpeedMax: at(d.WindMax, i),
			WindGustP95:  at(d.GustMax, i),
			PrecipDaily:  at(d.Precip, i),
			RHMax:        at(d.HumidMax, i),
		}
		records = append(records, rec.WithDerived(rec.WindSpeedMax))
	}
	sortByDate(records)
	return weather.DailyFromWindow(req.Window, records), nil
}
