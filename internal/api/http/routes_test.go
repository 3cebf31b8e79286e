package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-odds/internal/config"
	"github.com/i474232898/weather-odds/internal/store"
	"github.com/i474232898/weather-odds/internal/weather"
	"github.com/i474232898/weather-odds/internal/weather/engines"
)

type stubGeocoder struct {
	loc weather.Location
	err error
}

func (g stubGeocoder) Locate(context.Context, string, string) (weather.Location, error) {
	return g.loc, g.err
}

type brokenEngine struct{}

func (brokenEngine) Name() string             { return "broken" }
func (brokenEngine) Datasets(string) []string { return nil }
func (brokenEngine) AssembleSeries(context.Context, weather.SeriesRequest) ([]weather.DailyRecord, error) {
	return nil, weather.NewUpstreamError("test", http.StatusInternalServerError, nil)
}

func newTestApp(t *testing.T, engine weather.Engine, geo Geocoder) *fiber.App {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC))
	conditions, err := config.LoadConditions("")
	require.NoError(t, err)

	svc := weather.NewService(
		weather.NewAssembler(engine, clock, nil),
		conditions,
		store.NewMemoryStore(10, time.Hour, clock),
		clock, nil, nil,
	)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{
		Service:    svc,
		Conditions: conditions,
		Geocoder:   geo,
		Metrics:    promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Clock:      clock,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, target string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m), string(raw))
	return m
}

func hotQuery() map[string]any {
	return map[string]any{
		"location":   map[string]any{"lat": 40.7128, "lon": -74.006},
		"target_day": "07-15",
		"condition":  "hot",
	}
}

func TestValidator_TargetDay(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Var("07-15", "targetday"))
	assert.NoError(t, v.Var("2024-02-29", "targetday"))
	assert.Error(t, v.Var("02-30", "targetday"))
	assert.Error(t, v.Var("13-45", "targetday"))
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	code, body := do(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	m := decode(t, body)
	assert.Equal(t, "ok", m["status"])
	assert.Equal(t, "synthetic", m["engine"])
	assert.Equal(t, "2026-10-15T12:00:00Z", m["time_utc"])

	code, _ = do(t, app, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestConditions(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	code, body := do(t, app, http.MethodGet, "/api/v1/conditions", nil)
	require.Equal(t, http.StatusOK, code)
	m := decode(t, body)
	assert.EqualValues(t, 15, m["window_days"])
	conds, ok := m["conditions"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, conds, 5)
}

func TestQuery_OK(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	code, body := do(t, app, http.MethodPost, "/api/v1/query", hotQuery())
	require.Equal(t, http.StatusOK, code, string(body))
	m := decode(t, body)

	assert.Equal(t, "ok", m["status"])
	assert.Regexp(t, `^q_[0-9a-f]{10}$`, m["query_id"])
	assert.Equal(t, "07-15", m["target_day"])
	assert.EqualValues(t, 15, m["window_days"])
	assert.Equal(t, "ANY", m["logic"])
	assert.NotContains(t, m, "timeseries")

	sample := m["sample"].(map[string]any)
	assert.EqualValues(t, 620, sample["n_days"])
	assert.EqualValues(t, 100, sample["coverage_pct"])

	years := m["years"].(map[string]any)
	assert.Equal(t, "2006-2025", years["range"])

	p := m["probability_pct"].(float64)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 100.0)
}

func TestQuery_ThresholdOverrides(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	q := hotQuery()
	q["thresholds"] = map[string]any{"T_min": 100, "HI_min": nil}
	q["window_days"] = 3
	q["lastN_years"] = 10
	q["include_timeseries"] = true

	code, body := do(t, app, http.MethodPost, "/api/v1/query", q)
	require.Equal(t, http.StatusOK, code, string(body))
	m := decode(t, body)

	// 10 years x 7 days is below the configured floor of 300.
	assert.Equal(t, "insufficient_sample", m["status"])
	assert.EqualValues(t, 70, m["sample"].(map[string]any)["n_days"])
	assert.NotContains(t, m, "probability_pct")
}

func TestQuery_Timeseries(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	q := hotQuery()
	q["thresholds"] = map[string]any{"T_min": 100, "HI_min": nil}
	q["include_timeseries"] = true

	code, body := do(t, app, http.MethodPost, "/api/v1/query", q)
	require.Equal(t, http.StatusOK, code, string(body))
	m := decode(t, body)

	assert.EqualValues(t, 0, m["probability_pct"])
	thr := m["thresholds_resolved"].(map[string]any)
	assert.EqualValues(t, 100, thr["T_min"])
	assert.Nil(t, thr["HI_min"])

	ts, ok := m["timeseries"].([]any)
	require.True(t, ok)
	assert.Len(t, ts, 620)
	first := ts[0].(map[string]any)
	assert.Equal(t, "2006-06-30", first["date"])
	assert.Equal(t, false, first["exceed"])
}

func TestQuery_ResponseFields(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	q := hotQuery()
	q["response_fields"] = []string{"probability_pct", "sample"}

	code, body := do(t, app, http.MethodPost, "/api/v1/query", q)
	require.Equal(t, http.StatusOK, code, string(body))
	m := decode(t, body)

	assert.Len(t, m, 4)
	for _, k := range []string{"query_id", "condition", "probability_pct", "sample"} {
		assert.Contains(t, m, k)
	}
}

func TestQuery_Validation(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	cases := map[string]func(q map[string]any){
		"bad target day":    func(q map[string]any) { q["target_day"] = "13-45" },
		"missing target":    func(q map[string]any) { delete(q, "target_day") },
		"unknown condition": func(q map[string]any) { q["condition"] = "foggy" },
		"bad logic":         func(q map[string]any) { q["logic"] = "SOME" },
		"window too wide":   func(q map[string]any) { q["window_days"] = 61 },
		"bad latitude":      func(q map[string]any) { q["location"] = map[string]any{"lat": 123.0, "lon": 0.0} },
		"no location":       func(q map[string]any) { q["location"] = map[string]any{} },
		"city no geocoder":  func(q map[string]any) { q["location"] = map[string]any{"city": "Paris", "country": "FR"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			q := hotQuery()
			mutate(q)
			code, body := do(t, app, http.MethodPost, "/api/v1/query", q)
			assert.Equal(t, http.StatusBadRequest, code)
			m := decode(t, body)
			assert.Equal(t, true, m["error"])
			assert.NotEmpty(t, m["message"])
		})
	}
}

func TestQuery_Geocoder(t *testing.T) {
	geo := stubGeocoder{loc: weather.Location{Lat: 48.8566, Lon: 2.3522}}
	app := newTestApp(t, engines.NewSyntheticEngine(1234), geo)

	q := hotQuery()
	q["location"] = map[string]any{"city": "Paris", "country": "FR"}
	code, body := do(t, app, http.MethodPost, "/api/v1/query", q)
	require.Equal(t, http.StatusOK, code, string(body))
	loc := decode(t, body)["location"].(map[string]any)
	assert.InDelta(t, 48.8566, loc["lat"], 1e-9)

	app = newTestApp(t, engines.NewSyntheticEngine(1234), stubGeocoder{err: errors.New("ZERO_RESULTS")})
	code, _ = do(t, app, http.MethodPost, "/api/v1/query", q)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestQuery_EngineFailure(t *testing.T) {
	app := newTestApp(t, brokenEngine{}, nil)

	code, body := do(t, app, http.MethodPost, "/api/v1/query", hotQuery())
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, decode(t, body)["message"], "data engine error")
}

func TestDownload(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	code, body := do(t, app, http.MethodPost, "/api/v1/query", hotQuery())
	require.Equal(t, http.StatusOK, code, string(body))
	id := decode(t, body)["query_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download?query_id="+id, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "attachment; filename="+id+".csv", resp.Header.Get(fiber.HeaderContentDisposition))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4+1+620)
	assert.Equal(t, "# query_id: "+id, lines[0])
	assert.Equal(t, "# condition: hot", lines[1])
	assert.Equal(t, "# location: 40.7128,-74.006", lines[2])
	assert.True(t, strings.HasPrefix(lines[4], "date,t2m_max,hi_max,t2m_min"), lines[4])
	assert.True(t, strings.HasPrefix(lines[5], "2006-06-30,"), lines[5])

	code, body = do(t, app, http.MethodGet, "/api/v1/download?format=json&fields=result&query_id="+id, nil)
	require.Equal(t, http.StatusOK, code)
	m := decode(t, body)
	assert.Equal(t, id, m["query_id"])
	assert.NotContains(t, m, "timeseries")

	code, body = do(t, app, http.MethodGet, "/api/v1/download?format=json&fields=timeseries&query_id="+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode(t, body)["timeseries"], 620)
}

func TestDownload_Errors(t *testing.T) {
	app := newTestApp(t, engines.NewSyntheticEngine(1234), nil)

	code, _ := do(t, app, http.MethodGet, "/api/v1/download?query_id=q_0000000000", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, app, http.MethodGet, "/api/v1/download", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodGet, "/api/v1/download?query_id=q_1&format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
