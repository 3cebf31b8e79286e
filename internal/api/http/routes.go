package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jonboulle/clockwork"
	"github.com/jszwec/csvutil"
	"go.uber.org/zap"

	"github.com/i474232898/weather-odds/internal/config"
	"github.com/i474232898/weather-odds/internal/store"
	"github.com/i474232898/weather-odds/internal/weather"
)

const apiVersion = "v1"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("targetday", func(fl validator.FieldLevel) bool {
		_, err := weather.ParseTargetDay(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register targetday validation: %v", err))
	}
	return v
}

// Geocoder resolves a city to coordinates.
type Geocoder interface {
	Locate(ctx context.Context, city, country string) (weather.Location, error)
}

// Deps are the collaborators of the HTTP handlers. Geocoder and Metrics are
// optional.
type Deps struct {
	Service    *weather.Service
	Conditions *config.ConditionSet
	Geocoder   Geocoder
	Metrics    http.Handler
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

type handler struct {
	Deps
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{Deps: deps}

	app.Get("/health", h.health)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	v1 := app.Group("/api/" + apiVersion)
	v1.Get("/conditions", h.conditions)
	v1.Post("/query", h.query)
	v1.Get("/download", h.download)
}

// ErrorHandler renders errors as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, weather.ErrInvalidTargetDay), errors.Is(err, weather.ErrUnknownCondition):
		return fiber.StatusBadRequest
	case errors.Is(err, weather.ErrNoEvaluableData):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case weather.IsEngineError(err):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"engine":   h.Service.EngineName(),
		"version":  apiVersion,
		"time_utc": h.Clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) conditions(c *fiber.Ctx) error {
	if h.Conditions == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "conditions not loaded")
	}
	return c.JSON(h.Conditions)
}

type locationRequest struct {
	Lat     *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon     *float64 `json:"lon" validate:"omitempty,longitude"`
	City    string   `json:"city"`
	Country string   `json:"country"`
}

type queryRequest struct {
	Location          locationRequest     `json:"location"`
	TargetDay         string              `json:"target_day" validate:"required,targetday"`
	Condition         string              `json:"condition" validate:"required,oneof=hot cold windy wet muggy"`
	Logic             string              `json:"logic" validate:"omitempty,oneof=ANY ALL"`
	Units             string              `json:"units" validate:"omitempty,oneof=SI Imperial"`
	Thresholds        map[string]*float64 `json:"thresholds"`
	WindowDays        *int                `json:"window_days" validate:"omitempty,min=0,max=60"`
	YearsMode         string              `json:"years_mode" validate:"omitempty,oneof=lastN all"`
	LastNYears        int                 `json:"lastN_years" validate:"omitempty,min=1,max=80"`
	IncludeTimeseries bool                `json:"include_timeseries"`
	ResponseFields    []string            `json:"response_fields"`
}

func (h *handler) resolveLocation(ctx context.Context, l locationRequest) (weather.Location, error) {
	if l.Lat != nil && l.Lon != nil {
		return weather.Location{Lat: *l.Lat, Lon: *l.Lon}, nil
	}
	if l.City == "" {
		return weather.Location{}, fiber.NewError(fiber.StatusBadRequest, "location requires lat and lon, or city")
	}
	if h.Geocoder == nil {
		return weather.Location{}, fiber.NewError(fiber.StatusBadRequest, "city lookup is not configured; send lat and lon")
	}
	loc, err := h.Geocoder.Locate(ctx, l.City, l.Country)
	if err != nil {
		h.Logger.Warn("geocoding failed", zap.String("city", l.City), zap.Error(err))
		return weather.Location{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("could not locate %q", l.City))
	}
	return loc, nil
}

func (h *handler) query(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	loc, err := h.resolveLocation(ctx, req.Location)
	if err != nil {
		return err
	}

	overrides := make(map[string]weather.Value, len(req.Thresholds))
	for k, v := range req.Thresholds {
		overrides[k] = weather.Ptr(v)
	}

	res, err := h.Service.Evaluate(ctx, weather.Query{
		Condition:  req.Condition,
		Location:   loc,
		TargetDay:  req.TargetDay,
		Logic:      req.Logic,
		Thresholds: overrides,
		WindowDays: req.WindowDays,
		YearsMode:  req.YearsMode,
		Years:      req.LastNYears,
		Units:      req.Units,
	})
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	if res.Insufficient() {
		return c.JSON(res)
	}

	out := *res
	if !req.IncludeTimeseries {
		out.Timeseries = nil
	}
	if len(req.ResponseFields) == 0 {
		return c.JSON(out)
	}
	projected, err := project(out, req.ResponseFields)
	if err != nil {
		return err
	}
	return c.JSON(projected)
}

// project keeps only the requested top-level fields, plus query_id and
// condition.
func project(res weather.Result, fields []string) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	keep := map[string]bool{"query_id": true, "condition": true}
	for _, f := range fields {
		keep[f] = true
	}
	out := make(map[string]json.RawMessage, len(keep))
	for k, v := range all {
		if keep[k] {
			out[k] = v
		}
	}
	return out, nil
}

type downloadQuery struct {
	QueryID string `validate:"required"`
	Format  string `validate:"oneof=csv json"`
	Fields  string `validate:"oneof=all result timeseries"`
}

func (h *handler) download(c *fiber.Ctx) error {
	q := downloadQuery{
		QueryID: c.Query("query_id"),
		Format:  c.Query("format", "csv"),
		Fields:  c.Query("fields", "all"),
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.Service.Result(c.UserContext(), q.QueryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "query_id not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	if q.Format == "json" {
		switch q.Fields {
		case "result":
			out := *res
			out.Timeseries = nil
			return c.JSON(out)
		case "timeseries":
			if res.Timeseries == nil {
				return fiber.NewError(fiber.StatusBadRequest, "timeseries not available for this query")
			}
			return c.JSON(fiber.Map{"query_id": res.QueryID, "timeseries": res.Timeseries})
		default:
			return c.JSON(res)
		}
	}

	if res.Timeseries == nil {
		return fiber.NewError(fiber.StatusBadRequest, "timeseries not available for CSV download")
	}
	body, err := timeseriesCSV(res)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s.csv", res.QueryID))
	return c.Send(body)
}

// timeseriesCSV writes "# key: value" meta lines followed by the records.
func timeseriesCSV(res *weather.Result) ([]byte, error) {
	var buf bytes.Buffer
	location := ""
	if res.Location != nil {
		location = fmt.Sprintf("%g,%g", res.Location.Lat, res.Location.Lon)
	}
	for _, kv := range [][2]string{
		{"query_id", res.QueryID},
		{"condition", res.Condition},
		{"location", location},
		{"generated_at", res.GeneratedAt},
	} {
		fmt.Fprintf(&buf, "# %s: %s\n", kv[0], kv[1])
	}

	rows, err := csvutil.Marshal(res.Timeseries)
	if err != nil {
		return nil, fmt.Errorf("encode timeseries: %w", err)
	}
	buf.Write(rows)
	return buf.Bytes(), nil
}
