package weather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/weather-odds/internal/observability"
)

// ConditionDefaults are the configured defaults for one condition.
type ConditionDefaults struct {
	Thresholds    Thresholds
	Logic         Logic
	MinSampleSize int
	WindowDays    int
	Years         int
}

// Settings resolves condition defaults. The conditions document implements it.
type Settings interface {
	Condition(name string) (ConditionDefaults, bool)
}

// Store persists query results for later export. Save must not overwrite an
// existing id.
type Store interface {
	Save(ctx context.Context, result *Result) error
	Get(ctx context.Context, queryID string) (*Result, error)
}

const (
	YearsModeLastN = "lastN"
	YearsModeAll   = "all"

	StatusOK                 = "ok"
	StatusInsufficientSample = "insufficient_sample"
)

// Query is one probability request.
type Query struct {
	Condition  string
	Location   Location
	TargetDay  string
	Logic      string
	Thresholds map[string]Value
	// WindowDays overrides the configured radius when non-nil.
	WindowDays *int
	YearsMode  string
	Years      int
	Units      string
}

// YearsInfo describes the sampled years.
type YearsInfo struct {
	Mode   string `json:"mode"`
	Range  string `json:"range,omitempty"`
	NYears int    `json:"n_years,omitempty"`
}

// SampleInfo describes the sample size.
type SampleInfo struct {
	NDays       int      `json:"n_days"`
	CoveragePct *float64 `json:"coverage_pct,omitempty"`
}

// Result is the outcome of a query. When Status is insufficient_sample only
// Status, Message and Sample are set.
type Result struct {
	Status             string            `json:"status"`
	Message            string            `json:"message,omitempty"`
	QueryID            string            `json:"query_id,omitempty"`
	Condition          string            `json:"condition,omitempty"`
	Logic              Logic             `json:"logic,omitempty"`
	Location           *Location         `json:"location,omitempty"`
	TargetDay          string            `json:"target_day,omitempty"`
	WindowDays         int               `json:"window_days,omitempty"`
	Years              *YearsInfo        `json:"years,omitempty"`
	ThresholdsResolved Thresholds        `json:"thresholds_resolved,omitempty"`
	ProbabilityPct     *float64          `json:"probability_pct,omitempty"`
	ExceedCount        int               `json:"exceed_count,omitempty"`
	Stats              *StatsSummary     `json:"stats"`
	Sample             SampleInfo        `json:"sample"`
	DatasetUsed        []string          `json:"dataset_used,omitempty"`
	Notes              []string          `json:"notes,omitempty"`
	Units              map[string]string `json:"units,omitempty"`
	GeneratedAt        string            `json:"generated_at,omitempty"`
	Timeseries         []EvaluatedRecord `json:"timeseries,omitempty"`
}

// Insufficient reports whether the result is the not-enough-history variant.
func (r *Result) Insufficient() bool { return r.Status == StatusInsufficientSample }

// Service runs the assemble → evaluate → summarize pipeline.
type Service struct {
	assembler *Assembler
	settings  Settings
	store     Store
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewService creates a new Service. store may be nil when results need not
// be retained.
func NewService(assembler *Assembler, settings Settings, store Store, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		assembler: assembler,
		settings:  settings,
		store:     store,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// EngineName returns the active engine's name.
func (s *Service) EngineName() string { return s.assembler.Engine().Name() }

// Evaluate answers a query. Engine failures are returned unchanged; a sample
// below the configured floor is a successful insufficient_sample Result.
func (s *Service) Evaluate(ctx context.Context, q Query) (*Result, error) {
	res, err := s.evaluate(ctx, q)
	s.observe(q.Condition, res, err)
	return res, err
}

func (s *Service) evaluate(ctx context.Context, q Query) (*Result, error) {
	defaults, ok := s.settings.Condition(q.Condition)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, q.Condition)
	}
	target, err := ParseTargetDay(q.TargetDay)
	if err != nil {
		return nil, err
	}

	thresholds := defaults.Thresholds.Overlay(q.Thresholds)
	logic := defaults.Logic
	if q.Logic != "" {
		if logic, err = ParseLogic(q.Logic); err != nil {
			return nil, err
		}
	}
	evaluator, err := NewEvaluator(q.Condition, thresholds, logic)
	if err != nil {
		return nil, err
	}

	radius := defaults.WindowDays
	if q.WindowDays != nil {
		radius = *q.WindowDays
	}
	mode := q.YearsMode
	if mode == "" {
		mode = YearsModeLastN
	}
	years := defaults.Years
	if mode == YearsModeLastN && q.Years > 0 {
		years = q.Years
	}

	series, err := s.assembler.Assemble(ctx, q.Location, target, years, radius, NeedsPrecip(q.Condition))
	if err != nil {
		s.logger.Warn("data engine failed",
			zap.String("engine", s.EngineName()),
			zap.String("condition", q.Condition),
			zap.Error(err),
		)
		return nil, fmt.Errorf("data engine error: %w", err)
	}

	ev := evaluator.Apply(series.Records)
	if ev.EvaluableDays == 0 {
		return nil, ErrNoEvaluableData
	}
	if ev.EvaluableDays < defaults.MinSampleSize {
		return &Result{
			Status:  StatusInsufficientSample,
			Message: "Not enough historical data to compute probability",
			Sample:  SampleInfo{NDays: ev.EvaluableDays},
		}, nil
	}

	probability := Probability(ev.ExceedCount, ev.EvaluableDays)
	coverage := Coverage(ev.EvaluableDays, years, radius)
	loc := q.Location
	res := &Result{
		Status:             StatusOK,
		QueryID:            NewQueryID(),
		Condition:          q.Condition,
		Logic:              logic,
		Location:           &loc,
		TargetDay:          target.String(),
		WindowDays:         radius,
		Years:              yearsInfo(mode, series.Window.Years),
		ThresholdsResolved: thresholds,
		ProbabilityPct:     &probability,
		ExceedCount:        ev.ExceedCount,
		Stats:              Summarize(ev.Values),
		Sample:             SampleInfo{NDays: ev.EvaluableDays, CoveragePct: &coverage},
		DatasetUsed:        s.assembler.Engine().Datasets(q.Condition),
		Notes: []string{
			"engine=" + s.EngineName(),
			fmt.Sprintf("window+/-%d", radius),
			fmt.Sprintf("%d years", years),
		},
		Units:       Units(q.Units),
		GeneratedAt: s.clock.Now().UTC().Format(time.RFC3339),
		Timeseries:  ev.Records,
	}

	if s.store != nil {
		if err := s.store.Save(ctx, res); err != nil {
			return nil, fmt.Errorf("store result %s: %w", res.QueryID, err)
		}
	}
	return res, nil
}

func (s *Service) observe(condition string, res *Result, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil && IsEngineError(err):
		outcome = "engine_error"
	case err != nil:
		outcome = "error"
	case res.Insufficient():
		outcome = StatusInsufficientSample
	}
	s.metrics.Queries.WithLabelValues(condition, outcome).Inc()
	if res != nil {
		s.metrics.EvaluableDays.Observe(float64(res.Sample.NDays))
	}
}

// Result fetches a stored result.
func (s *Service) Result(ctx context.Context, queryID string) (*Result, error) {
	if s.store == nil {
		return nil, fmt.Errorf("result store not configured")
	}
	return s.store.Get(ctx, queryID)
}

func yearsInfo(mode string, span YearSpan) *YearsInfo {
	if mode == YearsModeLastN {
		return &YearsInfo{Mode: mode, Range: span.String(), NYears: span.Count()}
	}
	return &YearsInfo{Mode: mode}
}

// NewQueryID returns q_ followed by ten hex characters.
func NewQueryID() string {
	return "q_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Units returns display labels for SI or Imperial.
func Units(system string) map[string]string {
	if strings.EqualFold(system, "Imperial") {
		return map[string]string{"temp": "degF", "precip": "in", "wind": "mph", "prob": "%"}
	}
	return map[string]string{"temp": "degC", "precip": "mm", "wind": "km/h", "prob": "%"}
}
