package weather

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SeriesRequest is what an Engine needs to build a sample.
type SeriesRequest struct {
	Location Location
	Window   WindowSpec
	// NeedsPrecip is false when the active condition never reads
	// precipitation, letting remote engines skip that dataset.
	NeedsPrecip bool
}

// Engine abstracts a historical data source (synthetic, NASA Earthdata,
// Meteomatics, Open-Meteo archive).
type Engine interface {
	Name() string
	// Datasets names the datasets used for a condition, for display.
	Datasets(condition string) []string
	// AssembleSeries returns one record per day of every window, oldest
	// first. Windows are not merged across years.
	AssembleSeries(ctx context.Context, req SeriesRequest) ([]DailyRecord, error)
}

// Series is the output of an assembly.
type Series struct {
	Window  WindowSpec
	Records []DailyRecord
}

// Assembler turns a target day into a multi-year sample using one engine.
type Assembler struct {
	engine Engine
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewAssembler creates an Assembler. A nil clock uses real time.
func NewAssembler(engine Engine, clock clockwork.Clock, logger *zap.Logger) *Assembler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{engine: engine, clock: clock, logger: logger}
}

// Engine returns the underlying engine.
func (a *Assembler) Engine() Engine { return a.engine }

// Assemble samples the last `years` complete years, ±radius days around the
// target. Engine errors are returned unchanged.
func (a *Assembler) Assemble(ctx context.Context, loc Location, target TargetDay, years, radius int, needsPrecip bool) (Series, error) {
	if years < 1 {
		return Series{}, fmt.Errorf("years must be at least 1, got %d", years)
	}
	if radius < 0 {
		return Series{}, fmt.Errorf("window radius must not be negative, got %d", radius)
	}

	spec := WindowSpec{
		Target: target,
		Years:  LastCompleteYears(a.clock.Now(), years),
		Radius: radius,
	}

	start := a.clock.Now()
	records, err := a.engine.AssembleSeries(ctx, SeriesRequest{
		Location:    loc,
		Window:      spec,
		NeedsPrecip: needsPrecip,
	})
	if err != nil {
		return Series{}, err
	}

	a.logger.Debug("series assembled",
		zap.String("engine", a.engine.Name()),
		zap.String("years", spec.Years.String()),
		zap.Int("records", len(records)),
		zap.Int("expected", spec.ExpectedDays()),
		zap.Duration("elapsed", a.clock.Since(start)),
	)
	return Series{Window: spec, Records: records}, nil
}

// DailyFromWindow keeps only records inside the spec's windows, preserving
// order. Used by engines that fetch one continuous range.
func DailyFromWindow(spec WindowSpec, records []DailyRecord) []DailyRecord {
	out := make([]DailyRecord, 0, spec.ExpectedDays())
	for _, r := range records {
		if spec.InWindow(r.Date) {
			out = append(out, r)
		}
	}
	return out
}
