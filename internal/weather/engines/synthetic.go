package engines

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/i474232898/weather-odds/internal/weather"
)

// DefaultSyntheticSeed seeds the synthetic engine when no seed is configured.
const DefaultSyntheticSeed = 1234

// SyntheticEngine generates reproducible sinusoid-plus-noise weather. Each
// year is seeded from (seed, year), so the same window always yields the same
// records.
type SyntheticEngine struct {
	seed uint64
}

func NewSyntheticEngine(seed uint64) *SyntheticEngine {
	return &SyntheticEngine{seed: seed}
}

func (e *SyntheticEngine) Name() string { return "synthetic" }

func (e *SyntheticEngine) Datasets(string) []string { return []string{"Synthetic dataset"} }

// AssembleSeries never fails.
func (e *SyntheticEngine) AssembleSeries(_ context.Context, req weather.SeriesRequest) ([]weather.DailyRecord, error) {
	records := make([]weather.DailyRecord, 0, req.Window.ExpectedDays())
	for i, window := range req.Window.Windows() {
		year := req.Window.Years.Start + i
		days := window.Days()
		for offset, rec := range e.generate(year, len(days)) {
			rec.Date = days[offset]
			records = append(records, rec)
		}
	}
	return records, nil
}

func (e *SyntheticEngine) generate(year, n int) []weather.DailyRecord {
	rng := rand.New(rand.NewPCG(e.seed, uint64(year)))
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	baseT := 28 + uniform(-3, 3)
	baseP := 8 + uniform(-4, 4)
	baseW := 22 + uniform(-8, 8)

	out := make([]weather.DailyRecord, 0, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		tmax := baseT + 6*math.Sin(x/15.0) + uniform(-2, 2)
		tmin := tmax - (5 + uniform(0, 2))
		rh := math.Min(100, math.Max(20, 65+uniform(-25, 25)))
		wspd := baseW + 8*math.Sin(x/9.0) + uniform(-5, 5)
		gust := math.Max(wspd, wspd+uniform(5, 15))
		precip := math.Max(0, baseP+12*math.Max(0, math.Sin(x/7.0))+uniform(-5, 5))
		rate := math.Max(0, precip/6+uniform(0, 3))

		rec := weather.DailyRecord{
			TempMax:       weather.Some(tmax).Round(1),
			TempMin:       weather.Some(tmin).Round(1),
			WindSpeedMax:  weather.Some(wspd).Round(1),
			WindGustP95:   weather.Some(gust).Round(1),
			PrecipDaily:   weather.Some(precip).Round(1),
			PrecipRateMax: weather.Some(rate).Round(1),
			RHMax:         weather.Some(rh).Round(1),
		}
		derived := rec.WithDerived(weather.Some(math.Max(0, wspd)))
		rec.HeatIndexMax = derived.HeatIndexMax.Round(1)
		rec.DewPointMax = derived.DewPointMax.Round(1)
		rec.WindChillMin = derived.WindChillMin.Round(1)
		out = append(out, rec)
	}
	return out
}
