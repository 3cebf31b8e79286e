package weather

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Value is a measurement that may be absent. The zero Value is absent, which
// is distinct from a measured zero.
type Value struct {
	v  float64
	ok bool
}

// Some returns a present Value. NaN and infinities are treated as absent.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, ok: true}
}

// None is the absent Value.
var None = Value{}

// Ptr converts a nullable float into a Value.
func Ptr(p *float64) Value {
	if p == nil {
		return None
	}
	return Some(*p)
}

// Get returns the number and whether it is present.
func (x Value) Get() (float64, bool) { return x.v, x.ok }

// Valid reports whether the value is present.
func (x Value) Valid() bool { return x.ok }

// Round returns the value rounded to the given number of decimals.
func (x Value) Round(decimals int) Value {
	if !x.ok {
		return x
	}
	return Some(round(x.v, decimals))
}

func (x Value) MarshalJSON() ([]byte, error) {
	if !x.ok {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

func (x *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*x = None
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*x = Some(f)
	return nil
}

// MarshalText renders absent values as an empty cell for CSV export.
func (x Value) MarshalText() ([]byte, error) {
	if !x.ok {
		return []byte{}, nil
	}
	return []byte(strconv.FormatFloat(x.v, 'f', -1, 64)), nil
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Metric names a daily field.
type Metric string

const (
	MetricTempMax      Metric = "t2m_max"
	MetricTempMin      Metric = "t2m_min"
	MetricWindMax      Metric = "wind_speed_max"
	MetricGustP95      Metric = "wind_gust_p95"
	MetricPrecipDaily  Metric = "precip_daily"
	MetricPrecipRate   Metric = "precip_rate_max"
	MetricRHMax        Metric = "rh_max"
	MetricHeatIndexMax Metric = "hi_max"
	MetricWindChillMin Metric = "wc_min"
	MetricDewPointMax  Metric = "dewpoint_max"
)

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its UTC calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the UTC calendar day containing t.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) String() string { return d.Format(time.DateOnly) }

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date { return Date{d.Time.AddDate(0, 0, n)} }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	*d = Date{t}
	return nil
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// DailyRecord is one day of observations at a point. Engines produce it and
// nothing downstream modifies it.
type DailyRecord struct {
	Date          Date  `json:"date" csv:"date"`
	TempMax       Value `json:"t2m_max" csv:"t2m_max"`
	HeatIndexMax  Value `json:"hi_max" csv:"hi_max"`
	TempMin       Value `json:"t2m_min" csv:"t2m_min"`
	WindChillMin  Value `json:"wc_min" csv:"wc_min"`
	WindSpeedMax  Value `json:"wind_speed_max" csv:"wind_speed_max"`
	WindGustP95   Value `json:"wind_gust_p95" csv:"wind_gust_p95"`
	PrecipDaily   Value `json:"precip_daily" csv:"precip_daily"`
	PrecipRateMax Value `json:"precip_rate_max" csv:"precip_rate_max"`
	RHMax         Value `json:"rh_max" csv:"-"`
	DewPointMax   Value `json:"dewpoint_max" csv:"-"`
}

// Get returns the named field, or None for an unknown metric.
func (r DailyRecord) Get(m Metric) Value {
	switch m {
	case MetricTempMax:
		return r.TempMax
	case MetricTempMin:
		return r.TempMin
	case MetricWindMax:
		return r.WindSpeedMax
	case MetricGustP95:
		return r.WindGustP95
	case MetricPrecipDaily:
		return r.PrecipDaily
	case MetricPrecipRate:
		return r.PrecipRateMax
	case MetricRHMax:
		return r.RHMax
	case MetricHeatIndexMax:
		return r.HeatIndexMax
	case MetricWindChillMin:
		return r.WindChillMin
	case MetricDewPointMax:
		return r.DewPointMax
	default:
		return None
	}
}

// WithDerived fills heat index, dew point and wind chill from the measured
// fields. windKmh is the wind used for wind chill.
func (r DailyRecord) WithDerived(windKmh Value) DailyRecord {
	r.HeatIndexMax = HeatIndex(r.TempMax, r.RHMax)
	r.DewPointMax = DewPoint(r.TempMax, r.RHMax)
	r.WindChillMin = WindChill(r.TempMin, windKmh)
	return r
}

// EvaluatedRecord pairs a record with its tri-state exceedance flag.
// Exceed is nil when the record could not be evaluated.
type EvaluatedRecord struct {
	DailyRecord
	Exceed *bool `json:"exceed" csv:"exceed,omitempty"`
}

// Location is a point on the globe.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
