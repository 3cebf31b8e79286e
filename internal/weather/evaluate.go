package weather

import (
	"fmt"
	"slices"
	"strings"
)

// Logic combines the individual threshold checks of a record.
type Logic string

const (
	LogicAny Logic = "ANY"
	LogicAll Logic = "ALL"
)

// ParseLogic accepts ANY or ALL, case-insensitively.
func ParseLogic(s string) (Logic, error) {
	switch Logic(strings.ToUpper(strings.TrimSpace(s))) {
	case LogicAny:
		return LogicAny, nil
	case LogicAll:
		return LogicAll, nil
	default:
		return "", fmt.Errorf("invalid logic %q: want ANY or ALL", s)
	}
}

// Thresholds maps a threshold key (T_min, HI_min, ...) to its limit. An
// absent Value disables that check.
type Thresholds map[string]Value

// Overlay returns a copy of t with overrides applied. Keys that t does not
// define are ignored.
func (t Thresholds) Overlay(overrides map[string]Value) Thresholds {
	out := make(Thresholds, len(t))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		if _, ok := out[k]; ok {
			out[k] = v
		}
	}
	return out
}

// check compares one record field with one threshold. upper marks
// cold-style limits where the field must be at or below the threshold.
type check struct {
	metric Metric
	key    string
	upper  bool
}

var conditionChecks = map[string][]check{
	"hot": {
		{metric: MetricTempMax, key: "T_min"},
		{metric: MetricHeatIndexMax, key: "HI_min"},
	},
	"cold": {
		{metric: MetricTempMin, key: "T_max", upper: true},
		{metric: MetricWindChillMin, key: "WC_max", upper: true},
	},
	"windy": {
		{metric: MetricWindMax, key: "V_min"},
		{metric: MetricGustP95, key: "gust_min"},
	},
	"wet": {
		{metric: MetricPrecipDaily, key: "P_daily"},
		{metric: MetricPrecipRate, key: "P_rate"},
	},
	"muggy": {
		{metric: MetricHeatIndexMax, key: "HI_min"},
		{metric: MetricDewPointMax, key: "Td_min"},
	},
}

// Conditions lists the conditions the evaluator understands.
func Conditions() []string {
	out := make([]string, 0, len(conditionChecks))
	for k := range conditionChecks {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ConditionMetrics returns the fields a condition reads.
func ConditionMetrics(condition string) []Metric {
	checks := conditionChecks[condition]
	out := make([]Metric, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.metric)
	}
	return out
}

// NeedsPrecip reports whether the condition reads precipitation fields.
func NeedsPrecip(condition string) bool {
	return slices.ContainsFunc(conditionChecks[condition], func(c check) bool {
		return c.metric == MetricPrecipDaily || c.metric == MetricPrecipRate
	})
}

// Outcome is the classification of one record.
type Outcome struct {
	Exceed     bool
	Considered bool
}

// Evaluator classifies records for one condition. It holds no state between
// records.
type Evaluator struct {
	condition  string
	checks     []check
	thresholds Thresholds
	logic      Logic
}

// NewEvaluator fails with ErrUnknownCondition for a condition it has no
// field mapping for.
func NewEvaluator(condition string, thresholds Thresholds, logic Logic) (*Evaluator, error) {
	checks, ok := conditionChecks[condition]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, condition)
	}
	if logic != LogicAll {
		logic = LogicAny
	}
	return &Evaluator{condition: condition, checks: checks, thresholds: thresholds, logic: logic}, nil
}

// Evaluate applies every check whose threshold is set and whose field is
// present. With no applicable check the record is not considered.
func (e *Evaluator) Evaluate(r DailyRecord) Outcome {
	applied := 0
	hits := 0
	for _, c := range e.checks {
		limit, ok := e.thresholds[c.key].Get()
		if !ok {
			continue
		}
		v, ok := r.Get(c.metric).Get()
		if !ok {
			continue
		}
		applied++
		if (c.upper && v <= limit) || (!c.upper && v >= limit) {
			hits++
		}
	}

	if applied == 0 {
		return Outcome{}
	}
	if e.logic == LogicAll {
		return Outcome{Exceed: hits == applied, Considered: true}
	}
	return Outcome{Exceed: hits > 0, Considered: true}
}

// Evaluation is the result of running an Evaluator over a series.
type Evaluation struct {
	Records       []EvaluatedRecord
	EvaluableDays int
	ExceedCount   int
	// Values holds every present condition field of evaluable records.
	Values []float64
}

// Apply evaluates each record and gathers the metric values for statistics.
func (e *Evaluator) Apply(records []DailyRecord) Evaluation {
	ev := Evaluation{Records: make([]EvaluatedRecord, 0, len(records))}
	for _, r := range records {
		out := e.Evaluate(r)
		er := EvaluatedRecord{DailyRecord: r}
		if out.Considered {
			exceed := out.Exceed
			er.Exceed = &exceed
			ev.EvaluableDays++
			if exceed {
				ev.ExceedCount++
			}
			for _, c := range e.checks {
				if v, ok := r.Get(c.metric).Get(); ok {
					ev.Values = append(ev.Values, v)
				}
			}
		}
		ev.Records = append(ev.Records, er)
	}
	return ev
}
