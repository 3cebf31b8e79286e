package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-odds/internal/weather"
)

//go:embed conditions.yaml
var defaultConditions []byte

// ConditionSet is the conditions document: global defaults plus thresholds
// and logic per condition. JSON documents parse as well.
type ConditionSet struct {
	WindowDays    int                        `yaml:"window_days" json:"window_days"`
	YearsMode     string                     `yaml:"years_mode" json:"years_mode"`
	LastNYears    int                        `yaml:"lastN_years" json:"lastN_years"`
	MinSampleSize int                        `yaml:"min_sample_size" json:"min_sample_size"`
	UnitsUI       string                     `yaml:"units_ui" json:"units_ui"`
	Conditions    map[string]ConditionConfig `yaml:"conditions" json:"conditions"`
}

// ConditionConfig holds one condition's thresholds. A null threshold
// disables that check. The optional fields override the global defaults.
type ConditionConfig struct {
	Logic         string              `yaml:"logic,omitempty" json:"logic,omitempty"`
	Thresholds    map[string]*float64 `yaml:"thresholds" json:"thresholds"`
	MinSampleSize *int                `yaml:"min_sample_size,omitempty" json:"min_sample_size,omitempty"`
	WindowDays    *int                `yaml:"window_days,omitempty" json:"window_days,omitempty"`
	LastNYears    *int                `yaml:"lastN_years,omitempty" json:"lastN_years,omitempty"`
}

// LoadConditions reads the document at path, or the embedded default when
// path is empty.
func LoadConditions(path string) (*ConditionSet, error) {
	data := defaultConditions
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read conditions %s: %w", path, err)
		}
		data = b
	}
	return ParseConditions(data)
}

// conditionsDoc is the on-disk shape. Pointer fields tell an absent key
// from an explicit zero.
type conditionsDoc struct {
	WindowDays    *int                       `yaml:"window_days"`
	YearsMode     string                     `yaml:"years_mode"`
	LastNYears    *int                       `yaml:"lastN_years"`
	MinSampleSize *int                       `yaml:"min_sample_size"`
	UnitsUI       string                     `yaml:"units_ui"`
	Conditions    map[string]ConditionConfig `yaml:"conditions"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// ParseConditions decodes and validates a conditions document. Absent
// globals default to a 15 day radius, 20 years and a 300 day floor.
func ParseConditions(data []byte) (*ConditionSet, error) {
	var doc conditionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}
	cs := ConditionSet{
		WindowDays:    intOr(doc.WindowDays, 15),
		YearsMode:     doc.YearsMode,
		LastNYears:    intOr(doc.LastNYears, 20),
		MinSampleSize: intOr(doc.MinSampleSize, 300),
		UnitsUI:       doc.UnitsUI,
		Conditions:    doc.Conditions,
	}
	if cs.YearsMode == "" {
		cs.YearsMode = weather.YearsModeLastN
	}
	if err := checkLimits("", cs.WindowDays, cs.LastNYears, cs.MinSampleSize); err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	for _, c := range weather.Conditions() {
		known[c] = true
	}
	if len(cs.Conditions) == 0 {
		return nil, fmt.Errorf("conditions document defines no conditions")
	}
	for name, cc := range cs.Conditions {
		if !known[name] {
			return nil, fmt.Errorf("%w: %q", weather.ErrUnknownCondition, name)
		}
		if cc.Logic != "" {
			if _, err := weather.ParseLogic(cc.Logic); err != nil {
				return nil, fmt.Errorf("condition %s: %w", name, err)
			}
		}
		if err := checkLimits(name, intOr(cc.WindowDays, 0), intOr(cc.LastNYears, 1), intOr(cc.MinSampleSize, 0)); err != nil {
			return nil, err
		}
	}
	return &cs, nil
}

func checkLimits(scope string, windowDays, years, minSample int) error {
	prefix := "conditions"
	if scope != "" {
		prefix = "condition " + scope
	}
	switch {
	case windowDays < 0:
		return fmt.Errorf("%s: window_days must not be negative, got %d", prefix, windowDays)
	case years < 1:
		return fmt.Errorf("%s: lastN_years must be at least 1, got %d", prefix, years)
	case minSample < 0:
		return fmt.Errorf("%s: min_sample_size must not be negative, got %d", prefix, minSample)
	}
	return nil
}

// Condition resolves the effective defaults for name.
func (cs *ConditionSet) Condition(name string) (weather.ConditionDefaults, bool) {
	cc, ok := cs.Conditions[name]
	if !ok {
		return weather.ConditionDefaults{}, false
	}

	thr := make(weather.Thresholds, len(cc.Thresholds))
	for k, v := range cc.Thresholds {
		thr[k] = weather.Ptr(v)
	}
	logic := weather.LogicAny
	if cc.Logic != "" {
		logic, _ = weather.ParseLogic(cc.Logic)
	}

	d := weather.ConditionDefaults{
		Thresholds:    thr,
		Logic:         logic,
		MinSampleSize: cs.MinSampleSize,
		WindowDays:    cs.WindowDays,
		Years:         cs.LastNYears,
	}
	if cc.MinSampleSize != nil {
		d.MinSampleSize = *cc.MinSampleSize
	}
	if cc.WindowDays != nil {
		d.WindowDays = *cc.WindowDays
	}
	if cc.LastNYears != nil {
		d.Years = *cc.LastNYears
	}
	return d, true
}
