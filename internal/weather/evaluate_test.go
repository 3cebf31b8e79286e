package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hotThresholds() Thresholds {
	return Thresholds{"T_min": Some(32), "HI_min": Some(41)}
}

func mustEvaluator(t *testing.T, condition string, thr Thresholds, logic Logic) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(condition, thr, logic)
	require.NoError(t, err)
	return e
}

func TestEvaluate_AnyAndAll(t *testing.T) {
	r := DailyRecord{TempMax: Some(33), HeatIndexMax: Some(35)}

	assert.Equal(t, Outcome{Exceed: true, Considered: true}, mustEvaluator(t, "hot", hotThresholds(), LogicAny).Evaluate(r))
	assert.Equal(t, Outcome{Exceed: false, Considered: true}, mustEvaluator(t, "hot", hotThresholds(), LogicAll).Evaluate(r))
}

func TestEvaluate_HotWithMissingHeatIndex(t *testing.T) {
	r := DailyRecord{TempMax: Some(35), HeatIndexMax: None}

	anyOut := mustEvaluator(t, "hot", hotThresholds(), LogicAny).Evaluate(r)
	assert.Equal(t, Outcome{Exceed: true, Considered: true}, anyOut)

	// ALL reduces over the checks that applied; the absent hi_max is skipped,
	// so T_min alone decides.
	allOut := mustEvaluator(t, "hot", hotThresholds(), LogicAll).Evaluate(r)
	assert.Equal(t, Outcome{Exceed: true, Considered: true}, allOut)
}

func TestEvaluate_NoApplicableCheck(t *testing.T) {
	e := mustEvaluator(t, "hot", hotThresholds(), LogicAny)
	assert.Equal(t, Outcome{}, e.Evaluate(DailyRecord{TempMin: Some(10)}))
}

func TestEvaluate_NullThresholdDisablesCheck(t *testing.T) {
	thr := Thresholds{"T_min": None, "HI_min": Some(41)}
	e := mustEvaluator(t, "hot", thr, LogicAll)

	out := e.Evaluate(DailyRecord{TempMax: Some(40), HeatIndexMax: Some(38)})
	assert.Equal(t, Outcome{Exceed: false, Considered: true}, out)

	out = e.Evaluate(DailyRecord{TempMax: Some(40)})
	assert.False(t, out.Considered)
}

func TestEvaluate_ColdUsesUpperBounds(t *testing.T) {
	e := mustEvaluator(t, "cold", Thresholds{"T_max": Some(0), "WC_max": Some(-10)}, LogicAny)

	assert.True(t, e.Evaluate(DailyRecord{TempMin: Some(-1)}).Exceed)
	assert.True(t, e.Evaluate(DailyRecord{TempMin: Some(0)}).Exceed)
	assert.False(t, e.Evaluate(DailyRecord{TempMin: Some(2), WindChillMin: Some(-3)}).Exceed)
}

func TestEvaluate_AllOverPresentFieldsOnly(t *testing.T) {
	e := mustEvaluator(t, "windy", Thresholds{"V_min": Some(40), "gust_min": Some(60)}, LogicAll)
	out := e.Evaluate(DailyRecord{WindSpeedMax: Some(45)})
	assert.Equal(t, Outcome{Exceed: true, Considered: true}, out)
}

func TestNewEvaluator_UnknownCondition(t *testing.T) {
	_, err := NewEvaluator("foggy", nil, LogicAny)
	assert.ErrorIs(t, err, ErrUnknownCondition)
}

func TestApply(t *testing.T) {
	e := mustEvaluator(t, "muggy", Thresholds{"HI_min": Some(32), "Td_min": Some(20)}, LogicAny)
	ev := e.Apply([]DailyRecord{
		{HeatIndexMax: Some(35), DewPointMax: Some(18)},
		{HeatIndexMax: Some(28)},
		{TempMax: Some(30)},
	})

	assert.Equal(t, 2, ev.EvaluableDays)
	assert.Equal(t, 1, ev.ExceedCount)
	assert.Equal(t, []float64{35, 18, 28}, ev.Values)
	require.Len(t, ev.Records, 3)
	require.NotNil(t, ev.Records[0].Exceed)
	assert.True(t, *ev.Records[0].Exceed)
	require.NotNil(t, ev.Records[1].Exceed)
	assert.False(t, *ev.Records[1].Exceed)
	assert.Nil(t, ev.Records[2].Exceed)
}

func TestThresholdsOverlay(t *testing.T) {
	base := hotThresholds()
	got := base.Overlay(map[string]Value{"T_min": Some(30), "HI_min": None, "bogus": Some(1)})

	assert.Equal(t, Thresholds{"T_min": Some(30), "HI_min": None}, got)
	assert.Equal(t, hotThresholds(), base)
}

func TestParseLogic(t *testing.T) {
	l, err := ParseLogic("all")
	require.NoError(t, err)
	assert.Equal(t, LogicAll, l)

	_, err = ParseLogic("SOME")
	assert.Error(t, err)
}

func TestConditions(t *testing.T) {
	assert.Equal(t, []string{"cold", "hot", "muggy", "windy", "wet"}, Conditions())
	assert.True(t, NeedsPrecip("wet"))
	assert.False(t, NeedsPrecip("hot"))
	assert.Equal(t, []Metric{MetricHeatIndexMax, MetricDewPointMax}, ConditionMetrics("muggy"))
}
