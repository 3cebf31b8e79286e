package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func val(t *testing.T, v Value) float64 {
	t.Helper()
	f, ok := v.Get()
	assert.True(t, ok, "expected a value")
	return f
}

func TestHeatIndex(t *testing.T) {
	assert.InDelta(t, 37.07, val(t, HeatIndex(Some(32), Some(60))), 0.01)
	assert.InDelta(t, 40.68, val(t, HeatIndex(Some(35), Some(50))), 0.01)
}

func TestHeatIndex_BelowRegressionRange(t *testing.T) {
	assert.Equal(t, 25.0, val(t, HeatIndex(Some(25), Some(80))))
	assert.Equal(t, 30.0, val(t, HeatIndex(Some(30), Some(30))))
}

func TestHeatIndex_NeverBelowTemperature(t *testing.T) {
	assert.Equal(t, 27.0, val(t, HeatIndex(Some(27), Some(40))))
}

func TestHeatIndex_MissingInput(t *testing.T) {
	assert.False(t, HeatIndex(None, Some(50)).Valid())
	assert.False(t, HeatIndex(Some(30), None).Valid())
}

func TestWindChill(t *testing.T) {
	assert.InDelta(t, -12.97, val(t, WindChill(Some(-5), Some(30))), 0.01)
	assert.InDelta(t, -17.84, val(t, WindChill(Some(-10), Some(20))), 0.01)
}

func TestWindChill_OutsideRange(t *testing.T) {
	assert.Equal(t, 15.0, val(t, WindChill(Some(15), Some(20))))
	assert.Equal(t, 5.0, val(t, WindChill(Some(5), Some(3))))
	assert.False(t, WindChill(Some(5), None).Valid())
}

func TestDewPoint(t *testing.T) {
	assert.InDelta(t, 18.42, val(t, DewPoint(Some(30), Some(50))), 0.01)
	assert.InDelta(t, 20.0, val(t, DewPoint(Some(20), Some(100))), 0.01)
	assert.False(t, DewPoint(Some(20), Some(0)).Valid())
	assert.False(t, DewPoint(None, Some(50)).Valid())
}

func TestRelativeHumidity(t *testing.T) {
	assert.InDelta(t, 51.12, val(t, RelativeHumidity(Some(25), Some(0.010), Some(101325))), 0.01)
	assert.Equal(t, 100.0, val(t, RelativeHumidity(Some(25), Some(0.05), Some(101325))))
	assert.False(t, RelativeHumidity(Some(25), Some(0.01), Some(0)).Valid())
}

func TestWithDerived(t *testing.T) {
	r := DailyRecord{TempMax: Some(32), TempMin: Some(-5), RHMax: Some(60)}.WithDerived(Some(30))

	assert.InDelta(t, 37.07, val(t, r.HeatIndexMax), 0.01)
	assert.InDelta(t, -12.97, val(t, r.WindChillMin), 0.01)
	assert.True(t, r.DewPointMax.Valid())
}
