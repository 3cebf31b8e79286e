package weather

import "math"

// Temperatures are Celsius, wind km/h, humidity percent.

func cToF(c float64) float64 { return c*9.0/5.0 + 32.0 }

func fToC(f float64) float64 { return (f - 32.0) * 5.0 / 9.0 }

func kmhToMph(kmh float64) float64 { return kmh * 0.621371 }

// HeatIndex applies the Rothfusz regression with the NOAA humidity
// adjustments. Below 26.7 °C or 40 % RH the dry-bulb temperature is returned.
// The result is never below the input temperature.
func HeatIndex(tempC, rhPct Value) Value {
	t, ok := tempC.Get()
	rh, ok2 := rhPct.Get()
	if !ok || !ok2 {
		return None
	}
	if t < 26.7 || rh < 40 {
		return Some(round(t, 2))
	}

	f := cToF(t)
	hi := -42.379 +
		2.04901523*f +
		10.14333127*rh -
		0.22475541*f*rh -
		0.00683783*f*f -
		0.05481717*rh*rh +
		0.00122874*f*f*rh +
		0.00085282*f*rh*rh -
		0.00000199*f*f*rh*rh

	switch {
	case rh < 13 && f >= 80 && f <= 112:
		hi -= ((13 - rh) / 4) * math.Sqrt((17-math.Abs(f-95))/17)
	case rh > 85 && f >= 80 && f <= 87:
		hi += ((rh - 85) / 10) * ((87 - f) / 5)
	}

	return Some(round(math.Max(fToC(hi), t), 2))
}

// WindChill uses the NWS wind chill regression. It only applies at or below
// 10 °C with at least 4.8 km/h of wind; otherwise the temperature is returned.
func WindChill(tempC, windKmh Value) Value {
	t, ok := tempC.Get()
	w, ok2 := windKmh.Get()
	if !ok || !ok2 {
		return None
	}
	if t > 10 || w < 4.8 {
		return Some(round(t, 2))
	}

	f := cToF(t)
	v := math.Pow(kmhToMph(w), 0.16)
	wc := 35.74 + 0.6215*f - 35.75*v + 0.4275*f*v
	return Some(round(fToC(wc), 2))
}

// DewPoint is the Magnus-Tetens approximation. Absent when RH <= 0.
func DewPoint(tempC, rhPct Value) Value {
	t, ok := tempC.Get()
	rh, ok2 := rhPct.Get()
	if !ok || !ok2 || rh <= 0 {
		return None
	}
	const a, b = 17.27, 237.7
	gamma := (a*t)/(b+t) + math.Log(rh/100.0)
	return Some(round((b*gamma)/(a-gamma), 2))
}

// RelativeHumidity derives RH (%) from specific humidity (kg/kg), surface
// pressure (Pa) and temperature (°C). The result is clamped to [0, 100].
func RelativeHumidity(tempC, specificHumidity, pressurePa Value) Value {
	t, ok := tempC.Get()
	q, ok2 := specificHumidity.Get()
	p, ok3 := pressurePa.Get()
	if !ok || !ok2 || !ok3 || p <= 0 {
		return None
	}
	hPa := p / 100.0
	e := q * hPa / (0.622 + 0.378*q)
	es := 6.112 * math.Exp(17.67*t/(t+243.5))
	if es <= 0 {
		return None
	}
	return Some(math.Min(100, math.Max(0, 100*e/es)))
}
