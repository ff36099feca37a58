package matcher

import "math"

// DefaultThreshold is the distance at or below which a gallery face counts as the same person.
const DefaultThreshold = 0.6

// DefaultAcceptance is the confidence a match must exceed before it is confirmed.
const DefaultAcceptance = 0.50

// Confidence converts a face distance d into a [0,1] matching score for the given
// distance threshold t. Distances above t fall off linearly from 0.5; distances
// at or below t are pushed towards 1 by a fifth-root curve.
//
// The curve's base (linear-0.5)*2 is clamped to [0,1] before the fractional
// power is taken, so inputs outside the expected range never produce NaN.
// A NaN distance scores 0.
func Confidence(d, t float64) float64 {
	if math.IsNaN(d) || math.IsNaN(t) || t <= 0 || t >= 1 {
		return 0
	}

	var score float64
	if d > t {
		span := 1.0 - t
		score = (1.0 - d) / (span * 2.0)
	} else {
		span := t
		linear := 1.0 - (d / (span * 2.0))
		base := clamp((linear-0.5)*2, 0, 1)
		score = linear + (1.0-linear)*math.Pow(base, 0.2)
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
