package band

import "math"

// Modules lists the four sections of a full test.
var Modules = []Module{Listening, Reading, Writing, Speaking}

// Overall averages section bands and rounds to the nearest half band, with
// quarters rounding up: 6.25 -> 6.5, 6.75 -> 7.0, 6.125 -> 6.0.
// Bands outside 0..9 are clamped first. No bands gives 0.
func Overall(bands ...float64) float64 {
	if len(bands) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bands {
		switch {
		case math.IsNaN(b), b < 0:
			b = 0
		case b > 9:
			b = 9
		}
		sum += b
	}
	mean := sum / float64(len(bands))
	return math.Floor(mean*2+0.5) / 2
}
