// Package band converts raw IELTS section scores to band scores.
package band

import (
	"fmt"
	"math"
	"strings"
)

type Module string

const (
	Reading   Module = "reading"
	Listening Module = "listening"
	Writing   Module = "writing"
	Speaking  Module = "speaking"
)

type Variant string

const (
	Academic Variant = "Academic"
	General  Variant = "General"
)

// ParseModule accepts any casing of the four module names.
func ParseModule(s string) (Module, error) {
	switch m := Module(strings.ToLower(strings.TrimSpace(s))); m {
	case Reading, Listening, Writing, Speaking:
		return m, nil
	}
	return "", fmt.Errorf("band: unknown module %q", s)
}

// ParseVariant maps "" to Academic.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "academic":
		return Academic, nil
	case "general", "general training":
		return General, nil
	}
	return "", fmt.Errorf("band: unknown variant %q", s)
}

// Step is one row of a conversion table: scaled scores >= Min get Band.
type Step struct {
	Min  int     `json:"min"`
	Band float64 `json:"band"`
}

type Table []Step

// Lookup scans top to bottom and returns the first band whose threshold is
// met. Tables end at 0, so any non-negative score resolves.
func (t Table) Lookup(scaled int) float64 {
	for _, s := range t {
		if scaled >= s.Min {
			return s.Band
		}
	}
	return 0
}

var (
	academicReading = Table{
		{40, 9.0}, {39, 8.5}, {37, 8.0}, {35, 7.5}, {33, 7.0}, {30, 6.5},
		{27, 6.0}, {23, 5.5}, {19, 5.0}, {15, 4.5}, {13, 4.0}, {10, 3.5},
		{6, 3.0}, {4, 2.5}, {1, 2.0}, {0, 0.0},
	}
	academicListening = Table{
		{40, 9.0}, {39, 8.5}, {37, 8.0}, {35, 7.5}, {32, 7.0}, {30, 6.5},
		{26, 6.0}, {23, 5.5}, {18, 5.0}, {16, 4.5}, {13, 4.0}, {10, 3.5},
		{6, 3.0}, {4, 2.5}, {1, 2.0}, {0, 0.0},
	}
	generalReading = Table{
		{40, 9.0}, {39, 8.5}, {38, 8.0}, {36, 7.5}, {34, 7.0}, {32, 6.5},
		{30, 6.0}, {27, 5.5}, {23, 5.0}, {19, 4.5}, {15, 4.0}, {12, 3.5},
		{8, 3.0}, {5, 2.5}, {1, 2.0}, {0, 0.0},
	}
)

func table(m Module, v Variant) Table {
	if m == Listening {
		return academicListening
	}
	// writing and speaking have no raw-score table; they share reading's
	if v == General {
		return generalReading
	}
	return academicReading
}

// TableFor returns a copy of the table used for module and variant.
func TableFor(m Module, v Variant) Table {
	return append(Table(nil), table(m, v)...)
}

// Scaled projects raw out of max onto the 40-question scale tables are
// calibrated for.
func Scaled(raw, max float64) int {
	var x float64
	if max == 40 {
		x = raw
	} else {
		x = raw / math.Max(max, 1) * 40
	}
	r := math.Floor(x + 0.5)
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}

// Convert maps a raw score to a band. An empty variant is Academic.
func Convert(raw, max float64, m Module, v Variant) float64 {
	return table(m, v).Lookup(Scaled(raw, max))
}

// Label is the descriptive name of a band.
func Label(b float64) string {
	switch {
	case b >= 9:
		return "Expert"
	case b >= 8:
		return "Very Good"
	case b >= 7:
		return "Good"
	case b >= 6:
		return "Competent"
	case b >= 5:
		return "Modest"
	case b >= 4:
		return "Limited"
	default:
		return "Extremely Limited"
	}
}
