package telemetry

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Trackers in the field emit a bestiary of junk coordinates: null island,
// uninitialized flash reads that come back as exact powers of two, repeated
// digit patterns from stuck ADCs, and mirrored lat/lon pairs. The
// normalizer drops those records entirely; plausible records with
// out-of-range scalars are clamped instead of dropped.

// Scalar clamp bounds.
const (
	maxSpeed    = 1000.0
	minAltitude = -1000.0
	maxAltitude = 20000.0
)

// Normalize validates and cleans a batch of fixes from one frame. Records
// with implausible coordinates are dropped; surviving records get their
// scalar fields clamped, the Valid flag set, and come back sorted by
// timestamp ascending.
func Normalize(fixes []Fix) []Fix {
	out := make([]Fix, 0, len(fixes))
	for _, f := range fixes {
		if !ValidCoordinates(f.Latitude, f.Longitude) {
			continue
		}
		f.Speed = clamp(f.Speed, 0, maxSpeed)
		f.Altitude = clamp(f.Altitude, minAltitude, maxAltitude)
		f.Course = math.Mod(math.Abs(f.Course), 360)
		f.Valid = true
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Consolidate collapses an all-stationary batch to its newest record. A
// parked tracker re-reports the same spot every cycle; one record carries
// the same information as five. Batches with any movement pass through
// unchanged. Input must already be sorted by timestamp.
func Consolidate(fixes []Fix) []Fix {
	if len(fixes) < 2 {
		return fixes
	}
	for _, f := range fixes {
		if f.Speed != 0 {
			return fixes
		}
	}
	return fixes[len(fixes)-1:]
}

// ValidCoordinates reports whether a lat/lon pair is plausible.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return false
	}
	// Null island and its immediate vicinity.
	if math.Abs(lat)+math.Abs(lon) < 1e-6 {
		return false
	}
	// Degenerate pole/antimeridian pairs like (90, 180) or (0, -180).
	if math.Mod(lat, 90) == 0 && math.Mod(lon, 180) == 0 {
		return false
	}
	if garbageScalar(lat) || garbageScalar(lon) {
		return false
	}
	// A stuck register mirrors the same value into both fields.
	if strconv.FormatFloat(lat, 'f', 4, 64) == strconv.FormatFloat(lon, 'f', 4, 64) {
		return false
	}
	// The triplet check runs on 6dp-quantized text: raw repeating decimals
	// from the divisor arithmetic would otherwise trip it on honest values.
	if tripletRepetition(fixedDigits(lat) + fixedDigits(lon)) {
		return false
	}
	return true
}

// garbageScalar reports values that are artifacts of uninitialized or
// corrupt memory: float extremes, exact powers of two, and decimal
// representations that collapse to a single repeated digit.
func garbageScalar(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	abs := math.Abs(v)
	if abs == math.MaxFloat64 || abs == math.SmallestNonzeroFloat64 {
		return true
	}
	// Frexp leaves zero at (0, 0); every other 2^k normalizes to 0.5.
	if frac, _ := math.Frexp(abs); frac == 0.5 {
		return true
	}
	return repeatedDigit(digitsOf(v))
}

// digitsOf strips sign and decimal point from the shortest decimal
// representation of v.
func digitsOf(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	return strings.ReplaceAll(s, ".", "")
}

// fixedDigits is digitsOf at a fixed six decimal places.
func fixedDigits(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 6, 64)
	return strings.ReplaceAll(s, ".", "")
}

// repeatedDigit reports whether s is two or more copies of one digit.
func repeatedDigit(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// tripletRepetition reports whether any three-digit group repeats
// immediately in s, the signature of a looping serial read.
func tripletRepetition(s string) bool {
	for i := 0; i+6 <= len(s); i++ {
		if s[i:i+3] == s[i+3:i+6] {
			return true
		}
	}
	return false
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
