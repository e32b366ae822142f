package telemetry

import (
	"math"
	"testing"
	"time"
)

func fixAt(lat, lon float64) Fix {
	return Fix{
		IMEI:      "356938035643809",
		Timestamp: time.Date(2024, 2, 3, 15, 5, 6, 0, time.UTC),
		Latitude:  lat,
		Longitude: lon,
	}
}

func TestValidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		want bool
	}{
		{name: "minsk", lat: 53.8926, lon: 27.5672, want: true},
		{name: "western hemisphere", lat: 40.7128, lon: -74.006, want: true},
		{name: "southern hemisphere", lat: -33.8688, lon: 151.2093, want: true},
		{name: "null island", lat: 0, lon: 0, want: false},
		{name: "lat out of range", lat: 91.5, lon: 20, want: false},
		{name: "lon out of range", lat: 20, lon: -180.5, want: false},
		{name: "nan", lat: math.NaN(), lon: 20, want: false},
		{name: "pole antimeridian pair", lat: 90, lon: 180, want: false},
		{name: "equator antimeridian pair", lat: 0, lon: -180, want: false},
		{name: "mirrored lat lon", lat: 44.1234, lon: 44.1234, want: false},
		{name: "power of two coordinate", lat: 64, lon: 27.5672, want: false},
		{name: "power of two one", lat: 1, lon: 27.5672, want: false},
		{name: "power of two below one", lat: 53.8926, lon: 0.5, want: false},
		{name: "power of two quarter", lat: 0.25, lon: 27.5672, want: false},
		{name: "repeated digit coordinate", lat: 55.555555, lon: 27.5672, want: false},
		{name: "triplet repetition", lat: 12.3123, lon: 12.77, want: false},
		{name: "float extreme", lat: math.MaxFloat64, lon: 20, want: false},
		{name: "repeating decimal from divisor", lat: 83500000.0 / 1800000.0, lon: 56.76288, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidCoordinates(tt.lat, tt.lon); got != tt.want {
				t.Errorf("ValidCoordinates(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

func TestNormalizeClampsAndSorts(t *testing.T) {
	base := time.Date(2024, 2, 3, 15, 0, 0, 0, time.UTC)

	newer := fixAt(53.8926, 27.5672)
	newer.Timestamp = base.Add(time.Minute)
	newer.Speed = 1500
	newer.Course = 725

	older := fixAt(53.893, 27.568)
	older.Timestamp = base
	older.Altitude = -5000

	junk := fixAt(0, 0)

	out := Normalize([]Fix{newer, junk, older})
	if len(out) != 2 {
		t.Fatalf("got %d fixes, want 2", len(out))
	}
	if !out[0].Timestamp.Equal(base) {
		t.Errorf("not sorted by timestamp: first is %v", out[0].Timestamp)
	}
	if out[0].Altitude != -1000 {
		t.Errorf("altitude not clamped: %v", out[0].Altitude)
	}
	if out[1].Speed != 1000 {
		t.Errorf("speed not clamped: %v", out[1].Speed)
	}
	if out[1].Course != 5 {
		t.Errorf("course not reduced mod 360: %v", out[1].Course)
	}
	for _, f := range out {
		if !f.Valid {
			t.Errorf("surviving fix not marked valid")
		}
	}
}

func TestConsolidateStationary(t *testing.T) {
	base := time.Date(2024, 2, 3, 15, 0, 0, 0, time.UTC)

	var batch []Fix
	for i := 0; i < 5; i++ {
		f := fixAt(53.8926, 27.5672)
		f.Timestamp = base.Add(time.Duration(i) * 30 * time.Second)
		batch = append(batch, f)
	}

	out := Consolidate(batch)
	if len(out) != 1 {
		t.Fatalf("got %d fixes, want 1", len(out))
	}
	if !out[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("kept %v, want the newest record", out[0].Timestamp)
	}
}

func TestConsolidateMovingBatchUntouched(t *testing.T) {
	a := fixAt(53.8926, 27.5672)
	b := fixAt(53.90, 27.58)
	b.Speed = 40

	out := Consolidate([]Fix{a, b})
	if len(out) != 2 {
		t.Fatalf("got %d fixes, want 2", len(out))
	}
}
