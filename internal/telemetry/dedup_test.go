package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDeduperSuppressesDuplicates(t *testing.T) {
	d := NewDeduper()
	f := fixAt(53.8926, 27.5672)

	if d.Seen(&f) {
		t.Fatal("first occurrence reported as duplicate")
	}
	if !d.Seen(&f) {
		t.Fatal("second occurrence not suppressed")
	}

	// Coordinates differing only past six decimal places share a key.
	near := f
	near.Latitude += 1e-8
	if !d.Seen(&near) {
		t.Error("sub-precision twin not suppressed")
	}

	moved := f
	moved.Latitude = 53.90
	if d.Seen(&moved) {
		t.Error("distinct fix suppressed")
	}
}

func TestDeduperPerIMEI(t *testing.T) {
	d := NewDeduper()
	a := fixAt(53.8926, 27.5672)
	b := a
	b.IMEI = "867730051234567"

	if d.Seen(&a) {
		t.Fatal("first fix reported as duplicate")
	}
	if d.Seen(&b) {
		t.Error("window leaked across IMEIs")
	}
	if d.Devices() != 2 {
		t.Errorf("Devices() = %d, want 2", d.Devices())
	}
}

func TestDeduperWindowBound(t *testing.T) {
	d := NewDeduper()
	base := time.Date(2024, 2, 3, 15, 0, 0, 0, time.UTC)

	first := fixAt(53.8926, 27.5672)
	first.Timestamp = base
	d.Seen(&first)

	// Push the first fingerprint out of the 100-entry window.
	for i := 1; i <= windowSize; i++ {
		f := fixAt(53.8926, 27.5672)
		f.Timestamp = base.Add(time.Duration(i) * time.Second)
		d.Seen(&f)
	}

	if d.Seen(&first) {
		t.Error("evicted fingerprint still suppressed")
	}
}

func TestDeduperConcurrent(t *testing.T) {
	d := NewDeduper()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f := fixAt(53.0+float64(i)*0.001, 27.0)
				f.IMEI = fmt.Sprintf("35693803564%04d", g)
				d.Seen(&f)
			}
		}(g)
	}
	wg.Wait()

	if d.Devices() != 8 {
		t.Errorf("Devices() = %d, want 8", d.Devices())
	}
}
