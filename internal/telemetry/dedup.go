package telemetry

import "sync"

// windowSize bounds the per-IMEI recent-fingerprint window. Devices replay
// flash-stored batches after reconnects; 100 entries covers the largest
// batch observed in the field with room to spare.
const windowSize = 100

// Deduper suppresses re-emission of records already seen per IMEI. One
// instance serves the whole process; all methods are safe for concurrent
// use.
type Deduper struct {
	mu     sync.Mutex
	recent map[string]*window
}

type window struct {
	keys  []string
	index map[string]struct{}
}

// NewDeduper returns an empty process-wide dedup table.
func NewDeduper() *Deduper {
	return &Deduper{recent: make(map[string]*window)}
}

// Seen records the fix's fingerprint and reports whether it was already
// present in the IMEI's window. Duplicates are merged into the window
// either way, keeping their fingerprints fresh.
func (d *Deduper) Seen(f *Fix) bool {
	key := f.Key()

	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.recent[f.IMEI]
	if w == nil {
		w = &window{index: make(map[string]struct{}, windowSize)}
		d.recent[f.IMEI] = w
	}

	if _, dup := w.index[key]; dup {
		return true
	}

	w.keys = append(w.keys, key)
	w.index[key] = struct{}{}
	if len(w.keys) > windowSize {
		delete(w.index, w.keys[0])
		w.keys = w.keys[1:]
	}
	return false
}

// Devices returns the number of IMEIs with a live window.
func (d *Deduper) Devices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recent)
}
