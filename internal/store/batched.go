package store

import "sync"

// Batch buffers unit snapshots and asset rows in memory during a build.
// CommitBatch flushes it in one transaction.
//
// The mutex guards the buffers; plugin goroutines record into the same
// batch concurrently.
type Batch struct {
	mu sync.Mutex

	Units  []UnitSnapshot
	Assets []AssetRecord

	unitIndex  map[string]int
	assetIndex map[string]int
}

// Compile-time check: *Batch satisfies Recorder.
var _ Recorder = (*Batch)(nil)

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		unitIndex:  make(map[string]int),
		assetIndex: make(map[string]int),
	}
}

// RecordUnit buffers snap. A later snapshot of the same path replaces the
// earlier one.
func (b *Batch) RecordUnit(snap *UnitSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.unitIndex[snap.Unit.Path]; ok {
		b.Units[i] = *snap
		return nil
	}
	b.unitIndex[snap.Unit.Path] = len(b.Units)
	b.Units = append(b.Units, *snap)
	return nil
}

// RecordAsset buffers a. A later row for the same path replaces the
// earlier one.
func (b *Batch) RecordAsset(a *AssetRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.assetIndex[a.Path]; ok {
		b.Assets[i] = *a
		return nil
	}
	b.assetIndex[a.Path] = len(b.Assets)
	b.Assets = append(b.Assets, *a)
	return nil
}

// Len returns the number of buffered rows.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Units) + len(b.Assets)
}
