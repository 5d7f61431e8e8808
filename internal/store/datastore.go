package store

// Recorder is the write surface used while a build runs. Both the SQLite
// Store and the in-memory Batch implement it, so build code records units
// and assets without knowing which one it writes to.
type Recorder interface {
	RecordUnit(snap *UnitSnapshot) error
	RecordAsset(a *AssetRecord) error
}

// Compile-time check: *Store satisfies Recorder.
var _ Recorder = (*Store)(nil)
