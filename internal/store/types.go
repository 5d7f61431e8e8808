package store

import "time"

// UnitRecord is the ledger row for one compilation unit.
type UnitRecord struct {
	ID             int64
	Path           string
	Hash           string
	ThirdParty     bool
	GlobalDocument bool
	LastBuilt      time.Time
}

// ModuleRecord is one module declared by a unit.
type ModuleRecord struct {
	ID       int64
	UnitID   int64
	FullName string
	Kind     string
	Used     bool
}

// DiagnosticRecord is one compiler diagnostic of a unit.
type DiagnosticRecord struct {
	ID       int64
	UnitID   int64
	Severity int
	Code     int
	Message  string
	Line     int
	Col      int
}

// AssetRecord is the ledger row for one registered asset.
type AssetRecord struct {
	ID        int64
	Path      string
	Category  string
	Output    string
	Builds    int
	Error     string
	LastBuilt time.Time
}

// OutputRecord is one written declaration file.
type OutputRecord struct {
	ID        int64
	Path      string
	Hash      string
	WrittenAt time.Time
}

// UnitSnapshot is everything recorded for a unit after one build of it.
type UnitSnapshot struct {
	Unit        UnitRecord
	Modules     []ModuleRecord
	Diagnostics []DiagnosticRecord
}

// ManifestRow pairs a declared name with the file declaring it.
type ManifestRow struct {
	FullName string
	Path     string
}
