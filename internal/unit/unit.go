// Package unit defines the compilation-unit graph shared by the build
// components: units, the modules they declare, the fragments those modules
// are assembled from, type references and the namespace tree.
//
// Units are owned by a Compiler. Everything else in esbridge holds
// non-owning references and must not mutate a unit except through the
// Compiler interface.
package unit

import (
	"context"
	"fmt"
)

// Severity classifies a diagnostic. Lower values are more severe.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Counted reports whether diagnostics of this severity count towards the
// end-of-run error total (errors and warnings).
func (s Severity) Counted() bool {
	return s < SeverityInfo
}

// Diagnostic is a compiler message attached to a unit.
type Diagnostic struct {
	Severity Severity
	Code     int
	Message  string
	Path     string
	Line     int // 1-based
	Column   int // 1-based
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s[%d]: %s", d.Path, d.Line, d.Column, d.Severity, d.Code, d.Message)
}

// Unit is one parsed, resolved source file. Identity is the normalized
// absolute path.
type Unit struct {
	Path string
	Hash string

	// ThirdParty marks units under a vendored dependency boundary. They are
	// never synthesized and closure walks do not descend through them.
	ThirdParty bool
	// GlobalDocument marks units supplying ambient declarations.
	GlobalDocument bool
	// DescriptorDocument marks declaration-only inputs (.d.es).
	DescriptorDocument bool

	Namespaces   []*Namespace
	Modules      []*Module
	Declarators  []*Declarator
	Dependencies []*Unit
	Imports      []*Import
	// Assets lists embedded non-source files referenced by the unit, as
	// absolute paths in reference order.
	Assets      []string
	Diagnostics []Diagnostic
}

func (u *Unit) String() string {
	return u.Path
}

// Excluded reports whether synthesis skips the unit entirely.
func (u *Unit) Excluded() bool {
	return u.ThirdParty || u.GlobalDocument || u.DescriptorDocument
}

// Compiler is the external source compiler. Implementations must be safe
// for concurrent use; Ready may be called for distinct units in parallel.
type Compiler interface {
	// Open returns the unit for path, creating it on first request. The
	// unit is not guaranteed to be ready.
	Open(ctx context.Context, path string) (*Unit, error)
	// Ready blocks until u has completed one full parse and resolve pass.
	Ready(ctx context.Context, u *Unit) error
	// Lookup returns an already opened unit.
	Lookup(path string) (*Unit, bool)
	// Invalid reports whether u's source changed since it became ready.
	Invalid(u *Unit) bool
	// Clear drops cached state for u so the next Ready re-parses it.
	Clear(u *Unit)
}
