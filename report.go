package esbridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/jward/esbridge/internal/unit"
)

// Report describes one build, rebuild or bundle run.
type Report struct {
	OutputDir string
	// Units lists the unit paths the run processed, in closure order.
	Units       []string
	Diagnostics []unit.Diagnostic
	// Outputs lists declaration files written; Unchanged those skipped
	// because the ledger holds identical content.
	Outputs   []string
	Unchanged []string
	// Assets lists the assets that got a secondary build.
	Assets   []string
	Failures []Failure
	Watching bool
}

// Errors counts the diagnostics that count towards the run's error total.
func (r *Report) Errors() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity.Counted() {
			n++
		}
	}
	return n
}

// Summary is the one-line outcome printed at the end of a run.
func (r *Report) Summary() string {
	if n := r.Errors(); n > 0 {
		return fmt.Sprintf("Build done. but found %d errors", n)
	}
	return "Build done."
}

// Print writes the summary, the output directory and, in watch mode, the
// watch notice.
func (r *Report) Print(w io.Writer) {
	for _, d := range r.Diagnostics {
		if d.Severity.Counted() {
			fmt.Fprintln(w, d.String())
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintln(w, color.RedString(f.Error()))
	}
	if r.Errors() == 0 && len(r.Failures) == 0 {
		PrintBanner(w, r.OutputDir)
	}
	fmt.Fprintln(w, r.Summary())
	fmt.Fprintf(w, "Output %s\n", r.OutputDir)
	if r.Watching {
		fmt.Fprintln(w, "Starting compilation in watch mode...")
	}
}

// PrintBanner writes the framed success banner.
func PrintBanner(w io.Writer, outDir string) {
	lines := []string{"Build successful!", "Output:" + outDir}
	width := 0
	for _, l := range lines {
		width = max(width, len(l))
	}
	sep := strings.Repeat("*", width+10)
	c := color.New(color.FgGreen)
	c.Fprintln(w, sep)
	for _, l := range lines {
		c.Fprintln(w, "**  "+l+strings.Repeat(" ", width-len(l)+4)+"**")
	}
	c.Fprintln(w, sep)
}
