// Package bundle is the boundary to the external bundler. Jobs carry the
// entry paths and output target; the Intercept describes the resolver and
// loader plugin that esbridge contributes to every job.
package bundle

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// ContentType is the declared output type of loaded content.
type ContentType string

const (
	ContentScript     ContentType = "js"
	ContentStylesheet ContentType = "css"
	ContentText       ContentType = "text"
	ContentFile       ContentType = "file"
)

var (
	styleExts = []string{".css", ".less", ".sass", ".scss"}
	imageExts = []string{".png", ".gif", ".jpeg", ".jpg", ".svg", ".svgz", ".webp", ".bmp"}
)

// AssetFilter matches embedded asset paths intercepted by the loader.
var AssetFilter = regexp.MustCompile(`\.(css|less|sass|scss|png|gif|jpeg|jpg|svg|svgz|webp|bmp)$`)

// TypeFor classifies path by extension. Source files are scripts.
func TypeFor(path, sourceSuffix string) ContentType {
	if sourceSuffix != "" && strings.HasSuffix(path, sourceSuffix) {
		return ContentScript
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range styleExts {
		if ext == e {
			return ContentStylesheet
		}
	}
	for _, e := range imageExts {
		if ext == e {
			return ContentFile
		}
	}
	return ContentText
}

// Intercept configures the resolver/loader plugin.
type Intercept struct {
	// SourceSuffix selects source files, e.g. ".es".
	SourceSuffix string
	// Sources returns the built module text for a source path.
	Sources func(path string) (string, bool)
}

// Job is one bundler invocation.
type Job struct {
	Entries []string
	Outdir  string
	// WorkDir anchors relative paths in the result; defaults to the
	// process working directory.
	WorkDir string

	Format    string
	Platform  string
	Minify    bool
	Sourcemap bool
	External  []string
	Define    map[string]string
	NodePaths []string

	Intercept Intercept
}

// Output is one emitted file. EntryPoint is empty for chunks.
type Output struct {
	Path       string
	EntryPoint string
}

// Result describes a finished job.
type Result struct {
	Outputs  []Output
	Warnings []string
}

// OutputFor returns the output produced for entry.
func (r *Result) OutputFor(entry string) (Output, bool) {
	for _, o := range r.Outputs {
		if o.EntryPoint != "" && filepath.Clean(o.EntryPoint) == filepath.Clean(entry) {
			return o, true
		}
	}
	return Output{}, false
}

// Bundler runs build jobs. Implementations must be safe for concurrent use.
type Bundler interface {
	Build(ctx context.Context, job Job) (*Result, error)
}
