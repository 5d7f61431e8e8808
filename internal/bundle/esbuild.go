package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ESBuild runs jobs through the esbuild Go API.
type ESBuild struct {
	// EntryNames overrides esbuild's output naming template.
	EntryNames string
}

// NewESBuild returns an esbuild-backed Bundler whose outputs carry a
// content hash, so a rebuilt asset lands beside its previous output.
func NewESBuild() *ESBuild {
	return &ESBuild{EntryNames: "[name]-[hash]"}
}

// Build runs job and waits for it, cancelling the build when ctx ends.
func (b *ESBuild) Build(ctx context.Context, job Job) (*Result, error) {
	workDir := job.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("bundle: working directory: %w", err)
		}
		workDir = wd
	}

	opts := api.BuildOptions{
		EntryPoints:       job.Entries,
		Outdir:            job.Outdir,
		AbsWorkingDir:     workDir,
		EntryNames:        b.EntryNames,
		Bundle:            true,
		Write:             true,
		Metafile:          true,
		Format:            format(job.Format),
		Platform:          platform(job.Platform),
		MinifyWhitespace:  job.Minify,
		MinifyIdentifiers: job.Minify,
		MinifySyntax:      job.Minify,
		External:          job.External,
		Define:            job.Define,
		NodePaths:         job.NodePaths,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{loaderPlugin(job.Intercept)},
	}
	if job.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	bctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, fmt.Errorf("bundle: %s", joinMessages(ctxErr.Errors))
	}
	defer bctx.Dispose()

	done := make(chan api.BuildResult, 1)
	go func() { done <- bctx.Rebuild() }()

	var res api.BuildResult
	select {
	case res = <-done:
	case <-ctx.Done():
		bctx.Cancel()
		<-done
		return nil, ctx.Err()
	}

	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("bundle: %s", joinMessages(res.Errors))
	}

	outputs, err := parseMetafile(res.Metafile, workDir)
	if err != nil {
		return nil, err
	}
	result := &Result{Outputs: outputs}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, formatMessage(w))
	}
	return result, nil
}

func format(s string) api.Format {
	switch strings.ToLower(s) {
	case "cjs", "commonjs":
		return api.FormatCommonJS
	case "iife":
		return api.FormatIIFE
	default:
		return api.FormatESModule
	}
}

func platform(s string) api.Platform {
	switch strings.ToLower(s) {
	case "node":
		return api.PlatformNode
	case "neutral":
		return api.PlatformNeutral
	default:
		return api.PlatformBrowser
	}
}

func loaderFor(t ContentType) api.Loader {
	switch t {
	case ContentScript:
		return api.LoaderJS
	case ContentStylesheet:
		return api.LoaderCSS
	case ContentFile:
		return api.LoaderFile
	default:
		return api.LoaderText
	}
}

// loaderPlugin intercepts source and asset paths: sources load from the
// built-module registry, assets from disk with a loader chosen by type.
func loaderPlugin(ic Intercept) api.Plugin {
	return api.Plugin{
		Name: "esbridge",
		Setup: func(build api.PluginBuild) {
			resolve := func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if !strings.HasPrefix(args.Path, ".") && !filepath.IsAbs(args.Path) {
					return api.OnResolveResult{}, nil
				}
				p := args.Path
				if !filepath.IsAbs(p) {
					p = filepath.Join(args.ResolveDir, p)
				}
				return api.OnResolveResult{Path: filepath.Clean(p), Namespace: "file"}, nil
			}
			build.OnResolve(api.OnResolveOptions{Filter: AssetFilter.String()}, resolve)

			if ic.SourceSuffix == "" {
				return
			}
			filter := regexp.QuoteMeta(ic.SourceSuffix) + "$"
			build.OnResolve(api.OnResolveOptions{Filter: filter}, resolve)
			build.OnLoad(api.OnLoadOptions{Filter: filter, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if ic.Sources == nil {
						return api.OnLoadResult{}, fmt.Errorf("no build output for %s", args.Path)
					}
					src, ok := ic.Sources(args.Path)
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("no build output for %s", args.Path)
					}
					return api.OnLoadResult{
						Contents:   &src,
						ResolveDir: filepath.Dir(args.Path),
						Loader:     api.LoaderJS,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: AssetFilter.String(), Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					data, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					contents := string(data)
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: filepath.Dir(args.Path),
						Loader:     loaderFor(TypeFor(args.Path, ic.SourceSuffix)),
					}, nil
				})
		},
	}
}

type metafile struct {
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint"`
	} `json:"outputs"`
}

func parseMetafile(data, workDir string) ([]Output, error) {
	if data == "" {
		return nil, nil
	}
	var meta metafile
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("bundle: metafile: %w", err)
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workDir, filepath.FromSlash(p))
	}
	outputs := make([]Output, 0, len(meta.Outputs))
	for path, o := range meta.Outputs {
		outputs = append(outputs, Output{Path: abs(path), EntryPoint: abs(o.EntryPoint)})
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Path < outputs[j].Path })
	return outputs, nil
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}

func joinMessages(ms []api.Message) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = formatMessage(m)
	}
	return strings.Join(parts, "; ")
}
