package runtime

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
)

// parsed is the source and grammar behind one tree.
type parsed struct {
	src  []byte
	lang *sitter.Language
}

// trees remembers what each parsed tree was built from. smacker's Node
// has no way back to its Tree, so entries are keyed by the root node
// pointer and found again by walking Parent().
type trees struct {
	mu     sync.RWMutex
	byRoot map[uintptr]parsed
}

func newTrees() *trees {
	return &trees{byRoot: make(map[uintptr]parsed)}
}

func rootKey(n *sitter.Node) uintptr {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return uintptr(unsafe.Pointer(n))
}

func (t *trees) add(tree *sitter.Tree, p parsed) {
	t.mu.Lock()
	t.byRoot[uintptr(unsafe.Pointer(tree.RootNode()))] = p
	t.mu.Unlock()
}

func (t *trees) of(n *sitter.Node) (parsed, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byRoot[rootKey(n)]
	return p, ok
}

func (t *trees) parse(ctx context.Context, src []byte, langName string) object.Object {
	lang, ok := ParserForLanguage(langName)
	if !ok {
		return object.Errorf("parse: unsupported language %q", langName)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("parse: %v", err)
	}
	t.add(tree, parsed{src: src, lang: lang})
	return proxyOrError("parse", tree)
}

func proxyOrError(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy: %v", fn, err)
	}
	return p
}

func stringArg(fn string, obj object.Object) (string, *object.Error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", object.Errorf("%s: expected string, got %s", fn, obj.Type())
	}
	return s.Value(), nil
}

func nodeArg(fn string, obj object.Object) (*sitter.Node, *object.Error) {
	p, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected node, got %s", fn, obj.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected node, got %T", fn, p.Interface())
	}
	return n, nil
}

// parseFn: parse(path [, language]). The language defaults to the one
// registered for the path's extension.
func (t *trees) parseFn() *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.NewArgsRangeError("parse", 1, 2, len(args))
		}
		path, oerr := stringArg("parse", args[0])
		if oerr != nil {
			return oerr
		}
		lang, ok := LanguageForFile(path)
		if len(args) == 2 {
			if lang, oerr = stringArg("parse", args[1]); oerr != nil {
				return oerr
			}
			ok = true
		}
		if !ok {
			return object.Errorf("parse: no language for %s", path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: %v", err)
		}
		return t.parse(ctx, src, lang)
	})
}

// parseSrcFn: parse_src(source, language).
func (t *trees) parseSrcFn() *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, oerr := stringArg("parse_src", args[0])
		if oerr != nil {
			return oerr
		}
		lang, oerr := stringArg("parse_src", args[1])
		if oerr != nil {
			return oerr
		}
		return t.parse(ctx, []byte(src), lang)
	})
}

// nodeTextFn: node_text(node). Scripts cannot hand a []byte to
// Node.Content, so the source is looked up host side.
func (t *trees) nodeTextFn() *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		n, oerr := nodeArg("node_text", args[0])
		if oerr != nil {
			return oerr
		}
		p, ok := t.of(n)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(n.Content(p.src))
	})
}

// nodeChildFn: node_child(node, field). Returns nil rather than a proxied
// nil pointer when the field is absent.
func nodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		n, oerr := nodeArg("node_child", args[0])
		if oerr != nil {
			return oerr
		}
		field, oerr := stringArg("node_child", args[1])
		if oerr != nil {
			return oerr
		}
		child := n.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOrError("node_child", child)
	})
}

// queryFn: query(pattern, node) returns one map per match, keyed by
// capture name.
func (t *trees) queryFn() *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, oerr := stringArg("query", args[0])
		if oerr != nil {
			return oerr
		}
		n, oerr := nodeArg("query", args[1])
		if oerr != nil {
			return oerr
		}
		p, ok := t.of(n)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), p.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, n)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, p.src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxyOrError("query", c.Node)
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// logObject exposes the engine logger to scripts as log.Info/Warn/Error/Debug.
type logObject struct {
	logger *log.Logger
	plugin string
}

func (l *logObject) Debug(msg string) { l.logger.Debug(msg, "plugin", l.plugin) }
func (l *logObject) Info(msg string)  { l.logger.Info(msg, "plugin", l.plugin) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg, "plugin", l.plugin) }
func (l *logObject) Error(msg string) { l.logger.Error(msg, "plugin", l.plugin) }

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
