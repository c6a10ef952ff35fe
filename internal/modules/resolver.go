// Package modules implements spec.md §4.I: specifier resolution across
// relative paths, URLs, node:-prefixed builtins, and bare node_modules
// lookups, with parse-and-evaluate-once caching keyed by canonical path and
// partial-exports visibility for circular imports.
package modules

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/environment"
	"github.com/oxhq/ecrun/internal/evaluator"
	"github.com/oxhq/ecrun/internal/eventloop"
	"github.com/oxhq/ecrun/internal/modcache"
	"github.com/oxhq/ecrun/internal/parser"
	"github.com/oxhq/ecrun/internal/value"
)

// extensions are probed in order when a specifier has none (spec.md §6).
var extensions = []string{".ec", ".js", ".mjs"}

// record is one cached module: registered before evaluation so re-entrant
// imports during a cycle observe the in-progress exports map.
type record struct {
	path    string
	exports *value.Object
	// cjsValue holds the raw module.exports value for a CommonJS module, so
	// require() can return it unwrapped.
	cjsValue value.Value
	hasCJS   bool
}

// Resolver resolves and evaluates modules. Install is called on each fresh
// module evaluator to wire the host surface; Builtins supplies the node:
// host modules; Fetch retrieves URL imports (NewFetcher provides the
// default, backed by the persistent cache).
type Resolver struct {
	Loop     *eventloop.Loop
	Install  func(*evaluator.Evaluator)
	Builtins map[string]func() *value.Object
	Fetch    func(url string) (string, error)
	// Log, when set, traces resolution and evaluation at debug level.
	Log *diagnostics.Logger

	cache map[string]*record
}

func (r *Resolver) debugf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Debugf(format, args...)
	}
}

// New creates a Resolver sharing the given loop across all modules it loads.
func New(loop *eventloop.Loop, install func(*evaluator.Evaluator)) *Resolver {
	return &Resolver{
		Loop:    loop,
		Install: install,
		cache:   make(map[string]*record),
	}
}

func moduleErr(file, format string, args ...any) error {
	return &diagnostics.Diagnostic{
		Kind: diagnostics.Code{Kind: diagnostics.Module, ID: "MODULE_ERROR"},
		Msg:  fmt.Sprintf(format, args...),
		File: file,
	}
}

// LoadEntry parses and evaluates the program entry file as a module, so its
// top level may use import/export like any other module.
func (r *Resolver) LoadEntry(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return moduleErr(path, "cannot resolve entry path: %v", err)
	}
	_, err = r.load(abs)
	return err
}

// Resolve implements evaluator.ModuleResolver (spec.md §4.I resolution
// algorithm).
func (r *Resolver) Resolve(fromFile, specifier string) (*value.Object, error) {
	rec, err := r.resolveRecord(fromFile, specifier)
	if err != nil {
		return nil, err
	}
	return rec.exports, nil
}

// Require resolves a specifier the CommonJS way: the returned value is the
// module's raw module.exports when it is CommonJS, otherwise the exports
// record as an object.
func (r *Resolver) Require(fromFile, specifier string) (value.Value, error) {
	rec, err := r.resolveRecord(fromFile, specifier)
	if err != nil {
		return value.Undef(), err
	}
	if rec.hasCJS {
		return rec.cjsValue, nil
	}
	return value.Obj(rec.exports), nil
}

func (r *Resolver) resolveRecord(fromFile, specifier string) (*record, error) {
	// Built-in host modules, with or without the node: prefix (spec.md §6).
	name := strings.TrimPrefix(specifier, "node:")
	if builtin, ok := r.Builtins[name]; ok {
		key := "node:" + name
		if rec, ok := r.cache[key]; ok {
			return rec, nil
		}
		rec := &record{path: key, exports: builtin()}
		r.cache[key] = rec
		return rec, nil
	}
	if strings.HasPrefix(specifier, "node:") {
		return nil, moduleErr(fromFile, "unknown built-in module %q", specifier)
	}

	if strings.HasPrefix(specifier, "http://") || strings.HasPrefix(specifier, "https://") {
		return r.loadURL(specifier)
	}

	fromDir := filepath.Dir(fromFile)
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || strings.HasPrefix(specifier, "/") {
		path, err := r.resolveFile(filepath.Join(fromDir, specifier))
		if err != nil {
			return nil, moduleErr(fromFile, "cannot resolve %q: %v", specifier, err)
		}
		return r.load(path)
	}

	// Bare specifier: walk node_modules upward from the importing file's
	// directory to the filesystem root.
	for dir := fromDir; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "node_modules", specifier)
		if path, err := r.resolveFile(candidate); err == nil {
			return r.load(path)
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return nil, moduleErr(fromFile, "cannot find module %q", specifier)
}

// resolveFile applies the extension-probing and directory rules of spec.md
// §4.I.1 to a filesystem path.
func (r *Resolver) resolveFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil {
		if !info.IsDir() {
			return abs, nil
		}
		// Directory: package.json "main" wins, then index.{ec,js,mjs}.
		if main := packageMain(abs); main != "" {
			return r.resolveFile(filepath.Join(abs, main))
		}
		for _, ext := range extensions {
			idx := filepath.Join(abs, "index"+ext)
			if _, err := os.Stat(idx); err == nil {
				return idx, nil
			}
		}
		return "", fmt.Errorf("directory %s has no package.json main or index file", abs)
	}
	if filepath.Ext(abs) == "" {
		for _, ext := range extensions {
			if _, err := os.Stat(abs + ext); err == nil {
				return abs + ext, nil
			}
		}
	}
	return "", fmt.Errorf("no such file: %s", abs)
}

func packageMain(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Main
}

func (r *Resolver) load(canonical string) (*record, error) {
	if rec, ok := r.cache[canonical]; ok {
		return rec, nil
	}
	src, err := os.ReadFile(canonical)
	if err != nil {
		return nil, moduleErr(canonical, "cannot read module: %v", err)
	}
	return r.evaluate(canonical, string(src))
}

func (r *Resolver) loadURL(url string) (*record, error) {
	if rec, ok := r.cache[url]; ok {
		return rec, nil
	}
	if r.Fetch == nil {
		return nil, moduleErr(url, "URL imports are not enabled")
	}
	r.debugf("fetching %s", url)
	src, err := r.Fetch(url)
	if err != nil {
		return nil, moduleErr(url, "fetch failed: %v", err)
	}
	return r.evaluate(url, src)
}

// evaluate parses and runs module source exactly once, registering the
// record before execution so circular imports see the partial exports map.
func (r *Resolver) evaluate(canonical, src string) (*record, error) {
	r.debugf("evaluating module %s (%d bytes)", canonical, len(src))
	prog, err := parser.Parse(canonical, src)
	if err != nil {
		return nil, err
	}

	rec := &record{path: canonical, exports: value.NewObject()}
	r.cache[canonical] = rec

	ev := evaluator.New(r.Loop, r, diagnostics.NewBuffer(canonical, src))
	ev.Exports = rec.exports
	if r.Install != nil {
		r.Install(ev)
	}
	r.installModuleScope(ev, canonical)

	if err := ev.Run(prog); err != nil {
		delete(r.cache, canonical)
		return nil, err
	}

	r.finishCommonJS(ev, rec)
	return rec, nil
}

// installModuleScope pre-declares the CommonJS ambient bindings: module,
// exports, and require (spec.md §4.I CommonJS detection relies on scripts
// assigning to these).
func (r *Resolver) installModuleScope(ev *evaluator.Evaluator, canonical string) {
	moduleObj := value.NewObject()
	exportsObj := value.NewObject()
	moduleObj.Set("exports", value.Obj(exportsObj))

	declare(ev, "module", value.Obj(moduleObj))
	declare(ev, "exports", value.Obj(exportsObj))
	declare(ev, "require", value.Fn(goFunc(func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undef(), moduleErr(canonical, "require needs a specifier")
		}
		return r.Require(canonical, value.ToString(args[0]))
	})))
	declare(ev, "__filename", value.Str(canonical))
	declare(ev, "__dirname", value.Str(filepath.Dir(canonical)))
}

// finishCommonJS derives the exports record from module.exports when the
// module declared no ES exports: a non-object assignment replaces the record
// as {default: value}; an object merges property-by-property with the whole
// object doubling as the default export (spec.md §6 / §9).
func (r *Resolver) finishCommonJS(ev *evaluator.Evaluator, rec *record) {
	if len(rec.exports.Keys()) > 0 {
		return
	}
	mv, ok, _ := ev.Global.Get("module")
	if !ok {
		return
	}
	moduleVal, ok := mv.(value.Value)
	if !ok || moduleVal.Kind != value.ObjectKind {
		return
	}
	exportsVal, ok := moduleVal.AsObject().Get("exports")
	if !ok {
		return
	}
	if exportsVal.Kind != value.ObjectKind {
		rec.exports.Set("default", exportsVal)
		rec.cjsValue = exportsVal
		rec.hasCJS = true
		return
	}
	obj := exportsVal.AsObject()
	if len(obj.Keys()) == 0 {
		return
	}
	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		rec.exports.Set(k, v)
	}
	rec.exports.Set("default", exportsVal)
	rec.cjsValue = exportsVal
	rec.hasCJS = true
}

func declare(ev *evaluator.Evaluator, name string, v value.Value) {
	if err := ev.Global.Declare(name, environment.KindConst, true); err == nil {
		ev.Global.Initialize(name, v)
	}
}

// goFunc adapts a Go closure to value.Callable for the require binding.
type goFunc func(args []value.Value) (value.Value, error)

func (g goFunc) Call(args []value.Value) (value.Value, error) { return g(args) }

// NewFetcher returns the default URL-import fetcher: HTTP GET with the
// persistent SHA-256-addressed cache consulted first on network failure and
// refreshed on success, permitting offline reuse (spec.md §4.I.2). A nil
// store disables persistence but keeps fetching working.
func NewFetcher(store *modcache.Store) func(url string) (string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(url string) (string, error) {
		resp, err := client.Get(url)
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				body, readErr := io.ReadAll(resp.Body)
				if readErr == nil {
					if store != nil {
						_ = store.Put(url, string(body))
					}
					return string(body), nil
				}
				err = readErr
			} else {
				err = fmt.Errorf("unexpected status %s", resp.Status)
			}
		}
		if store != nil {
			if body, ok, cacheErr := store.Get(url); cacheErr == nil && ok {
				return body, nil
			}
		}
		return "", err
	}
}
