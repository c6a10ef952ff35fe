package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/ecrun/internal/value"
)

// writeTree lays out module fixtures under a fresh temp dir and returns it.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return dir
}

func newResolver() *Resolver {
	return New(nil, nil)
}

func exportNum(t *testing.T, exports *value.Object, key string) float64 {
	t.Helper()
	v, ok := exports.Get(key)
	require.True(t, ok, "export %q missing", key)
	return value.ToNumber(v)
}

func TestNamedImportAcrossModules(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"m.ec":    `export const PI = 3.14; export function area(r) { return PI * r * r; }`,
		"main.ec": `import { area } from "./m"; export const result = area(2);`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "entry.ec"), "./main")
	require.NoError(t, err)
	assert.InDelta(t, 12.56, exportNum(t, exports, "result"), 1e-9)
}

func TestExtensionProbingOrder(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"dual.ec": `export const from = 1;`,
		"dual.js": `export const from = 2;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "entry.ec"), "./dual")
	require.NoError(t, err)
	assert.Equal(t, 1.0, exportNum(t, exports, "from"), ".ec must win over .js")
}

func TestDirectoryWithPackageJSON(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib/package.json": `{"main": "entry.ec"}`,
		"lib/entry.ec":     `export const tag = 7;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "main.ec"), "./lib")
	require.NoError(t, err)
	assert.Equal(t, 7.0, exportNum(t, exports, "tag"))
}

func TestDirectoryIndexFallback(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib/index.ec": `export const tag = 8;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "main.ec"), "./lib")
	require.NoError(t, err)
	assert.Equal(t, 8.0, exportNum(t, exports, "tag"))
}

func TestBareSpecifierAscendsNodeModules(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"node_modules/leftpad/index.ec": `export const width = 4;`,
		"app/deep/main.ec":              `export const ok = 1;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "app", "deep", "main.ec"), "leftpad")
	require.NoError(t, err)
	assert.Equal(t, 4.0, exportNum(t, exports, "width"))
}

func TestModuleEvaluatedOncePerCanonicalPath(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"counted.ec": `export const n = 1;`,
	})
	r := newResolver()
	first, err := r.Resolve(filepath.Join(dir, "a.ec"), "./counted")
	require.NoError(t, err)
	second, err := r.Resolve(filepath.Join(dir, "b.ec"), "./counted.ec")
	require.NoError(t, err)
	assert.Same(t, first, second, "both imports must share one exports record")
}

func TestCircularImportSeesPartialExports(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.ec": `
			export const early = 1;
			import * as b from "./b";
			export const fromB = b.fromA;
		`,
		"b.ec": `
			import * as a from "./a";
			export const fromA = a.early + 10;
		`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "main.ec"), "./a")
	require.NoError(t, err)
	assert.Equal(t, 11.0, exportNum(t, exports, "fromB"))
}

func TestMissingExportIsError(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"m.ec":    `export const present = 1;`,
		"main.ec": `import { absent } from "./m";`,
	})
	r := newResolver()
	_, err := r.Resolve(filepath.Join(dir, "x.ec"), "./main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")
}

func TestModuleNotFound(t *testing.T) {
	r := newResolver()
	_, err := r.Resolve(filepath.Join(t.TempDir(), "x.ec"), "./ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Module Error")
}

func TestDefaultExportAndImport(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"m.ec":    `function triple(x) { return x * 3; } export default triple;`,
		"main.ec": `import triple from "./m"; export const r = triple(5);`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "x.ec"), "./main")
	require.NoError(t, err)
	assert.Equal(t, 15.0, exportNum(t, exports, "r"))
}

func TestReExport(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"base.ec": `export const deep = 42;`,
		"hub.ec":  `export { deep as surfaced } from "./base";`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "x.ec"), "./hub")
	require.NoError(t, err)
	assert.Equal(t, 42.0, exportNum(t, exports, "surfaced"))
}

func TestCommonJSModuleExports(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"cjs.ec": `
			module.exports = { add: function(a, b) { return a + b; }, base: 10 };
		`,
		"main.ec": `import { base } from "./cjs"; export const r = base;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "x.ec"), "./main")
	require.NoError(t, err)
	assert.Equal(t, 10.0, exportNum(t, exports, "r"))
}

func TestCommonJSNonObjectExport(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"answer.ec": `module.exports = 42;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "x.ec"), "./answer")
	require.NoError(t, err)
	assert.Equal(t, 42.0, exportNum(t, exports, "default"))
}

func TestRequireReturnsModuleExports(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib.ec":  `exports.twice = function(x) { return x * 2; };`,
		"main.ec": `var lib = require("./lib"); export const r = lib.twice(21);`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "x.ec"), "./main")
	require.NoError(t, err)
	assert.Equal(t, 42.0, exportNum(t, exports, "r"))
}

func TestBuiltinModuleWithAndWithoutPrefix(t *testing.T) {
	r := newResolver()
	probe := value.NewObject()
	probe.Set("marker", value.Num(5))
	r.Builtins = map[string]func() *value.Object{
		"probe": func() *value.Object { return probe },
	}
	withPrefix, err := r.Resolve("/any.ec", "node:probe")
	require.NoError(t, err)
	bare, err := r.Resolve("/any.ec", "probe")
	require.NoError(t, err)
	assert.Same(t, withPrefix, bare)
}

func TestUnknownBuiltin(t *testing.T) {
	r := newResolver()
	_, err := r.Resolve("/any.ec", "node:bogus")
	require.Error(t, err)
}

func TestURLImportUsesFetcher(t *testing.T) {
	r := newResolver()
	fetched := 0
	r.Fetch = func(url string) (string, error) {
		fetched++
		return `export const remote = 1;`, nil
	}
	exports, err := r.Resolve("/any.ec", "https://example.com/mod.ec")
	require.NoError(t, err)
	assert.Equal(t, 1.0, exportNum(t, exports, "remote"))

	// Second import of the same URL reuses the cached module record.
	_, err = r.Resolve("/other.ec", "https://example.com/mod.ec")
	require.NoError(t, err)
	assert.Equal(t, 1, fetched)
}

func TestDynamicImportResolvesSameRecord(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"m.ec":    `export const tag = 3;`,
		"main.ec": `var mod = import("./m"); export const r = mod.tag;`,
	})
	r := newResolver()
	exports, err := r.Resolve(filepath.Join(dir, "x.ec"), "./main")
	require.NoError(t, err)
	assert.Equal(t, 3.0, exportNum(t, exports, "r"))
}
