package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/ecrun/internal/value"
)

func callModule(t *testing.T, m *value.Object, name string, args ...value.Value) value.Value {
	t.Helper()
	f, ok := m.Get(name)
	require.True(t, ok, "module function %q missing", name)
	require.Equal(t, value.Function, f.Kind)
	out, err := f.AsCallable().Call(args)
	require.NoError(t, err)
	return out
}

func TestQuerystringRoundTrip(t *testing.T) {
	qs := querystringModule()
	obj := value.NewObject()
	obj.Set("name", value.Str("ada lovelace"))
	obj.Set("n", value.Num(42))
	obj.Set("empty", value.Str(""))

	encoded := callModule(t, qs, "stringify", value.Obj(obj))
	assert.Equal(t, "name=ada+lovelace&n=42&empty=", encoded.AsString())

	decoded := callModule(t, qs, "parse", encoded)
	require.Equal(t, value.ObjectKind, decoded.Kind)
	back := decoded.AsObject()
	assert.Equal(t, []string{"name", "n", "empty"}, back.Keys(), "parse preserves key order")

	name, _ := back.Get("name")
	assert.Equal(t, value.Str("ada lovelace"), name)
	// Numbers come back as strings, per the round-trip law's normalization.
	n, _ := back.Get("n")
	assert.Equal(t, value.Str("42"), n)
}

func TestQuerystringRepeatedKeys(t *testing.T) {
	qs := querystringModule()
	decoded := callModule(t, qs, "parse", value.Str("tag=a&tag=b"))
	tag, _ := decoded.AsObject().Get("tag")
	require.Equal(t, value.Array, tag.Kind)
	assert.Len(t, tag.AsArray(), 2)
}

func TestURLParse(t *testing.T) {
	u := urlModule()
	parsed := callModule(t, u, "parse", value.Str("https://example.com:8080/a/b?x=1&y=two#frag"))
	obj := parsed.AsObject()

	get := func(key string) string {
		v, ok := obj.Get(key)
		require.True(t, ok, "missing url field %q", key)
		return value.ToString(v)
	}
	assert.Equal(t, "https:", get("protocol"))
	assert.Equal(t, "example.com", get("hostname"))
	assert.Equal(t, "8080", get("port"))
	assert.Equal(t, "/a/b", get("pathname"))
	assert.Equal(t, "?x=1&y=two", get("search"))
	assert.Equal(t, "#frag", get("hash"))

	query, _ := obj.Get("query")
	y, _ := query.AsObject().Get("y")
	assert.Equal(t, value.Str("two"), y)
}

func TestURLResolve(t *testing.T) {
	u := urlModule()
	out := callModule(t, u, "resolve", value.Str("https://example.com/a/b"), value.Str("../c"))
	assert.Equal(t, "https://example.com/c", out.AsString())
}

func TestPathModule(t *testing.T) {
	p := pathModule()
	assert.Equal(t, "a/b/c", callModule(t, p, "join", value.Str("a"), value.Str("b"), value.Str("c")).AsString())
	assert.Equal(t, ".ec", callModule(t, p, "extname", value.Str("/x/mod.ec")).AsString())
	assert.Equal(t, "mod.ec", callModule(t, p, "basename", value.Str("/x/mod.ec")).AsString())
	assert.Equal(t, "mod", callModule(t, p, "basename", value.Str("/x/mod.ec"), value.Str(".ec")).AsString())
	assert.Equal(t, "/x", callModule(t, p, "dirname", value.Str("/x/mod.ec")).AsString())
	assert.Equal(t, value.Bool(true), callModule(t, p, "isAbsolute", value.Str("/x")))
}

func TestCryptoHash(t *testing.T) {
	c := cryptoModule()
	hasher := callModule(t, c, "createHash", value.Str("sha256"))
	require.Equal(t, value.ObjectKind, hasher.Kind)

	update, _ := hasher.AsObject().Get("update")
	_, err := update.AsCallable().Call([]value.Value{value.Str("abc")})
	require.NoError(t, err)

	digest, _ := hasher.AsObject().Get("digest")
	sum, err := digest.AsCallable().Call([]value.Value{value.Str("hex")})
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum.AsString())
}

func TestCryptoRandom(t *testing.T) {
	c := cryptoModule()
	buf := callModule(t, c, "randomBytes", value.Num(16))
	require.Equal(t, value.Buffer, buf.Kind)
	assert.Len(t, buf.AsBuffer(), 16)

	uuid := callModule(t, c, "randomUUID")
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, uuid.AsString())
}

func TestFsModuleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := fsModule()

	path := value.Str(dir + "/probe.txt")
	callModule(t, m, "writeFile", path, value.Str("content"))
	assert.Equal(t, value.Bool(true), callModule(t, m, "exists", path))
	assert.Equal(t, value.Str("content"), callModule(t, m, "readFile", path))

	names := callModule(t, m, "readdir", value.Str(dir))
	require.Equal(t, value.Array, names.Kind)
	assert.Len(t, names.AsArray(), 1)

	st := callModule(t, m, "stat", path)
	size, _ := st.AsObject().Get("size")
	assert.Equal(t, value.Num(7), size)

	matches := callModule(t, m, "glob", value.Str("**/*.txt"), value.Str(dir))
	assert.Len(t, matches.AsArray(), 1)
}

func TestUtilFormat(t *testing.T) {
	u := utilModule()
	out := callModule(t, u, "format", value.Str("%s has %d items"), value.Str("cart"), value.Num(3))
	assert.Equal(t, "cart has 3 items", out.AsString())
}
