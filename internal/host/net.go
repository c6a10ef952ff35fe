package host

import (
	"net/url"
	"strings"

	"github.com/oxhq/ecrun/internal/value"
)

func urlModule() *value.Object {
	m := value.NewObject()
	method(m, "parse", func(args []value.Value) (value.Value, error) {
		u, err := url.Parse(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("invalid URL: %v", err)
		}
		out := value.NewObject()
		out.Set("href", value.Str(u.String()))
		out.Set("protocol", value.Str(u.Scheme+":"))
		out.Set("host", value.Str(u.Host))
		out.Set("hostname", value.Str(u.Hostname()))
		out.Set("port", value.Str(u.Port()))
		out.Set("pathname", value.Str(u.Path))
		search := ""
		if u.RawQuery != "" {
			search = "?" + u.RawQuery
		}
		out.Set("search", value.Str(search))
		hash := ""
		if u.Fragment != "" {
			hash = "#" + u.Fragment
		}
		out.Set("hash", value.Str(hash))
		query := value.NewObject()
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			k, v, _ := strings.Cut(pair, "=")
			ku, _ := url.QueryUnescape(k)
			vu, _ := url.QueryUnescape(v)
			query.Set(ku, value.Str(vu))
		}
		out.Set("query", value.Obj(query))
		return value.Obj(out), nil
	})
	method(m, "format", func(args []value.Value) (value.Value, error) {
		o := arg(args, 0)
		if o.Kind != value.ObjectKind {
			return value.Str(""), nil
		}
		obj := o.AsObject()
		get := func(key string) string {
			if v, ok := obj.Get(key); ok {
				return value.ToString(v)
			}
			return ""
		}
		u := url.URL{
			Scheme:   strings.TrimSuffix(get("protocol"), ":"),
			Host:     get("host"),
			Path:     get("pathname"),
			RawQuery: strings.TrimPrefix(get("search"), "?"),
			Fragment: strings.TrimPrefix(get("hash"), "#"),
		}
		return value.Str(u.String()), nil
	})
	method(m, "resolve", func(args []value.Value) (value.Value, error) {
		base, err := url.Parse(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("invalid base URL: %v", err)
		}
		ref, err := url.Parse(value.ToString(arg(args, 1)))
		if err != nil {
			return value.Undef(), hostErr("invalid URL: %v", err)
		}
		return value.Str(base.ResolveReference(ref).String()), nil
	})
	return m
}

// querystringModule implements parse/stringify with the round-trip law of
// spec.md §8: parse(stringify(obj)) equals obj modulo values becoming
// strings. Key order is preserved on parse; stringify emits in insertion
// order.
func querystringModule() *value.Object {
	m := value.NewObject()
	method(m, "parse", func(args []value.Value) (value.Value, error) {
		out := value.NewObject()
		raw := strings.TrimPrefix(value.ToString(arg(args, 0)), "?")
		for _, pair := range strings.Split(raw, "&") {
			if pair == "" {
				continue
			}
			k, v, _ := strings.Cut(pair, "=")
			ku, _ := url.QueryUnescape(k)
			vu, _ := url.QueryUnescape(v)
			if existing, ok := out.Get(ku); ok {
				// Repeated keys collect into an array.
				if existing.Kind == value.Array {
					ref := existing.ArrayRef()
					*ref = append(*ref, value.Str(vu))
				} else {
					out.Set(ku, value.Arr([]value.Value{existing, value.Str(vu)}))
				}
				continue
			}
			out.Set(ku, value.Str(vu))
		}
		return value.Obj(out), nil
	})
	method(m, "stringify", func(args []value.Value) (value.Value, error) {
		o := arg(args, 0)
		if o.Kind != value.ObjectKind {
			return value.Str(""), nil
		}
		obj := o.AsObject()
		var parts []string
		for _, k := range obj.Keys() {
			v, _ := obj.Get(k)
			if v.Kind == value.Array {
				for _, el := range v.AsArray() {
					parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(value.ToString(el)))
				}
				continue
			}
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(value.ToString(v)))
		}
		return value.Str(strings.Join(parts, "&")), nil
	})
	method(m, "escape", func(args []value.Value) (value.Value, error) {
		return value.Str(url.QueryEscape(value.ToString(arg(args, 0)))), nil
	})
	method(m, "unescape", func(args []value.Value) (value.Value, error) {
		s, err := url.QueryUnescape(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("unescape: %v", err)
		}
		return value.Str(s), nil
	})
	return m
}
