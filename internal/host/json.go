package host

import (
	"encoding/json"
	"strings"

	"github.com/oxhq/ecrun/internal/value"
)

// jsonObject builds the JSON facade. Stringify walks values directly so
// object keys keep insertion order; Parse uses a token decoder for the same
// reason (encoding/json's map form would lose ordering, breaking the
// round-trip law of spec.md §8).
func jsonObject() value.Value {
	j := value.NewObject()
	method(j, "stringify", func(args []value.Value) (value.Value, error) {
		indent := ""
		if len(args) > 2 {
			switch args[2].Kind {
			case value.Number:
				indent = strings.Repeat(" ", int(args[2].AsNumber()))
			case value.String:
				indent = args[2].AsString()
			}
		}
		var b strings.Builder
		ok := writeJSON(&b, arg(args, 0), indent, "")
		if !ok {
			return value.Undef(), nil
		}
		return value.Str(b.String()), nil
	})
	method(j, "parse", func(args []value.Value) (value.Value, error) {
		dec := json.NewDecoder(strings.NewReader(value.ToString(arg(args, 0))))
		dec.UseNumber()
		v, err := decodeJSON(dec)
		if err != nil {
			return value.Undef(), hostErr("invalid JSON: %v", err)
		}
		return v, nil
	})
	return value.Obj(j)
}

// writeJSON serializes v; returns false when the value is not representable
// at the top level (undefined, function), matching JSON.stringify returning
// undefined.
func writeJSON(b *strings.Builder, v value.Value, indent, prefix string) bool {
	switch v.Kind {
	case value.Undefined, value.Function:
		return false
	case value.Null:
		b.WriteString("null")
	case value.Boolean:
		b.WriteString(value.ToString(v))
	case value.Number:
		b.WriteString(value.ToString(v))
	case value.String:
		q, _ := json.Marshal(v.AsString())
		b.Write(q)
	case value.DateKind:
		q, _ := json.Marshal(isoString(v.AsDate()))
		b.Write(q)
	case value.Array:
		arr := v.AsArray()
		if len(arr) == 0 {
			b.WriteString("[]")
			return true
		}
		inner := prefix + indent
		b.WriteString("[")
		for i, el := range arr {
			if i > 0 {
				b.WriteString(",")
			}
			writeSep(b, indent, inner)
			if !writeJSON(b, el, indent, inner) {
				b.WriteString("null")
			}
		}
		writeSep(b, indent, prefix)
		b.WriteString("]")
	case value.ObjectKind:
		obj := v.AsObject()
		keys := obj.Keys()
		inner := prefix + indent
		b.WriteString("{")
		first := true
		for _, k := range keys {
			pv, _ := obj.Get(k)
			if pv.Kind == value.Undefined || pv.Kind == value.Function {
				continue
			}
			if !first {
				b.WriteString(",")
			}
			first = false
			writeSep(b, indent, inner)
			q, _ := json.Marshal(k)
			b.Write(q)
			b.WriteString(":")
			if indent != "" {
				b.WriteString(" ")
			}
			writeJSON(b, pv, indent, inner)
		}
		if !first {
			writeSep(b, indent, prefix)
		}
		b.WriteString("}")
	default:
		b.WriteString("null")
	}
	return true
}

func writeSep(b *strings.Builder, indent, prefix string) {
	if indent != "" {
		b.WriteString("\n")
		b.WriteString(prefix)
	}
}

func decodeJSON(dec *json.Decoder) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value.Undef(), err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (value.Value, error) {
	switch t := tok.(type) {
	case nil:
		return value.Nul(), nil
	case bool:
		return value.Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return value.Undef(), err
		}
		return value.Num(f), nil
	case string:
		return value.Str(t), nil
	case json.Delim:
		switch t {
		case '[':
			var out []value.Value
			for dec.More() {
				el, err := decodeJSON(dec)
				if err != nil {
					return value.Undef(), err
				}
				out = append(out, el)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return value.Undef(), err
			}
			return value.Arr(out), nil
		case '{':
			obj := value.NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return value.Undef(), err
				}
				key := keyTok.(string)
				el, err := decodeJSON(dec)
				if err != nil {
					return value.Undef(), err
				}
				obj.Set(key, el)
			}
			if _, err := dec.Token(); err != nil { // closing }
				return value.Undef(), err
			}
			return value.Obj(obj), nil
		}
	}
	return value.Undef(), hostErr("unexpected JSON token %v", tok)
}
