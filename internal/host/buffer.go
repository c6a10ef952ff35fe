package host

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/oxhq/ecrun/internal/value"
)

// bufferNamespaceObj builds the static Buffer API: from, alloc, concat,
// isBuffer, byteLength.
func bufferNamespaceObj() *value.Object {
	b := value.NewObject()
	method(b, "from", func(args []value.Value) (value.Value, error) {
		src := arg(args, 0)
		switch src.Kind {
		case value.String:
			enc := "utf8"
			if len(args) > 1 {
				enc = value.ToString(args[1])
			}
			data, err := decodeString(src.AsString(), enc)
			if err != nil {
				return value.Undef(), err
			}
			return value.BufferValue(data), nil
		case value.Array:
			arr := src.AsArray()
			data := make([]byte, len(arr))
			for i, el := range arr {
				data[i] = byte(int(value.ToNumber(el)))
			}
			return value.BufferValue(data), nil
		case value.Buffer:
			return value.BufferValue(src.AsBuffer()), nil
		default:
			return value.Undef(), hostErr("Buffer.from: unsupported source type %s", src.Kind)
		}
	})
	method(b, "alloc", func(args []value.Value) (value.Value, error) {
		n := int(value.ToNumber(arg(args, 0)))
		if n < 0 {
			n = 0
		}
		return value.BufferValue(make([]byte, n)), nil
	})
	method(b, "concat", func(args []value.Value) (value.Value, error) {
		list := arg(args, 0)
		if list.Kind != value.Array {
			return value.BufferValue(nil), nil
		}
		var out []byte
		for _, el := range list.AsArray() {
			if el.Kind == value.Buffer {
				out = append(out, el.AsBuffer()...)
			}
		}
		return value.BufferValue(out), nil
	})
	method(b, "isBuffer", func(args []value.Value) (value.Value, error) {
		return value.Bool(arg(args, 0).Kind == value.Buffer), nil
	})
	method(b, "byteLength", func(args []value.Value) (value.Value, error) {
		src := arg(args, 0)
		if src.Kind == value.Buffer {
			return value.Num(float64(len(src.AsBuffer()))), nil
		}
		return value.Num(float64(len(value.ToString(src)))), nil
	})
	return b
}

func bufferNamespace() value.Value {
	return value.Obj(bufferNamespaceObj())
}

// bufferMethod vends instance properties of a buffer value. Buffers are
// immutable byte sequences (spec.md §3); slicing copies.
func bufferMethod(recv value.Value, name string) (value.Value, bool) {
	data := recv.AsBuffer()
	switch name {
	case "length":
		return value.Num(float64(len(data))), true
	case "toString":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			enc := "utf8"
			if len(args) > 0 {
				enc = value.ToString(args[0])
			}
			s, err := encodeBytes(data, enc)
			if err != nil {
				return value.Undef(), err
			}
			return value.Str(s), nil
		})), true
	case "slice":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			start, end := 0, len(data)
			if len(args) > 0 {
				start = clampByteIndex(int(value.ToNumber(args[0])), len(data))
			}
			if len(args) > 1 {
				end = clampByteIndex(int(value.ToNumber(args[1])), len(data))
			}
			if end < start {
				end = start
			}
			return value.BufferValue(data[start:end]), nil
		})), true
	case "indexOf":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			needle := byte(int(value.ToNumber(arg(args, 0))))
			for i, c := range data {
				if c == needle {
					return value.Num(float64(i)), nil
				}
			}
			return value.Num(-1), nil
		})), true
	default:
		return value.Undef(), false
	}
}

func clampByteIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

func decodeString(s, enc string) ([]byte, error) {
	switch enc {
	case "utf8", "utf-8", "":
		return []byte(s), nil
	case "hex":
		return hex.DecodeString(s)
	case "base64":
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, hostErr("unknown encoding %q", enc)
	}
}

func encodeBytes(data []byte, enc string) (string, error) {
	switch enc {
	case "utf8", "utf-8", "":
		return string(data), nil
	case "hex":
		return hex.EncodeToString(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", hostErr("unknown encoding %q", enc)
	}
}
