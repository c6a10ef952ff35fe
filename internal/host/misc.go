package host

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/oxhq/ecrun/internal/value"
)

func pathModule() *value.Object {
	m := value.NewObject()
	m.Set("sep", value.Str(string(filepath.Separator)))
	method(m, "join", func(args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = value.ToString(a)
		}
		return value.Str(filepath.Join(parts...)), nil
	})
	method(m, "resolve", func(args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = value.ToString(a)
		}
		abs, err := filepath.Abs(filepath.Join(parts...))
		if err != nil {
			return value.Undef(), hostErr("resolve: %v", err)
		}
		return value.Str(abs), nil
	})
	method(m, "dirname", func(args []value.Value) (value.Value, error) {
		return value.Str(filepath.Dir(value.ToString(arg(args, 0)))), nil
	})
	method(m, "basename", func(args []value.Value) (value.Value, error) {
		base := filepath.Base(value.ToString(arg(args, 0)))
		if len(args) > 1 {
			base = strings.TrimSuffix(base, value.ToString(args[1]))
		}
		return value.Str(base), nil
	})
	method(m, "extname", func(args []value.Value) (value.Value, error) {
		return value.Str(filepath.Ext(value.ToString(arg(args, 0)))), nil
	})
	method(m, "isAbsolute", func(args []value.Value) (value.Value, error) {
		return value.Bool(filepath.IsAbs(value.ToString(arg(args, 0)))), nil
	})
	method(m, "normalize", func(args []value.Value) (value.Value, error) {
		return value.Str(filepath.Clean(value.ToString(arg(args, 0)))), nil
	})
	method(m, "relative", func(args []value.Value) (value.Value, error) {
		rel, err := filepath.Rel(value.ToString(arg(args, 0)), value.ToString(arg(args, 1)))
		if err != nil {
			return value.Undef(), hostErr("relative: %v", err)
		}
		return value.Str(rel), nil
	})
	return m
}

func osModule() *value.Object {
	m := value.NewObject()
	m.Set("EOL", value.Str("\n"))
	method(m, "platform", func(args []value.Value) (value.Value, error) {
		return value.Str(runtime.GOOS), nil
	})
	method(m, "arch", func(args []value.Value) (value.Value, error) {
		return value.Str(runtime.GOARCH), nil
	})
	method(m, "cpus", func(args []value.Value) (value.Value, error) {
		out := make([]value.Value, runtime.NumCPU())
		for i := range out {
			cpu := value.NewObject()
			cpu.Set("model", value.Str(runtime.GOARCH))
			out[i] = value.Obj(cpu)
		}
		return value.Arr(out), nil
	})
	method(m, "homedir", func(args []value.Value) (value.Value, error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return value.Undef(), hostErr("homedir: %v", err)
		}
		return value.Str(home), nil
	})
	method(m, "tmpdir", func(args []value.Value) (value.Value, error) {
		return value.Str(os.TempDir()), nil
	})
	method(m, "hostname", func(args []value.Value) (value.Value, error) {
		name, err := os.Hostname()
		if err != nil {
			return value.Undef(), hostErr("hostname: %v", err)
		}
		return value.Str(name), nil
	})
	return m
}

func cryptoModule() *value.Object {
	m := value.NewObject()
	method(m, "createHash", func(args []value.Value) (value.Value, error) {
		algo := value.ToString(arg(args, 0))
		var h hash.Hash
		switch algo {
		case "sha256":
			h = sha256.New()
		case "sha512":
			h = sha512.New()
		case "sha1":
			h = sha1.New()
		case "md5":
			h = md5.New()
		default:
			return value.Undef(), hostErr("unsupported hash algorithm %q", algo)
		}
		hasher := value.NewObject()
		hasher.Class = "Hash"
		method(hasher, "update", func(args []value.Value) (value.Value, error) {
			if arg(args, 0).Kind == value.Buffer {
				h.Write(args[0].AsBuffer())
			} else {
				h.Write([]byte(value.ToString(arg(args, 0))))
			}
			return value.Obj(hasher), nil
		})
		method(hasher, "digest", func(args []value.Value) (value.Value, error) {
			sum := h.Sum(nil)
			enc := "hex"
			if len(args) > 0 {
				enc = value.ToString(args[0])
			}
			if enc == "buffer" {
				return value.BufferValue(sum), nil
			}
			s, err := encodeBytes(sum, enc)
			if err != nil {
				return value.Undef(), err
			}
			return value.Str(s), nil
		})
		return value.Obj(hasher), nil
	})
	method(m, "randomBytes", func(args []value.Value) (value.Value, error) {
		n := int(value.ToNumber(arg(args, 0)))
		if n < 0 {
			return value.Undef(), hostErr("randomBytes: negative size")
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return value.Undef(), hostErr("randomBytes: %v", err)
		}
		return value.BufferValue(buf), nil
	})
	method(m, "randomUUID", func(args []value.Value) (value.Value, error) {
		var b [16]byte
		if _, err := rand.Read(b[:]); err != nil {
			return value.Undef(), hostErr("randomUUID: %v", err)
		}
		b[6] = (b[6] & 0x0f) | 0x40
		b[8] = (b[8] & 0x3f) | 0x80
		return value.Str(fmt.Sprintf("%s-%s-%s-%s-%s",
			hex.EncodeToString(b[0:4]), hex.EncodeToString(b[4:6]),
			hex.EncodeToString(b[6:8]), hex.EncodeToString(b[8:10]),
			hex.EncodeToString(b[10:16]))), nil
	})
	return m
}

func utilModule() *value.Object {
	m := value.NewObject()
	method(m, "inspect", func(args []value.Value) (value.Value, error) {
		return value.Str(Inspect(arg(args, 0), true)), nil
	})
	method(m, "format", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Str(""), nil
		}
		format := value.ToString(args[0])
		rest := args[1:]
		var b strings.Builder
		i := 0
		for j := 0; j < len(format); j++ {
			if format[j] == '%' && j+1 < len(format) && i < len(rest) {
				switch format[j+1] {
				case 's':
					b.WriteString(value.ToString(rest[i]))
					i++
					j++
					continue
				case 'd':
					b.WriteString(value.ToString(value.Num(value.ToNumber(rest[i]))))
					i++
					j++
					continue
				case 'j':
					b.WriteString(Inspect(rest[i], true))
					i++
					j++
					continue
				case '%':
					b.WriteByte('%')
					j++
					continue
				}
			}
			b.WriteByte(format[j])
		}
		for ; i < len(rest); i++ {
			b.WriteString(" " + Inspect(rest[i], false))
		}
		return value.Str(b.String()), nil
	})
	method(m, "isArray", func(args []value.Value) (value.Value, error) {
		return value.Bool(arg(args, 0).Kind == value.Array), nil
	})
	method(m, "isFunction", func(args []value.Value) (value.Value, error) {
		return value.Bool(arg(args, 0).Kind == value.Function), nil
	})
	return m
}
