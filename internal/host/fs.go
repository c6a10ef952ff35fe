package host

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oxhq/ecrun/internal/value"
)

// fsModule builds the fs host module: synchronous file operations plus a
// doublestar-backed glob, the same matcher the file-walking layer this is
// patterned on uses for `**` patterns.
func fsModule() *value.Object {
	m := value.NewObject()
	method(m, "readFile", func(args []value.Value) (value.Value, error) {
		data, err := os.ReadFile(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("readFile: %v", err)
		}
		if len(args) > 1 && value.ToString(args[1]) != "utf8" {
			return value.BufferValue(data), nil
		}
		return value.Str(string(data)), nil
	})
	method(m, "writeFile", func(args []value.Value) (value.Value, error) {
		path := value.ToString(arg(args, 0))
		var data []byte
		if arg(args, 1).Kind == value.Buffer {
			data = args[1].AsBuffer()
		} else {
			data = []byte(value.ToString(arg(args, 1)))
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return value.Undef(), hostErr("writeFile: %v", err)
		}
		return value.Undef(), nil
	})
	method(m, "appendFile", func(args []value.Value) (value.Value, error) {
		f, err := os.OpenFile(value.ToString(arg(args, 0)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return value.Undef(), hostErr("appendFile: %v", err)
		}
		defer f.Close()
		if _, err := f.WriteString(value.ToString(arg(args, 1))); err != nil {
			return value.Undef(), hostErr("appendFile: %v", err)
		}
		return value.Undef(), nil
	})
	method(m, "exists", func(args []value.Value) (value.Value, error) {
		_, err := os.Stat(value.ToString(arg(args, 0)))
		return value.Bool(err == nil), nil
	})
	method(m, "readdir", func(args []value.Value) (value.Value, error) {
		entries, err := os.ReadDir(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("readdir: %v", err)
		}
		out := make([]value.Value, len(entries))
		for i, e := range entries {
			out[i] = value.Str(e.Name())
		}
		return value.Arr(out), nil
	})
	method(m, "mkdir", func(args []value.Value) (value.Value, error) {
		if err := os.MkdirAll(value.ToString(arg(args, 0)), 0o755); err != nil {
			return value.Undef(), hostErr("mkdir: %v", err)
		}
		return value.Undef(), nil
	})
	method(m, "rm", func(args []value.Value) (value.Value, error) {
		if err := os.RemoveAll(value.ToString(arg(args, 0))); err != nil {
			return value.Undef(), hostErr("rm: %v", err)
		}
		return value.Undef(), nil
	})
	method(m, "rename", func(args []value.Value) (value.Value, error) {
		if err := os.Rename(value.ToString(arg(args, 0)), value.ToString(arg(args, 1))); err != nil {
			return value.Undef(), hostErr("rename: %v", err)
		}
		return value.Undef(), nil
	})
	method(m, "stat", func(args []value.Value) (value.Value, error) {
		info, err := os.Stat(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("stat: %v", err)
		}
		st := value.NewObject()
		st.Set("size", value.Num(float64(info.Size())))
		st.Set("isFile", value.Bool(info.Mode().IsRegular()))
		st.Set("isDirectory", value.Bool(info.IsDir()))
		st.Set("mtimeMs", value.Num(float64(info.ModTime().UnixMilli())))
		st.Set("mode", value.Num(float64(info.Mode().Perm())))
		return value.Obj(st), nil
	})
	method(m, "glob", func(args []value.Value) (value.Value, error) {
		pattern := value.ToString(arg(args, 0))
		root := "."
		if len(args) > 1 {
			root = value.ToString(args[1])
		}
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return value.Undef(), hostErr("glob: %v", err)
		}
		out := make([]value.Value, len(matches))
		for i, match := range matches {
			out[i] = value.Str(filepath.Join(root, match))
		}
		return value.Arr(out), nil
	})
	return m
}
