// Package diagnostics holds source text, maps byte offsets to line/column
// positions, and formats the uniform error payload shared by the lexer,
// parser, evaluator, and module resolver.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies which of the five error families a Diagnostic belongs to.
type Kind string

const (
	Lexical Kind = "Lexical"
	Syntax  Kind = "Syntax"
	Runtime Kind = "Runtime"
	Module  Kind = "Module"
	Host    Kind = "Host"
)

// Position locates a point in source text.
type Position struct {
	Offset int
	Line   int // 1-based
	Column int // 1-based
}

// Diagnostic is the uniform error payload carried by every core subsystem.
// It prints as "<Kind> Error at Line L, Column C: <message>" followed by a
// two-line source snippet with a caret under the offending column, matching
// spec.md §6. JSON renders it as a JSON payload, mirroring the teacher's
// CLIError.
type Diagnostic struct {
	Kind Code     `json:"code"`
	Pos  Position `json:"position"`
	Msg  string   `json:"message"`
	File string   `json:"file,omitempty"`
	// Snippet is the two source lines (offending + blank caret line) used
	// for display; empty when the diagnostic has no backing source buffer.
	Snippet string `json:"-"`
}

// Code pairs a Kind with a short machine-readable identifier, the way
// internal/model/errors.go's ErrorCode enum pairs a code with a sentinel.
type Code struct {
	Kind Kind
	ID   string
}

func (c Code) String() string { return string(c.Kind) }

func (d *Diagnostic) Error() string {
	head := fmt.Sprintf("%s Error at Line %d, Column %d: %s", d.Kind.Kind, d.Pos.Line, d.Pos.Column, d.Msg)
	if d.Snippet == "" {
		return head
	}
	return head + "\n" + d.Snippet
}

func (d *Diagnostic) String() string { return d.Error() }

// JSON renders the diagnostic as a JSON payload for --json-diagnostics mode.
func (d *Diagnostic) JSON() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// Buffer holds source text for a single file or eval string and computes
// line/column positions and caret snippets on demand.
type Buffer struct {
	Name string
	Text string
	// lineStarts[i] is the byte offset of the first byte of line i+1.
	lineStarts []int
}

// NewBuffer indexes line-start offsets once up front so Position lookups are
// O(log n) instead of rescanning the source on every diagnostic.
func NewBuffer(name, text string) *Buffer {
	b := &Buffer{Name: name, Text: text, lineStarts: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			b.lineStarts = append(b.lineStarts, i+1)
		}
	}
	return b
}

// Position converts a byte offset into a 1-based line/column pair.
func (b *Buffer) Position(offset int) Position {
	line := 1
	lo, hi := 0, len(b.lineStarts)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if b.lineStarts[mid] <= offset {
			line = mid + 1
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	col := offset - b.lineStarts[line-1] + 1
	return Position{Offset: offset, Line: line, Column: col}
}

// Snippet renders the two-line caret context spec.md §6 requires: the
// offending source line followed by a line of spaces and a caret under the
// offending column.
func (b *Buffer) Snippet(pos Position) string {
	lineIdx := pos.Line - 1
	if lineIdx < 0 || lineIdx >= len(b.lineStarts) {
		return ""
	}
	start := b.lineStarts[lineIdx]
	end := len(b.Text)
	if lineIdx+1 < len(b.lineStarts) {
		end = b.lineStarts[lineIdx+1] - 1
	}
	if end < start {
		end = start
	}
	line := strings.TrimRight(b.Text[start:end], "\r")
	caretCol := pos.Column - 1
	if caretCol < 0 {
		caretCol = 0
	}
	if caretCol > len(line) {
		caretCol = len(line)
	}
	return line + "\n" + strings.Repeat(" ", caretCol) + "^"
}

// New builds a Diagnostic at the given offset, filling in position and
// snippet from the buffer.
func (b *Buffer) New(kind Kind, id string, offset int, format string, args ...any) *Diagnostic {
	pos := b.Position(offset)
	return &Diagnostic{
		Kind:    Code{Kind: kind, ID: id},
		Pos:     pos,
		Msg:     fmt.Sprintf(format, args...),
		File:    b.Name,
		Snippet: b.Snippet(pos),
	}
}
