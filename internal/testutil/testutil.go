// Package testutil holds the shared test helpers: a unified-diff renderer
// for comparing multi-line expected/actual output (console logs, formatted
// diagnostics) with readable failures.
package testutil

import (
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

// AssertLinesEqual fails the test with a unified diff when actual differs
// from expected.
func AssertLinesEqual(t *testing.T, expected, actual, label string) {
	t.Helper()
	if expected == actual {
		return
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		t.Fatalf("%s: diff failed: %v", label, err)
	}
	t.Errorf("%s mismatch:\n%s", label, text)
}

// Dedent strips two leading tabs from each line of a raw-string test
// fixture (lines without them are left as they are), trims the result, and
// ends it with one newline, so ec sources can be written inline at Go
// indentation depth.
func Dedent(src string) string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, "\t\t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}
