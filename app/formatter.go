package main

import (
	"fmt"
	"strings"
)

// outputFormatter renders a query result row, or a COUNT(*) result, as
// one line of output. Console output is the default; JSON is available
// for callers that want machine-readable rows instead of the
// pipe-joined format.
type outputFormatter interface {
	FormatRow(columns []string, row map[string]value) string
	FormatCount(count int) string
}

// consoleFormatter joins a row's column values with '|', the format
// every scan and index path in the engine expects by default.
type consoleFormatter struct{}

func (consoleFormatter) FormatRow(columns []string, row map[string]value) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = row[c].Text()
	}
	return strings.Join(parts, "|")
}

func (consoleFormatter) FormatCount(count int) string {
	return formatInt(int64(count))
}

// jsonFormatter renders each row as a flat JSON object, one per line.
type jsonFormatter struct{}

func (jsonFormatter) FormatRow(columns []string, row map[string]value) string {
	pairs := make([]string, len(columns))
	for i, c := range columns {
		pairs[i] = fmt.Sprintf("%q: %s", c, jsonScalar(row[c]))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func (jsonFormatter) FormatCount(count int) string {
	return fmt.Sprintf(`{"count": %d}`, count)
}

func jsonScalar(v value) string {
	if v.isNull() {
		return "null"
	}
	switch v.kind {
	case kindText, kindBlob:
		return fmt.Sprintf("%q", v.Text())
	default:
		return v.Text()
	}
}
