package codec

import "strings"

// EscapeCell prefixes a quote to cells a spreadsheet would evaluate as a
// formula.
func EscapeCell(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '|', '%', '\t', '\r', '\n':
		// Plain negative numbers are data, not formulas.
		if value[0] == '-' && isNumber(value[1:]) {
			return value
		}
		return "'" + value
	}
	return value
}

// EscapeRow escapes every cell of a row into a new slice.
func EscapeRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCell(cell)
	}
	return escaped
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return !strings.HasSuffix(s, ".")
}
