package core

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/rowstream"
)

// MapRow applies mapping to one row. Each cell is looked up by its header
// text first and by its positional index ("0", "1", ...) if the header does
// not resolve to an attribute. Cells that resolve to no attribute are
// skipped. When two cells resolve to the same attribute the first one wins.
func MapRow(row rowstream.Row, mapping ColumnMapping) Record {
	record := make(Record, len(mapping))
	for _, cell := range row.Cells {
		key := resolveColumn(cell, mapping)
		if key == "" {
			continue
		}
		if _, set := record[key]; set {
			continue
		}
		record[key] = cell.Value
	}
	return record
}

func resolveColumn(cell rowstream.Cell, mapping ColumnMapping) string {
	if cell.Header != "" {
		if key := mapping[cell.Header]; key != "" {
			return key
		}
	}
	return mapping[strconv.Itoa(cell.Index)]
}

// IsBlankRecord reports whether r carries no data: it is empty, or every
// value is nil or a string that is blank after trimming.
func IsBlankRecord(r Record) bool {
	for _, v := range r {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="..." or =...) and
// surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// CleanRecord returns a copy of r with CleanCell applied to string values.
func CleanRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if s, ok := v.(string); ok {
			out[k] = CleanCell(s)
			continue
		}
		out[k] = v
	}
	return out
}
