package tablesmasher

import (
	"strings"
)

// ParseTableTSV decodes the wire-format TSV of a table. The first line is
// the header; missing trailing cells are padded with empty strings so every
// row has one cell per column.
func ParseTableTSV(tableName, text string) (*Table, error) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil, NewInternalError("empty TSV response", nil).WithTable(tableName)
	}
	lines := strings.Split(text, "\n")
	header := strings.Split(strings.TrimRight(lines[0], "\r"), "\t")
	t := NewTable(tableName, header)
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		if len(cells) > len(header) {
			return nil, NewInternalError("TSV row wider than header", nil).
				WithTable(tableName).
				WithDetail("header_columns", len(header)).
				WithDetail("row_columns", len(cells))
		}
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

// TSV encodes the table in the wire format: a tab-separated header line
// followed by one line per row, in row order.
func (t *Table) TSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, "\t"))
	b.WriteByte('\n')
	for _, row := range t.Rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}
