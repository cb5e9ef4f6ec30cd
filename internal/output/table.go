package output

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"
)

// columnOrder places well-known keys first. Other keys follow in
// alphabetical order.
var columnOrder = []string{
	"id",
	"name",
	"url",
	"hyp_type",
	"alive",
	"state_name",
	"state",
	"memory",
	"num_cpu",
	"disk_size",
	"vnc_port",
	"vnc_hostname",
}

// byteColumns hold sizes in bytes and are shown in IEC units.
var byteColumns = map[string]bool{
	"disk_size": true,
}

// TableFormatter formats results as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatRecord formats a single result as a table row.
func (f *TableFormatter) FormatRecord(r Record) (string, error) {
	return f.FormatRecords([]Record{r})
}

// FormatRecords formats results as a table whose columns are the union of
// the records' keys.
func (f *TableFormatter) FormatRecords(rs []Record) (string, error) {
	if len(rs) == 0 {
		return "No resources found\n", nil
	}

	cols := columns(rs)

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	// Write header unless NoHeaders is set
	if !f.NoHeaders {
		header := make([]string, len(cols))
		for i, c := range cols {
			header[i] = strings.ToUpper(c)
		}
		_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	}

	for _, r := range rs {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cell(c, r[c])
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
	return buf.String(), nil
}

func columns(rs []Record) []string {
	seen := make(map[string]bool)
	for _, r := range rs {
		for k := range r {
			seen[k] = true
		}
	}

	var cols []string
	for _, k := range columnOrder {
		if seen[k] {
			cols = append(cols, k)
			delete(seen, k)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return slices.Concat(cols, rest)
}

func cell(col string, v any) string {
	if v == nil {
		return "-"
	}
	if byteColumns[col] {
		if n, err := cast.ToUint64E(v); err == nil {
			return humanize.IBytes(n)
		}
	}
	s := cast.ToString(v)
	if s == "" {
		return "-"
	}
	return s
}
