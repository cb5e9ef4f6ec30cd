package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct{}

// FormatRecord formats a single result as a JSON object.
func (f *JSONFormatter) FormatRecord(r Record) (string, error) {
	if r == nil {
		r = Record{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatRecords formats results as a JSON array.
func (f *JSONFormatter) FormatRecords(rs []Record) (string, error) {
	if len(rs) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
