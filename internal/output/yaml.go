package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats results as YAML.
type YAMLFormatter struct{}

// FormatRecord formats a single result as a YAML mapping.
func (f *YAMLFormatter) FormatRecord(r Record) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result to YAML: %w", err)
	}

	return string(data), nil
}

// FormatRecords formats results as a YAML stream (multiple documents
// separated by ---).
func (f *YAMLFormatter) FormatRecords(rs []Record) (string, error) {
	if len(rs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer

	for i, r := range rs {
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result %d to YAML: %w", i, err)
		}

		// Add document separator between results (but not before the first one)
		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}
