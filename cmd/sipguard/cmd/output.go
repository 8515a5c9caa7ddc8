package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Output format constants.
const (
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTable = "table"
)

// render writes v as JSON or YAML. It reports false for table output, which
// the caller prints itself.
func render(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return true, err
	case outputYAML:
		// Round trip through JSON so field names follow the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("marshal YAML: %w", err)
		}
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return true, fmt.Errorf("marshal YAML: %w", err)
		}
		out, err := yaml.Marshal(tree)
		if err != nil {
			return true, fmt.Errorf("marshal YAML: %w", err)
		}
		_, err = w.Write(out)
		return true, err
	case outputTable, "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q", format)
	}
}

type tableWriter struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, headers ...string) *tableWriter {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	return &tableWriter{w: w}
}

func (t *tableWriter) AddRow(values ...string) {
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

func (t *tableWriter) Flush() error {
	return t.w.Flush()
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}
