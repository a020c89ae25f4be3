package serialization

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Format selects how values are rendered
type Format string

const (
	// FormatAuto renders tables on a terminal and JSON lines otherwise
	FormatAuto  Format = "auto"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ErrUnknownFormat is returned for unsupported format names
var ErrUnknownFormat = errors.New("serialization: unknown format")

// ParseFormat parses a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAuto, FormatJSON, FormatYAML, FormatTable:
		return f, nil
	case "":
		return FormatAuto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer renders pipeline values. It is not safe for concurrent use.
type Writer struct {
	out      io.Writer
	format   Format
	terminal bool
	yamlEnc  *yaml.Encoder
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithTerminal overrides terminal detection
func WithTerminal(terminal bool) WriterOption {
	return func(w *Writer) {
		w.terminal = terminal
	}
}

// NewWriter creates a writer rendering to out
func NewWriter(out io.Writer, format Format, opts ...WriterOption) *Writer {
	w := &Writer{
		out:      out,
		format:   format,
		terminal: IsTerminal(out),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders one value: a Record, a list of records, a list of batches,
// or a scalar
func (w *Writer) Write(v any) error {
	switch w.resolve(v) {
	case FormatYAML:
		return w.writeYAML(v)
	case FormatTable:
		return w.writeTable(v)
	default:
		return w.writeJSON(v)
	}
}

// Close flushes pending output
func (w *Writer) Close() error {
	if w.yamlEnc != nil {
		return w.yamlEnc.Close()
	}
	return nil
}

func (w *Writer) resolve(v any) Format {
	if w.format != FormatAuto {
		return w.format
	}
	if !w.terminal {
		return FormatJSON
	}
	switch v.(type) {
	case Record, []Record, [][]Record:
		return FormatTable
	}
	return FormatJSON
}

func (w *Writer) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	_, err = w.out.Write(data)
	return err
}

func (w *Writer) writeYAML(v any) error {
	if w.yamlEnc == nil {
		w.yamlEnc = yaml.NewEncoder(w.out)
		w.yamlEnc.SetIndent(2)
	}
	if err := w.yamlEnc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return nil
}

func (w *Writer) writeTable(v any) error {
	var rendered string
	switch val := v.(type) {
	case Record:
		rendered = recordTable(val)
	case []Record:
		rendered = listTable(val)
	case [][]Record:
		tables := make([]string, len(val))
		for i, batch := range val {
			tables[i] = listTable(batch)
		}
		rendered = strings.Join(tables, "\n")
	default:
		rendered = cell(v)
	}
	_, err := fmt.Fprintln(w.out, rendered)
	return err
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func recordTable(r Record) string {
	tw := newTable()
	for _, f := range r {
		tw.AppendRow(table.Row{f.Key, cell(f.Value)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignLeft},
	})
	return tw.Render()
}

func listTable(records []Record) string {
	if len(records) == 0 {
		return "(empty)"
	}

	var columns []string
	index := make(map[string]int)
	for _, r := range records {
		for _, f := range r {
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(columns)
				columns = append(columns, f.Key)
			}
		}
	}

	tw := newTable()
	header := make(table.Row, len(columns)+1)
	header[0] = "#"
	for i, c := range columns {
		header[i+1] = c
	}
	tw.AppendHeader(header)

	for n, r := range records {
		row := make(table.Row, len(columns)+1)
		row[0] = n
		for i := range columns {
			row[i+1] = ""
		}
		for _, f := range r {
			row[index[f.Key]+1] = cell(f.Value)
		}
		tw.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, len(columns)+1)
	configs = append(configs, table.ColumnConfig{Number: 1, Align: text.AlignRight})
	for i := range columns {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return hex.EncodeToString(val)
	case []string:
		return strings.Join(val, ", ")
	case fmt.Stringer:
		return val.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
