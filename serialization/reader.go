package serialization

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// InputFormat selects how pipeline input lines are decoded
type InputFormat string

const (
	// InputLines treats every line as a string
	InputLines InputFormat = "lines"
	// InputJSON decodes every line as a JSON value
	InputJSON InputFormat = "json"
)

// ErrUnknownInputFormat is returned for unsupported input format names
var ErrUnknownInputFormat = errors.New("serialization: unknown input format")

// ParseInputFormat parses an input format name
func ParseInputFormat(s string) (InputFormat, error) {
	switch f := InputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case InputLines, InputJSON:
		return f, nil
	case "":
		return InputLines, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInputFormat, s)
}

// LineReader yields one value per input line. Blank lines are skipped, and so
// are lines that do not decode in the json format.
type LineReader struct {
	scanner *bufio.Scanner
	format  InputFormat
	logger  *slog.Logger
	line    int
	skipped int
	err     error
}

// ReaderOption configures a LineReader
type ReaderOption func(*LineReader)

// WithReaderLogger sets the logger that records skipped lines
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(r *LineReader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewLineReader creates a reader over r
func NewLineReader(r io.Reader, format InputFormat, opts ...ReaderOption) *LineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lr := &LineReader{scanner: scanner, format: format, logger: slog.Default()}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Next returns the next value. It reports false at the end of the input or
// on a read error, which Err returns.
func (r *LineReader) Next() (any, bool) {
	if r.err != nil {
		return nil, false
	}
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if r.format != InputJSON {
			return text, true
		}
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			r.skipped++
			r.logger.Debug("skipping undecodable input line", "line", r.line, "error", err)
			continue
		}
		return v, true
	}
	r.err = r.scanner.Err()
	return nil, false
}

// Skipped returns how many lines failed to decode
func (r *LineReader) Skipped() int {
	return r.skipped
}

// Err returns the error that stopped the reader, if any
func (r *LineReader) Err() error {
	return r.err
}
