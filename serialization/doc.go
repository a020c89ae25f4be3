// Package serialization converts session events into ordered records and
// renders them.
//
// Records keep their field order through every encoder. Writer renders
// records as JSON lines, YAML documents or go-pretty tables; LineReader
// decodes pipeline input from plain lines or JSON lines.
package serialization
