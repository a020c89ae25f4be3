// Package logging installs the process logger of the nuze CLI. Records are
// written as JSON to nuze.log.json and as text to nuze.log inside the log
// directory, never to stdout, which carries command output.
package logging
