// Package commands implements the nuze command line.
//
// Every command maps one session operation onto standard streams: stdin
// items (one per line, plain strings or JSON values) feed publishers and
// queriers, and received samples, replies, queries and scouting answers are
// written as records. Streaming commands run until the input or the
// producer ends, or the process is interrupted.
package commands
