// Package nats carries sessions over a NATS server.
//
// Samples are published on subjects derived from their key under a prefix
// ("nuze" by default), with metadata in message headers. Queries are
// broadcast on one subject; every session serving queryables
// acknowledges the query, streams its replies to the querier's inbox and
// sends a final marker. A query ends once all acknowledging sessions have
// finished and no new one showed up within the settle window, or at once
// when the server reports no responders.
//
// Importing the package registers the driver under the "nats" transport name.
package nats
