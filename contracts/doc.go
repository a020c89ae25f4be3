// Package contracts provides the data types exchanged through a session.
//
// This package defines the values that flow between the transports and the
// commands:
//   - Sample: a publication (put or delete) on a key expression
//   - Reply: one answer to a query, carrying either a Sample or a ReplyError
//   - Query: a query as seen by a queryable, with the capability to reply
//   - Hello: a scouting answer describing a reachable node
//   - ZID: a session identifier
//
// The QoS enumerations (Priority, CongestionControl, Reliability, Locality,
// QueryTarget, ConsolidationMode) parse from and render to the names used on
// the command line.
package contracts
