// Package wire encodes samples, queries, replies and scouting hellos as
// header maps plus a body, the shape shared by the NATS and AMQP transports.
package wire
