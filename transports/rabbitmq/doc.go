// Package rabbitmq carries sessions over a RabbitMQ broker.
//
// Samples are published on the topic exchange "nuze.data" with a routing
// key derived from their key; subscribers bind exclusive queues with the
// matching pattern. Queries are broadcast on the fanout exchange
// "nuze.query" and answered on the querier's reply queue, correlated by
// id. Every session serving queryables acknowledges a query, replies and
// sends a final marker; a query ends once every acknowledging session has
// finished and the settle window passed without a new one. Scouting probes
// go through the fanout exchange "nuze.scout".
//
// Importing the package registers the driver under the "rabbitmq" transport name.
package rabbitmq
