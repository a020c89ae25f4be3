// Package rabbitmq holds the AMQP plumbing of the RabbitMQ transport.
//
// This package includes:
//   - ConnectionManager: the connection, dialed under a retry policy and
//     re-established when the broker drops it
//   - ChannelPool: reusable channels for publishing and declarations
//   - Consumer: a queue with its bindings and a delivery handler, restarted
//     after reconnection
//   - Topology: exchanges declared up front
package rabbitmq
