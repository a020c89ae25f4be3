// Package keyexpr validates and matches key expressions and maps them onto
// broker addressing schemes.
//
// A key expression is a "/"-separated list of chunks. The chunk "*" matches
// exactly one chunk and "**" matches zero or more chunks:
//
//	keyexpr.Intersects("demo/*/temp", "demo/**")  // true
//	keyexpr.Includes("demo/**", "demo/a/b")        // true
//
// Subjects maps a key expression onto the NATS subjects a subscriber must
// listen on, and RoutingKey maps it onto an AMQP topic binding.
package keyexpr
