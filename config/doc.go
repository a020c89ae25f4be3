// Package config loads the nuze CLI configuration.
//
// Configuration comes from a YAML file, NUZE_* environment variables and
// built-in defaults, in that order of precedence after the environment:
//
//	sessions:
//	  default:
//	    transport: local
//	  edge:
//	    transport: nats
//	    url: nats://localhost:4222
//	    mode: client
//	    query_timeout: 5s
//	channel:
//	  capacity: 256
//	poll:
//	  granularity: 50ms
//
// A "default" session on the local transport always exists.
package config
