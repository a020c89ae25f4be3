// Package local provides an in-process transport.
//
// Sessions opened with the "local" transport share DefaultHub and exchange
// samples, queries and hellos without any network. Puts are delivered
// synchronously on the publishing goroutine; each queryable answers on its
// own goroutine and the query is finalized once all of them returned.
package local
