// Package backendconn implements Connection<Backend> from spec.md 4.4: a
// per-backend wire state machine (Disconnected through Closed) driven
// entirely by reactor readiness callbacks, never by a blocking read or
// write. PGConnection speaks the wire/pg extended-query subset with one
// in-flight operation at a time; RedisConnection speaks wire/resp with
// pipelined, FIFO-ordered replies.
package backendconn
