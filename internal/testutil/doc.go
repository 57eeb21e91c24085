// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing transcripts and asserting on their shape.
// Not intended for production usage.
package testutil
