// Package net implements the channels used to talk to consensus and mirror
// nodes.
//
// A Channel is a long-lived connection to one endpoint on which unary and
// server-streaming calls are made. There are two implementations:
//
// - GRPC: a gRPC client connection carrying msgpack-encoded messages, over
// plain TCP or TLS
//
// - Inmem: an in-memory channel used only for testing, which routes calls to
// registered handlers after a round trip through the codec
//
// Errors returned by calls are gRPC status errors in both implementations, so
// callers can classify them by status code.
package net
