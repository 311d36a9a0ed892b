// Package proto holds the wire messages exchanged with consensus and mirror
// nodes, the gRPC codec that carries them, and the service descriptions used
// to host them.
//
// Messages are plain structs encoded with msgpack. Every unary call takes a
// Query or a Transaction and answers with a Response or a TransactionResponse;
// mirror calls are server-streaming.
package proto
