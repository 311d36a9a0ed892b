// Package transaction implements transactions: requests that change the
// state of the ledger and are done once a node accepts them for consensus.
//
// A transaction is frozen before it is sent: its id, fee and the nodes it may
// go to are fixed, and one body per node is serialized. Signatures are added
// to every per-node body, so that the engine can fail over between nodes
// without signing again.
package transaction
