// Package ledgertest provides an in-memory ledger for tests: consensus
// nodes and a mirror node served over net.InmemNetwork, with scriptable
// precheck statuses, costs and receipts.
package ledgertest
