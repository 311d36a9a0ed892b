// Package query implements read requests against consensus nodes.
//
// Most queries are paid. Unless a payment amount is set explicitly, the
// query first asks a node for its cost with a COST_ANSWER header and an
// empty payment, checks the cost against the maximum the caller is willing
// to pay, then attaches one payment transfer per candidate node, signed by
// the client operator, and sends the real query. Both phases run through
// the executable engine and share one overall deadline.
//
// Free queries, like AccountBalanceQuery and TransactionReceiptQuery, skip
// straight to the answer.
package query
