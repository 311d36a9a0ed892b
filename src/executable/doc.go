// Package executable implements the request-execution engine shared by every
// transaction and query.
//
// One execution selects a node, makes sure its channel is connected, builds the
// wire request for it, sends it under a deadline and classifies the outcome.
// Depending on the classification, the engine returns the mapped output,
// retries on the same node after a delay, fails over to another node, or
// surfaces a terminal error. The decision logic lives in a single transition
// function that is driven either synchronously (Execute) or asynchronously on
// the client's worker pool (ExecuteAsync).
//
// Concrete request types plug into the engine by implementing Request.
package executable
