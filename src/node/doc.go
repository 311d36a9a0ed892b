// Package node implements one consensus or mirror endpoint together with its
// health tracker.
//
// A Node is bound to the account identity of the participant it serves and to
// a single address. It creates its channel lazily and keeps a backoff that
// grows on failures and resets on successes. Selection code asks a Node
// whether it IsHealthy and, if not, for how long it will remain unhealthy,
// without making any network call.
//
// All health fields are guarded by a per-node mutex so that many requests can
// share one Node.
package node
