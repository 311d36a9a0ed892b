// Package network implements the pool of nodes a client sends requests to.
//
// A Network groups Nodes by participant identity. A participant may be
// reachable through several endpoints (proxies), each with its own Node and
// health. The node set can be swapped while requests are in flight: endpoints
// that survive the swap keep their Node, and therefore their health history.
//
// Selection is a pure function of the candidates' health: the first healthy
// node from the cursor wins, and when none is healthy the node closest to
// readmission is chosen. It never makes a network call.
package network
