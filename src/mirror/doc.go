// Package mirror implements the streaming queries served by mirror nodes:
// the address book of the network and topic message subscriptions.
package mirror
