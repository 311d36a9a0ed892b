// Package client ties the pieces of a ledger client together.
//
// A Client owns the consensus network and the mirror network, the operator
// identity, the worker pool of asynchronous executions and the address-book
// refresher. Transactions and queries read their defaults from it:
//
//	c, err := client.FromConfig(conf)
//	...
//	defer c.Close()
//
//	balance, err := query.NewAccountBalanceQuery().
//		SetAccountID(id).
//		Execute(ctx, c)
//
// The address book comes from the mirror network when one is configured,
// from the JSON address book of the data directory otherwise. With
// AddressBookCache, the last book is kept in a Badger database and used at
// start when no network is configured.
package client
