// Package config defines the configuration of a ledger client.
//
// Regardless of how the client is created, directly from Go code or by the
// ledgerctl command, it uses the Config object defined in this package to
// store and forward configuration options. On top of these options, the client
// relies on a data directory, defined by Config.DataDir, where it looks for a
// few additional files:
//
//	ledgerclient.{yaml,json,toml} // (optional) the configuration file read by Load.
//	priv_key // (optional) a plain text file containing the operator's raw private key (cf. ledgerctl keygen).
//	address_book.json // (optional) a JSON address book used when no mirror node is configured.
//	badger_db // (optional) the address-book cache, with address-book-cache.
package config
