// Package addressbook describes the participants of a network and where to
// reach them.
//
// An AddressBook is an ordered list of NodeAddresses. Each NodeAddress binds a
// participant's account identity to one or more endpoints, and optionally to
// the hash of the TLS certificate its endpoints present. Address books come
// from a Source: a JSON file, a badger cache of the last known book, or a
// mirror node query.
package addressbook
