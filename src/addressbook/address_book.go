package addressbook

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	gonet "net"
	"sort"
	"strconv"
	"strings"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/crypto"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
)

// Source produces address books.
type Source interface {
	AddressBook(ctx context.Context) (*AddressBook, error)
}

// Sink persists address books.
type Sink interface {
	Write(book *AddressBook) error
}

// Endpoint is one address:port of a node.
type Endpoint struct {
	Address string `json:"address"`
	Port    int32  `json:"port"`
}

// String returns the dialable host:port form.
func (e Endpoint) String() string {
	return gonet.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// ParseEndpoint parses host:port.
func ParseEndpoint(s string) (Endpoint, error) {
	host, port, err := gonet.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, err
	}
	p, err := strconv.ParseInt(port, 10, 32)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid port in %q: %v", s, err)
	}
	return Endpoint{Address: host, Port: int32(p)}, nil
}

// NodeAddress is one participant of the network.
type NodeAddress struct {
	AccountID   ledger.AccountID `json:"account_id"`
	Endpoints   []Endpoint       `json:"endpoints"`
	CertHash    string           `json:"cert_hash,omitempty"`
	Description string           `json:"description,omitempty"`
}

// Verifier accepts a certificate chain whose leaf hashes (SHA384, hex) to
// CertHash. It returns nil when no hash is known.
func (n *NodeAddress) Verifier() net.CertVerifier {
	if n.CertHash == "" {
		return nil
	}
	want := strings.ToLower(strings.TrimPrefix(n.CertHash, "0x"))
	return func(rawCerts [][]byte) bool {
		if len(rawCerts) == 0 {
			return false
		}
		return hex.EncodeToString(crypto.SHA384(rawCerts[0])) == want
	}
}

// AddressBook is an ordered set of NodeAddresses.
type AddressBook struct {
	Nodes       []*NodeAddress                    `json:"nodes"`
	ByAccountID map[ledger.AccountID]*NodeAddress `json:"-"`

	//cached values
	hash []byte
}

// NewAddressBook indexes the nodes. Entries for the same account are merged,
// keeping the order of first appearance.
func NewAddressBook(nodes []*NodeAddress) *AddressBook {
	book := &AddressBook{
		ByAccountID: make(map[ledger.AccountID]*NodeAddress),
	}

	for _, n := range nodes {
		if existing, ok := book.ByAccountID[n.AccountID]; ok {
			existing.Endpoints = append(existing.Endpoints, n.Endpoints...)
			continue
		}
		copied := *n
		copied.Endpoints = append([]Endpoint(nil), n.Endpoints...)
		book.ByAccountID[n.AccountID] = &copied
		book.Nodes = append(book.Nodes, &copied)
	}

	return book
}

// FromNetwork builds a book from an address -> account map, the form in which
// a network is usually configured.
func FromNetwork(network map[string]ledger.AccountID) (*AddressBook, error) {
	var nodes []*NodeAddress
	for addr, id := range network {
		ep, err := ParseEndpoint(addr)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &NodeAddress{AccountID: id, Endpoints: []Endpoint{ep}})
	}
	book := NewAddressBook(nodes)
	book.sort()
	return book, nil
}

// FromProto converts mirror node entries.
func FromProto(entries []*proto.NodeAddress) *AddressBook {
	nodes := make([]*NodeAddress, 0, len(entries))
	for _, e := range entries {
		n := &NodeAddress{
			AccountID:   e.NodeAccountID,
			Description: e.Description,
		}
		if len(e.NodeCertHash) > 0 {
			n.CertHash = string(e.NodeCertHash)
		}
		for _, se := range e.ServiceEndpoints {
			n.Endpoints = append(n.Endpoints, Endpoint{Address: se.Address, Port: se.Port})
		}
		nodes = append(nodes, n)
	}
	return NewAddressBook(nodes)
}

// Len returns the number of participants.
func (b *AddressBook) Len() int {
	return len(b.Nodes)
}

// AccountIDs returns the participants in book order.
func (b *AddressBook) AccountIDs() []ledger.AccountID {
	res := make([]ledger.AccountID, 0, len(b.Nodes))
	for _, n := range b.Nodes {
		res = append(res, n.AccountID)
	}
	return res
}

// ToNetwork flattens the book into an address -> account map, one entry per
// endpoint.
func (b *AddressBook) ToNetwork() map[string]ledger.AccountID {
	res := make(map[string]ledger.AccountID)
	for _, n := range b.Nodes {
		for _, e := range n.Endpoints {
			res[e.String()] = n.AccountID
		}
	}
	return res
}

// Get ...
func (b *AddressBook) Get(id ledger.AccountID) (*NodeAddress, error) {
	n, ok := b.ByAccountID[id]
	if !ok {
		return nil, common.NewClientErr("AddressBook", common.NotFound, id.String())
	}
	return n, nil
}

// Hash identifies the content of the book. It changes when any participant,
// endpoint or certificate hash changes.
func (b *AddressBook) Hash() []byte {
	if len(b.hash) == 0 {
		var buf bytes.Buffer
		for _, n := range b.Nodes {
			buf.WriteString(n.AccountID.String())
			for _, e := range n.Endpoints {
				buf.WriteString("|" + e.String())
			}
			buf.WriteString("|" + n.CertHash + ";")
		}
		b.hash = crypto.SHA256(buf.Bytes())
	}
	return b.hash
}

// Hex is the hexadecimal representation of Hash.
func (b *AddressBook) Hex() string {
	return common.EncodeToString(b.Hash())
}

func (b *AddressBook) sort() {
	sort.Slice(b.Nodes, func(i, j int) bool {
		return b.Nodes[i].AccountID.Compare(b.Nodes[j].AccountID) < 0
	})
	for _, n := range b.Nodes {
		eps := n.Endpoints
		sort.Slice(eps, func(i, j int) bool { return eps[i].String() < eps[j].String() })
	}
}
