package addressbook

import (
	"context"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/crypto"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBook() *AddressBook {
	return NewAddressBook([]*NodeAddress{
		{AccountID: ledger.NewAccountID(3), Endpoints: []Endpoint{{"10.0.0.1", 50211}}},
		{AccountID: ledger.NewAccountID(4), Endpoints: []Endpoint{{"10.0.0.2", 50211}}, CertHash: "abcd"},
		{AccountID: ledger.NewAccountID(3), Endpoints: []Endpoint{{"10.0.0.3", 50211}}},
	})
}

func TestAddressBookMergesProxies(t *testing.T) {
	book := testBook()

	assert.Equal(t, 2, book.Len())
	assert.Equal(t, []ledger.AccountID{ledger.NewAccountID(3), ledger.NewAccountID(4)}, book.AccountIDs())

	n, err := book.Get(ledger.NewAccountID(3))
	require.NoError(t, err)
	assert.Len(t, n.Endpoints, 2)

	_, err = book.Get(ledger.NewAccountID(99))
	assert.True(t, common.IsClient(err, common.NotFound))

	network := book.ToNetwork()
	assert.Len(t, network, 3)
	assert.Equal(t, ledger.NewAccountID(3), network["10.0.0.3:50211"])
}

func TestFromNetwork(t *testing.T) {
	book, err := FromNetwork(map[string]ledger.AccountID{
		"127.0.0.1:50212": ledger.NewAccountID(4),
		"127.0.0.1:50211": ledger.NewAccountID(3),
		"127.0.0.2:50211": ledger.NewAccountID(3),
	})
	require.NoError(t, err)

	assert.Equal(t, []ledger.AccountID{ledger.NewAccountID(3), ledger.NewAccountID(4)}, book.AccountIDs())
	assert.Equal(t, "127.0.0.1:50211", book.Nodes[0].Endpoints[0].String())

	_, err = FromNetwork(map[string]ledger.AccountID{"no-port": ledger.NewAccountID(3)})
	assert.Error(t, err)
}

func TestAddressBookHash(t *testing.T) {
	a := testBook()
	b := testBook()
	assert.Equal(t, a.Hex(), b.Hex())

	c := NewAddressBook(append(testBook().Nodes, &NodeAddress{AccountID: ledger.NewAccountID(5)}))
	assert.NotEqual(t, a.Hex(), c.Hex())
}

func TestJSONAddressBook(t *testing.T) {
	dir, err := ioutil.TempDir("", "ledgerclient")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONAddressBook(filepath.Join(dir, "addressbook.json"))

	// Try a read, should get nothing
	book, err := store.AddressBook(context.Background())
	if err == nil {
		t.Fatalf("AddressBook() should generate an error")
	}
	if book != nil {
		t.Fatalf("book: %v", book)
	}

	if err := store.Write(testBook()); err != nil {
		t.Fatalf("err: %v", err)
	}

	book, err = store.AddressBook(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if book.Len() != 2 {
		t.Fatalf("book should contain 2 nodes, not %d", book.Len())
	}
	assert.Equal(t, testBook().Hex(), book.Hex())
	assert.Equal(t, "abcd", book.Nodes[1].CertHash)
}

func TestBadgerCache(t *testing.T) {
	dir, err := ioutil.TempDir("", "ledgerclient")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	logger := common.NewTestEntry(t, logrus.InfoLevel)

	cache, err := NewBadgerCache(dir, logger)
	require.NoError(t, err)

	_, err = cache.AddressBook(context.Background())
	assert.True(t, common.IsClient(err, common.Empty))

	require.NoError(t, cache.Write(testBook()))

	// a smaller book replaces, rather than extends, the cached one
	smaller := NewAddressBook(testBook().Nodes[:1])
	require.NoError(t, cache.Write(smaller))
	require.NoError(t, cache.Close())

	cache, err = NewBadgerCache(dir, logger)
	require.NoError(t, err)
	defer cache.Close()

	book, err := cache.AddressBook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, book.Len())
	assert.Equal(t, smaller.Hex(), book.Hex())
}

func TestVerifier(t *testing.T) {
	n := &NodeAddress{}
	assert.Nil(t, n.Verifier())

	cert := []byte("certificate")
	n.CertHash = "0x" + hexSHA384(cert)

	verify := n.Verifier()
	assert.True(t, verify([][]byte{cert}))
	assert.False(t, verify([][]byte{[]byte("other")}))
	assert.False(t, verify(nil))
}

func hexSHA384(b []byte) string {
	return hex.EncodeToString(crypto.SHA384(b))
}
