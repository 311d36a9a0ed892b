package addressbook

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"sync"

	"github.com/mosaicnetworks/ledgerclient/src/common"
)

// JSONAddressBook is used to provide address book persistence on disk in the
// form of a JSON file.
type JSONAddressBook struct {
	l    sync.Mutex
	path string
}

// NewJSONAddressBook creates a JSONAddressBook backed by the file at path.
func NewJSONAddressBook(path string) *JSONAddressBook {
	return &JSONAddressBook{
		path: path,
	}
}

// AddressBook parses the underlying JSON file. It implements Source.
func (j *JSONAddressBook) AddressBook(ctx context.Context) (*AddressBook, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, common.NewClientErr("JSONAddressBook", common.Empty, j.path)
	}

	var nodes []*NodeAddress
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&nodes); err != nil {
		return nil, err
	}

	return NewAddressBook(nodes), nil
}

// Write persists an address book to the JSON file. It implements Sink.
func (j *JSONAddressBook) Write(book *AddressBook) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "\t")
	if err := enc.Encode(book.Nodes); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}
