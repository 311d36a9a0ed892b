package common

import "fmt"

// ClientErrType ...
type ClientErrType uint32

const (
	// NotFound ...
	NotFound ClientErrType = iota
	// Empty ...
	Empty
	// Closed ...
	Closed
	// Invalid ...
	Invalid
)

// ClientErr is returned by the address-book sources and the network when a
// lookup or an operation on a closed component fails.
type ClientErr struct {
	dataType string
	errType  ClientErrType
	key      string
}

// NewClientErr ...
func NewClientErr(dataType string, errType ClientErrType, key string) ClientErr {
	return ClientErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e ClientErr) Error() string {
	m := ""
	switch e.errType {
	case NotFound:
		m = "Not Found"
	case Empty:
		m = "Empty"
	case Closed:
		m = "Closed"
	case Invalid:
		m = "Invalid"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsClient checks that an error is of type ClientErr and that its code matches
// the provided ClientErr code.
func IsClient(err error, t ClientErrType) bool {
	clientErr, ok := err.(ClientErr)
	return ok && clientErr.errType == t
}
