package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountID identifies an account, and therefore a consensus node, by its
// shard, realm and number.
type AccountID struct {
	Shard uint64 `json:"shard"`
	Realm uint64 `json:"realm"`
	Num   uint64 `json:"num"`
}

// NewAccountID is a shortcut for AccountID{Num: num} in shard 0, realm 0.
func NewAccountID(num uint64) AccountID {
	return AccountID{Num: num}
}

// AccountIDFromString parses the "shard.realm.num" form.
func AccountIDFromString(s string) (AccountID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return AccountID{}, fmt.Errorf("expected shard.realm.num, got %q", s)
	}

	values := make([]uint64, 3)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return AccountID{}, fmt.Errorf("invalid account id %q: %v", s, err)
		}
		values[i] = v
	}

	return AccountID{Shard: values[0], Realm: values[1], Num: values[2]}, nil
}

// IsZero is true for the unset account.
func (id AccountID) IsZero() bool {
	return id.Shard == 0 && id.Realm == 0 && id.Num == 0
}

// Compare orders accounts by shard, realm, then number.
func (id AccountID) Compare(o AccountID) int {
	switch {
	case id.Shard != o.Shard:
		return cmp(id.Shard, o.Shard)
	case id.Realm != o.Realm:
		return cmp(id.Realm, o.Realm)
	default:
		return cmp(id.Num, o.Num)
	}
}

func cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (id AccountID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

// MarshalText lets AccountID be used as a JSON map key.
func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (id *AccountID) UnmarshalText(text []byte) error {
	parsed, err := AccountIDFromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
