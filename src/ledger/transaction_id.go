package ledger

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// TransactionID is the payer account together with the moment from which the
// transaction becomes valid. Nodes deduplicate on it.
type TransactionID struct {
	AccountID  AccountID `json:"account_id"`
	ValidStart time.Time `json:"valid_start"`
}

// NewTransactionID generates a fresh id for the payer. The valid start is
// backdated by a few seconds so that small clock skew between the client and
// the nodes does not produce INVALID_TRANSACTION_START.
func NewTransactionID(payer AccountID) TransactionID {
	backdate := 8*time.Second + time.Duration(rand.Int63n(int64(5*time.Second)))
	return TransactionID{
		AccountID:  payer,
		ValidStart: time.Now().UTC().Add(-backdate),
	}
}

// TransactionIDFromString parses "shard.realm.num@seconds.nanos".
func TransactionIDFromString(s string) (TransactionID, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return TransactionID{}, fmt.Errorf("expected account@seconds.nanos, got %q", s)
	}

	account, err := AccountIDFromString(parts[0])
	if err != nil {
		return TransactionID{}, err
	}

	ts := strings.SplitN(parts[1], ".", 2)
	if len(ts) != 2 {
		return TransactionID{}, fmt.Errorf("invalid valid start in %q", s)
	}
	secs, err := strconv.ParseInt(ts[0], 10, 64)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid valid start in %q: %v", s, err)
	}
	nanos, err := strconv.ParseInt(ts[1], 10, 64)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid valid start in %q: %v", s, err)
	}

	return TransactionID{
		AccountID:  account,
		ValidStart: time.Unix(secs, nanos).UTC(),
	}, nil
}

// IsZero is true for an id that was never generated or set.
func (id TransactionID) IsZero() bool {
	return id.AccountID.IsZero() && id.ValidStart.IsZero()
}

func (id TransactionID) String() string {
	return fmt.Sprintf("%s@%d.%09d",
		id.AccountID,
		id.ValidStart.Unix(),
		id.ValidStart.Nanosecond())
}
