package ledger

import (
	"fmt"
	"math"
	"strconv"
)

// TinybarsPerHbar is the number of tinybars in one hbar.
const TinybarsPerHbar int64 = 100000000

// Hbar is an amount of the ledger's native currency, held in tinybars.
type Hbar struct {
	tinybar int64
}

// ZeroHbar is an empty amount.
var ZeroHbar = Hbar{}

// NewHbar converts a whole or fractional hbar amount.
func NewHbar(hbar float64) Hbar {
	return Hbar{tinybar: int64(math.Round(hbar * float64(TinybarsPerHbar)))}
}

// HbarFromTinybars wraps a raw tinybar amount.
func HbarFromTinybars(tinybar int64) Hbar {
	return Hbar{tinybar: tinybar}
}

// AsTinybar returns the amount in tinybars.
func (h Hbar) AsTinybar() int64 {
	return h.tinybar
}

// Negated returns the opposite amount, used on the sending side of a transfer.
func (h Hbar) Negated() Hbar {
	return Hbar{tinybar: -h.tinybar}
}

// Cmp returns -1, 0 or 1 when h is smaller, equal or larger than o.
func (h Hbar) Cmp(o Hbar) int {
	switch {
	case h.tinybar < o.tinybar:
		return -1
	case h.tinybar > o.tinybar:
		return 1
	default:
		return 0
	}
}

func (h Hbar) String() string {
	if h.tinybar%TinybarsPerHbar == 0 || h.tinybar > TinybarsPerHbar || h.tinybar < -TinybarsPerHbar {
		v := float64(h.tinybar) / float64(TinybarsPerHbar)
		return fmt.Sprintf("%s ℏ", strconv.FormatFloat(v, 'f', -1, 64))
	}
	return fmt.Sprintf("%d tℏ", h.tinybar)
}
