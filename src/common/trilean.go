package common

// Trilean is a setting that is either explicitly on, explicitly off, or left
// to a default.
type Trilean int

const (
	// Undefined leaves the decision to the default
	Undefined Trilean = iota
	// True is explicitly on
	True
	// False is explicitly off
	False
)

var trileans = []string{"Undefined", "True", "False"}

// TrileanOf returns the explicit Trilean for b.
func TrileanOf(b bool) Trilean {
	if b {
		return True
	}
	return False
}

// Or resolves t, returning def when t is Undefined.
func (t Trilean) Or(def bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return def
	}
}

func (t Trilean) String() string {
	if t < 0 || int(t) >= len(trileans) {
		return "Invalid"
	}
	return trileans[t]
}
