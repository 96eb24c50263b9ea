package revocation

// Availability is the fast tier's reachability as last observed. It changes
// only on connection signals, never on a per-call retry.
type Availability int32

const (
	Unavailable Availability = iota
	Available
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}
