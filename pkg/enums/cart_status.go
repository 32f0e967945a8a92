package enums

import "fmt"

// CartStatus tracks the lifecycle of a shared cart.
type CartStatus string

const (
	CartStatusOpen      CartStatus = "open"
	CartStatusLocked    CartStatus = "locked"
	CartStatusFinalized CartStatus = "finalized"
	CartStatusConverted CartStatus = "converted"
	CartStatusExpired   CartStatus = "expired"
)

var validCartStatuses = []CartStatus{
	CartStatusOpen,
	CartStatusLocked,
	CartStatusFinalized,
	CartStatusConverted,
	CartStatusExpired,
}

// String implements fmt.Stringer.
func (c CartStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartStatus.
func (c CartStatus) IsValid() bool {
	for _, candidate := range validCartStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a cart in this status no longer has a view document.
func (c CartStatus) IsTerminal() bool {
	return c == CartStatusConverted || c == CartStatusExpired
}

// ParseCartStatus converts raw input into a CartStatus.
func ParseCartStatus(value string) (CartStatus, error) {
	for _, candidate := range validCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}
