package enums

import "fmt"

// MemberPaymentStatus tracks how a member settled their share.
type MemberPaymentStatus string

const (
	MemberPaymentPending        MemberPaymentStatus = "pending"
	MemberPaymentPaidOnline     MemberPaymentStatus = "paid_online"
	MemberPaymentFailed         MemberPaymentStatus = "payment_failed"
	MemberPaymentCashOnDelivery MemberPaymentStatus = "cash_on_delivery"
)

var validMemberPaymentStatuses = []MemberPaymentStatus{
	MemberPaymentPending,
	MemberPaymentPaidOnline,
	MemberPaymentFailed,
	MemberPaymentCashOnDelivery,
}

// String implements fmt.Stringer.
func (p MemberPaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known MemberPaymentStatus.
func (p MemberPaymentStatus) IsValid() bool {
	for _, candidate := range validMemberPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsCommitted reports whether the member no longer owes a payment decision.
func (p MemberPaymentStatus) IsCommitted() bool {
	return p == MemberPaymentPaidOnline || p == MemberPaymentCashOnDelivery
}

// ParseMemberPaymentStatus converts raw input into a MemberPaymentStatus.
func ParseMemberPaymentStatus(value string) (MemberPaymentStatus, error) {
	for _, candidate := range validMemberPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member payment status %q", value)
}
