package enums

// PushTarget selects which cart members receive a push.
type PushTarget string

const (
	// PushTargetAll addresses every member of the cart.
	PushTargetAll PushTarget = "all"
	// PushTargetMembers addresses every member except the acting user.
	PushTargetMembers PushTarget = "members"
	// PushTargetSpecific addresses a single user.
	PushTargetSpecific PushTarget = "specific"
)

// DeliveryMode selects between a visible notification and a silent data message.
type DeliveryMode string

const (
	DeliveryHybrid   DeliveryMode = "hybrid"
	DeliveryDataOnly DeliveryMode = "data_only"
)

// OrDefault returns Hybrid when the mode is unset.
func (d DeliveryMode) OrDefault() DeliveryMode {
	if d == "" {
		return DeliveryHybrid
	}
	return d
}
