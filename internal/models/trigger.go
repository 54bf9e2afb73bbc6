package models

// TriggerType identifies one of the three reminder conditions.
// The numeric values are persisted in the send history table and must not change.
type TriggerType int

const (
	TriggerInactivity   TriggerType = 0
	TriggerActivities   TriggerType = 1
	TriggerNoCompletion TriggerType = 2
)

func (t TriggerType) String() string {
	switch t {
	case TriggerInactivity:
		return "Inactivity"
	case TriggerActivities:
		return "Activities"
	case TriggerNoCompletion:
		return "NoCompletion"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is one of the known trigger types
func (t TriggerType) Valid() bool {
	return t >= TriggerInactivity && t <= TriggerNoCompletion
}
