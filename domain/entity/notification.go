package entity

type InterruptionLevel string

const (
	InterruptionLevelPassive       InterruptionLevel = "passive"
	InterruptionLevelActive        InterruptionLevel = "active"
	InterruptionLevelTimeSensitive InterruptionLevel = "time-sensitive"
	InterruptionLevelCritical      InterruptionLevel = "critical"
)

// Notification is the push payload handed to the dispatcher, one per
// device delivery.
type Notification struct {
	Title             string
	Body              string
	Sound             string
	InterruptionLevel InterruptionLevel
	Badge             *int
	Data              map[string]any
}
