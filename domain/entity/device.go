package entity

import "time"

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Device is a push-notification endpoint registered by a user. Sandbox
// devices are routed to the APNs sandbox gateway.
type Device struct {
	UserID      string    `json:"user_id" dynamo:"user_id,hash"`
	DeviceToken string    `json:"device_token" dynamo:"device_token,range"`
	Platform    Platform  `json:"platform" dynamo:"platform"`
	Sandbox     bool      `json:"sandbox" dynamo:"sandbox"`
	CreatedAt   time.Time `json:"created_at" dynamo:"created_at"`
}
