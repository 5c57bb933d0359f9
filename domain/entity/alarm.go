package entity

// CloudWatch alarm states.
const (
	AlarmStateAlarm            = "ALARM"
	AlarmStateOK               = "OK"
	AlarmStateInsufficientData = "INSUFFICIENT_DATA"
)

// AlarmEvent is the CloudWatch alarm state-change message as delivered
// through SNS.
type AlarmEvent struct {
	AlarmName       string `json:"AlarmName"`
	AlarmARN        string `json:"AlarmArn"`
	NewStateValue   string `json:"NewStateValue"`
	NewStateReason  string `json:"NewStateReason"`
	StateChangeTime string `json:"StateChangeTime"`
	Region          string `json:"Region"`
	AWSAccountID    string `json:"AWSAccountId"`
}
