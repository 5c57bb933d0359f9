package entity

import "time"

// ScheduleSlot is one interval during which UserID is on call for TeamID.
// Start and End are epoch milliseconds; Start is inclusive, End exclusive.
type ScheduleSlot struct {
	TeamID string `mapstructure:"team_id" validate:"required"`
	SlotID string `mapstructure:"slot_id" validate:"required"`
	UserID string `mapstructure:"user_id" validate:"required"`
	Start  int64  `mapstructure:"start" validate:"required"`
	End    int64  `mapstructure:"end" validate:"required,gtfield=Start"`
}

func (s *ScheduleSlot) Covers(at time.Time) bool {
	ms := at.UnixMilli()
	return s.Start <= ms && ms < s.End
}
