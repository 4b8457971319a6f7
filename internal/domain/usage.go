package domain

import "time"

// SessionUsage tallies accepted sends per session and calendar day. Rows are
// created lazily on the first send of the day and never decremented; rollover
// is implicit because the date is part of the key.
type SessionUsage struct {
	ID          int64  `json:"id,string" gorm:"primaryKey"`
	SessionName string `json:"session_name" gorm:"uniqueIndex:idx_session_usage_day;size:64"`
	Date        string `json:"date" gorm:"uniqueIndex:idx_session_usage_day;size:10"`
	Count       int64  `json:"count"`
}

func (SessionUsage) TableName() string {
	return "session_usage"
}

// SessionEventLog records lifecycle transitions for audit and debugging.
type SessionEventLog struct {
	ID          int64     `json:"id,string" gorm:"primaryKey"`
	SessionName string    `json:"session_name" gorm:"index;size:64"`
	FromState   string    `json:"from_state" gorm:"size:32"`
	ToState     string    `json:"to_state" gorm:"size:32"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

func (SessionEventLog) TableName() string {
	return "session_event_log"
}
