package domain

import (
	"strings"
	"time"
)

// Session lifecycle states. CREATED through TOKEN_CREATED are set by the
// gateway; QRCODE/CONNECTED/UNKNOWN come from mapping provider responses;
// LOGGED_OUT, CLOSED and REVOKED are terminal. The provider may also report
// literal statuses (e.g. OPEN) which are stored uppercased as-is.
const (
	StateCreated      = "CREATED"
	StateTokenCreated = "TOKEN_CREATED"
	StateTokenUpdated = "TOKEN_UPDATED"
	StateQRCode       = "QRCODE"
	StateConnected    = "CONNECTED"
	StateOpen         = "OPEN"
	StateUnknown      = "UNKNOWN"
	StateLoggedOut    = "LOGGED_OUT"
	StateClosed       = "CLOSED"
	StateRevoked      = "REVOKED"
)

// Session binds one account to one phone number and one provider-side
// session/token. OwnerAccountKey never changes after creation; the phone is
// unique across the system and is released only when the session is removed.
type Session struct {
	ID              int64     `json:"id,string" gorm:"primaryKey"`
	SessionName     string    `json:"session_name" gorm:"uniqueIndex;size:64"`
	OwnerAccountKey string    `json:"owner_account_key" gorm:"index;size:128"`
	Phone           string    `json:"phone" gorm:"uniqueIndex;size:32"`
	Description     string    `json:"description"`
	ProviderToken   string    `json:"-" gorm:"size:2048"`
	LifecycleState  string    `json:"lifecycle_state" gorm:"size:32"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Session) TableName() string {
	return "wpp_sessions"
}

// OwnedBy reports whether the session belongs to the given account key.
func (s *Session) OwnedBy(accountKey string) bool {
	return s.OwnerAccountKey == accountKey
}

// Terminal reports whether the session reached a terminal state.
func (s *Session) Terminal() bool {
	switch s.LifecycleState {
	case StateLoggedOut, StateClosed, StateRevoked:
		return true
	}
	return false
}

// Ready reports whether the session may forward traffic. A session showing a
// QR code is not ready: the device has not been paired yet.
func (s *Session) Ready() bool {
	switch strings.ToUpper(s.LifecycleState) {
	case StateConnected, StateOpen:
		return true
	}
	return false
}
