package domain

import "time"

// Account source kinds. The source decides which credential scheme minted the
// account and which routes it may call.
const (
	SourceInternal     = "INTERNAL"
	SourcePartnerProxy = "PARTNER_PROXY"
	SourceAdmin        = "ADMIN"
)

// Account is an authenticated tenant identity. DailyUsage is reset lazily on
// the first access after UsageResetDate rolls over; it never decreases within
// a day.
type Account struct {
	ID             int64     `json:"id,string" gorm:"primaryKey"`
	AccountKey     string    `json:"account_key" gorm:"uniqueIndex;size:128"`
	Name           string    `json:"name"`
	SourceKind     string    `json:"source_kind" gorm:"size:32;index"`
	DailyLimit     *int64    `json:"daily_limit"` // nil = unlimited
	DailyUsage     int64     `json:"daily_usage"`
	UsageResetDate string    `json:"usage_reset_date" gorm:"size:10"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "api_accounts"
}

// Unlimited reports whether the account has no daily cap.
func (a *Account) Unlimited() bool {
	return a.DailyLimit == nil
}

// IsAdmin reports whether the account may call administrative routes.
func (a *Account) IsAdmin() bool {
	return a.SourceKind == SourceAdmin
}
