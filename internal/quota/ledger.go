package quota

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/pkg/common"
)

// SessionDailyCeiling is the fixed per-session daily send cap. It sits under
// the provider's informal throttling threshold; exceeding it risks the phone
// number being flagged.
const SessionDailyCeiling = 450

// Unlimited marks an account scope with no daily cap.
const Unlimited int64 = -1

// Result is the outcome of a single check-and-consume operation.
type Result struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// Ledger enforces the two independent daily quotas. Every consume is a single
// conditional UPDATE so concurrent requests can never over-admit; there are no
// application-level locks and the service can run with many replicas against
// the same database.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// ConsumeAccount atomically consumes one unit of the account's daily quota.
// limit < 0 means unlimited: usage is still tallied for reporting. The stored
// counter is lazily reset when the calendar day has rolled over.
func (l *Ledger) ConsumeAccount(ctx context.Context, accountKey string, limit int64) (Result, error) {
	return l.consumeAccount(l.db.WithContext(ctx), accountKey, limit)
}

func (l *Ledger) consumeAccount(tx *gorm.DB, accountKey string, limit int64) (Result, error) {
	today := common.Today()

	// Lazy daily reset: only touches rows whose stored date is stale.
	if err := tx.Model(&domain.Account{}).
		Where("account_key = ? AND usage_reset_date <> ?", accountKey, today).
		Updates(map[string]interface{}{
			"daily_usage":      0,
			"usage_reset_date": today,
		}).Error; err != nil {
		return Result{}, errors.Wrap(err, "account quota reset")
	}

	query := tx.Model(&domain.Account{}).Where("account_key = ?", accountKey)
	if limit >= 0 {
		query = query.Where("daily_usage < ?", limit)
	}
	res := query.Update("daily_usage", gorm.Expr("daily_usage + 1"))
	if res.Error != nil {
		return Result{}, errors.Wrap(res.Error, "account quota consume")
	}
	if res.RowsAffected == 0 {
		used, err := l.accountUsage(tx, accountKey)
		if err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, Used: used, Limit: limit}, nil
	}
	return Result{Allowed: true, Limit: limit}, nil
}

// ConsumeSession atomically consumes one unit of the session's daily
// anti-abuse quota.
func (l *Ledger) ConsumeSession(ctx context.Context, sessionName string) (Result, error) {
	return l.consumeSession(l.db.WithContext(ctx), sessionName)
}

func (l *Ledger) consumeSession(tx *gorm.DB, sessionName string) (Result, error) {
	today := common.Today()

	// Ensure today's row exists; the (session_name, date) unique index makes
	// concurrent creations collapse into one row.
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_name"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&domain.SessionUsage{
		ID:          common.UUIDint64(),
		SessionName: sessionName,
		Date:        today,
		Count:       0,
	}).Error; err != nil {
		return Result{}, errors.Wrap(err, "session usage row")
	}

	res := tx.Model(&domain.SessionUsage{}).
		Where("session_name = ? AND date = ? AND count < ?", sessionName, today, SessionDailyCeiling).
		Update("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return Result{}, errors.Wrap(res.Error, "session quota consume")
	}
	if res.RowsAffected == 0 {
		used, err := l.sessionUsage(tx, sessionName)
		if err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, Used: used, Limit: SessionDailyCeiling}, nil
	}
	return Result{Allowed: true, Limit: SessionDailyCeiling}, nil
}

// ConsumeBoth is the admission gate run right before a forward. Both scopes
// are consumed inside one transaction, account first; any denial rolls the
// whole transaction back so a denied request consumes nothing in either scope.
func (l *Ledger) ConsumeBoth(ctx context.Context, account *domain.Account, sessionName string) *errs.Error {
	limit := Unlimited
	if account.DailyLimit != nil {
		limit = *account.DailyLimit
	}

	var denied *errs.Error
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := l.consumeAccount(tx, account.AccountKey, limit)
		if err != nil {
			return err
		}
		if !res.Allowed {
			denied = errs.QuotaExceeded(errs.ScopeAccount, res.Used, res.Limit)
			return denied
		}
		res, err = l.consumeSession(tx, sessionName)
		if err != nil {
			return err
		}
		if !res.Allowed {
			denied = errs.QuotaExceeded(errs.ScopeSession, res.Used, res.Limit)
			return denied
		}
		return nil
	})
	if err != nil {
		if denied != nil {
			return denied
		}
		return errs.Internal(err)
	}
	return nil
}

// AccountUsage returns the account's usage for today without consuming.
func (l *Ledger) AccountUsage(ctx context.Context, accountKey string) (int64, error) {
	return l.accountUsage(l.db.WithContext(ctx), accountKey)
}

func (l *Ledger) accountUsage(tx *gorm.DB, accountKey string) (int64, error) {
	var account domain.Account
	if err := tx.Where("account_key = ?", accountKey).First(&account).Error; err != nil {
		return 0, errors.Wrap(err, "account usage lookup")
	}
	if account.UsageResetDate != common.Today() {
		return 0, nil
	}
	return account.DailyUsage, nil
}

// SessionUsage returns the session's usage for today without consuming.
func (l *Ledger) SessionUsage(ctx context.Context, sessionName string) (int64, error) {
	return l.sessionUsage(l.db.WithContext(ctx), sessionName)
}

func (l *Ledger) sessionUsage(tx *gorm.DB, sessionName string) (int64, error) {
	var usage domain.SessionUsage
	err := tx.Where("session_name = ? AND date = ?", sessionName, common.Today()).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "session usage lookup")
	}
	return usage.Count, nil
}

// UsageByDay lists every session's usage for one day, highest first.
func (l *Ledger) UsageByDay(ctx context.Context, day string) ([]domain.SessionUsage, error) {
	var rows []domain.SessionUsage
	err := l.db.WithContext(ctx).
		Where("date = ?", day).
		Order("count DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "usage report")
	}
	return rows, nil
}

// PurgeUsageBefore removes usage rows older than the given day key. Counters
// roll over naturally; this is retention only.
func (l *Ledger) PurgeUsageBefore(ctx context.Context, day string) error {
	return l.db.WithContext(ctx).
		Where("date < ?", day).
		Delete(&domain.SessionUsage{}).Error
}
