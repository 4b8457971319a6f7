package quota

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/pkg/common"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:quota%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	return db
}

func limitedAccount(t *testing.T, db *gorm.DB, limit int64) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:         common.UUIDint64(),
		AccountKey: fmt.Sprintf("wpp_test_%d", common.UUIDint64()),
		Name:       "test",
		SourceKind: domain.SourceInternal,
		DailyLimit: &limit,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestConsumeAccountDeniesBeyondLimit(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	account := limitedAccount(t, db, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := ledger.ConsumeAccount(ctx, account.AccountKey, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := ledger.ConsumeAccount(ctx, account.AccountKey, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.Used)
	assert.Equal(t, int64(3), res.Limit)
}

func TestConsumeAccountUnlimitedStillTallies(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	account := limitedAccount(t, db, 0)
	require.NoError(t, db.Model(account).Update("daily_limit", nil).Error)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := ledger.ConsumeAccount(ctx, account.AccountKey, Unlimited)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	used, err := ledger.AccountUsage(ctx, account.AccountKey)
	require.NoError(t, err)
	assert.Equal(t, int64(5), used)
}

func TestConsumeAccountLazyDailyReset(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	account := limitedAccount(t, db, 2)
	ctx := context.Background()

	// Simulate a counter left over from yesterday at the limit.
	require.NoError(t, db.Model(account).Updates(map[string]interface{}{
		"daily_usage":      2,
		"usage_reset_date": "2000-01-01",
	}).Error)

	used, err := ledger.AccountUsage(ctx, account.AccountKey)
	require.NoError(t, err)
	assert.Zero(t, used, "stale counter must read as zero")

	res, err := ledger.ConsumeAccount(ctx, account.AccountKey, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "rollover must free the quota")
}

func TestConsumeSessionCeiling(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	// Start the counter just below the ceiling instead of consuming 450 times.
	require.NoError(t, db.Create(&domain.SessionUsage{
		ID:          common.UUIDint64(),
		SessionName: "wpp_5541999990000",
		Date:        common.Today(),
		Count:       SessionDailyCeiling - 1,
	}).Error)

	res, err := ledger.ConsumeSession(ctx, "wpp_5541999990000")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = ledger.ConsumeSession(ctx, "wpp_5541999990000")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(SessionDailyCeiling), res.Used)
}

func TestConsumeBothDenialConsumesNothing(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	account := limitedAccount(t, db, 100)
	ctx := context.Background()

	// Session already at its ceiling; the account consume inside the same
	// transaction must be rolled back.
	require.NoError(t, db.Create(&domain.SessionUsage{
		ID:          common.UUIDint64(),
		SessionName: "wpp_5541999990001",
		Date:        common.Today(),
		Count:       SessionDailyCeiling,
	}).Error)

	qerr := ledger.ConsumeBoth(ctx, account, "wpp_5541999990001")
	require.NotNil(t, qerr)
	assert.Equal(t, errs.KindQuotaExceeded, qerr.Kind)
	assert.Equal(t, errs.ScopeSession, qerr.Scope)

	used, err := ledger.AccountUsage(ctx, account.AccountKey)
	require.NoError(t, err)
	assert.Zero(t, used, "denied request must not bill the account scope")
}

func TestConsumeBothAccountScopeDenied(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	account := limitedAccount(t, db, 0)
	ctx := context.Background()

	qerr := ledger.ConsumeBoth(ctx, account, "wpp_5541999990002")
	require.NotNil(t, qerr)
	assert.Equal(t, errs.ScopeAccount, qerr.Scope)

	used, err := ledger.SessionUsage(ctx, "wpp_5541999990002")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestConcurrentConsumeAdmitsExactlyOne(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	account := limitedAccount(t, db, 1)
	ctx := context.Background()

	const racers = 16
	var admitted int64
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			if qerr := ledger.ConsumeBoth(ctx, account, "wpp_5541999990003"); qerr == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), admitted, "one remaining unit admits exactly one request")

	used, err := ledger.AccountUsage(ctx, account.AccountKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
}

func TestPurgeUsageBefore(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.SessionUsage{
		ID: common.UUIDint64(), SessionName: "wpp_old", Date: "2000-01-01", Count: 10,
	}).Error)
	require.NoError(t, db.Create(&domain.SessionUsage{
		ID: common.UUIDint64(), SessionName: "wpp_new", Date: common.Today(), Count: 1,
	}).Error)

	require.NoError(t, ledger.PurgeUsageBefore(ctx, common.Today()))

	var count int64
	require.NoError(t, db.Model(&domain.SessionUsage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
