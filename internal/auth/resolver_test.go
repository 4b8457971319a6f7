package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:auth%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
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

func headers(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestResolveMissingCredentials(t *testing.T) {
	resolver := NewResolver(NewGormAccountRepository(newTestDB(t)), "topsecret")

	_, err := resolver.Resolve(context.Background(), headers())
	require.NotNil(t, err)
	assert.Equal(t, errs.KindCredential, err.Kind)
	assert.Equal(t, "missing credentials", err.Message)
}

func TestPartnerProxyWrongSecretRejectedBeforeLookup(t *testing.T) {
	db := newTestDB(t)
	resolver := NewResolver(NewGormAccountRepository(db), "topsecret")

	_, err := resolver.Resolve(context.Background(), headers(
		HeaderProxySecret, "wrong",
		HeaderProxyUser, "someone",
	))
	require.NotNil(t, err)
	assert.Equal(t, errs.KindCredential, err.Kind)

	// A wrong secret must not provision a partner account.
	var count int64
	require.NoError(t, db.Model(&domain.Account{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPartnerProxyMissingUser(t *testing.T) {
	resolver := NewResolver(NewGormAccountRepository(newTestDB(t)), "topsecret")

	_, err := resolver.Resolve(context.Background(), headers(HeaderProxySecret, "topsecret"))
	require.NotNil(t, err)
	assert.Equal(t, errs.KindCredential, err.Kind)
}

func TestPartnerProxyProvisionsStableAccount(t *testing.T) {
	db := newTestDB(t)
	resolver := NewResolver(NewGormAccountRepository(db), "topsecret")
	h := headers(HeaderProxySecret, "topsecret", HeaderProxyUser, "rapid-user-1")

	first, err := resolver.Resolve(context.Background(), h)
	require.Nil(t, err)
	assert.Equal(t, domain.SourcePartnerProxy, first.SourceKind)
	assert.Nil(t, first.DailyLimit)
	assert.Equal(t, PartnerAccountKey("rapid-user-1"), first.AccountKey)

	second, err := resolver.Resolve(context.Background(), h)
	require.Nil(t, err)
	assert.Equal(t, first.ID, second.ID, "same partner user resolves to the same account")

	var count int64
	require.NoError(t, db.Model(&domain.Account{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPartnerSchemeWinsOverInternalKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormAccountRepository(db)
	resolver := NewResolver(repo, "topsecret")

	internal, err := CreateAccount(context.Background(), repo, "direct", domain.SourceInternal, nil)
	require.NoError(t, err)

	// Both credential styles present: the proxy scheme is evaluated first.
	account, rerr := resolver.Resolve(context.Background(), headers(
		HeaderProxySecret, "topsecret",
		HeaderProxyUser, "rapid-user-2",
		HeaderAPIKey, internal.AccountKey,
	))
	require.Nil(t, rerr)
	assert.Equal(t, domain.SourcePartnerProxy, account.SourceKind)
}

func TestInternalKeyResolution(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormAccountRepository(db)
	resolver := NewResolver(repo, "topsecret")

	limit := int64(100)
	created, err := CreateAccount(context.Background(), repo, "acme", domain.SourceInternal, &limit)
	require.NoError(t, err)

	account, rerr := resolver.Resolve(context.Background(), headers(HeaderAPIKey, created.AccountKey))
	require.Nil(t, rerr)
	assert.Equal(t, "acme", account.Name)
	require.NotNil(t, account.DailyLimit)
	assert.Equal(t, int64(100), *account.DailyLimit)

	_, rerr = resolver.Resolve(context.Background(), headers(HeaderAPIKey, "wpp_nonexistent"))
	require.NotNil(t, rerr)
	assert.Equal(t, errs.KindCredential, rerr.Kind)
}

func TestRequireAdmin(t *testing.T) {
	admin := &domain.Account{SourceKind: domain.SourceAdmin}
	assert.Nil(t, RequireAdmin(admin))

	tenant := &domain.Account{SourceKind: domain.SourceInternal}
	err := RequireAdmin(tenant)
	require.NotNil(t, err)
	assert.Equal(t, errs.KindAuthorization, err.Kind)
}
