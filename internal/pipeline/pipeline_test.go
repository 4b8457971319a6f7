package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/internal/quota"
	"github.com/heureca/wppgateway/internal/session"
	"github.com/heureca/wppgateway/pkg/common"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:pipeline%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
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

// fakeForwarder records forwarded payloads and returns a scripted response.
type fakeForwarder struct {
	forwards int
	lastBody interface{}
	response map[string]interface{}
	err      *errs.Error
}

func (f *fakeForwarder) record(body interface{}) (map[string]interface{}, *errs.Error) {
	f.forwards++
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return map[string]interface{}{"status": "success"}, nil
}

func (f *fakeForwarder) SendMessage(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendImage(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendFile(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendVoice(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendSticker(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendList(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendButtons(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendPoll(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) SendReply(ctx context.Context, s, tok string, body interface{}) (map[string]interface{}, *errs.Error) {
	return f.record(body)
}
func (f *fakeForwarder) UnreadMessages(ctx context.Context, s, tok string) (map[string]interface{}, *errs.Error) {
	return f.record(nil)
}
func (f *fakeForwarder) ChatMessages(ctx context.Context, s, tok, phone string) (map[string]interface{}, *errs.Error) {
	return f.record(phone)
}

// nullProvider satisfies the registry's provider needs; pipeline tests never
// reach it.
type nullProvider struct{}

func (nullProvider) GenerateToken(ctx context.Context, s string) (string, *errs.Error) {
	return "tok", nil
}
func (nullProvider) StartSession(ctx context.Context, s, tok string) (map[string]interface{}, *errs.Error) {
	return nil, nil
}
func (nullProvider) Status(ctx context.Context, s, tok string) (map[string]interface{}, *errs.Error) {
	return nil, nil
}
func (nullProvider) QRCodeImage(ctx context.Context, s, tok string) ([]byte, *errs.Error) {
	return nil, nil
}
func (nullProvider) SafeLogoutAndClose(ctx context.Context, s, tok string) *errs.Error { return nil }

type fixture struct {
	db        *gorm.DB
	pipeline  *Pipeline
	forwarder *fakeForwarder
	ledger    *quota.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	forwarder := &fakeForwarder{}
	ledger := quota.NewLedger(db)
	registry := session.NewRegistry(session.NewGormSessionRepository(db), nullProvider{}, nil)
	return &fixture{
		db:        db,
		pipeline:  NewPipeline(registry, ledger, forwarder),
		forwarder: forwarder,
		ledger:    ledger,
	}
}

func (f *fixture) account(t *testing.T, limit *int64) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:         common.UUIDint64(),
		AccountKey: fmt.Sprintf("wpp_acct_%d", common.UUIDint64()),
		SourceKind: domain.SourceInternal,
		DailyLimit: limit,
	}
	require.NoError(t, f.db.Create(account).Error)
	return account
}

func (f *fixture) session(t *testing.T, owner *domain.Account, state string) *domain.Session {
	t.Helper()
	phone := fmt.Sprintf("55419%08d", atomic.AddInt64(&testDBSeq, 1))
	sess := &domain.Session{
		ID:              common.UUIDint64(),
		SessionName:     session.SessionNamePrefix + phone,
		OwnerAccountKey: owner.AccountKey,
		Phone:           phone,
		ProviderToken:   "tok",
		LifecycleState:  state,
	}
	require.NoError(t, f.db.Create(sess).Error)
	return sess
}

func textReq(sessionName string) *TextSend {
	return &TextSend{Session: sessionName, To: "5541988887777", Message: "hello"}
}

func TestSendForwardsVerbatimResponse(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)
	sess := f.session(t, owner, domain.StateConnected)
	f.forwarder.response = map[string]interface{}{"status": "success", "id": "ABCD"}

	resp, err := f.pipeline.Send(context.Background(), owner, textReq(sess.SessionName))
	require.Nil(t, err)
	assert.Equal(t, "ABCD", resp["id"])
	assert.Equal(t, 1, f.forwarder.forwards)

	used, uerr := f.ledger.SessionUsage(context.Background(), sess.SessionName)
	require.NoError(t, uerr)
	assert.Equal(t, int64(1), used)
}

func TestSendRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)

	_, err := f.pipeline.Send(context.Background(), owner, textReq("wpp_missing"))
	require.NotNil(t, err)
	assert.Equal(t, errs.KindSessionNotFound, err.Kind)
	assert.Zero(t, f.forwarder.forwards)
}

func TestSendRejectsForeignSession(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)
	intruder := f.account(t, nil)
	sess := f.session(t, owner, domain.StateConnected)

	_, err := f.pipeline.Send(context.Background(), intruder, textReq(sess.SessionName))
	require.NotNil(t, err)
	assert.Equal(t, errs.KindAuthorization, err.Kind)
	assert.Zero(t, f.forwarder.forwards)

	// Rejected requests never consume quota.
	used, uerr := f.ledger.SessionUsage(context.Background(), sess.SessionName)
	require.NoError(t, uerr)
	assert.Zero(t, used)
}

func TestSendRejectsUnpairedSession(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)

	// A session still showing its QR code has no paired device yet.
	for _, state := range []string{domain.StateTokenCreated, domain.StateQRCode, domain.StateClosed} {
		sess := f.session(t, owner, state)
		_, err := f.pipeline.Send(context.Background(), owner, textReq(sess.SessionName))
		require.NotNil(t, err, "state %s must reject sends", state)
		assert.Equal(t, errs.KindSessionNotReady, err.Kind)
		assert.Equal(t, state, err.Status)
	}
	assert.Zero(t, f.forwarder.forwards)
}

func TestSendAllowsConnectedAndOpen(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)

	for _, state := range []string{domain.StateConnected, domain.StateOpen} {
		sess := f.session(t, owner, state)
		_, err := f.pipeline.Send(context.Background(), owner, textReq(sess.SessionName))
		require.Nil(t, err, "state %s must allow sends", state)
	}
	assert.Equal(t, 2, f.forwarder.forwards)
}

func TestSendQuotaDenialSkipsForward(t *testing.T) {
	f := newFixture(t)
	limit := int64(1)
	owner := f.account(t, &limit)
	sess := f.session(t, owner, domain.StateConnected)
	ctx := context.Background()

	_, err := f.pipeline.Send(ctx, owner, textReq(sess.SessionName))
	require.Nil(t, err)

	_, err = f.pipeline.Send(ctx, owner, textReq(sess.SessionName))
	require.NotNil(t, err)
	assert.Equal(t, errs.KindQuotaExceeded, err.Kind)
	assert.Equal(t, errs.ScopeAccount, err.Scope)
	assert.Equal(t, int64(1), err.Used)
	assert.Equal(t, 1, f.forwarder.forwards, "denied request must not reach the provider")
}

func TestSendProviderFailureStaysBilled(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)
	sess := f.session(t, owner, domain.StateConnected)
	f.forwarder.err = errs.ProviderUnavailable("connection refused", nil)

	_, err := f.pipeline.Send(context.Background(), owner, textReq(sess.SessionName))
	require.NotNil(t, err)
	assert.Equal(t, errs.KindProviderUnavailable, err.Kind)

	// Admission happened before the forward; the unit stays consumed.
	used, uerr := f.ledger.SessionUsage(context.Background(), sess.SessionName)
	require.NoError(t, uerr)
	assert.Equal(t, int64(1), used)
}

func TestSendValidationFailureConsumesNothing(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)
	sess := f.session(t, owner, domain.StateConnected)

	_, err := f.pipeline.Send(context.Background(), owner,
		&TextSend{Session: sess.SessionName, To: "", Message: "hi"})
	require.NotNil(t, err)
	assert.Equal(t, errs.KindValidation, err.Kind)

	used, uerr := f.ledger.SessionUsage(context.Background(), sess.SessionName)
	require.NoError(t, uerr)
	assert.Zero(t, used)
}

func TestFetchUnreadRunsAdmissionChain(t *testing.T) {
	f := newFixture(t)
	limit := int64(1)
	owner := f.account(t, &limit)
	sess := f.session(t, owner, domain.StateConnected)
	ctx := context.Background()

	_, err := f.pipeline.FetchUnread(ctx, owner, sess.SessionName)
	require.Nil(t, err)

	_, err = f.pipeline.FetchUnread(ctx, owner, sess.SessionName)
	require.NotNil(t, err)
	assert.Equal(t, errs.KindQuotaExceeded, err.Kind)
}

func TestFetchChatRequiresPhone(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, nil)
	sess := f.session(t, owner, domain.StateConnected)

	_, err := f.pipeline.FetchChat(context.Background(), owner, sess.SessionName, "")
	require.NotNil(t, err)
	assert.Equal(t, errs.KindValidation, err.Kind)
}

func TestValidateMediaSizeCeilings(t *testing.T) {
	small := base64.StdEncoding.EncodeToString([]byte("tiny payload"))
	require.Nil(t, validateMedia(small, MediaImage))

	big := strings.Repeat("A", base64.StdEncoding.EncodedLen(MaxStickerBytes+1024))
	err := validateMedia(big, MediaSticker)
	require.NotNil(t, err)
	assert.Equal(t, errs.KindValidation, err.Kind)
	assert.Contains(t, err.Message, "sticker")
}

func TestValidateMediaStripsDataURI(t *testing.T) {
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png data"))
	assert.Nil(t, validateMedia(payload, MediaImage))

	assert.NotNil(t, validateMedia("data:image/png;base64,", MediaImage))
}

func TestSendRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		req  SendRequest
	}{
		{"text missing to", &TextSend{Session: "s", Message: "m"}},
		{"image missing phone", &ImageSend{MediaCommon: MediaCommon{Session: "s"}}},
		{"list without sections", &ListSend{Session: "s", Phone: "p"}},
		{"buttons without buttons", &ButtonsSend{Session: "s", Phone: "p", Message: "m"}},
		{"poll with one choice", &PollSend{Session: "s", Phone: "p", Name: "n", Choices: []string{"a"}}},
		{"reply without message", &ReplySend{Session: "s", Phone: "p", Buttons: []ReplyButton{{ID: "1", Text: "x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			require.NotNil(t, err)
			assert.Equal(t, errs.KindValidation, err.Kind)
		})
	}
}
