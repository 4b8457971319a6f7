package session

import (
	"context"
	"strings"

	"github.com/asaskevich/EventBus"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/pkg/common"
)

// SessionNamePrefix makes provider session names deterministic per phone.
const SessionNamePrefix = "wpp_"

// MinPhoneDigits is the minimum accepted phone length after normalization.
const MinPhoneDigits = 10

// ProviderAPI is the subset of the provider contract the registry needs.
type ProviderAPI interface {
	GenerateToken(ctx context.Context, sessionName string) (string, *errs.Error)
	StartSession(ctx context.Context, sessionName, token string) (map[string]interface{}, *errs.Error)
	Status(ctx context.Context, sessionName, token string) (map[string]interface{}, *errs.Error)
	QRCodeImage(ctx context.Context, sessionName, token string) ([]byte, *errs.Error)
	SafeLogoutAndClose(ctx context.Context, sessionName, token string) *errs.Error
}

// ResolveAction tells the caller which path ResolveOrCreate took.
type ResolveAction string

const (
	ActionSessionCreated ResolveAction = "session_created"
	ActionTokenUpdated   ResolveAction = "token_updated"
)

// TeardownResult reports the two independent outcomes of a teardown: the
// best-effort provider cleanup and the local removal.
type TeardownResult struct {
	SessionName     string `json:"session"`
	Phone           string `json:"phone"`
	Status          string `json:"status"`
	ProviderCleanup string `json:"provider_cleanup"`
}

// Registry owns the (account, phone) -> provider session mapping and its
// lifecycle. All mutations of session rows go through here.
type Registry struct {
	repo     SessionRepository
	provider ProviderAPI
	bus      EventBus.Bus
}

func NewRegistry(repo SessionRepository, provider ProviderAPI, bus EventBus.Bus) *Registry {
	return &Registry{repo: repo, provider: provider, bus: bus}
}

// ResolveOrCreate binds a phone number to a provider session for the account.
// A phone already held by another account is an ownership violation and the
// existing session is left untouched. A phone already held by the caller gets
// a token refresh instead of a duplicate session.
func (r *Registry) ResolveOrCreate(ctx context.Context, account *domain.Account, rawPhone, description string) (*domain.Session, ResolveAction, *errs.Error) {
	phone := common.NormalizePhone(rawPhone)
	if len(phone) < MinPhoneDigits {
		e := errs.Validation("invalid phone number format")
		e.Phone = rawPhone
		return nil, "", e
	}
	sessionName := SessionNamePrefix + phone

	existing, err := r.repo.GetByPhone(ctx, phone)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", errs.Internal(errors.Wrap(err, "session lookup"))
	}
	if existing != nil {
		if !existing.OwnedBy(account.AccountKey) {
			e := errs.Authorization("phone already registered by another client")
			e.Phone = phone
			return nil, "", e
		}
		return r.refreshToken(ctx, existing)
	}

	created := &domain.Session{
		ID:              common.UUIDint64(),
		SessionName:     sessionName,
		OwnerAccountKey: account.AccountKey,
		Phone:           phone,
		Description:     description,
		LifecycleState:  domain.StateCreated,
	}
	if err := r.repo.Create(ctx, created); err != nil {
		return nil, "", errs.Internal(errors.Wrap(err, "session create"))
	}

	token, perr := r.provider.GenerateToken(ctx, sessionName)
	if perr != nil {
		// Never leave a CREATED row with no token behind: the phone stays
		// free and the caller can retry once the provider recovers.
		if derr := r.repo.Delete(ctx, sessionName); derr != nil {
			zap.L().Error("failed to roll back session after token mint failure",
				zap.String("session", sessionName), zap.Error(derr))
		}
		return nil, "", perr
	}
	if err := r.repo.UpdateToken(ctx, sessionName, token, domain.StateTokenCreated); err != nil {
		return nil, "", errs.Internal(errors.Wrap(err, "session token store"))
	}
	r.publish(sessionName, domain.StateCreated, domain.StateTokenCreated, "token minted")

	created.ProviderToken = token
	created.LifecycleState = domain.StateTokenCreated
	return created, ActionSessionCreated, nil
}

func (r *Registry) refreshToken(ctx context.Context, session *domain.Session) (*domain.Session, ResolveAction, *errs.Error) {
	token, perr := r.provider.GenerateToken(ctx, session.SessionName)
	if perr != nil {
		return nil, "", perr
	}
	if err := r.repo.UpdateToken(ctx, session.SessionName, token, domain.StateTokenUpdated); err != nil {
		return nil, "", errs.Internal(errors.Wrap(err, "session token store"))
	}
	r.publish(session.SessionName, session.LifecycleState, domain.StateTokenUpdated, "token refreshed")

	session.ProviderToken = token
	session.LifecycleState = domain.StateTokenUpdated
	return session, ActionTokenUpdated, nil
}

// Get retrieves a session by name; absence is a distinct error kind from
// ownership violations so callers cannot probe other tenants' sessions.
func (r *Registry) Get(ctx context.Context, sessionName string) (*domain.Session, *errs.Error) {
	session, err := r.repo.GetByName(ctx, sessionName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.SessionNotFound(sessionName)
	}
	if err != nil {
		return nil, errs.Internal(errors.Wrap(err, "session lookup"))
	}
	return session, nil
}

// AssertOwnership re-checks the owner on every session-touching operation.
// A mismatch is always an authorization error, never not-found.
func (r *Registry) AssertOwnership(session *domain.Session, account *domain.Account) *errs.Error {
	if !session.OwnedBy(account.AccountKey) {
		e := errs.Authorization("session does not belong to client")
		e.Session = session.SessionName
		return e
	}
	return nil
}

// Start forwards a start-session directive and maps the provider's response
// into a canonical lifecycle state.
func (r *Registry) Start(ctx context.Context, session *domain.Session) (map[string]interface{}, string, *errs.Error) {
	if session.ProviderToken == "" {
		return nil, "", errs.SessionNotReady(session.SessionName, session.LifecycleState)
	}
	resp, perr := r.provider.StartSession(ctx, session.SessionName, session.ProviderToken)
	if perr != nil {
		return nil, "", perr
	}

	state := MapProviderState(resp)
	if err := r.repo.UpdateState(ctx, session.SessionName, state); err != nil {
		return nil, "", errs.Internal(errors.Wrap(err, "session state store"))
	}
	r.publish(session.SessionName, session.LifecycleState, state, "start-session")
	session.LifecycleState = state
	return resp, state, nil
}

// Status proxies the provider's real-time view of the session. The provider
// is the source of truth here; the local state is not consulted.
func (r *Registry) Status(ctx context.Context, session *domain.Session) (map[string]interface{}, *errs.Error) {
	return r.provider.Status(ctx, session.SessionName, session.ProviderToken)
}

// QRCode fetches the pairing QR PNG from the provider.
func (r *Registry) QRCode(ctx context.Context, session *domain.Session) ([]byte, *errs.Error) {
	return r.provider.QRCodeImage(ctx, session.SessionName, session.ProviderToken)
}

// Teardown revokes the session. The provider cleanup is best effort and its
// outcome is reported separately; the local record is removed regardless,
// which releases the phone number for reuse.
func (r *Registry) Teardown(ctx context.Context, session *domain.Session) (*TeardownResult, *errs.Error) {
	result := &TeardownResult{
		SessionName:     session.SessionName,
		Phone:           session.Phone,
		Status:          domain.StateRevoked,
		ProviderCleanup: "ok",
	}
	if perr := r.provider.SafeLogoutAndClose(ctx, session.SessionName, session.ProviderToken); perr != nil {
		zap.L().Warn("provider cleanup failed during teardown",
			zap.String("session", session.SessionName), zap.Error(perr))
		result.ProviderCleanup = "failed: " + perr.Message
	}
	if err := r.repo.Delete(ctx, session.SessionName); err != nil {
		return nil, errs.Internal(errors.Wrap(err, "session delete"))
	}
	r.publish(session.SessionName, session.LifecycleState, domain.StateRevoked, "teardown")
	return result, nil
}

// ListByOwner returns all sessions of one account.
func (r *Registry) ListByOwner(ctx context.Context, account *domain.Account) ([]*domain.Session, *errs.Error) {
	sessions, err := r.repo.ListByOwner(ctx, account.AccountKey)
	if err != nil {
		return nil, errs.Internal(errors.Wrap(err, "session list"))
	}
	return sessions, nil
}

func (r *Registry) publish(sessionName, from, to, reason string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(TopicStateChanged, StateChange{
		SessionName: sessionName,
		FromState:   from,
		ToState:     to,
		Reason:      reason,
	})
}

// providerStartResponse captures the fields providers populate
// inconsistently on start-session.
type providerStartResponse struct {
	Status  string `mapstructure:"status"`
	QRCode  string `mapstructure:"qrcode"`
	URLCode string `mapstructure:"urlcode"`
	Message string `mapstructure:"message"`
}

// MapProviderState maps a raw provider response to a canonical lifecycle
// state. The precedence is fixed: an explicit QR/URL field wins, then a
// connected marker anywhere in status or message, then the provider's literal
// status uppercased, else UNKNOWN. Providers disagree about which field they
// populate, so the order matters.
func MapProviderState(resp map[string]interface{}) string {
	var parsed providerStartResponse
	if err := mapstructure.WeakDecode(resp, &parsed); err != nil {
		return domain.StateUnknown
	}
	if parsed.QRCode != "" || parsed.URLCode != "" {
		return domain.StateQRCode
	}
	if containsConnectedMarker(parsed.Status) || containsConnectedMarker(parsed.Message) {
		return domain.StateConnected
	}
	if parsed.Status != "" {
		return strings.ToUpper(parsed.Status)
	}
	return domain.StateUnknown
}

func containsConnectedMarker(text string) bool {
	t := strings.ToUpper(text)
	if strings.Contains(t, "DISCONNECTED") {
		return false
	}
	return strings.Contains(t, "CONNECTED")
}
