package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/gommon/random"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/pkg/common"
)

// Credential scheme headers.
const (
	HeaderProxySecret = "X-Proxy-Secret"
	HeaderProxyUser   = "X-Proxy-User"
	HeaderAPIKey      = "X-Api-Key"
)

// Scheme resolves one credential style from inbound headers. Resolve returns
// handled=false when the scheme's headers are absent so the next scheme in
// order gets a chance.
type Scheme interface {
	Name() string
	Resolve(ctx context.Context, header http.Header) (account *domain.Account, handled bool, err *errs.Error)
}

// Resolver walks an ordered list of credential schemes; the first scheme that
// recognizes its headers decides the outcome.
type Resolver struct {
	schemes []Scheme
}

// NewResolver builds the standard scheme order: partner-proxy first, then
// internal keys.
func NewResolver(repo AccountRepository, proxySecret string) *Resolver {
	return &Resolver{schemes: []Scheme{
		&PartnerProxyScheme{repo: repo, secret: proxySecret},
		&InternalKeyScheme{repo: repo},
	}}
}

// Resolve turns inbound headers into an authenticated account or a classified
// credential failure.
func (r *Resolver) Resolve(ctx context.Context, header http.Header) (*domain.Account, *errs.Error) {
	for _, scheme := range r.schemes {
		account, handled, err := scheme.Resolve(ctx, header)
		if !handled {
			continue
		}
		if err != nil {
			zap.L().Debug("credential rejected",
				zap.String("scheme", scheme.Name()),
				zap.String("reason", err.Message))
			return nil, err
		}
		return account, nil
	}
	return nil, errs.Credential("missing credentials")
}

// PartnerProxyScheme authenticates calls relayed by the partner API proxy.
// The proxy origin is proven by a shared secret; the partner-side user id
// identifies the tenant. Accounts are provisioned lazily with a key derived
// from the user id so repeated calls resolve to the same account.
type PartnerProxyScheme struct {
	repo   AccountRepository
	secret string
}

func (s *PartnerProxyScheme) Name() string { return "partner-proxy" }

func (s *PartnerProxyScheme) Resolve(ctx context.Context, header http.Header) (*domain.Account, bool, *errs.Error) {
	secret := header.Get(HeaderProxySecret)
	if secret == "" {
		return nil, false, nil
	}
	// Checked before any account lookup: a wrong secret never provisions
	// anything.
	if s.secret == "" || secret != s.secret {
		return nil, true, errs.Credential("invalid proxy origin")
	}
	user := strings.TrimSpace(header.Get(HeaderProxyUser))
	if user == "" {
		return nil, true, errs.Credential("missing partner user")
	}

	account, err := s.repo.GetOrCreate(ctx, &domain.Account{
		AccountKey: PartnerAccountKey(user),
		Name:       "partner-" + user,
		SourceKind: domain.SourcePartnerProxy,
		DailyLimit: nil, // partner billing is handled proxy-side
	})
	if err != nil {
		return nil, true, errs.Internal(errors.Wrap(err, "partner account provisioning"))
	}
	return account, true, nil
}

// PartnerAccountKey derives the stable account key for a partner user id.
func PartnerAccountKey(user string) string {
	return "pp_" + common.Sha256Hex(user)[:32]
}

// InternalKeyScheme authenticates directly issued API keys.
type InternalKeyScheme struct {
	repo AccountRepository
}

func (s *InternalKeyScheme) Name() string { return "internal-key" }

func (s *InternalKeyScheme) Resolve(ctx context.Context, header http.Header) (*domain.Account, bool, *errs.Error) {
	key := header.Get(HeaderAPIKey)
	if key == "" {
		return nil, false, nil
	}
	account, err := s.repo.GetByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, true, errs.Credential("invalid api key")
	}
	if err != nil {
		return nil, true, errs.Internal(errors.Wrap(err, "api key lookup"))
	}
	return account, true, nil
}

// RequireAdmin guards administrative routes. Evaluated after credential
// resolution, before any quota enforcement.
func RequireAdmin(account *domain.Account) *errs.Error {
	if !account.IsAdmin() {
		return errs.Authorization("admin privileges required")
	}
	return nil
}

// CreateAccount provisions an account with a freshly generated key. Used by
// the admin bootstrap endpoint.
func CreateAccount(ctx context.Context, repo AccountRepository, name, sourceKind string, dailyLimit *int64) (*domain.Account, error) {
	account := &domain.Account{
		AccountKey: fmt.Sprintf("wpp_%s", random.String(32, random.Hex)),
		Name:       name,
		SourceKind: sourceKind,
		DailyLimit: dailyLimit,
	}
	if err := repo.Create(ctx, account); err != nil {
		return nil, errors.Wrap(err, "create account")
	}
	return account, nil
}
