package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/internal/quota"
	"github.com/heureca/wppgateway/internal/session"
)

// Pipeline runs every message-bearing request through the same admission
// chain: resolve session, check ownership, check readiness, consume quota,
// forward. Requests rejected before the quota step never consume usage;
// a request that passes the quota gate stays billed even when the provider
// call fails afterwards.
type Pipeline struct {
	registry  *session.Registry
	ledger    *quota.Ledger
	forwarder Forwarder
}

func NewPipeline(registry *session.Registry, ledger *quota.Ledger, forwarder Forwarder) *Pipeline {
	return &Pipeline{registry: registry, ledger: ledger, forwarder: forwarder}
}

// admit resolves the session and walks the pre-forward checks in order.
func (p *Pipeline) admit(ctx context.Context, account *domain.Account, sessionName string) (*domain.Session, *errs.Error) {
	sess, err := p.registry.Get(ctx, sessionName)
	if err != nil {
		return nil, err
	}
	if err := p.registry.AssertOwnership(sess, account); err != nil {
		return nil, err
	}
	if !sess.Ready() {
		return nil, errs.SessionNotReady(sess.SessionName, sess.LifecycleState)
	}
	if sess.ProviderToken == "" {
		return nil, errs.SessionNotReady(sess.SessionName, sess.LifecycleState)
	}
	if err := p.ledger.ConsumeBoth(ctx, account, sess.SessionName); err != nil {
		return nil, err
	}
	return sess, nil
}

// Send validates the payload, admits the request and forwards it. The
// provider response comes back untouched so callers see exactly what the
// upstream returned.
func (p *Pipeline) Send(ctx context.Context, account *domain.Account, req SendRequest) (map[string]interface{}, *errs.Error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sess, err := p.admit(ctx, account, req.SessionName())
	if err != nil {
		return nil, err
	}
	resp, perr := req.forward(ctx, p.forwarder, sess.SessionName, sess.ProviderToken)
	if perr != nil {
		zap.S().Warnw("message forward failed",
			"session", sess.SessionName, "account", account.AccountKey, "err", perr.Error())
		return nil, perr
	}
	zap.S().Debugw("message forwarded", "session", sess.SessionName, "account", account.AccountKey)
	return resp, nil
}

// FetchUnread pulls all unread messages for a session. Inbound reads run
// through the same admission chain as sends.
func (p *Pipeline) FetchUnread(ctx context.Context, account *domain.Account, sessionName string) (map[string]interface{}, *errs.Error) {
	sess, err := p.admit(ctx, account, sessionName)
	if err != nil {
		return nil, err
	}
	return p.forwarder.UnreadMessages(ctx, sess.SessionName, sess.ProviderToken)
}

// FetchChat pulls the message history for one chat.
func (p *Pipeline) FetchChat(ctx context.Context, account *domain.Account, sessionName, phone string) (map[string]interface{}, *errs.Error) {
	if phone == "" {
		return nil, errs.Validation("phone is required")
	}
	sess, err := p.admit(ctx, account, sessionName)
	if err != nil {
		return nil, err
	}
	return p.forwarder.ChatMessages(ctx, sess.SessionName, sess.ProviderToken, phone)
}
