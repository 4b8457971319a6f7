package session

import (
	"context"

	"gorm.io/gorm"

	"github.com/heureca/wppgateway/internal/domain"
)

// SessionRepository handles session persistence. Implementations must keep
// session_name and phone unique at the storage level.
type SessionRepository interface {
	// Create inserts a new session record.
	Create(ctx context.Context, session *domain.Session) error

	// GetByName retrieves a session by its unique name. Returns
	// gorm.ErrRecordNotFound when absent.
	GetByName(ctx context.Context, sessionName string) (*domain.Session, error)

	// GetByPhone retrieves the session bound to a phone number, if any.
	GetByPhone(ctx context.Context, phone string) (*domain.Session, error)

	// UpdateState stores a new lifecycle state.
	UpdateState(ctx context.Context, sessionName, state string) error

	// UpdateToken stores a freshly minted provider token and state.
	UpdateToken(ctx context.Context, sessionName, token, state string) error

	// Delete removes the session record, releasing its phone number.
	Delete(ctx context.Context, sessionName string) error

	// ListByOwner retrieves all sessions owned by an account.
	ListByOwner(ctx context.Context, accountKey string) ([]*domain.Session, error)
}

// GormSessionRepository is the GORM implementation of SessionRepository.
type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *GormSessionRepository) GetByName(ctx context.Context, sessionName string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).Where("session_name = ?", sessionName).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GormSessionRepository) GetByPhone(ctx context.Context, phone string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GormSessionRepository) UpdateState(ctx context.Context, sessionName, state string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_name = ?", sessionName).
		Update("lifecycle_state", state).Error
}

func (r *GormSessionRepository) UpdateToken(ctx context.Context, sessionName, token, state string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_name = ?", sessionName).
		Updates(map[string]interface{}{
			"provider_token":  token,
			"lifecycle_state": state,
		}).Error
}

func (r *GormSessionRepository) Delete(ctx context.Context, sessionName string) error {
	return r.db.WithContext(ctx).
		Where("session_name = ?", sessionName).
		Delete(&domain.Session{}).Error
}

func (r *GormSessionRepository) ListByOwner(ctx context.Context, accountKey string) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := r.db.WithContext(ctx).
		Where("owner_account_key = ?", accountKey).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}
