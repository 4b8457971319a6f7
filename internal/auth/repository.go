package auth

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/pkg/common"
)

// AccountRepository handles account persistence for credential resolution and
// admin bootstrap.
type AccountRepository interface {
	// GetByKey retrieves an account by its opaque key. Returns
	// gorm.ErrRecordNotFound when absent.
	GetByKey(ctx context.Context, accountKey string) (*domain.Account, error)

	// GetOrCreate returns the account with the given key, creating it with
	// the supplied template on first sighting. Concurrent first sightings
	// collapse into a single row.
	GetOrCreate(ctx context.Context, account *domain.Account) (*domain.Account, error)

	// Create inserts a new account.
	Create(ctx context.Context, account *domain.Account) error

	// List retrieves all accounts ordered by creation time.
	List(ctx context.Context) ([]*domain.Account, error)
}

// GormAccountRepository is the GORM implementation of AccountRepository.
type GormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) GetByKey(ctx context.Context, accountKey string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("account_key = ?", accountKey).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *GormAccountRepository) GetOrCreate(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account.ID == 0 {
		account.ID = common.UUIDint64()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_key"}},
		DoNothing: true,
	}).Create(account).Error; err != nil {
		return nil, errors.Wrap(err, "account get-or-create")
	}
	return r.GetByKey(ctx, account.AccountKey)
}

func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == 0 {
		account.ID = common.UUIDint64()
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *GormAccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}
