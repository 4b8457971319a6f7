package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/heureca/wppgateway/config"
	"github.com/heureca/wppgateway/internal/auth"
	"github.com/heureca/wppgateway/internal/domain"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	logLevel := gormlogger.Warn
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(filepath.Join(workdir, fmt.Sprintf("%s.db", cfg.Name)))
	default:
		dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Name, cfg.Passwd)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		zap.S().Panicf("database connect failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		zap.S().Panicf("database pool setup failed: %v", err)
	}
	if cfg.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
	}
	if cfg.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db
}

// checkAdminAccount guarantees at least one admin API key exists so the
// admin endpoints are reachable on a fresh install. The generated key is
// logged once; rotate it by creating a new admin client and deleting this
// row.
func (a *Application) checkAdminAccount() {
	var count int64
	if err := a.gormDB.Model(&domain.Account{}).
		Where("source_kind = ?", domain.SourceAdmin).
		Count(&count).Error; err != nil {
		zap.L().Error("admin account check failed", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}

	account, err := auth.CreateAccount(context.Background(), a.accounts, "bootstrap-admin", domain.SourceAdmin, nil)
	if err != nil {
		zap.L().Error("failed to create bootstrap admin account", zap.Error(errors.Wrap(err, "bootstrap")))
		return
	}
	zap.L().Warn("initialized bootstrap admin api key",
		zap.String("name", account.Name),
		zap.String("api_key", account.AccountKey))
}
