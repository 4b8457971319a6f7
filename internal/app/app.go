package app

import (
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/heureca/wppgateway/config"
	"github.com/heureca/wppgateway/internal/auth"
	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/pipeline"
	"github.com/heureca/wppgateway/internal/provider"
	"github.com/heureca/wppgateway/internal/quota"
	"github.com/heureca/wppgateway/internal/session"
	"github.com/heureca/wppgateway/pkg/metrics"
)

// Application wires configuration, storage and the domain services together
// and owns their lifecycles.
type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron

	accounts  auth.AccountRepository
	resolver  *auth.Resolver
	ledger    *quota.Ledger
	provider  *provider.Client
	registry  *session.Registry
	pipeline  *pipeline.Pipeline
	collector *metrics.Collector
}

// Ensure Application implements all interfaces
var (
	_ DBProvider     = (*Application)(nil)
	_ ConfigProvider = (*Application)(nil)
	_ AppContext     = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Resolver() *auth.Resolver         { return a.resolver }
func (a *Application) Accounts() auth.AccountRepository { return a.accounts }
func (a *Application) Ledger() *quota.Ledger            { return a.ledger }
func (a *Application) Registry() *session.Registry      { return a.registry }
func (a *Application) Pipeline() *pipeline.Pipeline     { return a.pipeline }
func (a *Application) Collector() *metrics.Collector    { return a.collector }
func (a *Application) Scheduler() *cron.Cron            { return a.sched }

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	a.initLogger(cfg)

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.collector, err = metrics.New(cfg.System.Workdir)
	if err != nil {
		zap.S().Warnf("failed to initialize metrics: %v", err)
	}

	a.initServices(cfg)
	a.checkAdminAccount()
	a.initJob()
}

// initServices builds the domain service graph. Order matters only in that
// everything depends on the database handle.
func (a *Application) initServices(cfg *config.AppConfig) {
	a.accounts = auth.NewGormAccountRepository(a.gormDB)
	a.resolver = auth.NewResolver(a.accounts, cfg.Auth.ProxySecret)
	a.ledger = quota.NewLedger(a.gormDB)
	a.provider = provider.NewClient(cfg.Provider)

	bus := session.NewEventBus()
	if err := session.SubscribeAuditLog(bus, a.gormDB); err != nil {
		zap.S().Warnf("session audit subscription failed: %v", err)
	}

	a.registry = session.NewRegistry(session.NewGormSessionRepository(a.gormDB), a.provider, bus)
	a.pipeline = pipeline.NewPipeline(a.registry, a.ledger, a.provider)
}

func (a *Application) initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.collector != nil {
		_ = a.collector.Close()
	}
	_ = zap.L().Sync()
}
