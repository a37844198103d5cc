package factory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mybank/internal/config"
	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/internal/repository"
	"mybank/internal/service"
	"mybank/pkg/cache"
	"mybank/pkg/logger"
)

type Factory interface {
	GetLogger() logger.Logger
	GetConfig() *config.Config
	GetStore() *database.Store
	// GetCache returns nil when caching is disabled or Redis was unreachable at startup.
	GetCache() cache.Cache

	GetUserRepository() domain.UserRepository
	GetAccountRepository() domain.AccountRepository
	GetTransactionRepository() domain.TransactionRepository
	GetRequestRepository() domain.RequestRepository
	GetAuditLogRepository() domain.AuditLogRepository

	GetIdentityService() domain.IdentityService
	GetUserService() domain.UserService
	GetLedgerService() domain.LedgerService
	GetSearchService() domain.SearchService
	GetWorkflowService() domain.WorkflowService
	GetAuditLogService() domain.AuditLogService

	Close() error
}

type AppFactory struct {
	config      *config.Config
	logger      logger.Logger
	store       *database.Store
	redisClient *redis.Client
	cache       cache.Cache

	userRepository        domain.UserRepository
	accountRepository     domain.AccountRepository
	transactionRepository domain.TransactionRepository
	requestRepository     domain.RequestRepository
	auditLogRepository    domain.AuditLogRepository

	identityService domain.IdentityService
	userService     domain.UserService
	ledgerService   domain.LedgerService
	searchService   domain.SearchService
	workflowService domain.WorkflowService
	auditLogService domain.AuditLogService
}

// NewFactory loads configuration, connects and migrates the database, and
// wires every repository and service.
func NewFactory(ctx context.Context) (Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.LogLevel(cfg.LogLevel), nil)

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrationService(db, log).RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store := database.NewStore(db, cfg.Database.Driver, cfg.Database.OperationTimeout, log)

	var (
		redisClient *redis.Client
		c           cache.Cache
	)
	if cfg.Redis.Enabled {
		redisClient, c = connectCache(ctx, cfg.Redis, log)
	}

	f := New(cfg, store, c, log)
	f.redisClient = redisClient
	return f, nil
}

// connectCache returns a nil cache when Redis cannot be reached. The ledger
// works without it.
func connectCache(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*redis.Client, cache.Cache) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	c := cache.NewRedisCache(client, log, "mybank")
	if err := c.Ping(ctx); err != nil {
		log.Warn("Redis unreachable, running without cache", map[string]interface{}{
			"addr":  cfg.Addr,
			"error": err.Error(),
		})
		_ = client.Close()
		return nil, nil
	}

	log.Info("Redis cache enabled", map[string]interface{}{"addr": cfg.Addr, "ttl": cfg.CacheTTL.String()})
	return client, c
}

// New wires repositories and services over an existing store. c may be nil.
func New(cfg *config.Config, store *database.Store, c cache.Cache, log logger.Logger) *AppFactory {
	f := &AppFactory{
		config: cfg,
		logger: log,
		store:  store,
		cache:  c,
	}
	f.initRepositories()
	f.initServices()
	return f
}

func (f *AppFactory) initRepositories() {
	f.userRepository = repository.NewUserRepository(f.store, f.logger)
	f.accountRepository = repository.NewAccountRepository(f.store, f.logger)
	f.transactionRepository = repository.NewTransactionRepository(f.store, f.logger)
	f.requestRepository = repository.NewRequestRepository(f.store, f.logger)
	f.auditLogRepository = repository.NewAuditLogRepository(f.store, f.logger)
}

func (f *AppFactory) initServices() {
	hasher := service.NewPasswordHasher(f.config.Auth.BcryptCost)

	auditLogService := service.NewAuditLogService(f.store, f.auditLogRepository, f.logger)
	f.auditLogService = auditLogService

	var ledger domain.LedgerService = service.NewLedgerService(
		f.store,
		f.accountRepository,
		f.userRepository,
		f.transactionRepository,
		auditLogService,
		f.logger,
	)
	if f.cache != nil {
		ledger = service.NewCachedLedgerService(ledger, f.cache, f.config.Redis.CacheTTL, f.logger)
	}
	f.ledgerService = ledger

	f.identityService = service.NewIdentityService(
		f.store,
		f.userRepository,
		auditLogService,
		hasher,
		f.config.Auth.JWTSecret,
		f.config.Auth.TokenTTL,
		f.logger,
	)
	f.userService = service.NewUserService(f.store, f.userRepository, auditLogService, hasher, f.logger)
	f.searchService = service.NewSearchService(f.store, f.accountRepository, f.logger)
	f.workflowService = service.NewWorkflowService(
		f.store,
		f.requestRepository,
		f.userRepository,
		f.accountRepository,
		f.ledgerService,
		auditLogService,
		hasher,
		f.logger,
	)
}

func (f *AppFactory) GetLogger() logger.Logger {
	return f.logger
}

func (f *AppFactory) GetConfig() *config.Config {
	return f.config
}

func (f *AppFactory) GetStore() *database.Store {
	return f.store
}

func (f *AppFactory) GetCache() cache.Cache {
	return f.cache
}

func (f *AppFactory) GetUserRepository() domain.UserRepository {
	return f.userRepository
}

func (f *AppFactory) GetAccountRepository() domain.AccountRepository {
	return f.accountRepository
}

func (f *AppFactory) GetTransactionRepository() domain.TransactionRepository {
	return f.transactionRepository
}

func (f *AppFactory) GetRequestRepository() domain.RequestRepository {
	return f.requestRepository
}

func (f *AppFactory) GetAuditLogRepository() domain.AuditLogRepository {
	return f.auditLogRepository
}

func (f *AppFactory) GetIdentityService() domain.IdentityService {
	return f.identityService
}

func (f *AppFactory) GetUserService() domain.UserService {
	return f.userService
}

func (f *AppFactory) GetLedgerService() domain.LedgerService {
	return f.ledgerService
}

func (f *AppFactory) GetSearchService() domain.SearchService {
	return f.searchService
}

func (f *AppFactory) GetWorkflowService() domain.WorkflowService {
	return f.workflowService
}

func (f *AppFactory) GetAuditLogService() domain.AuditLogService {
	return f.auditLogService
}

func (f *AppFactory) Close() error {
	if f.redisClient != nil {
		if err := f.redisClient.Close(); err != nil {
			f.logger.Warn("Redis client close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return f.store.DB().Close()
}
