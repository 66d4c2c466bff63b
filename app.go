// Package loginguard wires the login gate: shared Redis state, the user
// database, security events and the HTTP surface.
package loginguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/loginguard/adapters/credentials"
	"github.com/layer-3/loginguard/adapters/events"
	"github.com/layer-3/loginguard/adapters/render"
	"github.com/layer-3/loginguard/adapters/store"
	"github.com/layer-3/loginguard/adapters/tokenizer"
	"github.com/layer-3/loginguard/config"
	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/logger"
	"github.com/layer-3/loginguard/metrics"
	"github.com/layer-3/loginguard/ports"
	"github.com/layer-3/loginguard/service"
	transport "github.com/layer-3/loginguard/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Redis client timeouts
const (
	dialTimeout = 10 * time.Second
	ioTimeout   = 3 * time.Second
)

// App owns the process-wide resources of the gate
type App struct {
	cfg    config.Config
	logger *slog.Logger

	redis      redis.UniversalClient
	ownsRedis  bool
	db         *gorm.DB
	publisher  message.Publisher
	shared     *store.RedisStore
	registry   prometheus.Registerer
	gatherer   prometheus.Gatherer
	renderer   ports.ChallengeRenderer
	bcryptCost int

	auth             *service.AuthService
	loginLimiter     *service.RateLimiter
	challengeLimiter *service.RateLimiter
	router           *gin.Engine
}

type AppOption func(*App)

// WithRedisClient uses client instead of dialing REDIS_URL. The caller
// keeps ownership of client.
func WithRedisClient(client redis.UniversalClient) AppOption {
	return func(a *App) {
		a.redis = client
	}
}

func WithDB(db *gorm.DB) AppOption {
	return func(a *App) {
		a.db = db
	}
}

func WithLogger(l *slog.Logger) AppOption {
	return func(a *App) {
		a.logger = l
	}
}

// WithRegistry registers and serves metrics from reg instead of the
// Prometheus default registry
func WithRegistry(reg *prometheus.Registry) AppOption {
	return func(a *App) {
		a.registry = reg
		a.gatherer = reg
	}
}

func WithRenderer(r ports.ChallengeRenderer) AppOption {
	return func(a *App) {
		a.renderer = r
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost
func WithBcryptCost(cost int) AppOption {
	return func(a *App) {
		a.bcryptCost = cost
	}
}

// New connects to Redis and the database and wires every component.
// Redis must answer a ping before New returns.
func New(ctx context.Context, cfg config.Config, opts ...AppOption) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		registry:   prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.New(logger.ParseLevel(cfg.LogLevel))
	}
	if a.renderer == nil {
		a.renderer = render.NewPNGRenderer()
	}

	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	if a.redis == nil {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("%w: invalid REDIS_URL: %v", core.ErrConfiguration, err)
		}
		opts.DialTimeout = dialTimeout
		opts.ReadTimeout = ioTimeout
		opts.WriteTimeout = ioTimeout
		a.redis = redis.NewClient(opts)
		a.ownsRedis = true
	}
	a.shared = store.NewRedisStore(a.redis)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := a.shared.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.logger.Info("connected to redis")

	if a.db == nil {
		db, err := credentials.OpenSQLite(a.cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		a.db = db
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: a.redis,
	}, watermill.NewSlogLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	a.publisher = publisher
	return nil
}

func (a *App) wire(ctx context.Context) error {
	m := metrics.New(a.registry)
	metrics.RegisterRedisPool(a.registry, a.redis.PoolStats)

	common := []service.Option{
		service.WithLogger(a.logger),
		service.WithMetrics(m),
		service.WithStoreTimeout(a.cfg.StoreTimeout),
	}

	ledger, err := service.NewChallengeLedger(a.shared, a.renderer, service.LedgerConfig{
		TTL:            a.cfg.CaptchaTTL(),
		SolutionLength: service.DefaultLedgerConfig().SolutionLength,
		DebugSolutions: a.cfg.CaptchaDebugLog && !a.cfg.IsProduction(),
	}, common...)
	if err != nil {
		return err
	}

	accountant, err := service.NewFailureAccountant(a.shared, service.FailureConfig{
		Threshold: a.cfg.MaxCaptchaFailures,
		Window:    a.cfg.BlockWindow(),
	}, common...)
	if err != nil {
		return err
	}

	a.loginLimiter, err = service.NewRateLimiter(a.shared, store.NewMemoryStore(),
		service.LoginRateLimit(a.cfg.RateLimitMax, a.cfg.RateLimitWindow()), common...)
	if err != nil {
		return err
	}
	a.challengeLimiter, err = service.NewRateLimiter(a.shared, store.NewMemoryStore(),
		service.ChallengeRateLimit(a.cfg.CaptchaRateMax, a.cfg.CaptchaRateWindow()), common...)
	if err != nil {
		return err
	}

	users, err := credentials.NewGormStore(a.db)
	if err != nil {
		return err
	}
	if err := users.Migrate(ctx); err != nil {
		return err
	}
	hasher := credentials.NewBcryptHasher(a.bcryptCost)

	tokens, err := tokenizer.NewJWTTokenizer([]byte(a.cfg.JWTSecret), "")
	if err != nil {
		return err
	}

	authCfg := service.DefaultAuthConfig()
	authCfg.TokenTTL = a.cfg.JWTExpiry
	a.auth, err = service.NewAuthService(service.AuthDeps{
		Challenges:  ledger,
		Failures:    accountant,
		Credentials: users,
		Hasher:      hasher,
		Tokens:      tokens,
		Events:      events.NewWatermillPublisher(a.publisher, a.cfg.EventsTopic),
	}, authCfg, common...)
	if err != nil {
		return err
	}

	if a.cfg.AdminUsername != "" {
		created, err := credentials.EnsurePrincipal(ctx, users, hasher, core.Principal{
			Username: a.cfg.AdminUsername,
			Email:    a.cfg.AdminEmail,
			Role:     core.RoleAdmin,
		}, a.cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("failed to seed admin: %w", err)
		}
		if created {
			a.logger.Info("admin account created", "username", a.cfg.AdminUsername)
		}
	}

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router, err = transport.SetupRouter(transport.RouterDeps{
		Auth:             a.auth,
		LoginLimiter:     a.loginLimiter,
		ChallengeLimiter: a.challengeLimiter,
		Health:           a.shared,
		Metrics:          promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}),
		Logger:           a.logger,
	})
	return err
}

// Handler returns the HTTP surface of the gate
func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Challenge(ctx context.Context) (core.IssuedChallenge, error) {
	return a.auth.CreateChallenge(ctx)
}

func (a *App) Login(ctx context.Context, attempt core.Attempt) core.Outcome {
	return a.auth.Authenticate(ctx, attempt)
}

func (a *App) Register(ctx context.Context, username, password, email string) (*core.Principal, error) {
	return a.auth.Register(ctx, username, password, email)
}

func (a *App) VerifyToken(ctx context.Context, token string) (ports.Claims, error) {
	return a.auth.ValidateAccessToken(ctx, token)
}

// Close releases the database and, when the App dialed it, the Redis
// client together with the stream publisher built on it
func (a *App) Close() error {
	var errs []error
	// The stream publisher closes its client, so it is left open for a
	// caller-owned client. It holds no other resources.
	if a.publisher != nil && a.ownsRedis {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	if a.ownsRedis && a.redis != nil {
		// The stream publisher may already have closed the client
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ Gate = (*App)(nil)
