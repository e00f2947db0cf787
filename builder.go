package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivan-varabyou/workix-sub001/internal/limiters"
	"github.com/ivan-varabyou/workix-sub001/jwt"
	"github.com/ivan-varabyou/workix-sub001/password"
)

// Builder assembles an Engine. A Store and a Redis client are mandatory;
// everything else has a working default.
type Builder struct {
	config Config

	store    Store
	redis    redis.UniversalClient
	logger   *zap.Logger
	notifier Notifier
	geo      GeoLocator
	sink     AuditSink

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence adapter. Required.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the Redis client backing counters, windows, and the cleanup
// lease. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to a nop logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithNotifier sets the outbound message collaborator. Defaults to NoOpNotifier.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithGeoLocator sets the optional IP geolocation collaborator.
func (b *Builder) WithGeoLocator(g GeoLocator) *Builder {
	b.geo = g
	return b
}

// WithAuditSink sets the audit destination and enables the dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. The builder
// is single use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	e := &Engine{
		config:   cfg,
		store:    b.store,
		redis:    b.redis,
		logger:   logger,
		notifier: notifier,
		geo:      b.geo,
		hasher:   hasher,
		policy: password.Policy{
			MinLength:        cfg.Password.MinLength,
			RequireUppercase: cfg.Password.RequireUppercase,
			RequireLowercase: cfg.Password.RequireLowercase,
			RequireDigit:     cfg.Password.RequireDigit,
			RequireSymbol:    cfg.Password.RequireSymbol,
			RejectCommon:     cfg.Password.RejectCommon,
		},
		tokens:  tokens,
		totp:    newTOTPManager(cfg.TOTP),
		window:  limiters.NewWindow(b.redis, cfg.RedisPrefix),
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.sink),
		now:     defaultNow,
	}

	b.built = true
	return e, nil
}
