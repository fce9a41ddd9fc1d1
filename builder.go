package walletauth

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimbuswallet/walletauth/internal/rate"
	"github.com/nimbuswallet/walletauth/internal/store"
)

// Builder assembles an [Engine]. One-shot: Build may be called once.
type Builder struct {
	config   Config
	delegate ChallengeDelegate
	lookup   AvailabilityLookup
	identity IdentityMaterializer
	logger   *slog.Logger
	registry prometheus.Registerer

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the orchestrator constants.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithChallengeDelegate sets the OTP send/verify provider.
func (b *Builder) WithChallengeDelegate(d ChallengeDelegate) *Builder {
	b.delegate = d
	return b
}

// WithAvailabilityLookup sets the phone/email availability source.
func (b *Builder) WithAvailabilityLookup(l AvailabilityLookup) *Builder {
	b.lookup = l
	return b
}

// WithIdentityMaterializer sets the durable identity/session delegate.
func (b *Builder) WithIdentityMaterializer(m IdentityMaterializer) *Builder {
	b.identity = m
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics registers engine collectors on reg. Metrics stay disabled when
// never called.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// Build validates the configuration and dependencies, constructs the session
// store and rate limiter, and starts the background sweep task. The caller
// owns the returned engine and must Close it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.delegate == nil {
		return nil, errors.New("challenge delegate required")
	}
	if b.lookup == nil {
		return nil, errors.New("availability lookup required")
	}
	if b.identity == nil {
		return nil, errors.New("identity materializer required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics *Metrics
	if b.registry != nil {
		metrics = NewMetrics(b.registry)
	}

	e := &Engine{
		config:   b.config,
		delegate: b.delegate,
		lookup:   b.lookup,
		identity: b.identity,
		sessions: store.New(),
		limiter:  rate.New(b.config.RateLimit.MaxAttempts, b.config.RateLimit.Window),
		logger:   logger,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
	e.sweepDone.Add(1)
	go e.sweepLoop()

	b.built = true
	return e, nil
}
