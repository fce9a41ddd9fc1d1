// Command walletd runs the wallet authentication service: the login and
// phone-change orchestrator over HTTP, backed by Postgres (users), Redis
// (durable sessions), and a hosted OTP verification provider.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nimbuswallet/walletauth"
	"github.com/nimbuswallet/walletauth/identity"
	"github.com/nimbuswallet/walletauth/internal/httpapi"
	"github.com/nimbuswallet/walletauth/internal/userdb"
	"github.com/nimbuswallet/walletauth/jwt"
	"github.com/nimbuswallet/walletauth/provider"
	"github.com/nimbuswallet/walletauth/session"
)

type config struct {
	Addr        string        `env:"WALLETD_ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"WALLETD_DATABASE_URL,required"`
	RedisURL    string        `env:"WALLETD_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	JWTSecret   string        `env:"WALLETD_JWT_SECRET,required"`
	JWTIssuer   string        `env:"WALLETD_JWT_ISSUER" envDefault:"walletd"`
	AccessTTL   time.Duration `env:"WALLETD_ACCESS_TTL" envDefault:"15m"`
	SessionTTL  time.Duration `env:"WALLETD_SESSION_TTL" envDefault:"720h"`

	ProviderURL string `env:"WALLETD_PROVIDER_URL,required"`
	ProviderKey string `env:"WALLETD_PROVIDER_KEY,required"`

	ShutdownTimeout time.Duration `env:"WALLETD_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("walletd exited", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.JWTSecret),
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		return err
	}

	idsvc, err := identity.New(
		userdb.New(pool),
		session.New(redisClient, ""),
		tokens,
		identity.Config{SessionTTL: cfg.SessionTTL},
	)
	if err != nil {
		return err
	}

	engine, err := walletauth.New().
		WithConfig(walletauth.DefaultConfig()).
		WithChallengeDelegate(provider.NewClient(cfg.ProviderURL, cfg.ProviderKey)).
		WithAvailabilityLookup(idsvc).
		WithIdentityMaterializer(idsvc).
		WithLogger(logger).
		WithMetrics(prometheus.DefaultRegisterer).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.New(engine, idsvc, logger, prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
