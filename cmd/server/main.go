// Command gobiz-wallet starts the merchant wallet web server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ardiansyahdr/gobiz-wallet/internal/cryptobox"
	"github.com/ardiansyahdr/gobiz-wallet/internal/gobiz"
	"github.com/ardiansyahdr/gobiz-wallet/internal/limiter"
	"github.com/ardiansyahdr/gobiz-wallet/internal/session"
	"github.com/ardiansyahdr/gobiz-wallet/internal/web"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// envOr prefers the environment value so containerized deploys can skip flags.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// main parses configuration, derives the purpose keys, and starts the HTTP
// server with graceful shutdown.
func main() {
	_ = godotenv.Load()

	// Flags (env vars take precedence for container deploys)
	addr := flag.String("addr", envOr("ADDR", ":8080"), "listen address")
	baseURL := flag.String("base-url", envOr("GOBIZ_BASE_URL", ""), "upstream API base URL (default production)")
	clientID := flag.String("client-id", envOr("GOBIZ_CLIENT_ID", ""), "upstream OAuth client id (default production)")
	otpGrant := flag.String("otp-grant-type", envOr("OTP_GRANT_TYPE", ""), "grant type for otp verification")
	appName := flag.String("app-name", envOr("APP_NAME", "GoBiz Wallet"), "application display name")
	redisAddr := flag.String("redis-addr", envOr("REDIS_ADDR", ""), "redis address for login rate limiting (empty disables)")
	secureCookies := flag.Bool("secure-cookies", envOr("SECURE_COOKIES", "") == "true", "mark cookies Secure (HTTPS deploys)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	master, err := cryptobox.ParseMasterKey(os.Getenv("MASTER_KEY"))
	if err != nil {
		logger.Fatal("invalid MASTER_KEY", zap.Error(err))
	}

	sessionKey, err := cryptobox.DeriveKey(master, "session")
	if err != nil {
		logger.Fatal("derive session key", zap.Error(err))
	}
	csrfKey, err := cryptobox.DeriveKey(master, "csrf")
	if err != nil {
		logger.Fatal("derive csrf key", zap.Error(err))
	}
	box, err := cryptobox.New(sessionKey)
	if err != nil {
		logger.Fatal("session box", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Limiter (optional)
	var lim limiter.Limiter
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		lim = limiter.NewRedis(rdb, 15*time.Minute, 5)
	}

	api := gobiz.New(gobiz.Config{
		BaseURL:      *baseURL,
		ClientID:     *clientID,
		OTPGrantType: *otpGrant,
	}, box, logger)

	srv, err := web.NewServer(web.Config{
		AppName:       *appName,
		SecureCookies: *secureCookies,
	}, logger, session.NewCodec(box), api, lim, web.NewCSRF(csrfKey))
	if err != nil {
		logger.Fatal("web server", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
