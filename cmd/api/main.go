package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cliproxy-gateway/internal/auth"
	"cliproxy-gateway/internal/config"
	"cliproxy-gateway/internal/middleware"
	"cliproxy-gateway/internal/routers"
	"cliproxy-gateway/internal/shared"
	"cliproxy-gateway/internal/upstream"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	port := flag.Int("port", 3000, "Listen port")
	corsOrigin := flag.String("cors-origin", "*", "CORS origin policy, * or comma separated origins")
	trustProxy := flag.Bool("trust-proxy", false, "Derive client IPs from X-Forwarded-For")
	debug := flag.Bool("debug", false, "Debug enabled")

	cliProxyBaseURL := flag.String("cli-proxy-base-url", "http://127.0.0.1:8317", "CLIProxyAPI base URL")
	cliProxyAPIKey := flag.String("cli-proxy-api-key", "", "CLIProxyAPI inference key")
	cliProxyManagementKey := flag.String("cli-proxy-management-key", "", "CLIProxyAPI management key")
	requestTimeoutMS := flag.Int("request-timeout-ms", 120000, "Upstream request timeout in milliseconds")

	appAPIKey := flag.String("app-api-key", "", "Shared secret for shared-secret auth mode")
	authBaseURL := flag.String("auth-base-url", "", "Auth backend base URL for delegated auth mode")
	redisAddr := flag.String("redis-addr", "", "Redis host:port for session caching")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")

	rateLimitWindowMS := flag.Int("rate-limit-window-ms", int(shared.DefaultRateLimitWindow.Milliseconds()), "Rate limit window in milliseconds")
	rateLimitAIMax := flag.Int("rate-limit-ai-max", shared.DefaultAIRateLimitMax, "Max requests per window on /ai routes, <=0 disables")
	rateLimitCodexMax := flag.Int("rate-limit-codex53-max", shared.DefaultCodexRateLimitMax, "Max requests per window on codex-5.3 routes, <=0 disables")

	codexModel := flag.String("codex53-model", "gpt-5.3-codex", "Model identifier forced on codex-5.3 routes")
	codexEffort := flag.String("codex53-reasoning-effort", "medium", "Default reasoning effort on codex-5.3 routes")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	cfg := &config.Config{
		Port:                  *port,
		CORSOrigin:            *corsOrigin,
		TrustProxy:            *trustProxy,
		Debug:                 *debug,
		CLIProxyBaseURL:       *cliProxyBaseURL,
		CLIProxyAPIKey:        *cliProxyAPIKey,
		CLIProxyManagementKey: *cliProxyManagementKey,
		RequestTimeout:        time.Duration(*requestTimeoutMS) * time.Millisecond,
		AppAPIKey:             *appAPIKey,
		AuthBaseURL:           *authBaseURL,
		RedisAddr:             *redisAddr,
		RateLimitWindow:       time.Duration(*rateLimitWindowMS) * time.Millisecond,
		RateLimitAIMax:        *rateLimitAIMax,
		RateLimitCodexMax:     *rateLimitCodexMax,
		APIKeyRateLimitWindow: time.Duration(*rateLimitWindowMS) * time.Millisecond,
		APIKeyRateLimitMax:    *rateLimitAIMax,
		CodexModel:            *codexModel,
		CodexReasoningEffort:  *codexEffort,
		MetricsAPIKey:         *metricsAPIKey,
	}
	cfg.NormalizeBaseURLs()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %s", err))
	}

	var logger *zap.Logger
	if !cfg.Debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()

	// Redis is only used as a session cache in delegated auth mode
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
	}

	var authClient *auth.Client
	var authService auth.Service
	switch cfg.AuthMode() {
	case config.AuthModeDelegated:
		authClient = auth.NewClient(cfg.AuthBaseURL, redisClient, log)
		authService = authClient
		log.Infow("Auth mode", "mode", "delegated", "backend", cfg.AuthBaseURL)
	case config.AuthModeSharedSecret:
		authService = auth.NewSharedSecret(cfg.AppAPIKey)
		log.Infow("Auth mode", "mode", "shared-secret")
	default:
		log.Warn("Auth disabled, running in open mode")
	}

	upstreamClient := upstream.NewClient(upstream.ClientConfig{
		BaseURL:       cfg.CLIProxyBaseURL,
		APIKey:        cfg.CLIProxyAPIKey,
		ManagementKey: cfg.CLIProxyManagementKey,
		Timeout:       cfg.RequestTimeout,
	}, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.NewErrorHandler(log)
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := shared.APIKeyFromRequest(c)
			if apiKey == "" {
				return c.String(401, "Missing or invalid API key")
			}
			if apiKey != cfg.MetricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})

	base := e.Group("")
	base.Use(emw.CORSWithConfig(emw.CORSConfig{AllowOrigins: cfg.CORSOrigins()}))
	base.Use(emw.BodyLimit("2M"))
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))

	amw := middleware.NewAuth(authService)

	routers.RegisterAIRoutes(base, upstreamClient, cfg, amw)
	routers.RegisterIntegrationsRoutes(base, upstreamClient, amw)
	if authClient != nil {
		routers.RegisterAccountRoutes(base, authClient, cfg, amw)
	}

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
