package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	deployment "trancheledger/config"
	"trancheledger/core/events"
	"trancheledger/gateway/config"
	"trancheledger/gateway/middleware"
	"trancheledger/gateway/routes"
	"trancheledger/native/tranche"
	"trancheledger/observability"
	"trancheledger/observability/logging"
	telemetry "trancheledger/observability/otel"
	"trancheledger/services/history"
	"trancheledger/state/bank"
	"trancheledger/storage"
)

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to daemon configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TRANCHELD_ENV"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("trancheld", env).Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.SetupWithRotation("trancheld", env, &logging.Rotation{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err := run(cfg, cfgPath, env, allowInsecureFlag, logger); err != nil {
		logger.Error("trancheld stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, cfgPath, env string, allowInsecureFlag bool, logger *slog.Logger) error {
	configDir := ""
	if strings.TrimSpace(cfgPath) != "" {
		configDir = filepath.Dir(cfgPath)
	}
	deployPath := resolvePath(configDir, cfg.Ledger.Deployment)
	deploy, err := deployment.Load(deployPath)
	if err != nil {
		return fmt.Errorf("load deployment %s: %w", deployPath, err)
	}

	shutdownTelemetry, err := initTelemetry(cfg, env, deploy)
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	dataDir := cfg.Ledger.DataDir
	if strings.TrimSpace(dataDir) == "" {
		dataDir = resolvePath(filepath.Dir(deployPath), deploy.DataDir)
	}
	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	b, err := bank.Load(db)
	if err != nil {
		return err
	}
	state := newDurableState(db, b)
	_, ledgerErr := state.GetLedger()
	firstBoot := errors.Is(ledgerErr, tranche.ErrNotInitialized)
	if ledgerErr != nil && !firstBoot {
		return ledgerErr
	}
	if firstBoot {
		if err := deploy.Seed(b); err != nil {
			return fmt.Errorf("seed balances: %w", err)
		}
	}

	interval := cfg.Ledger.AccrualInterval
	registry, err := deploy.BuildRegistry(b, accrualHeight(time.Now(), interval))
	if err != nil {
		return err
	}
	router, err := deploy.BuildRouter(b)
	if err != nil {
		return err
	}

	emitters := events.MultiEmitter{observability.Events()}
	var historyReader routes.History
	if cfg.History.Enabled {
		historyDB, err := history.Open(cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			return err
		}
		recorder := history.NewRecorder(historyDB, logger)
		emitters = append(emitters, recorder)
		historyReader = recorder
	}

	engine := tranche.NewEngine(b, registry)
	engine.SetState(state)
	engine.SetPauses(deploy.Pauses())
	engine.SetEmitter(emitters)
	engine.SetLogger(logger)
	engine.SetMetrics(observability.Tranche())
	if router != nil {
		engine.SetRouter(router)
	}
	if firstBoot {
		if err := engine.Initialize(deploy.Ledger); err != nil {
			return fmt.Errorf("initialise ledger: %w", err)
		}
	}

	var dispatch sync.Mutex
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accrual := &accruer{
		registry: registry,
		bank:     b,
		db:       db,
		lock:     &dispatch,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
	go accrual.run(ctx)

	handler, err := buildHandler(cfg, engine, historyReader, &dispatch, logger)
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	allowInsecure := cfg.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure {
			return errors.New("TLS certificate and key are required; provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if !strings.EqualFold(env, "dev") && !isLoopbackAddress(cfg.ListenAddress) {
			return errors.New("plaintext mode is restricted to loopback listeners or dev environment")
		}
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    tlsConfig,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
			listener = tls.NewListener(listener, tlsConfig)
		}
		logger.Info("listening", "address", scheme+"://"+listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	dispatch.Lock()
	defer dispatch.Unlock()
	b.Commit()
	return b.Save(db)
}

func initTelemetry(cfg config.Config, env string, deploy *deployment.Config) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" || !(cfg.Observability.Metrics || cfg.Observability.Tracing) {
		return nil, nil
	}
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	return telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "trancheld",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Attributes: map[string]string{
			"ledger.address":  deploy.Ledger.Address,
			"ledger.strategy": deploy.Ledger.Strategy,
		},
		Metrics: cfg.Observability.Metrics,
		Traces:  cfg.Observability.Tracing,
	})
}

func buildHandler(cfg config.Config, engine routes.Engine, historyReader routes.History, lock sync.Locker, logger *slog.Logger) (http.Handler, error) {
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        cfg.Auth.Enabled,
		HMACSecret:     cfg.Auth.HMACSecret,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		ScopeClaim:     cfg.Auth.ScopeClaim,
		OptionalPaths:  cfg.Auth.OptionalPaths,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		ClockSkew:      cfg.Auth.ClockSkew,
	}, logger)

	router, err := routes.New(routes.Config{
		Engine:        engine,
		History:       historyReader,
		Lock:          lock,
		Authenticator: auth,
		RateLimiter:   middleware.NewRateLimiter(rateLimits(cfg.RateLimits), logger),
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Observability.Tracing {
		return otelhttp.NewHandler(router, "trancheld"), nil
	}
	return router, nil
}

func rateLimits(entries []config.RateLimitConfig) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit)
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		limits[entry.ID] = middleware.RateLimit{
			RatePerSecond: entry.PerSecond(),
			Burst:         entry.Burst,
			DefaultTokens: entry.DefaultTokens,
			Tokens:        entry.Tokens,
		}
	}
	if len(limits) == 0 {
		limits["read"] = middleware.RateLimit{RatePerSecond: 20, Burst: 40}
		limits["write"] = middleware.RateLimit{RatePerSecond: 5, Burst: 10}
		limits["admin"] = middleware.RateLimit{RatePerSecond: 1, Burst: 5}
	}
	return limits
}

func buildTLSConfig(baseDir string, sec config.SecurityConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, sec.TLSCertFile)
	keyPath := resolvePath(baseDir, sec.TLSKeyFile)
	caPath := resolvePath(baseDir, sec.TLSClientCAFile)
	if certPath == "" && keyPath == "" && caPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse client CA file %s", caPath)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
