package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stakelend/config"
	"stakelend/core"
	"stakelend/core/events"
	"stakelend/gateway/middleware"
	nativecommon "stakelend/native/common"
	"stakelend/native/lending"
	"stakelend/observability/logging"
	telemetry "stakelend/observability/otel"
	lendingserver "stakelend/services/lending/server"
	"stakelend/services/lending/index"
	svcconfig "stakelend/services/lendingd/config"
	"stakelend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		log.Fatalf("lendingd: %v", err)
	}
}

func run(cfgPath string) error {
	cfg, err := svcconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("LEND_ENV"))
	logger, logCloser := logging.SetupWithFile("lendingd", env, logging.FileConfig{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
		Compress:   cfg.LogFile.Compress,
	})
	defer logCloser.Close()

	if otelCfg, ok := telemetry.ConfigFromEnv("lendingd", env); ok {
		shutdownTelemetry, err := telemetry.Init(context.Background(), otelCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	nodeCfg, err := config.Load(cfg.NodeConfig)
	if err != nil {
		return fmt.Errorf("load node config: %w", err)
	}
	db, err := openDatabase(nodeCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var pauses []string
	if nodeCfg.Lending.Paused {
		pauses = append(pauses, lending.ModuleName)
	}
	node, err := core.NewNode(db, core.NodeConfig{
		ModuleAddress: nodeCfg.Lending.ModuleAddress,
		StakingVault:  nodeCfg.Lending.StakingVault,
		LendingPool:   nodeCfg.Lending.LendingPool,
		Pauses:        nativecommon.NewStaticPauses(pauses...),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	indexDB, err := index.Open(nodeCfg.ResolvedIndexDSN())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	store, err := index.NewStore(indexDB, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := lendingserver.NewHub()
	hub.Resume(store.Sequence())
	bus := &events.Bus{}
	bus.Subscribe(store)
	bus.Subscribe(hub)
	node.SetEmitter(bus)

	balances := make([]core.GenesisBalance, 0, len(nodeCfg.Genesis.Balances))
	for _, alloc := range nodeCfg.Genesis.Balances {
		balances = append(balances, core.GenesisBalance{Address: alloc.Address, Amount: alloc.Amount})
	}
	applied, err := node.ApplyGenesis(context.Background(), balances)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", "allocations", len(balances))
	}

	srv, err := lendingserver.New(node, store, serverOptions(cfg, logger, hub))
	if err != nil {
		return err
	}
	tlsCfg, err := lendingserver.ServerTLSConfig(lendingserver.TLSConfig{
		CertFile:         cfg.TLS.CertPath,
		KeyFile:          cfg.TLS.KeyPath,
		ClientCAFile:     cfg.TLS.ClientCAPath,
		AllowInsecure:    cfg.TLS.AllowInsecure,
		AllowedClientCNs: cfg.TLS.AllowedCommonNames,
	})
	if err != nil {
		return fmt.Errorf("configure tls: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if tlsCfg == nil {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			listener.Close()
			return errors.New("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}
	httpServer := lendingserver.NewHTTPServer(cfg.ListenAddress, srv.Handler(), tlsCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "addr", cfg.ListenAddress, "tls", tlsCfg != nil, "node", node.String())
		if tlsCfg != nil {
			serverErr <- httpServer.ServeTLS(listener, "", "")
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.DatabaseBackend == config.BackendMemory {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return db, nil
}

func serverOptions(cfg svcconfig.Config, logger *slog.Logger, hub *lendingserver.Hub) lendingserver.Options {
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		limits[group] = middleware.RateLimit{
			RatePerSecond: limit.RequestsPerMinute / 60,
			Burst:         limit.Burst,
			Tokens:        limit.Tokens,
		}
	}
	opts := lendingserver.Options{
		Logger: logger,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			AllowAnonymous: cfg.Auth.AllowAnonymousReads,
			OptionalPaths:  lendingserver.ReadPaths,
			ClockSkew:      cfg.Auth.ClockSkew,
		}, logger),
		Limiter: middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "lendingd",
			LogRequests: cfg.LogRequests,
			Enabled:     true,
		}, logger),
		Hub:            hub,
		OriginPatterns: cfg.CORS.AllowedOrigins,
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		opts.CORS = &middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins}
	}
	return opts
}
