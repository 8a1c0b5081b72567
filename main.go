package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"multiaccount-trade/internal/api"
	"multiaccount-trade/internal/engine"
	"multiaccount-trade/internal/gateway"
	"multiaccount-trade/internal/logging"
	"multiaccount-trade/internal/monitor"
	"multiaccount-trade/pkg/config"
	"multiaccount-trade/pkg/crypto"
	"multiaccount-trade/pkg/license"
)

func main() {
	encryptValue := flag.String("encrypt", "", "encrypt a gateway setting value with MASTER_KEY and exit")
	generateKey := flag.Bool("generate-key", false, "print a new random MASTER_KEY and exit")
	issueToken := flag.String("issue-token", "", "issue an API token for the given operator and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens issued with -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.IsProduction(), cfg.Debug)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	nodeID := license.NodeID()
	auth := license.NewManager(cfg.JWTSecret, nodeID)

	km, err := crypto.KeyManagerFromEnv("MASTER_KEY")
	if err != nil {
		if !errors.Is(err, crypto.ErrKeyNotFound) {
			logger.Fatal().Err(err).Msg("invalid MASTER_KEY")
		}
		km = nil
	}

	switch {
	case *generateKey:
		key, err := crypto.GenerateKey()
		if err != nil {
			logger.Fatal().Err(err).Msg("generate key failed")
		}
		fmt.Println(key)
		return
	case *encryptValue != "":
		if km == nil {
			logger.Fatal().Msg("MASTER_KEY is required for -encrypt")
		}
		out, err := km.Encrypt(*encryptValue)
		if err != nil {
			logger.Fatal().Err(err).Msg("encrypt failed")
		}
		logger.Info().Int("key_version", km.CurrentVersion()).Msg("value encrypted")
		fmt.Println(out)
		return
	case *issueToken != "":
		token, err := auth.Issue(*issueToken, *tokenTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue token failed")
		}
		fmt.Println(token)
		return
	}

	gwFile, err := config.LoadGateways(cfg.GatewayConfig, km)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.GatewayConfig).Msg("load gateway config")
	}

	aging, err := gwFile.Aging(cfg.AgingExchanges)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve aging exchanges")
	}

	registryCfg := gateway.DefaultConfig()
	registryCfg.HealthInterval = cfg.HealthInterval

	eng, err := engine.New(engine.Options{
		Logger:           logger,
		AgingExchanges:   aging,
		SubscribeGateway: gwFile.Subscriber(),
		Registry:         registryCfg,
		LogDir:           cfg.LogDir,
		Console:          os.Stdout,
		LoadDir:          cfg.LoadDir,
		BackupDir:        cfg.BackupDir,
		JournalPath:      cfg.JournalDBPath,
		Env:              cfg.Env,
		Version:          buildVersion,
		NodeID:           nodeID,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create engine")
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error().Err(err).Msg("engine close")
		}
	}()

	health := monitor.NewHealthServer(logger)
	eng.Metrics().AttachHealth(health)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	alerts := &monitor.Monitor{
		Bus:  eng.Bus(),
		Sink: monitor.LogAlertSink{Logger: logger},
		Log:  logger,
	}
	alerts.Start(ctx)

	if err := eng.Start(ctx, gwFile.Gateways); err != nil {
		logger.Error().Err(err).Msg("some gateways failed to connect")
	}

	server := api.NewServer(eng, auth, eng.Metrics(), logger, api.Config{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr) })
	g.Go(func() error { return health.Serve(gctx, cfg.GRPCAddr) })

	logger.Info().
		Str("node", nodeID).
		Str("version", buildVersion).
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Strs("gateways", eng.GatewayNames()).
		Msg("trading core running")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("shutting down")
}
