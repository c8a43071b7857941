package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/speedrun-settlement/pkg/chainclient"
	"github.com/speedrun-hq/speedrun-settlement/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settlement/pkg/config"
	"github.com/speedrun-hq/speedrun-settlement/pkg/health"
	"github.com/speedrun-hq/speedrun-settlement/pkg/keeper"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/oracle"
	"github.com/speedrun-hq/speedrun-settlement/pkg/permit"
	"github.com/speedrun-hq/speedrun-settlement/pkg/reactor"
	"github.com/speedrun-hq/speedrun-settlement/pkg/settler"
	"github.com/speedrun-hq/speedrun-settlement/pkg/validation"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		stdLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	l := ledger.New(ledger.SystemClock{})
	p2 := permit.New(cfg.Permit2Address, cfg.ChainID, stdLogger)
	r := reactor.New(cfg.ReactorAddress, l, p2, stdLogger)
	s := settler.New(cfg.SettlerAddress, l, p2, stdLogger)

	breakers := map[string]*circuitbreaker.CircuitBreaker{}
	var settlementOracle settler.Oracle
	if cfg.OracleRPCURL != "" {
		client, err := chainclient.New(ctx, cfg.OracleRPCURL, cfg.OracleAddress)
		if err != nil {
			log.Fatalf("Failed to connect to the oracle chain: %v", err)
		}
		defer client.Close()

		cb := circuitbreaker.NewCircuitBreaker(
			"oracle",
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
			stdLogger,
		)
		breakers["oracle"] = cb
		settlementOracle = oracle.NewRemote(ctx, client.OracleContract, cb, stdLogger)
		stdLogger.InfoWithComponent(logger.Oracle, "Reading fills from oracle %s on %s", cfg.OracleAddress.Hex(), config.GetChainName(client.ChainID.Uint64()))
	} else {
		settlementOracle = oracle.NewStore(stdLogger)
		stdLogger.InfoWithComponent(logger.Oracle, "Using in-memory oracle at %s", cfg.OracleAddress.Hex())
	}
	if err := l.Deploy(cfg.OracleAddress, settlementOracle); err != nil {
		log.Fatalf("Failed to deploy oracle: %v", err)
	}
	if err := l.Deploy(cfg.FillerAddress, reactor.NewDirectFiller(cfg.FillerAddress, cfg.ReactorAddress)); err != nil {
		log.Fatalf("Failed to deploy fill contract: %v", err)
	}
	if err := l.Deploy(cfg.ValidatorAddress, validation.NewExclusiveFiller()); err != nil {
		log.Fatalf("Failed to deploy validator: %v", err)
	}
	if cfg.FaucetEnabled {
		stdLogger.Notice("Token faucet enabled, anyone can mint and approve through the health server")
	}

	healthServer := health.NewServer(cfg.MetricsPort, l, r, s, breakers, cfg.MetricsAPIKey, cfg.FaucetEnabled, stdLogger)
	k := keeper.New(s, cfg.KeeperAddress, cfg.PollingInterval, cfg.WorkerCount, stdLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(healthServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return k.Start(gctx)
	})

	stdLogger.Notice("Starting settlement daemon on %s (reactor %s, settler %s)",
		config.GetChainName(cfg.ChainID.Uint64()), cfg.ReactorAddress.Hex(), cfg.SettlerAddress.Hex())
	if err := g.Wait(); err != nil {
		log.Fatalf("Settlement daemon stopped: %v", err)
	}
}
