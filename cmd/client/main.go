package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"gridclash.io/internal/client"
	"gridclash.io/internal/metrics"
	persistlog "gridclash.io/internal/persistence/log"
	"gridclash.io/internal/tuning"
)

// finishGrace keeps the client receiving briefly after GAME_OVER so the
// second copy and any trailing snapshots are logged.
const finishGrace = 500 * time.Millisecond

func main() {
	var (
		configPath = flag.String("config", "./configs/gsync.yaml", "path to gsync.yaml (empty for built-in defaults)")
		envFile    = flag.String("env", ".env", "optional dotenv file")
		serverHost = flag.String("host", "", "authority host (overrides client.server_host)")
		serverPort = flag.Int("port", 0, "authority port (overrides client.server_port)")
		listenPort = flag.Int("listen_port", -1, "local UDP port, 0 for ephemeral (overrides client.listen_port)")
		playerID   = flag.Int("player_id", 0, "player id in [1,max_players] (overrides client.player_id)")
		scenario   = flag.String("scenario", "", "scenario label in log file names (overrides client.scenario)")
		logsDir    = flag.String("logs", "", "CSV output directory (overrides client.logs_dir)")
		claimMs    = flag.Int("claim_interval_ms", -1, "headless claim pacing; 0 disables (overrides client.claim_interval_ms)")
		metricsAdr = flag.String("metrics", "", "serve /metrics on this address (overrides client.metrics_addr)")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file %s: %v\n", *envFile, err)
	}

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	cfg := tune.Client
	if *serverHost != "" {
		cfg.ServerHost = *serverHost
	}
	if *serverPort != 0 {
		cfg.ServerPort = *serverPort
	}
	if *listenPort >= 0 {
		cfg.ListenPort = *listenPort
	}
	if *playerID != 0 {
		cfg.PlayerID = *playerID
	}
	if *scenario != "" {
		cfg.Scenario = *scenario
	}
	if *logsDir != "" {
		cfg.LogsDir = *logsDir
	}
	if *claimMs >= 0 {
		cfg.ClaimIntervalMs = *claimMs
	}
	if *metricsAdr != "" {
		cfg.MetricsAddr = *metricsAdr
	}
	tune.Client = cfg
	if err := tune.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if cfg.PlayerID < 1 {
		fmt.Fprintln(os.Stderr, "missing --player_id")
		os.Exit(2)
	}

	logger := log.New(os.Stdout, fmt.Sprintf("[client %d] ", cfg.PlayerID), log.LstdFlags|log.Lmicroseconds)

	serverAddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddr())
	if err != nil {
		logger.Fatalf("resolve %s: %v", cfg.ServerAddr(), err)
	}
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		logger.Fatalf("listen udp: %v", err)
	}
	defer conn.Close()

	stamp := time.Now().Format("20060102_150405")
	snapPath, diagPath := persistlog.ClientLogPaths(cfg.LogsDir, uint8(cfg.PlayerID), cfg.Scenario, stamp)
	snapCSV, err := persistlog.NewClientSnapshotCSV(snapPath)
	if err != nil {
		logger.Fatalf("snapshot log: %v", err)
	}
	defer snapCSV.Close()
	diagCSV, err := persistlog.NewClientDiagnosticsCSV(diagPath)
	if err != nil {
		logger.Fatalf("diagnostics log: %v", err)
	}
	defer diagCSV.Close()

	c := client.New(client.Config{
		PlayerID:       uint8(cfg.PlayerID),
		GridN:          tune.Server.GridN,
		ExpectedRateHz: cfg.ExpectedRateHz,
		FlushInterval:  cfg.FlushInterval(),
		ClaimInterval:  cfg.ClaimInterval(),
	}, conn, serverAddr, logger)
	c.SetPacketLogger(snapCSV)
	c.SetDiagnosticsLogger(diagCSV)

	if strings.TrimSpace(cfg.MetricsAddr) != "" {
		reg := prometheus.NewRegistry()
		c.SetMetrics(metrics.NewClient(reg))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Printf("metrics http: %v", err)
			}
		}()
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := c.Register(); err != nil {
		logger.Fatalf("register: %v", err)
	}
	logger.Printf("registered with %s from %s; logs %s", serverAddr, conn.LocalAddr(), snapPath)

	go func() {
		select {
		case <-c.Finished():
			time.Sleep(finishGrace)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := c.Run(ctx); err != nil {
		logger.Printf("client stopped: %v", err)
	}

	s := c.Stats()
	logger.Printf("received=%d duplicates=%d (%.2f%%) gaps=%d redundancy=%d dropped=%d claims=%d",
		s.PacketsReceived, s.Duplicates, 100*s.DuplicateRate, s.SequenceGaps, s.RedundancyUsed, s.Dropped, s.ClaimsSent)
	if g, ok := c.Result(); ok {
		logger.Printf("final: winner=%d tallies=%v", g.Winner, g.Tallies)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
