package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/metrics"
	"gridclash.io/internal/persistence/archive"
	persistlog "gridclash.io/internal/persistence/log"
	"gridclash.io/internal/persistence/snapshot"
	"gridclash.io/internal/procstat"
	"gridclash.io/internal/protocol"
	"gridclash.io/internal/transport/observer"
	"gridclash.io/internal/tuning"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/gsync.yaml", "path to gsync.yaml (empty for built-in defaults)")
		envFile    = flag.String("env", ".env", "optional dotenv file")
		host       = flag.String("host", "", "UDP bind host (overrides server.host)")
		port       = flag.Int("port", 0, "UDP port (overrides server.port)")
		rate       = flag.Int("rate", 0, "broadcast rate in Hz (overrides server.rate_hz)")
		resultsDir = flag.String("results", "", "CSV output directory (overrides server.results_dir)")
		dataDir    = flag.String("data", "", "journal/snapshot/index directory (overrides server.data_dir)")
		httpAddr   = flag.String("http", "", "HTTP listen address for /healthz, /metrics and admin (overrides server.http_addr; \"off\" disables)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("env file %s: %v", *envFile, err)
	}

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *configPath)
		tune = tuning.Defaults()
	}
	cfg := tune.Server
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *rate != 0 {
		cfg.RateHz = *rate
	}
	if *resultsDir != "" {
		cfg.ResultsDir = *resultsDir
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	cfg.DisableDB = cfg.DisableDB || *disableDB
	tune.Server = cfg
	if err := tune.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	matchID := uuid.NewString()
	startedAt := time.Now()

	conn, err := net.ListenPacket("udp", cfg.Addr())
	if err != nil {
		logger.Fatalf("listen udp %s: %v", cfg.Addr(), err)
	}
	defer conn.Close()

	acfg := authority.Config{
		GridN:      cfg.GridN,
		MaxPlayers: cfg.MaxPlayers,
		RateHz:     cfg.RateHz,
		Redundancy: cfg.Redundancy,
	}
	srv := authority.NewServer(acfg, conn, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv.SetMetrics(metrics.NewAuthority(reg))
	srv.SetCPUSampler(procstat.NewSampler())

	snapCSV, err := persistlog.NewServerSnapshotCSV(cfg.ResultsDir)
	if err != nil {
		logger.Fatalf("server_snapshots.csv: %v", err)
	}
	defer snapCSV.Close()
	eventCSV, err := persistlog.NewServerEventCSV(cfg.ResultsDir)
	if err != nil {
		logger.Fatalf("server_events.csv: %v", err)
	}
	defer eventCSV.Close()

	journal := persistlog.NewJournal(filepath.Join(cfg.DataDir, "journal"), matchID)
	defer journal.Close()

	idx, err := openRuntimeIndex(cfg.DataDir, matchID, cfg.DisableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		idx.RecordMatchStart(acfg, protocol.NowMS(startedAt))
	}

	mirror, err := openArchiveMirror(cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("archive mirror: %v", err)
	}

	srv.SetTickLogger(multiTickLogger{snapCSV, journal, idx})
	srv.SetClaimLogger(multiClaimLogger{eventCSV, journal, idx})

	ctx, cancel := signalContext()
	defer cancel()

	obsSrv := observer.NewServer(srv, matchID, logger)
	srv.SetTickHook(obsSrv.Publish)
	registerRuntimeCollectors(reg, obsSrv, idx, mirror)

	var httpSrv *http.Server
	if strings.ToLower(cfg.HTTPAddr) != "off" && cfg.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           newMux(srv, obsSrv, reg, matchID, envBool("GSYNC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()), logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("http listening on %s", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("http: %v", err)
			}
		}()
	}

	logger.Printf("match %s: udp %s grid=%dx%d rate=%dHz K=%d max_players=%d",
		matchID, conn.LocalAddr(), cfg.GridN, cfg.GridN, cfg.RateHz, cfg.Redundancy, cfg.MaxPlayers)

	runErr := srv.Run(ctx)
	switch {
	case errors.Is(runErr, authority.ErrGameOver):
		res, _ := srv.Result()
		snap := snapshot.FromResult(matchID, acfg, protocol.NowMS(startedAt), res)
		path := snapshot.Path(cfg.DataDir, matchID)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
		} else {
			logger.Printf("final snapshot %s digest=%s", path, res.Digest)
		}
		if idx != nil {
			idx.RecordResult(path, snap)
		}
		_ = journal.Close()
		_ = snapCSV.Close()
		_ = eventCSV.Close()
		journalFiles, err := persistlog.ListJournalFilesSince(filepath.Join(cfg.DataDir, "journal"), startedAt)
		if err != nil {
			logger.Printf("list journal: %v", err)
		}
		files, err := archive.BundleMatch(cfg.DataDir, path, snap, append(journalFiles, snapCSV.Path(), eventCSV.Path()))
		if err != nil {
			logger.Printf("archive bundle: %v", err)
		}
		for _, f := range files {
			mirror.Enqueue(f)
		}
		ctx2, cancel2 := context.WithTimeout(context.Background(), time.Minute)
		if err := mirror.Close(ctx2); err != nil {
			logger.Printf("%v", err)
		}
		cancel2()
	case runErr != nil:
		logger.Printf("authority stopped: %v", runErr)
	default:
		logger.Printf("shutdown requested")
	}

	if httpSrv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
