// Package enginedaemon orchestrates the back-office enrichment process: the
// same-host pipe server, catch-up replay, the tiered enrichment pipeline,
// the bulk SQL writer, the ETL trigger, and the control surface, wired
// together and run until a shutdown signal arrives. Grounded on the
// teacher's internal/daemon/daemon.go Run() orchestration shape.
package enginedaemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/bulkwriter"
	"github.com/smartpixl/smartpixl/internal/capture"
	"github.com/smartpixl/smartpixl/internal/catchup"
	"github.com/smartpixl/smartpixl/internal/circuit"
	"github.com/smartpixl/smartpixl/internal/config"
	"github.com/smartpixl/smartpixl/internal/control"
	"github.com/smartpixl/smartpixl/internal/daemon"
	"github.com/smartpixl/smartpixl/internal/enginestore"
	"github.com/smartpixl/smartpixl/internal/enrichpipeline"
	"github.com/smartpixl/smartpixl/internal/enrichpipeline/tier1"
	"github.com/smartpixl/smartpixl/internal/enrichpipeline/tier2"
	"github.com/smartpixl/smartpixl/internal/enrichpipeline/tier3"
	"github.com/smartpixl/smartpixl/internal/etl"
	"github.com/smartpixl/smartpixl/internal/pipeserver"
	"github.com/smartpixl/smartpixl/internal/version"
)

const (
	pidName  = "smartpixl-engine.pid"
	logName  = "smartpixl-engine.log"
	dbName   = "smartpixl.db"
	sockExt  = ".sock"
	svcLabel = "smartpixl-engine"

	consumerPollInterval = 50 * time.Millisecond
	onlineGeoBurst       = 5
)

// Run initialises every engine subsystem and blocks until a shutdown signal
// or fatal error.
func Run(cfg *config.EngineConfig, foreground bool) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("enginedaemon: creating data directory %s: %w", cfg.DataDir, err)
	}

	closeLog, err := setupLogger(cfg.DataDir, cfg.LogLevel, foreground)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info().Str("version", version.String()).Str("data_dir", cfg.DataDir).
		Bool("foreground", foreground).Msg("smartpixl-engine starting")

	if daemon.IsRunning(cfg.DataDir, pidName) {
		return fmt.Errorf("smartpixl-engine is already running (PID file exists in %s)", cfg.DataDir)
	}

	if err := daemon.WritePID(cfg.DataDir, pidName); err != nil {
		return fmt.Errorf("enginedaemon: writing PID file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePID(cfg.DataDir, pidName); err != nil {
			log.Error().Err(err).Msg("enginedaemon: failed to remove PID file")
		}
	}()

	var watcher *config.Watcher
	if configFile := firstExistingConfigFile(cfg.DataDir); configFile != "" {
		w, watchErr := config.WatchEngine(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("enginedaemon: failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func() {
				if newCfg := config.GetEngine(); newCfg != nil {
					zerolog.SetGlobalLevel(parseLogLevel(newCfg.LogLevel))
					log.Info().Msg("enginedaemon: configuration reloaded")
				}
			})
		}
	}

	store, err := enginestore.Open(storeDBPath(cfg))
	if err != nil {
		return fmt.Errorf("enginedaemon: opening store: %w", err)
	}
	defer store.Close()

	sockPath := pipeSocketPath(cfg.Common)
	os.Remove(sockPath)
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("enginedaemon: listening on %s: %w", sockPath, err)
	}
	defer listener.Close()

	pipeSrv := pipeserver.New(listener, cfg.QueueCapacity)

	breaker := circuit.New(
		cfg.CircuitBreakerFailureThreshold,
		time.Duration(cfg.CircuitBreakerResetTimeoutSeconds)*time.Second,
		cfg.CircuitBreakerHalfOpenMax,
	)

	bulkTimeout := time.Duration(cfg.BulkCopyTimeoutSeconds) * time.Second
	writer := bulkwriter.New(store, breaker, cfg.QueueCapacity, cfg.BatchSize, cfg.DeadLetterDirectory, bulkTimeout)

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return fmt.Errorf("enginedaemon: building enrichment pipeline: %w", err)
	}

	catchupSvc := catchup.New(cfg.FailoverDirectory, pipeSrv.Queue())

	controlSrv := &control.Server{
		SameHost: capture.NewSameHostChecker(cfg.DashboardAllowedIPs),
		Health:   &controlHealth{writer: writer},
		Breaker:  &controlBreaker{writer: writer},
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	go pipeSrv.Serve(bgCtx)
	go catchupSvc.Run(bgCtx, time.Duration(cfg.CatchUpIntervalSeconds)*time.Second)

	consumerStop := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		runConsumer(bgCtx, pipeSrv, pipeline, writer, consumerStop)
		close(consumerDone)
	}()

	writerStop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		writer.Run(bgCtx, writerStop, time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
		close(writerDone)
	}()

	etlTrigger := etl.New(store, time.Duration(cfg.ETLIntervalSeconds)*time.Second)
	go etlTrigger.Run(bgCtx)

	controlServer := &http.Server{Addr: cfg.ControlAddr, Handler: control.NewRouter(controlSrv)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ControlAddr).Msg("enginedaemon: control surface starting")
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("control surface: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("enginedaemon: shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("enginedaemon: fatal server error")
		bgCancel()
		return err
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("enginedaemon: control surface shutdown error")
	}

	close(consumerStop)
	<-consumerDone
	close(writerStop)
	<-writerDone
	bgCancel()

	log.Info().Msg("smartpixl-engine stopped")
	return nil
}

// Stop sends SIGTERM to the running engine daemon.
func Stop(dataDir string) error {
	pid, err := daemon.ReadPID(dataDir, pidName)
	if err != nil {
		return fmt.Errorf("smartpixl-engine does not appear to be running: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}
	return nil
}

// Status reports whether the engine daemon is running.
func Status(dataDir string) (running bool, pid int) {
	if !daemon.IsRunning(dataDir, pidName) {
		return false, 0
	}
	pid, _ = daemon.ReadPID(dataDir, pidName)
	return true, pid
}

func runConsumer(ctx context.Context, srv *pipeserver.Server, pipeline *enrichpipeline.Pipeline, writer *bulkwriter.Writer, stop <-chan struct{}) {
	ticker := time.NewTicker(consumerPollInterval)
	defer ticker.Stop()
	queue := srv.Queue()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for {
				rec, ok := queue.Pop()
				if !ok {
					break
				}
				enriched := pipeline.Run(ctx, rec)
				writer.Enqueue(enriched)
			}
		}
	}
}

func buildPipeline(cfg *config.EngineConfig) (*enrichpipeline.Pipeline, error) {
	offlineGeo, err := tier1.NewOfflineGeo(cfg.GeoIPDatabasePath, cfg.GeoIPASNDatabasePath,
		time.Duration(cfg.OfflineGeoMaxAgeDays)*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("loading offline geo databases: %w", err)
	}
	onlineGeo := tier1.NewOnlineGeo(cfg.OnlineGeoEndpoint, cfg.OnlineGeoRateLimitPerSec, onlineGeoBurst,
		time.Duration(cfg.ReverseDNSTimeoutSeconds)*time.Second)

	witness := tier2.NewCrossCustomerWitness(time.Duration(cfg.CrossCustomerTTLSeconds) * time.Second)
	sessions := tier2.NewSessionRegistry(time.Duration(cfg.SessionIdleTimeoutSeconds)*time.Second, func() string {
		return uuid.NewString()
	})

	replayIdx := tier3.NewReplayIndex(time.Duration(cfg.ReplayIndexTTLSeconds) * time.Second)
	deadInternetIdx := tier3.NewDeadInternetIndex()

	tier1Analyzers := []enrichpipeline.Analyzer{
		enrichpipeline.AnalyzerFunc{FuncName: "bot_ua", Fn: tier1.BotUA},
		enrichpipeline.AnalyzerFunc{FuncName: "ua_parse", Fn: tier1.UAParse},
		enrichpipeline.AnalyzerFunc{FuncName: "rdns", Fn: tier1.RDNS},
		enrichpipeline.AnalyzerFunc{FuncName: "offline_geo", Fn: offlineGeo.Analyze},
		enrichpipeline.AnalyzerFunc{FuncName: "online_geo", Fn: onlineGeo.Analyze},
		enrichpipeline.AnalyzerFunc{FuncName: "whois", Fn: tier1.WHOIS},
	}
	tier2Analyzers := []enrichpipeline.Analyzer{
		enrichpipeline.AnalyzerFunc{FuncName: "affluence", Fn: tier2.Affluence},
		enrichpipeline.AnalyzerFunc{FuncName: "cross_customer", Fn: tier2.CrossCustomer(witness)},
		enrichpipeline.AnalyzerFunc{FuncName: "lead_score", Fn: tier2.LeadScore},
		enrichpipeline.AnalyzerFunc{FuncName: "session", Fn: tier2.Session(sessions)},
	}
	tier3Analyzers := []enrichpipeline.Analyzer{
		enrichpipeline.AnalyzerFunc{FuncName: "cultural", Fn: tier3.Cultural},
		enrichpipeline.AnalyzerFunc{FuncName: "device_age", Fn: tier3.DeviceAge},
		enrichpipeline.AnalyzerFunc{FuncName: "contradiction_matrix", Fn: tier3.ContradictionMatrix},
		enrichpipeline.AnalyzerFunc{FuncName: "behavioral_replay", Fn: tier3.BehavioralReplay(replayIdx)},
		enrichpipeline.AnalyzerFunc{FuncName: "dead_internet", Fn: tier3.DeadInternet(deadInternetIdx)},
	}

	return enrichpipeline.New(tier1Analyzers, tier2Analyzers, tier3Analyzers), nil
}

func setupLogger(dataDir, level string, foreground bool) (func(), error) {
	logPath := filepath.Join(dataDir, logName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("enginedaemon: opening log file %s: %w", logPath, err)
	}

	writers := []io.Writer{logFile}
	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Timestamp().Str("service", svcLabel).Logger()

	return func() { logFile.Close() }, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func firstExistingConfigFile(dataDir string) string {
	candidates := []string{
		filepath.Join(dataDir, "smartpixl-engine.toml"),
		"smartpixl-engine.toml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func storeDBPath(cfg *config.EngineConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	return filepath.Join(cfg.DataDir, dbName)
}

func pipeSocketPath(c config.Common) string {
	return filepath.Join(c.DataDir, c.PipeName+sockExt)
}

// controlHealth adapts the bulk writer's live state to control.HealthReporter.
type controlHealth struct {
	writer *bulkwriter.Writer
}

func (h *controlHealth) Health() control.HealthInfo {
	return control.HealthInfo{
		CircuitState: h.writer.CircuitState(),
		QueueDepth:   h.writer.QueueDepth(),
	}
}

// controlBreaker adapts the bulk writer's breaker reset to
// control.CircuitResetter, which returns an error the writer's own method
// does not.
type controlBreaker struct {
	writer *bulkwriter.Writer
}

func (b *controlBreaker) ResetCircuit() error {
	b.writer.ResetCircuit()
	return nil
}
