// Package edgedaemon orchestrates the edge capture process: the HTTP
// dispatcher, fast-enrichment bank, datacenter trie, geo cache, script
// renderer, failover writer, and pipe client, wired together and run until a
// shutdown signal arrives. Grounded on the teacher's internal/daemon/daemon.go
// Run() orchestration shape (logger setup, PID file, config watcher,
// background workers, signal-driven graceful shutdown).
package edgedaemon

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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/capture"
	"github.com/smartpixl/smartpixl/internal/config"
	"github.com/smartpixl/smartpixl/internal/control"
	"github.com/smartpixl/smartpixl/internal/daemon"
	"github.com/smartpixl/smartpixl/internal/dctrie"
	"github.com/smartpixl/smartpixl/internal/enginestore"
	"github.com/smartpixl/smartpixl/internal/failover"
	"github.com/smartpixl/smartpixl/internal/fastenrich"
	"github.com/smartpixl/smartpixl/internal/geocache"
	"github.com/smartpixl/smartpixl/internal/pipeclient"
	"github.com/smartpixl/smartpixl/internal/script"
	"github.com/smartpixl/smartpixl/internal/version"
)

const (
	pidName  = "smartpixl-edge.pid"
	logName  = "smartpixl-edge.log"
	dbName   = "smartpixl.db"
	sockExt  = ".sock"
	svcLabel = "smartpixl-edge"

	defaultGeoWarmCapacity = 10000
	defaultWriteTimeout    = 5 * time.Second
	defaultSweepInterval   = time.Minute
)

// Run initialises every edge subsystem and blocks until a shutdown signal or
// fatal server error.
func Run(cfg *config.EdgeConfig, foreground bool) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("edgedaemon: creating data directory %s: %w", cfg.DataDir, err)
	}

	closeLog, err := setupLogger(cfg.DataDir, cfg.LogLevel, foreground)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info().Str("version", version.String()).Str("data_dir", cfg.DataDir).
		Bool("foreground", foreground).Msg("smartpixl-edge starting")

	if daemon.IsRunning(cfg.DataDir, pidName) {
		return fmt.Errorf("smartpixl-edge is already running (PID file exists in %s)", cfg.DataDir)
	}

	if err := daemon.WritePID(cfg.DataDir, pidName); err != nil {
		return fmt.Errorf("edgedaemon: writing PID file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePID(cfg.DataDir, pidName); err != nil {
			log.Error().Err(err).Msg("edgedaemon: failed to remove PID file")
		}
	}()

	var watcher *config.Watcher
	if configFile := firstExistingConfigFile(cfg.DataDir); configFile != "" {
		w, watchErr := config.WatchEdge(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("edgedaemon: failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func() {
				if newCfg := config.GetEdge(); newCfg != nil {
					zerolog.SetGlobalLevel(parseLogLevel(newCfg.LogLevel))
					log.Info().Msg("edgedaemon: configuration reloaded")
				}
			})
		}
	}

	geoStore, err := enginestore.Open(geoDBPath(cfg))
	if err != nil {
		return fmt.Errorf("edgedaemon: opening geo lookup store: %w", err)
	}
	defer geoStore.Close()

	geoCache, err := geocache.New(&storeResolver{store: geoStore}, defaultGeoWarmCapacity,
		time.Duration(cfg.GeoCacheWarmTTLSeconds)*time.Second, cfg.GeoMissQueueCapacity)
	if err != nil {
		return fmt.Errorf("edgedaemon: creating geo cache: %w", err)
	}

	triePublisher := dctrie.NewPublisher()
	refreshTrie(triePublisher, cfg)

	enricher := fastenrich.New(
		time.Duration(cfg.FingerprintHistoryTTLSeconds)*time.Second,
		time.Duration(cfg.SubnetWitnessTTLSeconds)*time.Second,
		triePublisher, geoCache,
	)

	renderer, err := newScriptRenderer(cfg)
	if err != nil {
		return fmt.Errorf("edgedaemon: creating script renderer: %w", err)
	}

	failoverWriter := failover.New(cfg.FailoverDirectory, cfg.QueueCapacity)

	dialTimeout := time.Duration(cfg.PipeConnectTimeoutSeconds) * time.Second
	sockPath := pipeSocketPath(cfg.Common)
	dial := func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: dialTimeout}
		return d.DialContext(ctx, "unix", sockPath)
	}
	pipe := pipeclient.New(dial, failoverWriter, cfg.QueueCapacity, defaultWriteTimeout)

	startedAt := time.Now()
	handler := &capture.Handler{
		Enricher: enricher.Bank,
		Enqueue:  pipe,
		Script:   renderer,
		SameHost: capture.NewSameHostChecker(cfg.DashboardAllowedIPs),
		Health:   &healthReporter{pipe: pipe, startedAt: startedAt},
		Breaker:  control.NewClient(cfg.ControlAddr, 3*time.Second),
	}
	router := capture.NewRouter(handler)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("edgedaemon: HTTP dispatcher starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http dispatcher: %w", err)
		}
	}()

	stop := make(chan struct{})
	workersDone := make(chan struct{}, 3)

	go func() {
		enricher.RunSweeper(defaultSweepInterval, stop)
		workersDone <- struct{}{}
	}()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go func() {
		geoCache.RunMissWorker(bgCtx)
		workersDone <- struct{}{}
	}()

	go func() {
		failoverWriter.Run(stop)
		workersDone <- struct{}{}
	}()

	pipeStop := make(chan struct{})
	pipeDone := make(chan struct{})
	go func() {
		pipe.Run(bgCtx, pipeStop)
		close(pipeDone)
	}()

	if cfg.DatacenterRefreshIntervalSeconds > 0 {
		go runDatacenterRefresher(triePublisher, cfg, bgCtx.Done())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("edgedaemon: shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("edgedaemon: fatal server error")
		return err
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("edgedaemon: HTTP server shutdown error")
	}

	close(stop)
	close(pipeStop)
	<-pipeDone
	bgCancel()

	for i := 0; i < cap(workersDone); i++ {
		<-workersDone
	}

	log.Info().Msg("smartpixl-edge stopped")
	return nil
}

// Stop sends SIGTERM to the running edge daemon.
func Stop(dataDir string) error {
	pid, err := daemon.ReadPID(dataDir, pidName)
	if err != nil {
		return fmt.Errorf("smartpixl-edge does not appear to be running: %w", err)
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

// Status reports whether the edge daemon is running.
func Status(dataDir string) (running bool, pid int) {
	if !daemon.IsRunning(dataDir, pidName) {
		return false, 0
	}
	pid, _ = daemon.ReadPID(dataDir, pidName)
	return true, pid
}

func setupLogger(dataDir, level string, foreground bool) (func(), error) {
	logPath := filepath.Join(dataDir, logName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("edgedaemon: opening log file %s: %w", logPath, err)
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
		filepath.Join(dataDir, "smartpixl-edge.toml"),
		"smartpixl-edge.toml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func geoDBPath(cfg *config.EdgeConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	return filepath.Join(cfg.DataDir, dbName)
}

func pipeSocketPath(c config.Common) string {
	return filepath.Join(c.DataDir, c.PipeName+sockExt)
}

func newScriptRenderer(cfg *config.EdgeConfig) (*script.Renderer, error) {
	text := script.DefaultTemplate
	if cfg.ScriptTemplatePath != "" {
		data, err := os.ReadFile(cfg.ScriptTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("reading script template %s: %w", cfg.ScriptTemplatePath, err)
		}
		text = string(data)
	}
	return script.New(text, cfg.ScriptCacheMaxEntries)
}

func refreshTrie(pub *dctrie.Publisher, cfg *config.EdgeConfig) {
	if cfg.DatacenterListAPath == "" && cfg.DatacenterListBPath == "" {
		return
	}
	b := dctrie.NewBuilder()
	if cfg.DatacenterListAPath != "" {
		if err := b.LoadCIDRList(cfg.DatacenterListAPath, "A"); err != nil {
			log.Warn().Err(err).Str("path", cfg.DatacenterListAPath).Msg("edgedaemon: loading datacenter list A failed")
		}
	}
	if cfg.DatacenterListBPath != "" {
		if err := b.LoadCIDRList(cfg.DatacenterListBPath, "B"); err != nil {
			log.Warn().Err(err).Str("path", cfg.DatacenterListBPath).Msg("edgedaemon: loading datacenter list B failed")
		}
	}
	pub.Publish(b.Build())
}

func runDatacenterRefresher(pub *dctrie.Publisher, cfg *config.EdgeConfig, done <-chan struct{}) {
	interval := time.Duration(cfg.DatacenterRefreshIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			refreshTrie(pub, cfg)
		}
	}
}

// healthReporter adapts the pipe client's live state to capture.HealthReporter.
type healthReporter struct {
	pipe      *pipeclient.Client
	startedAt time.Time
}

func (h *healthReporter) Health() capture.HealthInfo {
	return capture.HealthInfo{
		PipeConnected: h.pipe.Connected(),
		QueueDepth:    h.pipe.QueueDepth(),
		Uptime:        time.Since(h.startedAt),
	}
}
