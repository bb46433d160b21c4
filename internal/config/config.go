// Package config loads and hot-reloads SmartPiXL's TOML configuration for
// both the edge and engine processes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Common holds configuration shared by both processes (spec.md §6.3).
type Common struct {
	LogLevel               string   `mapstructure:"log_level"                toml:"log_level"`
	LogFile                string   `mapstructure:"log_file"                 toml:"log_file"`
	DataDir                string   `mapstructure:"data_dir"                 toml:"data_dir"`
	PidFile                string   `mapstructure:"pid_file"                 toml:"pid_file"`
	ConnectionString       string   `mapstructure:"connection_string"        toml:"connection_string"`
	QueueCapacity          int      `mapstructure:"queue_capacity"           toml:"queue_capacity"`
	PipeName               string   `mapstructure:"pipe_name"                toml:"pipe_name"`
	FailoverDirectory      string   `mapstructure:"failover_directory"       toml:"failover_directory"`
	DeadLetterDirectory    string   `mapstructure:"dead_letter_directory"    toml:"dead_letter_directory"`
	DashboardAllowedIPs    []string `mapstructure:"dashboard_allowed_ips"    toml:"dashboard_allowed_ips"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`

	// ControlAddr is the loopback address the engine's same-host control
	// surface binds (/internal/health, /internal/circuit-reset) and the edge
	// dials to forward its own /internal/circuit-reset requests (spec.md
	// §4.1, §4.7: the operator-facing endpoint lives on the edge, but the
	// state it resets belongs to the engine's bulk writer).
	ControlAddr string `mapstructure:"control_addr" toml:"control_addr"`
}

// EdgeConfig is the configuration surface for the edge capture process.
type EdgeConfig struct {
	Common `mapstructure:",squash" toml:",squash"`

	ListenAddr            string `mapstructure:"listen_addr"              toml:"listen_addr"`
	BaseUrl               string `mapstructure:"base_url"                 toml:"base_url"`
	ScriptTemplatePath    string `mapstructure:"script_template_path"     toml:"script_template_path"`
	ScriptCacheMaxEntries int    `mapstructure:"script_cache_max_entries" toml:"script_cache_max_entries"`

	FingerprintHistoryTTLSeconds int `mapstructure:"fingerprint_history_ttl_seconds" toml:"fingerprint_history_ttl_seconds"`
	SubnetWitnessTTLSeconds      int `mapstructure:"subnet_witness_ttl_seconds"      toml:"subnet_witness_ttl_seconds"`

	GeoCacheWarmTTLSeconds int `mapstructure:"geo_cache_warm_ttl_seconds" toml:"geo_cache_warm_ttl_seconds"`
	GeoMissQueueCapacity   int `mapstructure:"geo_miss_queue_capacity"    toml:"geo_miss_queue_capacity"`

	DatacenterRefreshIntervalSeconds int    `mapstructure:"datacenter_refresh_interval_seconds" toml:"datacenter_refresh_interval_seconds"`
	DatacenterListAPath              string `mapstructure:"datacenter_list_a_path"              toml:"datacenter_list_a_path"`
	DatacenterListBPath              string `mapstructure:"datacenter_list_b_path"              toml:"datacenter_list_b_path"`

	PipeConnectTimeoutSeconds int `mapstructure:"pipe_connect_timeout_seconds" toml:"pipe_connect_timeout_seconds"`
}

// EngineConfig is the configuration surface for the enrichment engine process.
type EngineConfig struct {
	Common `mapstructure:",squash" toml:",squash"`

	BatchSize              int `mapstructure:"batch_size"                toml:"batch_size"`
	BulkCopyTimeoutSeconds int `mapstructure:"bulk_copy_timeout_seconds" toml:"bulk_copy_timeout_seconds"`
	ETLIntervalSeconds     int `mapstructure:"etl_interval_seconds"      toml:"etl_interval_seconds"`
	CatchUpIntervalSeconds int `mapstructure:"catch_up_interval_seconds" toml:"catch_up_interval_seconds"`

	CrossCustomerTTLSeconds   int `mapstructure:"cross_customer_ttl_seconds"   toml:"cross_customer_ttl_seconds"`
	SessionIdleTimeoutSeconds int `mapstructure:"session_idle_timeout_seconds" toml:"session_idle_timeout_seconds"`
	ReplayIndexTTLSeconds     int `mapstructure:"replay_index_ttl_seconds"     toml:"replay_index_ttl_seconds"`

	GeoIPDatabasePath    string `mapstructure:"geoip_database_path"     toml:"geoip_database_path"`
	GeoIPASNDatabasePath string `mapstructure:"geoip_asn_database_path" toml:"geoip_asn_database_path"`

	ReverseDNSTimeoutSeconds int     `mapstructure:"reverse_dns_timeout_seconds"   toml:"reverse_dns_timeout_seconds"`
	OnlineGeoEndpoint        string  `mapstructure:"online_geo_endpoint"           toml:"online_geo_endpoint"`
	OnlineGeoRateLimitPerSec float64 `mapstructure:"online_geo_rate_limit_per_sec" toml:"online_geo_rate_limit_per_sec"`
	OfflineGeoMaxAgeDays     int     `mapstructure:"offline_geo_max_age_days"      toml:"offline_geo_max_age_days"`

	CircuitBreakerFailureThreshold    int `mapstructure:"circuit_breaker_failure_threshold"     toml:"circuit_breaker_failure_threshold"`
	CircuitBreakerResetTimeoutSeconds int `mapstructure:"circuit_breaker_reset_timeout_seconds" toml:"circuit_breaker_reset_timeout_seconds"`
	CircuitBreakerHalfOpenMax         int `mapstructure:"circuit_breaker_half_open_max_calls"   toml:"circuit_breaker_half_open_max_calls"`

	RetryMaxAttempts int `mapstructure:"retry_max_attempts" toml:"retry_max_attempts"`
}

var (
	edgePtr   atomic.Pointer[EdgeConfig]
	enginePtr atomic.Pointer[EngineConfig]

	loadedEdgeFile   atomic.Value
	loadedEngineFile atomic.Value
)

// GetEdge returns the currently active edge configuration. It is safe to call
// concurrently with LoadEdge / the hot-reload watcher.
func GetEdge() *EdgeConfig { return edgePtr.Load() }

// GetEngine returns the currently active engine configuration.
func GetEngine() *EngineConfig { return enginePtr.Load() }

func setEdge(c *EdgeConfig)     { edgePtr.Store(c) }
func setEngine(c *EngineConfig) { enginePtr.Store(c) }

// DefaultCommon returns the ambient defaults shared by both processes.
func DefaultCommon() Common {
	return Common{
		LogLevel:               "info",
		DataDir:                "~/.smartpixl",
		QueueCapacity:          10000,
		PipeName:               "SmartPiXL-Enrichment",
		FailoverDirectory:      "~/.smartpixl/failover",
		DeadLetterDirectory:    "~/.smartpixl/deadletter",
		ShutdownTimeoutSeconds: 30,
		ControlAddr:            "127.0.0.1:8091",
	}
}

// DefaultEdgeConfig returns the built-in edge defaults.
func DefaultEdgeConfig() *EdgeConfig {
	return &EdgeConfig{
		Common:                           DefaultCommon(),
		ListenAddr:                       ":8080",
		ScriptCacheMaxEntries:            10000,
		FingerprintHistoryTTLSeconds:     24 * 3600,
		SubnetWitnessTTLSeconds:          5 * 60,
		GeoCacheWarmTTLSeconds:           3600,
		GeoMissQueueCapacity:             1000,
		DatacenterRefreshIntervalSeconds: 7 * 24 * 3600,
		PipeConnectTimeoutSeconds:        3,
	}
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Common:                            DefaultCommon(),
		BatchSize:                         100,
		BulkCopyTimeoutSeconds:            60,
		ETLIntervalSeconds:                60,
		CatchUpIntervalSeconds:            60,
		CrossCustomerTTLSeconds:           2 * 3600,
		SessionIdleTimeoutSeconds:         30 * 60,
		ReplayIndexTTLSeconds:             3600,
		ReverseDNSTimeoutSeconds:          2,
		OnlineGeoRateLimitPerSec:          5,
		OfflineGeoMaxAgeDays:              90,
		CircuitBreakerFailureThreshold:    5,
		CircuitBreakerResetTimeoutSeconds: 30,
		CircuitBreakerHalfOpenMax:         1,
		RetryMaxAttempts:                  3,
	}
}

func newViper(envPrefix, explicitPath, fileNameNoExt string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return v
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".smartpixl"))
	}
	v.AddConfigPath(".")
	v.SetConfigName(fileNameNoExt)
	return v
}

func readInto(v *viper.Viper, dst interface{}) (string, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return "", fmt.Errorf("config: reading config: %w", err)
		}
	}

	if err := v.Unmarshal(dst, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return "", fmt.Errorf("config: unmarshalling: %w", err)
	}

	return v.ConfigFileUsed(), nil
}

// LoadEdge loads edge configuration with precedence: env vars (SMARTPIXL_*) >
// explicitPath > ~/.smartpixl/smartpixl-edge.toml > ./smartpixl-edge.toml > defaults.
func LoadEdge(explicitPath string) (*EdgeConfig, error) {
	v := newViper("SMARTPIXL", explicitPath, "smartpixl-edge")
	setViperEdgeDefaults(v)

	cfg := DefaultEdgeConfig()
	usedFile, err := readInto(v, cfg)
	if err != nil {
		return nil, err
	}
	if usedFile != "" {
		loadedEdgeFile.Store(usedFile)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.FailoverDirectory = expandHome(cfg.FailoverDirectory)
	cfg.DeadLetterDirectory = expandHome(cfg.DeadLetterDirectory)

	if err := validateEdge(cfg); err != nil {
		return nil, err
	}

	setEdge(cfg)
	return cfg, nil
}

// LoadEngine loads engine configuration with the same precedence as LoadEdge.
func LoadEngine(explicitPath string) (*EngineConfig, error) {
	v := newViper("SMARTPIXL", explicitPath, "smartpixl-engine")
	setViperEngineDefaults(v)

	cfg := DefaultEngineConfig()
	usedFile, err := readInto(v, cfg)
	if err != nil {
		return nil, err
	}
	if usedFile != "" {
		loadedEngineFile.Store(usedFile)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.FailoverDirectory = expandHome(cfg.FailoverDirectory)
	cfg.DeadLetterDirectory = expandHome(cfg.DeadLetterDirectory)

	if err := validateEngine(cfg); err != nil {
		return nil, err
	}

	setEngine(cfg)
	return cfg, nil
}

// WriteDefaultEdgeConfig writes the built-in edge defaults to path if it does
// not already exist.
func WriteDefaultEdgeConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := toml.Marshal(DefaultEdgeConfig())
	if err != nil {
		return fmt.Errorf("config: marshalling default edge config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// WriteDefaultEngineConfig writes the built-in engine defaults to path if it
// does not already exist.
func WriteDefaultEngineConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := toml.Marshal(DefaultEngineConfig())
	if err != nil {
		return fmt.Errorf("config: marshalling default engine config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
