package config

import "github.com/spf13/viper"

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// setViperEdgeDefaults registers every edge key so viper's env/file overlay
// has a complete picture of the schema, mirroring the teacher's
// setViperDefaults convention.
func setViperEdgeDefaults(v *viper.Viper) {
	d := DefaultEdgeConfig()
	setCommonDefaults(v, d.Common)

	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("base_url", d.BaseUrl)
	v.SetDefault("script_template_path", d.ScriptTemplatePath)
	v.SetDefault("script_cache_max_entries", d.ScriptCacheMaxEntries)
	v.SetDefault("fingerprint_history_ttl_seconds", d.FingerprintHistoryTTLSeconds)
	v.SetDefault("subnet_witness_ttl_seconds", d.SubnetWitnessTTLSeconds)
	v.SetDefault("geo_cache_warm_ttl_seconds", d.GeoCacheWarmTTLSeconds)
	v.SetDefault("geo_miss_queue_capacity", d.GeoMissQueueCapacity)
	v.SetDefault("datacenter_refresh_interval_seconds", d.DatacenterRefreshIntervalSeconds)
	v.SetDefault("datacenter_list_a_path", d.DatacenterListAPath)
	v.SetDefault("datacenter_list_b_path", d.DatacenterListBPath)
	v.SetDefault("pipe_connect_timeout_seconds", d.PipeConnectTimeoutSeconds)
}

// setViperEngineDefaults registers every engine key.
func setViperEngineDefaults(v *viper.Viper) {
	d := DefaultEngineConfig()
	setCommonDefaults(v, d.Common)

	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("bulk_copy_timeout_seconds", d.BulkCopyTimeoutSeconds)
	v.SetDefault("etl_interval_seconds", d.ETLIntervalSeconds)
	v.SetDefault("catch_up_interval_seconds", d.CatchUpIntervalSeconds)
	v.SetDefault("cross_customer_ttl_seconds", d.CrossCustomerTTLSeconds)
	v.SetDefault("session_idle_timeout_seconds", d.SessionIdleTimeoutSeconds)
	v.SetDefault("replay_index_ttl_seconds", d.ReplayIndexTTLSeconds)
	v.SetDefault("geoip_database_path", d.GeoIPDatabasePath)
	v.SetDefault("geoip_asn_database_path", d.GeoIPASNDatabasePath)
	v.SetDefault("reverse_dns_timeout_seconds", d.ReverseDNSTimeoutSeconds)
	v.SetDefault("online_geo_endpoint", d.OnlineGeoEndpoint)
	v.SetDefault("online_geo_rate_limit_per_sec", d.OnlineGeoRateLimitPerSec)
	v.SetDefault("offline_geo_max_age_days", d.OfflineGeoMaxAgeDays)
	v.SetDefault("circuit_breaker_failure_threshold", d.CircuitBreakerFailureThreshold)
	v.SetDefault("circuit_breaker_reset_timeout_seconds", d.CircuitBreakerResetTimeoutSeconds)
	v.SetDefault("circuit_breaker_half_open_max_calls", d.CircuitBreakerHalfOpenMax)
	v.SetDefault("retry_max_attempts", d.RetryMaxAttempts)
}

func setCommonDefaults(v *viper.Viper, c Common) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_file", c.LogFile)
	v.SetDefault("data_dir", c.DataDir)
	v.SetDefault("pid_file", c.PidFile)
	v.SetDefault("connection_string", c.ConnectionString)
	v.SetDefault("queue_capacity", c.QueueCapacity)
	v.SetDefault("pipe_name", c.PipeName)
	v.SetDefault("failover_directory", c.FailoverDirectory)
	v.SetDefault("dead_letter_directory", c.DeadLetterDirectory)
	v.SetDefault("dashboard_allowed_ips", c.DashboardAllowedIPs)
	v.SetDefault("shutdown_timeout_seconds", c.ShutdownTimeoutSeconds)
	v.SetDefault("control_addr", c.ControlAddr)
}
