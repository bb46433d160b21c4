package config

import (
	"fmt"
	"strings"
)

// validateEdge checks the EdgeConfig for invalid or out-of-range values.
func validateEdge(cfg *EdgeConfig) error {
	var errs []string

	errs = append(errs, validateCommon(cfg.Common)...)

	if cfg.ListenAddr == "" {
		errs = append(errs, "listen_addr must not be empty")
	}
	if cfg.ScriptCacheMaxEntries < 0 {
		errs = append(errs, fmt.Sprintf("script_cache_max_entries must be non-negative, got %d", cfg.ScriptCacheMaxEntries))
	}
	if cfg.FingerprintHistoryTTLSeconds < 0 {
		errs = append(errs, "fingerprint_history_ttl_seconds must be non-negative")
	}
	if cfg.SubnetWitnessTTLSeconds < 0 {
		errs = append(errs, "subnet_witness_ttl_seconds must be non-negative")
	}
	if cfg.PipeConnectTimeoutSeconds <= 0 {
		errs = append(errs, "pipe_connect_timeout_seconds must be positive")
	}

	return combineErrs(errs)
}

// validateEngine checks the EngineConfig for invalid or out-of-range values.
func validateEngine(cfg *EngineConfig) error {
	var errs []string

	errs = append(errs, validateCommon(cfg.Common)...)

	if cfg.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("batch_size must be at least 1, got %d", cfg.BatchSize))
	}
	if cfg.BulkCopyTimeoutSeconds <= 0 {
		errs = append(errs, "bulk_copy_timeout_seconds must be positive")
	}
	if cfg.ETLIntervalSeconds <= 0 {
		errs = append(errs, "etl_interval_seconds must be positive")
	}
	if cfg.CircuitBreakerFailureThreshold < 1 {
		errs = append(errs, "circuit_breaker_failure_threshold must be at least 1")
	}
	if cfg.CircuitBreakerResetTimeoutSeconds <= 0 {
		errs = append(errs, "circuit_breaker_reset_timeout_seconds must be positive")
	}
	if cfg.CircuitBreakerHalfOpenMax < 1 {
		errs = append(errs, "circuit_breaker_half_open_max_calls must be at least 1")
	}
	if cfg.RetryMaxAttempts < 0 {
		errs = append(errs, "retry_max_attempts must be non-negative")
	}

	return combineErrs(errs)
}

func validateCommon(c Common) []string {
	var errs []string
	if !isValidEnum(c.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("log_level must be one of %v, got %q", ValidLogLevels, c.LogLevel))
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Sprintf("queue_capacity must be at least 1, got %d", c.QueueCapacity))
	}
	if c.PipeName == "" {
		errs = append(errs, "pipe_name must not be empty")
	}
	if c.FailoverDirectory == "" {
		errs = append(errs, "failover_directory must not be empty")
	}
	if c.DeadLetterDirectory == "" {
		errs = append(errs, "dead_letter_directory must not be empty")
	}
	if c.ShutdownTimeoutSeconds < 0 {
		errs = append(errs, "shutdown_timeout_seconds must be non-negative")
	}
	if c.ControlAddr == "" {
		errs = append(errs, "control_addr must not be empty")
	}
	return errs
}

func combineErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
