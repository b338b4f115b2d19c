package settings

// DB config keys for runtime-tunable metering settings. The quota fractions
// are heuristics, not load-bearing constants; operators may retune them
// while the process runs.
const (
	// QuotaSoftWindowPercentKey overrides the optimistic overshoot window
	// as a percentage of the monthly limit.
	QuotaSoftWindowPercentKey = "QUOTA_SOFT_WINDOW_PERCENT"
	// QuotaWriteThroughPercentKey overrides the write-through checkpoint
	// step as a percentage of the monthly limit.
	QuotaWriteThroughPercentKey = "QUOTA_WRITE_THROUGH_PERCENT"
	// ExecutionLogsRetentionDaysKey overrides how long execution logs are
	// kept before the retention cleaner deletes them.
	ExecutionLogsRetentionDaysKey = "EXECUTION_LOGS_RETENTION_DAYS"
)
