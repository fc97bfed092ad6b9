package config

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Serve     ServeConfig     `mapstructure:"serve"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LedgerConfig configures the host-side run ledger.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// ProbeConfig configures remote evidence collection.
type ProbeConfig struct {
	// Timeout bounds every remote read so one unreachable VM cannot
	// stall reconciliation of others. Seconds, not minutes.
	Timeout string `mapstructure:"timeout"`

	// SSHPath overrides the ssh binary used for remote targets.
	SSHPath string `mapstructure:"ssh_path"`

	// SCPPath overrides the scp binary used for file transfers.
	SCPPath string `mapstructure:"scp_path"`
}

// ReconcileConfig configures status derivation.
type ReconcileConfig struct {
	// StaleAfter is the heartbeat age beyond which a live process is
	// treated as hung.
	StaleAfter string `mapstructure:"stale_after"`

	// Parallelism bounds concurrent reconciliations in reconcile --all
	// and watch mode.
	Parallelism int `mapstructure:"parallelism"`

	// Interval is the watch-mode polling cadence.
	Interval string `mapstructure:"interval"`
}

// RuntimeConfig configures the remote workflow process relaunched on resume.
type RuntimeConfig struct {
	// Command is the workflow engine invocation; the launcher appends
	// --control-dir and --task-db pointing at the run's target.
	Command string `mapstructure:"command"`

	// LogFile receives the relaunched process output, relative to the
	// control dir.
	LogFile string `mapstructure:"log_file"`
}

// ServeConfig configures the read-only status API.
type ServeConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
