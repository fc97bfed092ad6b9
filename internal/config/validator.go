package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateLedger(&cfg.Ledger)
	v.validateProbe(&cfg.Probe)
	v.validateReconcile(&cfg.Reconcile)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateLedger(cfg *LedgerConfig) {
	if cfg.Path == "" {
		v.addError("ledger.path", cfg.Path, "must not be empty")
	}
}

func (v *Validator) validateProbe(cfg *ProbeConfig) {
	d := v.parseDuration("probe.timeout", cfg.Timeout)
	if d > 0 && d > time.Minute {
		v.addError("probe.timeout", cfg.Timeout, "should be seconds, not minutes")
	}
}

func (v *Validator) validateReconcile(cfg *ReconcileConfig) {
	v.parseDuration("reconcile.stale_after", cfg.StaleAfter)
	v.parseDuration("reconcile.interval", cfg.Interval)
	if cfg.Parallelism < 1 {
		v.addError("reconcile.parallelism", cfg.Parallelism, "must be at least 1")
	}
}

func (v *Validator) parseDuration(field, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "must be a valid duration (e.g. 10s, 2m)")
		return 0
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
		return 0
	}
	return d
}

func (v *Validator) addError(field string, value interface{}, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: message})
}

// Durations is the parsed form of the duration-valued settings.
type Durations struct {
	ProbeTimeout      time.Duration
	StaleAfter        time.Duration
	ReconcileInterval time.Duration
}

// ParseDurations converts the string durations, applying defaults for
// anything unset. Call after Validate.
func ParseDurations(cfg *Config) Durations {
	parse := func(s string, def time.Duration) time.Duration {
		if s == "" {
			return def
		}
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return def
		}
		return d
	}
	return Durations{
		ProbeTimeout:      parse(cfg.Probe.Timeout, 10*time.Second),
		StaleAfter:        parse(cfg.Reconcile.StaleAfter, 120*time.Second),
		ReconcileInterval: parse(cfg.Reconcile.Interval, 60*time.Second),
	}
}
