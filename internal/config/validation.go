package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/iodevs-net/git-gov/internal/security"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateRing(&c.Ring)...)
	errs = append(errs, validateEntropy(&c.Entropy)...)
	errs = append(errs, validateBattery(&c.Battery)...)
	errs = append(errs, validateGate(&c.Gate)...)
	errs = append(errs, validateTelemetry(&c.Telemetry)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIdentity(&c.Identity)...)
	errs = append(errs, validateWorkspace(&c.Workspace)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateRing(r *RingConfig) ValidationErrors {
	var errs ValidationErrors
	if r.Capacity < 64 {
		errs = append(errs, ValidationError{Field: "ring.ring_capacity", Message: "ring capacity must be at least 64"})
	}
	return errs
}

func validateEntropy(e *EntropyConfig) ValidationErrors {
	var errs ValidationErrors
	if e.TickMs < 100 {
		errs = append(errs, ValidationError{Field: "entropy.tick_ms", Message: "tick interval must be at least 100ms"})
	}
	if e.MinSamples < 1 {
		errs = append(errs, ValidationError{Field: "entropy.min_samples", Message: "min_samples must be at least 1"})
	}
	if e.MinEntropy < 0 {
		errs = append(errs, ValidationError{Field: "entropy.min_entropy", Message: "min_entropy cannot be negative"})
	}
	return errs
}

func validateBattery(b *BatteryConfig) ValidationErrors {
	var errs ValidationErrors
	if b.MaxBattery <= 0 {
		errs = append(errs, ValidationError{Field: "battery.max_battery", Message: "max_battery must be positive"})
	}
	if b.MinCNSThreshold > 100 {
		errs = append(errs, ValidationError{Field: "battery.min_cns_threshold", Message: "min_cns_threshold must be 0-100"})
	}
	if b.StatePath == "" {
		errs = append(errs, ValidationError{Field: "battery.state_path", Message: "state_path is required"})
	} else if err := security.ValidateFilename(filepath.Base(b.StatePath)); err != nil {
		errs = append(errs, ValidationError{Field: "battery.state_path", Message: err.Error()})
	}
	return errs
}

func validateGate(g *GateConfig) ValidationErrors {
	var errs ValidationErrors
	if g.DifficultyMinBits > g.DifficultyMaxBits {
		errs = append(errs, ValidationError{
			Field:   "gate.difficulty_min_bits",
			Message: "difficulty_min_bits must be <= difficulty_max_bits",
		})
	}
	if g.DifficultyMaxBits > 64 {
		errs = append(errs, ValidationError{Field: "gate.difficulty_max_bits", Message: "difficulty_max_bits cannot exceed 64"})
	}
	if g.MaxPuzzleMs < 1 {
		errs = append(errs, ValidationError{Field: "gate.max_puzzle_ms", Message: "max_puzzle_ms must be positive"})
	}
	return errs
}

func validateTelemetry(t *TelemetryConfig) ValidationErrors {
	var errs ValidationErrors
	if !t.Enabled {
		return errs
	}
	if t.SocketPath == "" {
		errs = append(errs, ValidationError{Field: "telemetry.socket_path", Message: "socket_path is required when telemetry is enabled"})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{Field: "ipc.socket_path", Message: "socket_path is required"})
	}
	if i.ShutdownGraceMs < 0 {
		errs = append(errs, ValidationError{Field: "ipc.shutdown_grace_ms", Message: "shutdown_grace_ms cannot be negative"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{Field: "logging.level", Message: fmt.Sprintf("invalid log level: %s", l.Level)})
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{Field: "logging.format", Message: fmt.Sprintf("invalid log format: %s", l.Format)})
	}
	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{Field: "logging.file_path", Message: "file_path is required when output is 'file'"})
		} else if err := security.ValidateFilename(filepath.Base(l.FilePath)); err != nil {
			errs = append(errs, ValidationError{Field: "logging.file_path", Message: err.Error()})
		}
	default:
		errs = append(errs, ValidationError{Field: "logging.output", Message: fmt.Sprintf("invalid log output: %s", l.Output)})
	}
	return errs
}

func validateWorkspace(w *WorkspaceConfig) ValidationErrors {
	var errs ValidationErrors
	if !w.Enabled {
		return errs
	}
	if len(w.Paths) == 0 {
		errs = append(errs, ValidationError{Field: "workspace.paths", Message: "at least one path is required when the workspace watcher is enabled"})
	}
	pv := security.DefaultPathValidator()
	for idx, p := range w.Paths {
		if _, err := pv.ValidatePath(p); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("workspace.paths[%d]", idx),
				Message: err.Error(),
			})
		}
	}
	if w.DebounceMs < 100 {
		errs = append(errs, ValidationError{Field: "workspace.debounce_ms", Message: "debounce_ms must be at least 100"})
	}
	return errs
}

func validateIdentity(i *IdentityConfig) ValidationErrors {
	var errs ValidationErrors
	if i.KeyPath == "" {
		errs = append(errs, ValidationError{Field: "identity.key_path", Message: "key_path is required"})
	} else if err := security.ValidateFilename(filepath.Base(i.KeyPath)); err != nil {
		errs = append(errs, ValidationError{Field: "identity.key_path", Message: err.Error()})
	}
	if i.UseTPM {
		for idx, pcr := range i.TPMPCRs {
			if pcr < 0 || pcr > 23 {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("identity.tpm_pcrs[%d]", idx),
					Message: fmt.Sprintf("PCR index must be 0-23, got %d", pcr),
				})
			}
		}
	}
	return errs
}
