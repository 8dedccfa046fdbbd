// Package config handles configuration loading, validation, and
// hot-reload for pohwd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iodevs-net/git-gov/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration, decomposed into one
// sub-struct per subsystem.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Sensor    SensorConfig    `toml:"sensor" json:"sensor" yaml:"sensor"`
	Ring      RingConfig      `toml:"ring" json:"ring" yaml:"ring"`
	Entropy   EntropyConfig   `toml:"entropy" json:"entropy" yaml:"entropy"`
	Battery   BatteryConfig   `toml:"battery" json:"battery" yaml:"battery"`
	Gate      GateConfig      `toml:"gate" json:"gate" yaml:"gate"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry" yaml:"telemetry"`
	IPC       IPCConfig       `toml:"ipc" json:"ipc" yaml:"ipc"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Identity  IdentityConfig  `toml:"identity" json:"identity" yaml:"identity"`
	Workspace WorkspaceConfig `toml:"workspace" json:"workspace" yaml:"workspace"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// SensorConfig controls the input source (C1).
type SensorConfig struct {
	// MinHWDelta is the minimum kernel-event delta required between
	// charge ticks for the causality validator to approve a charge.
	MinHWDelta uint64 `toml:"min_hw_delta" json:"min_hw_delta" yaml:"min_hw_delta"`
}

// RingConfig controls the ring buffer (C2).
type RingConfig struct {
	Capacity int `toml:"ring_capacity" json:"ring_capacity" yaml:"ring_capacity"`
}

// EntropyConfig controls the entropy engine (C3).
type EntropyConfig struct {
	TickMs     int     `toml:"tick_ms" json:"tick_ms" yaml:"tick_ms"`
	MinSamples int     `toml:"min_samples" json:"min_samples" yaml:"min_samples"`
	MinEntropy float64 `toml:"min_entropy" json:"min_entropy" yaml:"min_entropy"`
}

// BatteryConfig controls the attention battery (C5).
type BatteryConfig struct {
	MaxBattery        float64 `toml:"max_battery" json:"max_battery" yaml:"max_battery"`
	MinCNSThreshold   uint8   `toml:"min_cns_threshold" json:"min_cns_threshold" yaml:"min_cns_threshold"`
	StatePath         string  `toml:"state_path" json:"state_path" yaml:"state_path"`
}

// GateConfig controls the commit gate (C7).
type GateConfig struct {
	DifficultyMinBits uint8 `toml:"difficulty_min_bits" json:"difficulty_min_bits" yaml:"difficulty_min_bits"`
	DifficultyMaxBits uint8 `toml:"difficulty_max_bits" json:"difficulty_max_bits" yaml:"difficulty_max_bits"`
	MaxPuzzleMs       int   `toml:"max_puzzle_ms" json:"max_puzzle_ms" yaml:"max_puzzle_ms"`
}

// TelemetryConfig controls the editor telemetry server (C8).
type TelemetryConfig struct {
	Enabled               bool     `toml:"enabled" json:"enabled" yaml:"enabled"`
	SocketPath            string   `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
	ProductiveExtensions  []string `toml:"productive_extensions" json:"productive_extensions" yaml:"productive_extensions"`
}

// IPCConfig controls the daemon control socket.
type IPCConfig struct {
	SocketPath     string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
	ShutdownGraceMs int   `toml:"shutdown_grace_ms" json:"shutdown_grace_ms" yaml:"shutdown_grace_ms"`
}

// LoggingConfig mirrors the teacher's logging configuration shape.
type LoggingConfig struct {
	Level    string `toml:"level" json:"level" yaml:"level"`
	Format   string `toml:"format" json:"format" yaml:"format"`
	Output   string `toml:"output" json:"output" yaml:"output"`
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// IdentityConfig controls the node keypair.
type IdentityConfig struct {
	KeyPath   string `toml:"key_path" json:"key_path" yaml:"key_path"`
	UseTPM    bool   `toml:"use_tpm" json:"use_tpm" yaml:"use_tpm"`
	TPMPCRs   []int  `toml:"tpm_pcrs" json:"tpm_pcrs" yaml:"tpm_pcrs"`
}

// WorkspaceConfig controls the optional workspace watcher that augments
// the Commit Gate's InsufficientEnergy report with a live in-flight-edit
// count. It never influences CNS scoring or charge approval.
type WorkspaceConfig struct {
	Enabled    bool     `toml:"enabled" json:"enabled" yaml:"enabled"`
	Paths      []string `toml:"paths" json:"paths" yaml:"paths"`
	DebounceMs int      `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// DefaultConfig returns a configuration with the spec's documented defaults.
func DefaultConfig() *Config {
	dir := PohwdDir()

	return &Config{
		Version: Version,
		Sensor: SensorConfig{
			MinHWDelta: 30,
		},
		Ring: RingConfig{
			Capacity: 2048,
		},
		Entropy: EntropyConfig{
			TickMs:     5000,
			MinSamples: 64,
			MinEntropy: 2.5,
		},
		Battery: BatteryConfig{
			MaxBattery:      600.0,
			MinCNSThreshold: 50,
			StatePath:       filepath.Join(dir, "battery.bin"),
		},
		Gate: GateConfig{
			DifficultyMinBits: 10,
			DifficultyMaxBits: 22,
			MaxPuzzleMs:       60000,
		},
		Telemetry: TelemetryConfig{
			Enabled:              true,
			SocketPath:           defaultTelemetrySocketPath(),
			ProductiveExtensions: DefaultProductiveExtensions(),
		},
		IPC: IPCConfig{
			SocketPath:      defaultSocketPath(),
			ShutdownGraceMs: 5000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "file",
			FilePath: filepath.Join(dir, "pohwd.log"),
		},
		Identity: IdentityConfig{
			KeyPath: filepath.Join(dir, "node_identity"),
			UseTPM:  false,
			TPMPCRs: []int{0, 1, 2, 3, 7},
		},
		Workspace: WorkspaceConfig{
			Enabled:    false,
			Paths:      []string{"."},
			DebounceMs: 2000,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PohwdDir(), "config.toml")
}

// Load reads configuration from path, falling back to defaults if the
// file does not exist. Format is selected by file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := decodeInto(data, filepath.Ext(path), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all directories the daemon needs to write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Battery.StatePath),
		filepath.Dir(c.Identity.KeyPath),
		filepath.Dir(c.Logging.FilePath),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := security.EnsureSecureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// PohwdDir returns the base pohwd data directory, honoring POHW_DATA_DIR.
func PohwdDir() string {
	if envDir := os.Getenv("POHW_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies POHW_*-prefixed environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("POHW_BATTERY_STATE_PATH"); v != "" {
		c.Battery.StatePath = v
	}
	if v := os.Getenv("POHW_IDENTITY_KEY_PATH"); v != "" {
		c.Identity.KeyPath = v
	}
	if v := os.Getenv("POHW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("POHW_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("POHW_IPC_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("POHW_TELEMETRY_SOCKET_PATH"); v != "" {
		c.Telemetry.SocketPath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := *c
	clone.Telemetry.ProductiveExtensions = append([]string{}, c.Telemetry.ProductiveExtensions...)
	clone.Identity.TPMPCRs = append([]int{}, c.Identity.TPMPCRs...)
	clone.Workspace.Paths = append([]string{}, c.Workspace.Paths...)
	return &clone
}

func defaultSocketPath() string {
	if runtimeDir := PlatformRuntimeDir(); runtimeDir != "" {
		return filepath.Join(runtimeDir, "pohwd-ipc.sock")
	}
	return "/tmp/pohwd-ipc.sock"
}

func defaultTelemetrySocketPath() string {
	if runtimeDir := PlatformRuntimeDir(); runtimeDir != "" {
		return filepath.Join(runtimeDir, "pohwd-sensor.sock")
	}
	return "/tmp/pohwd-sensor.sock"
}

// DefaultProductiveExtensions returns the default productive-extensions
// allow-list used to qualify the telemetry focus boost.
func DefaultProductiveExtensions() []string {
	return []string{".go", ".rs", ".py", ".ts", ".js", ".c", ".cpp", ".h", ".java", ".md"}
}
