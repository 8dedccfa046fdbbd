package daemon

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iodevs-net/git-gov/internal/battery"
	"github.com/iodevs-net/git-gov/internal/causality"
	"github.com/iodevs-net/git-gov/internal/config"
	"github.com/iodevs-net/git-gov/internal/entropy"
	"github.com/iodevs-net/git-gov/internal/errkind"
	"github.com/iodevs-net/git-gov/internal/gate"
	"github.com/iodevs-net/git-gov/internal/identity"
	"github.com/iodevs-net/git-gov/internal/ipcproto"
	"github.com/iodevs-net/git-gov/internal/logging"
	"github.com/iodevs-net/git-gov/internal/manifest"
	"github.com/iodevs-net/git-gov/internal/ring"
	"github.com/iodevs-net/git-gov/internal/sensor"
	"github.com/iodevs-net/git-gov/internal/telemetry"
	"github.com/iodevs-net/git-gov/internal/tpm"
	"github.com/iodevs-net/git-gov/internal/watch"
)

// Ledger is the minimal persistence surface the daemon needs: recording
// every signed manifest it produces and answering the `history` IPC op.
// internal/ledger implements this once a manifest is in hand; a daemon
// started without one (tests, `pohwverify`-only flows) uses noopLedger.
type Ledger interface {
	Record(ctx context.Context, m *manifest.Manifest) error
	Recent(ctx context.Context, limit int) ([]ipcproto.HistoryEntry, error)
}

type noopLedger struct{}

func (noopLedger) Record(context.Context, *manifest.Manifest) error { return nil }
func (noopLedger) Recent(context.Context, int) ([]ipcproto.HistoryEntry, error) {
	return nil, nil
}

// snapshot is the latest analysis tick's derived statistics, read by the
// IPC handler without touching the scheduler goroutine directly.
type snapshot struct {
	metrics        entropy.Metrics
	causalityState causality.State
}

// Daemon wires every subsystem into the single-process runtime described
// by the daemon architecture: one dedicated OS thread for input capture,
// one cooperative scheduler for everything else.
type Daemon struct {
	cfg *config.Config
	log *logging.Logger

	id      *identity.Identity
	buf     *ring.Buffer
	source  *sensor.Source
	engine  *entropy.Engine
	valid   *causality.Validator
	bat     *battery.Battery
	ledger  Ledger
	audit   *logging.AuditLogger
	manager *Manager
	tpmProv tpm.Provider

	ipcSrv    *ipcproto.Server
	teleSrv   *telemetry.Server
	qualifier *telemetry.Qualifier
	workspace *watch.Watcher

	gateCfg gate.Config

	mu          sync.RWMutex
	latest      snapshot
	sensorErr   atomic.Value // error
	consumed    atomic.Uint64
	lastHWTotal atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs every subsystem from cfg but does not start them; call
// Run to begin the capture thread, scheduler, and IPC/telemetry servers.
func New(cfg *config.Config, log *logging.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.Default()
	}

	var (
		id      *identity.Identity
		err     error
		tpmProv tpm.Provider
	)
	if cfg.Identity.UseTPM {
		tpmProv = tpm.DetectTPM()
		if !tpmProv.Available() {
			log.Warn("daemon: use_tpm is set but no TPM/Secure Enclave was detected, falling back to a plain key file")
		}
		id, err = identity.LoadOrCreateSealed(cfg.Identity.KeyPath, tpmProv, tpm.DefaultPCRSelection())
	} else {
		id, err = identity.LoadOrCreate(cfg.Identity.KeyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("daemon: load identity: %w", err)
	}
	log = log.WithNodeID(id.NodeID)

	buf := ring.New(cfg.Ring.Capacity)

	backends := buildBackends()
	src := sensor.New(buf, backends...)

	idleSource := newIdleSource(log)
	validator := causality.New(causality.Config{Idle: idleSource})

	batCfg := battery.DefaultConfig()
	batCfg.Capacity = cfg.Battery.MaxBattery
	batCfg.MinCNSToCharge = float64(cfg.Battery.MinCNSThreshold)

	var restore *battery.Snapshot
	if loaded, err := battery.Load(cfg.Battery.StatePath, id.Public); err == nil {
		restore = &loaded.Snapshot
	} else if !os.IsNotExist(err) {
		log.Warn("daemon: discarding unsigned or corrupt battery state", "error", err)
	}
	bat := battery.New(batCfg, restore)

	qualifier := telemetry.NewQualifier(cfg.Telemetry.ProductiveExtensions)

	d := &Daemon{
		cfg:       cfg,
		log:       log,
		id:        id,
		buf:       buf,
		source:    src,
		engine:    entropy.New(cfg.Entropy.MinSamples),
		valid:     validator,
		bat:       bat,
		ledger:    noopLedger{},
		manager:   NewManager(runtimeDir(cfg)),
		tpmProv:   tpmProv,
		qualifier: qualifier,
		gateCfg: gate.Config{
			Weights:    gate.DefaultCostWeights(),
			Difficulty: gate.DifficultyRange{MinBits: cfg.Gate.DifficultyMinBits, MaxBits: cfg.Gate.DifficultyMaxBits},
			MaxPuzzle:  time.Duration(cfg.Gate.MaxPuzzleMs) * time.Millisecond,
		},
	}

	d.ipcSrv = ipcproto.NewServer(cfg.IPC.SocketPath, d.handleIPC, log)
	if cfg.Telemetry.Enabled {
		d.teleSrv = telemetry.NewServer(cfg.Telemetry.SocketPath, qualifier, log, nil)
	}

	if cfg.Workspace.Enabled {
		w, err := watch.New(cfg.Workspace.Paths, time.Duration(cfg.Workspace.DebounceMs)*time.Millisecond)
		if err != nil {
			log.Warn("daemon: workspace watcher failed to start, InsufficientEnergy reports will omit it", "error", err)
		} else {
			d.workspace = w
		}
	}

	return d, nil
}

// SetLedger installs a persistence backend, replacing the no-op default.
// Must be called before Run.
func (d *Daemon) SetLedger(l Ledger) {
	if l != nil {
		d.ledger = l
	}
}

// NodeID returns this daemon's identity fingerprint, the same value tagged
// on its log entries, for tagging audit events with the node that produced
// them. Manifests carry the public key, not the node ID.
func (d *Daemon) NodeID() string {
	return d.id.NodeID
}

// SetAuditLogger installs the audit trail used by config-change and
// verification IPC handlers. Optional: handlers no-op on a nil audit
// logger, so daemons started without one (tests) behave as before.
func (d *Daemon) SetAuditLogger(a *logging.AuditLogger) {
	d.audit = a
}

func runtimeDir(cfg *config.Config) string {
	return filepath.Dir(cfg.IPC.SocketPath)
}

// buildBackends selects the real evdev capture backends on Linux, or a
// single deterministic mock pointer backend everywhere else / when POHWD_SENSOR_MOCK=1 is
// set for local development without a reachable input device.
func buildBackends() []sensor.Backend {
	if os.Getenv("POHWD_SENSOR_MOCK") == "1" || runtime.GOOS != "linux" {
		return []sensor.Backend{
			&sensor.MockBackend{Source: mockPointerSource, Interval: 10 * time.Millisecond},
		}
	}
	return []sensor.Backend{
		&sensor.EvdevBackend{Want: pointerSource},
		&sensor.EvdevBackend{Want: keyboardSource},
	}
}

// Run starts the input-capture thread, the scheduler loop, and the IPC
// and telemetry servers, blocking until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.manager.Acquire(); err != nil {
		return err
	}
	defer d.manager.Release()

	if err := d.manager.WriteState(State{PID: os.Getpid(), StartedAt: time.Now(), NodeID: d.id.NodeID}); err != nil {
		d.log.Warn("daemon: write state file failed", "error", err)
	}

	if d.audit != nil {
		sessionID := fmt.Sprintf("%s-%d", d.id.NodeID, os.Getpid())
		_ = d.audit.LogSessionStart(ctx, sessionID, map[string]interface{}{"pid": os.Getpid()})
		defer func() { _ = d.audit.LogSessionEnd(context.Background(), nil) }()
	}

	if err := d.ipcSrv.Start(); err != nil {
		return fmt.Errorf("daemon: start ipc server: %w", err)
	}
	defer d.ipcSrv.Stop(time.Duration(d.cfg.IPC.ShutdownGraceMs) * time.Millisecond)

	if d.teleSrv != nil {
		if err := d.teleSrv.Start(); err != nil {
			d.log.Warn("daemon: telemetry server failed to start, continuing without it", "error", err)
			d.teleSrv = nil
		} else {
			defer d.teleSrv.Stop(time.Duration(d.cfg.IPC.ShutdownGraceMs) * time.Millisecond)
		}
	}

	if d.workspace != nil {
		if err := d.workspace.Start(); err != nil {
			d.log.Warn("daemon: workspace watcher failed to start, continuing without it", "error", err)
			d.workspace = nil
		} else {
			defer d.workspace.Stop()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	d.wg.Add(1)
	go d.runCapture(runCtx)

	d.log.Info("daemon: running", "node_id", d.id.NodeID, "ipc_socket", d.cfg.IPC.SocketPath)
	d.runScheduler(runCtx)

	d.cancel()
	d.wg.Wait()
	return d.shutdown()
}

// runCapture pins the input-capture backend to its own OS thread, the
// same isolation the dedicated capture thread requires so a blocking
// device read never stalls the cooperative scheduler.
func (d *Daemon) runCapture(ctx context.Context) {
	defer d.wg.Done()
	defer logging.RecoverPanicWith(map[string]interface{}{"component": "sensor-capture"})
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := d.source.Run(ctx); err != nil && ctx.Err() == nil {
		d.log.Error("daemon: sensor source stopped", "error", err)
		d.sensorErr.Store(fmt.Errorf("%w: %v", errkind.SensorUnavailable, err))
	}
}

func (d *Daemon) shutdown() error {
	snap, err := d.bat.Snapshot(context.Background())
	d.bat.Stop()
	if err != nil {
		return nil
	}
	if err := battery.Save(d.cfg.Battery.StatePath, snap, d.lastHWTotal.Load(), d.id.Private); err != nil {
		d.log.Warn("daemon: persist battery state failed", "error", err)
	}
	return nil
}

// latestSnapshot returns the most recently computed analysis window.
func (d *Daemon) latestSnapshot() snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// sensorError returns the sensor thread's terminal error, if any.
func (d *Daemon) sensorError() error {
	v := d.sensorErr.Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

// workspacePendingEdits reports the live in-flight-edit count from the
// optional workspace watcher, or -1 if none is configured.
func (d *Daemon) workspacePendingEdits() int {
	if d.workspace == nil {
		return -1
	}
	return d.workspace.PendingEdits()
}

// signKeys returns the identity's private and public key for gate wiring.
func (d *Daemon) signKeys() (ed25519.PrivateKey, ed25519.PublicKey) {
	return d.id.Private, d.id.Public
}
