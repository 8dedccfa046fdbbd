package daemon

import (
	"context"
	"fmt"

	"github.com/iodevs-net/git-gov/internal/causality"
	"github.com/iodevs-net/git-gov/internal/errkind"
	"github.com/iodevs-net/git-gov/internal/gate"
	"github.com/iodevs-net/git-gov/internal/ipcproto"
	"github.com/iodevs-net/git-gov/internal/security"
)

// handleIPC dispatches a decoded ipcproto.Request to the matching
// subsystem. It is the daemon's ipcproto.Handler.
func (d *Daemon) handleIPC(ctx context.Context, req ipcproto.Request) (any, error) {
	switch req.Op {
	case ipcproto.OpStatus:
		return d.handleStatus(ctx)
	case ipcproto.OpMetrics:
		return d.handleMetrics(), nil
	case ipcproto.OpVerifyWork:
		return d.handleVerifyWork(ctx, req)
	case ipcproto.OpReloadConfig:
		return d.handleReloadConfig(ctx)
	case ipcproto.OpHistory:
		return d.handleHistory(ctx, req)
	case ipcproto.OpDoctor:
		return d.handleDoctor(ctx), nil
	default:
		return nil, errkind.Wrap(errkind.SchemaError, fmt.Sprintf("unknown op %q", req.Op))
	}
}

func (d *Daemon) handleStatus(ctx context.Context) (any, error) {
	snap, err := d.bat.Snapshot(ctx)
	if err != nil {
		return nil, errkind.Wrap(errkind.DaemonUnreachable, err.Error())
	}
	return ipcproto.StatusResponse{
		State:   snap.State.String(),
		Balance: snap.Credits,
		CNS:     d.latestSnapshot().metrics.CNS,
	}, nil
}

func (d *Daemon) handleMetrics() any {
	snap := d.latestSnapshot()
	m := snap.metrics
	return ipcproto.MetricsResponse{
		LDLJ:            m.LDLJ,
		SpectralEntropy: m.SpectralEntropy,
		CurvEntropy:     m.CurvatureEntropy,
		Burstiness:      m.Burstiness,
		NCD:             m.NCD,
		HumanScore:      m.HumanScore,
		CNS:             m.CNS,
		SampleCount:     m.SampleCount,
		RingDropped:     d.buf.Dropped(),
		CausalityState:  snap.causalityState.String(),
	}
}

func (d *Daemon) handleVerifyWork(ctx context.Context, req ipcproto.Request) (any, error) {
	if err := d.sensorError(); err != nil {
		return nil, errkind.Wrap(errkind.SensorUnavailable, err.Error())
	}

	snap := d.latestSnapshot()
	if snap.causalityState == causality.StateBroken {
		return nil, errkind.Wrap(errkind.CausalityBroken, "hardware event counter disagrees with sample throughput")
	}

	priv, pub := d.signKeys()
	result, err := gate.Evaluate(ctx, d.gateCfg, gate.Request{
		Diff: gate.Diff{
			AddedLines:   req.Added,
			RemovedLines: req.Removed,
			AddedBytes:   req.AddedBytes,
			RemovedBytes: req.RemovedBytes,
		},
		CommitTreeHash: req.Tree,
		Window:         snap.metrics,
	}, d.bat, priv, pub)
	if err != nil {
		return nil, d.enrichInsufficientEnergy(err)
	}

	if err := d.ledger.Record(ctx, result.Manifest); err != nil {
		d.log.Warn("daemon: record manifest to ledger failed", "error", err)
	}

	if d.audit != nil {
		_ = d.audit.LogVerification(ctx, req.Tree, true, map[string]interface{}{
			"cns":             snap.metrics.CNS,
			"credits_debited": result.Manifest.CreditsDebited,
		})
		_ = d.audit.LogCheckpoint(ctx, req.Tree, result.Trailer, map[string]interface{}{
			"cns_score":       result.Manifest.CNSScore,
			"credits_charged": result.Manifest.CreditsCharged,
		})
	}

	return ipcproto.VerifyWorkResponse{OK: true, Trailer: result.Trailer}, nil
}

// enrichInsufficientEnergy appends the workspace watcher's live pending-edit
// count to an InsufficientEnergy error's detail, part of the 360° workspace
// report pohwctl prints alongside the git-derived staged/unstaged/untracked
// counts it gathers itself. Any other error kind passes through unchanged.
func (d *Daemon) enrichInsufficientEnergy(err error) error {
	gerr, ok := err.(*errkind.GateError)
	if !ok || gerr.Kind != errkind.InsufficientEnergy {
		return err
	}
	if pending := d.workspacePendingEdits(); pending >= 0 {
		gerr.Detail = fmt.Sprintf("%s (workspace: %d file(s) actively being edited)", gerr.Detail, pending)
	}
	return gerr
}

func (d *Daemon) handleReloadConfig(ctx context.Context) (any, error) {
	d.mu.Lock()
	oldBits := fmt.Sprintf("%d-%d", d.gateCfg.Difficulty.MinBits, d.gateCfg.Difficulty.MaxBits)
	d.gateCfg.Difficulty.MinBits = d.cfg.Gate.DifficultyMinBits
	d.gateCfg.Difficulty.MaxBits = d.cfg.Gate.DifficultyMaxBits
	newBits := fmt.Sprintf("%d-%d", d.gateCfg.Difficulty.MinBits, d.gateCfg.Difficulty.MaxBits)
	d.mu.Unlock()
	d.qualifier.Reconfigure(d.cfg.Telemetry.ProductiveExtensions)

	if d.audit != nil {
		_ = d.audit.LogConfigChange(ctx, "gate.difficulty_bits", oldBits, newBits)
	}
	return ipcproto.ReloadConfigResponse{OK: true}, nil
}

func (d *Daemon) handleHistory(ctx context.Context, req ipcproto.Request) (any, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := d.ledger.Recent(ctx, limit)
	if err != nil {
		return nil, errkind.Wrap(errkind.DaemonUnreachable, err.Error())
	}
	return ipcproto.HistoryResponse{Entries: entries}, nil
}

func (d *Daemon) handleDoctor(ctx context.Context) any {
	var checks, warnings []string

	checks = append(checks, "identity key loaded: "+d.id.NodeID)

	procState := security.CaptureProcessSecurityState()
	if len(procState.Warnings) == 0 {
		checks = append(checks, "no debugger attached, not running as root")
	} else {
		warnings = append(warnings, procState.Warnings...)
	}

	if err := d.sensorError(); err != nil {
		warnings = append(warnings, "sensor: "+err.Error())
	} else {
		checks = append(checks, "sensor capture thread running")
	}

	if snap := d.latestSnapshot(); snap.causalityState == causality.StateBroken {
		warnings = append(warnings, "causality validator currently broken")
	} else {
		checks = append(checks, "causality validator: "+snap.causalityState.String())
	}

	if _, err := d.bat.Snapshot(ctx); err != nil {
		warnings = append(warnings, "battery actor unreachable: "+err.Error())
	} else {
		checks = append(checks, "battery actor responsive")
	}

	if dropped := d.buf.Dropped(); dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("ring buffer has dropped %d samples since start", dropped))
	}

	if pending := d.workspacePendingEdits(); pending >= 0 {
		checks = append(checks, fmt.Sprintf("workspace watcher running, %d pending edit(s)", pending))
	}

	if d.tpmProv != nil && d.tpmProv.Available() {
		checks = append(checks, fmt.Sprintf("identity key sealed to %s TPM/Secure Enclave", d.tpmProv.Manufacturer()))
	} else if d.cfg.Identity.UseTPM {
		warnings = append(warnings, "use_tpm is set but no hardware backing is available, identity key is stored unsealed")
	}

	return ipcproto.DoctorResponse{OK: len(warnings) == 0, Checks: checks, Warnings: warnings}
}
