package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/errkind"
	"github.com/iodevs-net/git-gov/internal/watch"
)

func TestEnrichInsufficientEnergyPassesThroughOtherKinds(t *testing.T) {
	d := &Daemon{}
	err := errkind.Wrap(errkind.CausalityBroken, "disagreement")
	assert.Same(t, err, d.enrichInsufficientEnergy(err))
}

func TestEnrichInsufficientEnergyWithoutWorkspaceWatcher(t *testing.T) {
	d := &Daemon{}
	err := errkind.Wrap(errkind.InsufficientEnergy, "balance 1.00 < cost 2.00")
	got := d.enrichInsufficientEnergy(err)
	assert.Equal(t, "balance 1.00 < cost 2.00", got.(*errkind.GateError).Detail)
}

func TestEnrichInsufficientEnergyAppendsPendingEdits(t *testing.T) {
	w, err := watch.New([]string{t.TempDir()}, 100*time.Millisecond)
	require.NoError(t, err)

	d := &Daemon{workspace: w}
	gerr := errkind.Wrap(errkind.InsufficientEnergy, "balance 1.00 < cost 2.00")
	got := d.enrichInsufficientEnergy(gerr)
	assert.Contains(t, got.(*errkind.GateError).Detail, "workspace: 0 file(s) actively being edited")
}
