package telemetry

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/logging"
)

func TestDecodeRejectsMalformedLine(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport","timestamp_ms":1}`))
	require.Error(t, err)
}

func TestDecodeFocusGained(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"focus_gained","file_path":"main.go","timestamp_ms":100}`))
	require.NoError(t, err)
	assert.Equal(t, EventFocusGained, ev.Type)
	require.NotNil(t, ev.FilePath)
	assert.Equal(t, "main.go", *ev.FilePath)
}

func TestQualifierBoostsOnlyAllowedExtension(t *testing.T) {
	q := NewQualifier([]string{".go", "rs"})

	path := "internal/gate/gate.go"
	q.Apply(Event{Type: EventFocusGained, FilePath: &path})
	assert.Equal(t, maxBoostMultiplier, q.Multiplier())

	other := "README.md"
	q.Apply(Event{Type: EventFocusGained, FilePath: &other})
	assert.Equal(t, 1.0, q.Multiplier())
}

func TestQualifierMultiplierResetsOnFocusLost(t *testing.T) {
	q := NewQualifier([]string{".go"})
	path := "main.go"
	q.Apply(Event{Type: EventFocusGained, FilePath: &path})
	require.Equal(t, maxBoostMultiplier, q.Multiplier())

	q.Apply(Event{Type: EventFocusLost})
	assert.Equal(t, 1.0, q.Multiplier())
}

func TestQualifierBoostedClampsAt100(t *testing.T) {
	q := NewQualifier([]string{".go"})
	path := "main.go"
	q.Apply(Event{Type: EventFocusGained, FilePath: &path})
	assert.Equal(t, 100.0, q.Boosted(95))
}

func TestServerDropsMalformedLinesSilently(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "sensor.sock")
	q := NewQualifier([]string{".go"})
	srv := NewServer(socketPath, q, logging.Default(), nil)
	require.NoError(t, srv.Start())
	defer srv.Stop(time.Second)

	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("garbage\n"))
	require.NoError(t, err)

	_, err = conn.Write([]byte(`{"type":"focus_gained","file_path":"x.go","timestamp_ms":1}` + "\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.Multiplier() == maxBoostMultiplier
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerAcceptsMultipleClients(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "sensor.sock")
	q := NewQualifier(nil)
	received := make(chan Event, 4)
	srv := NewServer(socketPath, q, logging.Default(), func(ev Event) { received <- ev })
	require.NoError(t, srv.Start())
	defer srv.Stop(time.Second)

	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("unix", socketPath, time.Second)
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte(`{"type":"heartbeat","timestamp_ms":1}` + "\n"))
		require.NoError(t, err)
	}

	for i := 0; i < 2; i++ {
		select {
		case ev := <-received:
			assert.Equal(t, EventHeartbeat, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for heartbeat event")
		}
	}
}

var _ = bufio.NewScanner
