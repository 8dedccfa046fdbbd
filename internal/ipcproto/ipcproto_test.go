package ipcproto

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iodevs-net/git-gov/internal/errkind"
	"github.com/iodevs-net/git-gov/internal/logging"
)

func startTestServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(path, handler, logging.Default())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(time.Second) })
	return srv
}

func TestStatusRoundTrip(t *testing.T) {
	srv := startTestServer(t, func(ctx context.Context, req Request) (any, error) {
		if req.Op != OpStatus {
			return nil, errkind.Wrap(errkind.SchemaError, "unexpected op")
		}
		return StatusResponse{State: "charging", Balance: 42, CNS: 71}, nil
	})

	client, err := Dial(srv.socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	var resp StatusResponse
	require.NoError(t, client.Call(Request{Op: OpStatus}, time.Second, &resp))
	assert.Equal(t, "charging", resp.State)
	assert.Equal(t, 42.0, resp.Balance)
}

func TestVerifyWorkInsufficientEnergyMapsToErrorResponse(t *testing.T) {
	srv := startTestServer(t, func(ctx context.Context, req Request) (any, error) {
		return nil, errkind.Wrap(errkind.InsufficientEnergy, "balance 1.0 < cost 5.0")
	})

	client, err := Dial(srv.socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	raw, err := client.CallRaw(Request{Op: OpVerifyWork, Added: 10}, time.Second)
	require.NoError(t, err)

	errResp, isErr := IsError(raw)
	require.True(t, isErr)
	assert.Equal(t, string(errkind.InsufficientEnergy), errResp.Kind)
}

func TestMalformedRequestReturnsSchemaError(t *testing.T) {
	srv := startTestServer(t, func(ctx context.Context, req Request) (any, error) {
		t.Fatal("handler should not be invoked for malformed input")
		return nil, nil
	})

	client, err := Dial(srv.socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	_ = client.conn.SetDeadline(time.Now().Add(time.Second))
	_, werr := client.conn.Write([]byte("not json\n"))
	require.NoError(t, werr)

	require.True(t, client.scanner.Scan())
	errResp, isErr := IsError(client.scanner.Bytes())
	require.True(t, isErr)
	assert.Equal(t, string(errkind.SchemaError), errResp.Kind)
}

func TestVerifyWorkRateLimitTripsAfterBurst(t *testing.T) {
	srv := startTestServer(t, func(ctx context.Context, req Request) (any, error) {
		return VerifyWorkResponse{OK: true, Trailer: "pohw-trailer: x"}, nil
	})

	client, err := Dial(srv.socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	// Loop past any plausible burst size rather than importing the
	// policy constant from internal/security: the exact burst is that
	// package's tuning knob, not this test's concern.
	const generousAttempts = 20
	var limited bool
	for i := 0; i < generousAttempts; i++ {
		raw, err := client.CallRaw(Request{Op: OpVerifyWork}, time.Second)
		require.NoError(t, err)
		if errResp, isErr := IsError(raw); isErr && errResp.Kind == string(errkind.RateLimited) {
			limited = true
			break
		}
	}
	assert.True(t, limited, "expected the burst to trip the verify-work rate limiter")
}

func TestMultipleRequestsOverOneConnection(t *testing.T) {
	count := 0
	srv := startTestServer(t, func(ctx context.Context, req Request) (any, error) {
		count++
		return StatusResponse{State: "ok"}, nil
	})

	client, err := Dial(srv.socketPath, time.Second)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		var resp StatusResponse
		require.NoError(t, client.Call(Request{Op: OpStatus}, time.Second, &resp))
	}
	assert.Equal(t, 3, count)
}
