package ipcproto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/iodevs-net/git-gov/internal/errkind"
)

// Client is a short-lived connection to the daemon's control socket,
// used by the Commit Gate and pohwctl for one request/response exchange
// at a time.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// Dial connects to the daemon's socket at socketPath.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.DaemonUnreachable, err)
	}
	return &Client{conn: conn, scanner: bufio.NewScanner(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends req and decodes the next response line into resp, which
// must be a pointer. Callers needing the error/kind shape should decode
// into ErrorResponse first or use CallRaw and branch on the "ok" field.
func (c *Client) Call(req Request, deadline time.Duration, resp any) error {
	raw, err := c.CallRaw(req, deadline)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, resp)
}

// CallRaw sends req and returns the raw response line's bytes.
func (c *Client) CallRaw(req Request, deadline time.Duration) ([]byte, error) {
	if deadline > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(deadline))
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')
	if _, err := c.conn.Write(line); err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.DaemonUnreachable, err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", errkind.DaemonUnreachable, err)
		}
		return nil, fmt.Errorf("%w: connection closed without a response", errkind.DaemonUnreachable)
	}
	return append([]byte{}, c.scanner.Bytes()...), nil
}

// IsError reports whether raw decodes to an {"ok":false,...} response and,
// if so, returns its Kind/Detail.
func IsError(raw []byte) (*ErrorResponse, bool) {
	var probe struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.OK == nil || *probe.OK {
		return nil, false
	}
	var e ErrorResponse
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}
