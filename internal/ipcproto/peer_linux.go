//go:build linux

package ipcproto

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials identifies the process on the other end of a Unix
// socket connection. The server keys its per-peer OpVerifyWork rate
// limiter off UID rather than PID, so a forking abuser can't evade it
// by reconnecting from a fresh process.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

// PeerCreds reads SO_PEERCRED off conn, which must be a *net.UnixConn.
func PeerCreds(conn net.Conn) (PeerCredentials, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerCredentials{}, fmt.Errorf("ipcproto: not a unix socket connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCredentials{}, err
	}

	var cred *unix.Ucred
	var sysErr error
	err = raw.Control(func(fd uintptr) {
		cred, sysErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerCredentials{}, err
	}
	if sysErr != nil {
		return PeerCredentials{}, sysErr
	}
	return PeerCredentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
