package daemon

import (
	"fmt"
	"net"
	"syscall"
)

// readPeerUID reads the connecting process's real uid off an AF_UNIX stream
// socket via SO_PEERCRED, the "platform-appropriate socket option" the
// spec calls for (§6). Every request is attributed to this uid.
func readPeerUID(conn net.Conn) (int, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, fmt.Errorf("peer credentials require an AF_UNIX connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var uid int
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, err := syscall.GetsockoptUcred(int(fd), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
		if err != nil {
			sockErr = err
			return
		}
		uid = int(cred.Uid)
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if sockErr != nil {
		return 0, sockErr
	}
	return uid, nil
}
