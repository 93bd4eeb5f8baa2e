package main

import (
	"net"
	"os"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// notifySystemd sends READY=1 when running as a Type=notify unit. Outside
// systemd NOTIFY_SOCKET is unset and it does nothing.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return nil
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "write READY=1")
	}
	return nil
}
