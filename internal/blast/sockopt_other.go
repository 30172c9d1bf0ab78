//go:build !unix && !windows

package blast

import (
	"errors"
	"net"
)

func setBroadcast(conn *net.UDPConn, on bool) error {
	return errors.ErrUnsupported
}
