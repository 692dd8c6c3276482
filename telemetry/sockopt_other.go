//go:build !unix

package telemetry

import "syscall"

// Address reuse is left to the platform default outside unix.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
