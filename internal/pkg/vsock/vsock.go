// Package vsock wraps github.com/mdlayher/vsock for the same-host
// renderer transport (spec §3 "Renderer connection binding", SPEC_FULL
// §10): a purcd instance running inside a guest VM reaches its host
// renderer over AF_VSOCK instead of TCP, the way the teacher's
// firecracker guest agent reaches its host over a vsock-backed unix
// socket proxy.
package vsock

import (
	"fmt"
	"net"

	mvsock "github.com/mdlayher/vsock"
)

// Listen opens an AF_VSOCK listener bound to port on every accessible
// CID (mdlayher/vsock resolves VMADDR_CID_ANY on Listen).
func Listen(port uint32) (net.Listener, error) {
	l, err := mvsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("vsock: listen on port %d: %w", port, err)
	}
	return l, nil
}

// Dial connects to a vsock endpoint identified by (contextID, port) —
// the guest's well-known host CID is VMADDR_CID_HOST (2).
func Dial(contextID, port uint32) (net.Conn, error) {
	conn, err := mvsock.Dial(contextID, port, nil)
	if err != nil {
		return nil, fmt.Errorf("vsock: dial cid=%d port=%d: %w", contextID, port, err)
	}
	return conn, nil
}

// ContextIDHost is VMADDR_CID_HOST, the CID a guest dials to reach the
// hypervisor host.
const ContextIDHost = 2
