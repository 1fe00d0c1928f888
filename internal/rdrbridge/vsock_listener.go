package rdrbridge

import (
	"fmt"
	"net"

	"github.com/purc-go/purc/internal/pkg/vsock"
)

// ListenVsock opens the renderer bridge on an AF_VSOCK port, for a
// purcd instance running inside a guest VM reaching its host renderer
// without a network namespace (spec §10, SPEC_FULL ambient transport).
func ListenVsock(port uint32) (net.Listener, error) {
	lis, err := vsock.Listen(port)
	if err != nil {
		return nil, fmt.Errorf("rdrbridge: vsock listen: %w", err)
	}
	return lis, nil
}
