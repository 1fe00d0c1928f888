package rdrbridge

import (
	"fmt"
	"io"
	"net"

	"github.com/purc-go/purc/internal/atom"
	"github.com/purc-go/purc/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// serviceDesc is the bidi-streaming RPC description a protoc-gen-go-grpc
// file would otherwise generate; hand-written here since this build has
// no protoc toolchain available. The JSON codec in codec.go means the
// Envelope type needs no proto.Message implementation.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "purc.rdrbridge.Bridge",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "purc/rdrbridge.proto",
}

// Server hosts the renderer-bridge gRPC service on a net.Listener —
// TCP for a networked renderer, vsock for a same-host guest (spec §10,
// internal/pkg/vsock). Grounded on the teacher's internal/grpc.Server
// Start/Stop shape, generalized to take any net.Listener.
type Server struct {
	bridge *Bridge
	srv    *grpc.Server
}

// NewServer wires grpc service handlers to bridge.
func NewServer(bridge *Bridge, opts ...grpc.ServerOption) *Server {
	g := grpc.NewServer(opts...)
	g.RegisterService(&serviceDesc, bridge)
	return &Server{bridge: bridge, srv: g}
}

// Serve blocks accepting connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	logging.Op().Info("renderer bridge serving", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil {
		return fmt.Errorf("rdrbridge: serve: %w", err)
	}
	return nil
}

// Stop gracefully drains in-flight streams.
func (s *Server) Stop() { s.srv.GracefulStop() }

func connectStreamHandler(srv any, stream grpc.ServerStream) error {
	bridge, ok := srv.(*Bridge)
	if !ok {
		return status.Error(codes.Internal, "rdrbridge: unexpected service impl")
	}

	var hello Envelope
	if err := stream.RecvMsg(&hello); err != nil {
		return status.Errorf(codes.InvalidArgument, "rdrbridge: expected hello: %v", err)
	}
	if hello.Kind != KindHello || hello.Hello == nil {
		return status.Error(codes.InvalidArgument, "rdrbridge: first message must be hello")
	}

	conn := bridge.register(hello.Hello.RendererID)
	defer conn.markDisconnected()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range conn.send {
			if err := stream.SendMsg(env); err != nil {
				logging.Op().Warn("rdrbridge: send failed", "conn", conn.id, "error", err)
				return
			}
		}
	}()

	for {
		var env Envelope
		err := stream.RecvMsg(&env)
		if err == io.EOF {
			break
		}
		if err != nil {
			logging.Op().Info("rdrbridge: stream closed", "conn", conn.id, "error", err)
			break
		}
		conn.touch()
		switch env.Kind {
		case KindEvent:
			if env.Event != nil {
				bridge.bindCoroutine(conn.id, atom.Atom(env.Event.CoroutineID))
				bridge.route(env.Event)
			}
		case KindHello:
			// duplicate hello on an established stream; ignored.
		}
	}

	conn.markDisconnected()
	<-done
	return nil
}
