package stream

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/telemetry"
)

var _ TelemetryServer = (*Server)(nil)

// Server streams hub lines to gRPC subscribers. Each stream owns one hub
// subscription, so a slow stream loses lines at its own hub queue and never
// holds up the publisher.
type Server struct {
	hub       *telemetry.Hub
	queueSize int

	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	streams  atomic.Int64
}

// NewServer returns a server reading from hub. queueSize bounds each
// stream's hub queue; zero uses the hub default.
func NewServer(hub *telemetry.Hub, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = hub.QueueSize()
	}
	return &Server{
		hub:       hub,
		queueSize: queueSize,
		stopCh:    make(chan struct{}),
	}
}

// Start listens on addr (e.g. ":5555") and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stream: listen %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background. It takes ownership of lis.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("stream: server already running")
	}
	s.listener = lis
	s.server = grpc.NewServer()
	RegisterTelemetryServer(s.server, s)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("stream: serving telemetry on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("stream: serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Streams returns the number of open subscriber streams.
func (s *Server) Streams() int { return int(s.streams.Load()) }

// Stop ends every open stream and stops the server. It is safe to call more
// than once.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.server.GracefulStop()
	s.wg.Wait()
	monitoring.Logf("stream: telemetry server stopped")
}

// Subscribe implements TelemetryServer.
func (s *Server) Subscribe(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[wrapperspb.StringValue]) error {
	ctx := stream.Context()
	sub, err := s.hub.SubscribeQueue(req.GetValue(), s.queueSize)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer s.hub.Unsubscribe(sub.ID)

	s.streams.Add(1)
	defer s.streams.Add(-1)

	who := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		who = p.Addr.String()
	}
	monitoring.Logf("stream: subscriber %s from %s, prefix %q", sub.ID, who, sub.Prefix)
	defer monitoring.Logf("stream: subscriber %s gone", sub.ID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case line, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := stream.Send(wrapperspb.String(line)); err != nil {
				return err
			}
		}
	}
}
