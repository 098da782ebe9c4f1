// Package watchtower runs the watchtower's network front end.
//
// The server accepts many concurrent short-lived connections, one per
// request: read one frame, dispatch against the registry, write one
// frame back, close. No session is held open. Read and write deadlines
// bound every connection so a stalled peer can never pin a handler.
package watchtower

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockberries/watchberry/registry"
	"github.com/blockberries/watchberry/wire"
)

// Errors
var (
	ErrServerNotStarted = errors.New("server not started")
)

const defaultConnTimeout = 5 * time.Second

// Config carries the server's collaborators
type Config struct {
	// BindAddr is the TCP listen address, e.g. ":7420". Use ":0" in
	// tests and read the bound address back with Addr.
	BindAddr string

	// Registry handles every request
	Registry *registry.Registry

	// ConnTimeout bounds the whole read-dispatch-write exchange on one
	// connection. Defaults to 5s.
	ConnTimeout time.Duration

	// Logger defaults to a nop logger
	Logger *zap.Logger
}

// Server is the watchtower's TCP listener
type Server struct {
	started  int32 // atomic
	shutdown int32 // atomic

	cfg      Config
	logger   *zap.Logger
	listener net.Listener

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a server from config
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("watchtower config: registry is required")
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = defaultConnTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		quit:   make(chan struct{}),
	}, nil
}

// Start binds the listen address and begins accepting connections
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.logger.Info("watchtower listening",
		zap.String("addr", listener.Addr().String()),
		zap.Uint64("epoch", uint64(s.cfg.Registry.Epoch())))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and waits for in-flight handlers
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.started) == 0 {
		return ErrServerNotStarted
	}

	close(s.quit)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Addr returns the bound listen address
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn serves exactly one request/response exchange
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.With(
		zap.String("conn", connID),
		zap.String("remote", conn.RemoteAddr().String()))

	if err := conn.SetDeadline(time.Now().Add(s.cfg.ConnTimeout)); err != nil {
		logger.Warn("failed to set deadline", zap.Error(err))
		return
	}

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		logger.Warn("failed to read request frame", zap.Error(err))
		return
	}

	response := s.dispatch(payload, logger)
	if response == nil {
		return
	}

	if err := wire.WriteFrame(conn, response); err != nil {
		logger.Warn("failed to write response frame", zap.Error(err))
	}
}

// dispatch routes one request payload and returns the response payload
func (s *Server) dispatch(payload []byte, logger *zap.Logger) []byte {
	msgType, err := wire.PayloadType(payload)
	if err != nil {
		logger.Warn("empty request", zap.Error(err))
		return wire.EncodeFail(wire.FailCodeBadRequest)
	}

	switch msgType {
	case wire.MsgHeartbeat:
		// Rejections still produce an ack; the registry has already
		// logged and counted the cause.
		ack, _ := s.cfg.Registry.HandleHeartbeat(payload)
		return wire.EncodeAck(&ack)

	case wire.MsgSnapshotReq:
		if _, err := wire.DecodeSnapshotRequest(payload); err != nil {
			logger.Warn("bad snapshot request", zap.Error(err))
			return wire.EncodeFail(wire.FailCodeBadRequest)
		}
		snap, err := s.cfg.Registry.Snapshot()
		if err != nil {
			logger.Warn("snapshot unavailable", zap.Error(err))
			return wire.EncodeFail(wire.FailCodeUnavailable)
		}
		return wire.EncodeSnapshot(&snap)

	case wire.MsgEntriesRequest:
		_, from, to, err := wire.DecodeEntriesRequest(payload)
		if err != nil {
			logger.Warn("bad entries request", zap.Error(err))
			return wire.EncodeFail(wire.FailCodeBadRequest)
		}
		entries, err := s.cfg.Registry.Entries(from, to)
		if err != nil {
			logger.Warn("entries request failed", zap.Error(err))
			return wire.EncodeFail(wire.FailCodeInvalidRange)
		}
		encoded, err := wire.EncodeEntries(entries)
		if err != nil {
			logger.Warn("entries response too large", zap.Error(err))
			return wire.EncodeFail(wire.FailCodeBadRequest)
		}
		return encoded

	default:
		logger.Warn("unknown message type", zap.Uint8("type", uint8(msgType)))
		return wire.EncodeFail(wire.FailCodeBadRequest)
	}
}
