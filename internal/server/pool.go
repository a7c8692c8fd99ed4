package server

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zenqueue/zenqueue/internal/queue"
	"github.com/zenqueue/zenqueue/internal/waitqueue"
)

// DefaultMaxConnections bounds concurrent in-flight handlers when the
// caller doesn't choose a limit.
const DefaultMaxConnections = 1024

// Server is the native line-protocol listener: it accepts connections,
// caps in-flight handlers at MaxConnections using the same waitqueue
// primitive the queue itself is built on, and dispatches each one to the
// shared Dispatcher.
type Server struct {
	Queue          *queue.Queue
	MaxConnections int
	Log            zerolog.Logger
	Metrics        Metrics

	// Limiter optionally caps the rate of accepted connections (not
	// message throughput: this never contradicts the "no producer
	// backpressure" non-goal). Nil disables it. Set via NewAcceptLimiter.
	Limiter *rate.Limiter

	// ShutdownTimeout bounds the drain after the listener closes. An idle
	// client parked between requests would otherwise keep its handler
	// blocked in a read forever; once the timeout elapses, remaining
	// connections are force-closed so Serve can return. <= 0 waits
	// indefinitely.
	ShutdownTimeout time.Duration

	listener net.Listener
	slots    *waitqueue.Semaphore
	wg       sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewAcceptLimiter builds a connection-admission limiter for Server.Limiter.
// ratePerSec <= 0 disables it (returns nil), matching --accept-rate's
// default of off.
func NewAcceptLimiter(ratePerSec float64, burst int) *rate.Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// NewServer builds a Server bound to q. Call Serve to start accepting.
func NewServer(q *queue.Queue, maxConnections int, log zerolog.Logger, metrics Metrics) *Server {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Server{
		Queue:          q,
		MaxConnections: maxConnections,
		Log:            log,
		Metrics:        metrics,
		slots:          waitqueue.New(maxConnections),
		conns:          make(map[net.Conn]struct{}),
	}
}

// Serve listens on addr and runs the accept loop until ctx is cancelled or
// a fatal accept error occurs. It blocks until every in-flight connection
// has drained.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	defer s.drain()

	s.Log.Info().Str("addr", ln.Addr().String()).Int("max_connections", s.MaxConnections).Msg("zenqueue native server listening")

	go func() {
		<-ctx.Done()
		s.Log.Info().Msg("shutting down: closing listener")
		_ = ln.Close()
	}()

	dispatcher := NewDispatcher(s.Queue)

	for {
		// Block here, not after Accept, until a slot is free: in-flight
		// handlers never exceed MaxConnections.
		if err := s.slots.Acquire(ctx); err != nil {
			return nil
		}

		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				s.slots.Release()
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			s.slots.Release()

			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isIgnorableAcceptError(err) {
				s.Log.Warn().Err(err).Msg("ignorable accept error")
				continue
			}
			s.Log.Error().Err(err).Msg("fatal accept error")
			return err
		}

		s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.slots.Release()
			defer s.untrackConn(conn)
			handleConn(ctx, conn, dispatcher, s.Metrics, s.Log)
		}()
	}
}

// drain waits for in-flight handlers to finish, bounded by ShutdownTimeout.
// A handler blocked reading from an idle client never finishes on its own;
// once the timeout elapses the remaining connections are force-closed,
// which fails their pending reads and lets every handler goroutine exit.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.ShutdownTimeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(s.ShutdownTimeout):
		s.Log.Warn().Dur("timeout", s.ShutdownTimeout).Msg("drain timeout elapsed, closing remaining connections")
		s.closeAllConns()
		<-done
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

func (s *Server) closeAllConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// isIgnorableAcceptError tolerates broken-pipe and bad-file-descriptor
// errors from clients that quit mid-accept; anything else is fatal.
func isIgnorableAcceptError(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EBADF) || errors.Is(err, os.ErrClosed)
}
