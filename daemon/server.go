package daemon

import (
	"context"
	"net"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/lib/cborutil"
)

var log = logging.Logger("daemon")

// Handler executes a single decoded request.
type Handler interface {
	Dispatch(ctx context.Context, req api.Request) (api.Response, error)
}

type Option func(*Server)

// MaxMessageSize caps the size of an incoming request frame.
func MaxMessageSize(n int) Option {
	return func(s *Server) {
		s.maxMsgSize = n
	}
}

// Server accepts command connections and serves each one on its own
// goroutine. Requests on one connection are answered in order.
type Server struct {
	handler    Handler
	maxMsgSize int

	lk       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closing  bool

	wg sync.WaitGroup
}

func NewServer(h Handler, opts ...Option) *Server {
	s := &Server{
		handler:    h,
		maxMsgSize: cborutil.DefaultMaxMessageSize,
		conns:      map[*conn]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe listens on the TCP address addr and serves connections
// until Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.Errorf("listening on %s: %s: %w", addr, err, api.ErrIO)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l. It returns nil after Shutdown and the
// accept error otherwise. Temporary accept errors, such as running out of
// file descriptors, are retried with backoff. ctx is passed to every
// dispatched request.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lk.Lock()
	if s.closing {
		s.lk.Unlock()
		_ = l.Close()
		return nil
	}
	s.listener = l
	s.lk.Unlock()

	log.Infow("command server listening", "addr", l.Addr().String())

	b := &backoff.Backoff{
		Min:    5 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
	}

	for {
		nc, err := l.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() { //nolint:staticcheck
				d := b.Duration()
				log.Warnw("temporary accept error, retrying", "error", err, "delay", d)
				select {
				case <-time.After(d):
				case <-ctx.Done():
				}
				continue
			}
			return xerrors.Errorf("accepting connection: %w", err)
		}
		b.Reset()

		c := newConn(s, nc)
		if !s.track(c) {
			_ = nc.Close()
			return nil
		}

		go c.serve(ctx)
	}
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.lk.Lock()
	defer s.lk.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and interrupts idle reads. Requests
// already being dispatched finish and get their response. If ctx expires
// first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lk.Lock()
	s.closing = true
	var lerr error
	if s.listener != nil {
		lerr = s.listener.Close()
	}
	for c := range s.conns {
		c.interrupt()
	}
	s.lk.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.lk.Lock()
		for c := range s.conns {
			_ = c.nc.Close()
		}
		s.lk.Unlock()
		<-done
	}

	if lerr != nil && !xerrors.Is(lerr, net.ErrClosed) {
		return xerrors.Errorf("closing listener: %w", lerr)
	}
	return nil
}

func (s *Server) isClosing() bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.closing
}

func (s *Server) track(c *conn) bool {
	s.lk.Lock()
	defer s.lk.Unlock()

	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.lk.Lock()
	delete(s.conns, c)
	s.lk.Unlock()
	s.wg.Done()
}
