package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/lib/cborutil"
	"github.com/filecoin-project/filbase/lib/retry"
	"github.com/filecoin-project/filbase/node/config"
)

var log = logging.Logger("client")

const dialBackoff = 200 * time.Millisecond

// Client speaks the command protocol over a single connection. Calls are
// serialized; each sends one request and reads its response. A call that
// fails mid exchange closes the connection, later calls fail fast.
type Client struct {
	lk     sync.Mutex
	nc     net.Conn
	stream *cborutil.Stream

	// broken is the error that closed the connection
	broken error
}

// Dial connects to addr, retrying failed connection attempts as configured.
func Dial(ctx context.Context, addr string, cfg config.Client) (*Client, error) {
	attempts := cfg.DialAttempts
	if attempts < 1 {
		attempts = 1
	}

	d := net.Dialer{Timeout: time.Duration(cfg.DialTimeout)}
	nc, err := retry.Retry(ctx, attempts, dialBackoff, isDialError, func() (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	})
	if err != nil {
		return nil, xerrors.Errorf("connecting to daemon at %s: %s: %w", addr, err, api.ErrIO)
	}

	log.Debugw("connected", "addr", addr)
	return NewClient(nc), nil
}

func isDialError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// NewClient wraps an established connection.
func NewClient(nc net.Conn) *Client {
	return &Client{nc: nc, stream: cborutil.NewStream(nc, 0)}
}

func (c *Client) Close() error {
	c.lk.Lock()
	defer c.lk.Unlock()

	if c.broken != nil {
		return nil
	}
	c.broken = xerrors.New("client closed")
	return c.stream.Close()
}

// Call sends req and returns the response. An error response from the
// daemon is returned as a *api.ErrResponse error.
func (c *Client) Call(ctx context.Context, req api.Request) (api.Response, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	if c.broken != nil {
		return nil, xerrors.Errorf("sending %s on closed connection (%s): %w", req.Kind(), c.broken, api.ErrIO)
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = c.nc.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Now())
	})
	defer func() {
		stop()
		_ = c.nc.SetDeadline(time.Time{})
	}()

	if err := c.stream.Write(&api.RequestEnvelope{Request: req}); err != nil {
		return nil, c.fail(c.callErr(ctx, req, "sending", err))
	}

	var env api.ResponseEnvelope
	if err := c.stream.Read(&env); err != nil {
		return nil, c.fail(c.callErr(ctx, req, "reading response to", err))
	}

	if e, ok := env.Response.(*api.ErrResponse); ok {
		return nil, e
	}
	return env.Response, nil
}

// fail closes the connection after a broken exchange: a response may still
// be in flight and would be paired with the next request.
func (c *Client) fail(err error) error {
	c.broken = err
	if cerr := c.stream.Close(); cerr != nil {
		log.Debugw("closing connection after failed call", "error", cerr)
	}
	return err
}

func (c *Client) callErr(ctx context.Context, req api.Request, what string, err error) error {
	if ctx.Err() != nil {
		return xerrors.Errorf("%s %s: %w", what, req.Kind(), ctx.Err())
	}
	if errors.Is(err, api.ErrFraming) {
		return xerrors.Errorf("%s %s: %w", what, req.Kind(), err)
	}
	return xerrors.Errorf("%s %s: %s: %w", what, req.Kind(), err, api.ErrIO)
}

func do[R api.Response](ctx context.Context, c *Client, req api.Request) (R, error) {
	var zero R
	resp, err := c.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	out, ok := resp.(R)
	if !ok {
		return zero, xerrors.Errorf("unexpected %s response to %s request", resp.Kind(), req.Kind())
	}
	return out, nil
}
