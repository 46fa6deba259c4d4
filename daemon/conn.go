package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"go.uber.org/zap"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/lib/cborutil"
	"github.com/filecoin-project/filbase/metrics"
)

type conn struct {
	srv    *Server
	nc     net.Conn
	stream *cborutil.Stream
	log    *zap.SugaredLogger
}

func newConn(s *Server, nc net.Conn) *conn {
	return &conn{
		srv:    s,
		nc:     nc,
		stream: cborutil.NewStream(nc, s.maxMsgSize),
		log:    log.With("conn", uuid.New().String(), "remote", nc.RemoteAddr().String()),
	}
}

// interrupt unblocks a pending read so the connection loop notices shutdown.
func (c *conn) interrupt() {
	_ = c.nc.SetReadDeadline(time.Now())
}

func (c *conn) serve(ctx context.Context) {
	stats.Record(ctx, metrics.ConnectionsOpened.M(1))
	c.log.Debug("connection opened")

	defer func() {
		if err := c.stream.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.Debugw("closing connection", "error", err)
		}
		stats.Record(ctx, metrics.ConnectionsClosed.M(1))
		c.log.Debug("connection closed")
		c.srv.untrack(c)
	}()

	for {
		var env api.RequestEnvelope
		if err := c.stream.Read(&env); err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, api.ErrFraming):
				stats.Record(ctx, metrics.FramingErrors.M(1))
				c.log.Warnw("dropping connection on bad frame", "error", err)
			case c.srv.isClosing():
			default:
				c.log.Warnw("reading request", "error", err)
			}
			return
		}

		resp := c.dispatch(ctx, env.Request)

		if err := c.stream.Write(&api.ResponseEnvelope{Response: resp}); err != nil {
			c.log.Warnw("writing response", "command", env.Request.Kind(), "error", err)
			return
		}
	}
}

func (c *conn) dispatch(ctx context.Context, req api.Request) (resp api.Response) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Command, req.Kind().String()))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("panic handling request", "command", req.Kind(), "panic", r, "stack", string(debug.Stack()))
			resp = &api.ErrResponse{Message: fmt.Sprintf("internal error handling %s", req.Kind())}
		}

		result := "ok"
		if _, failed := resp.(*api.ErrResponse); failed {
			result = "error"
		}
		rctx, _ := tag.New(ctx, tag.Upsert(metrics.Result, result))
		stats.Record(rctx, metrics.RequestDuration.M(metrics.SinceInMilliseconds(start)))
	}()

	out, err := c.srv.handler.Dispatch(ctx, req)
	if err != nil {
		c.log.Warnw("request failed", "command", req.Kind(), "error", err)
		return &api.ErrResponse{Message: err.Error()}
	}
	if out == nil {
		return &api.ErrResponse{Message: fmt.Sprintf("no response for %s", req.Kind())}
	}
	c.log.Debugw("request handled", "command", req.Kind(), "took", time.Since(start))
	return out
}
