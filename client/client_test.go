package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/daemon"
	"github.com/filecoin-project/filbase/lib/sectorbuilder"
	"github.com/filecoin-project/filbase/node/config"
	"github.com/filecoin-project/filbase/node/impl"
	"github.com/filecoin-project/filbase/proofs"
)

func startDaemon(t *testing.T) string {
	t.Helper()

	sb, err := sectorbuilder.TempSectorbuilder(t.TempDir(), 1024, nil)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := daemon.NewServer(impl.NewSectorAPI(sb, proofs.MockVerifier, nil))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background(), l) }()

	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown(context.Background()))
		require.NoError(t, <-errCh)
	})
	return l.Addr().String()
}

func testConfig() config.Client {
	return config.Client{DialTimeout: config.Duration(time.Second), DialAttempts: 2}
}

func TestPieceLifecycle(t *testing.T) {
	ctx := context.Background()
	addr := startDaemon(t)

	c, err := Dial(ctx, addr, testConfig())
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	size, err := c.SectorSize(ctx, 1024)
	require.NoError(t, err)
	require.EqualValues(t, 1016, size)

	data := bytes.Repeat([]byte("filbase!"), 50)
	path := filepath.Join(t.TempDir(), "piece")
	require.NoError(t, os.WriteFile(path, data, 0644))

	sid, err := c.PieceAdd(ctx, "hello", nil, path)
	require.NoError(t, err)

	staged, err := c.StagedSectors(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	require.Equal(t, sid, staged[0].SectorID)

	_, err = c.PieceRead(ctx, "hello")
	var errResp *api.ErrResponse
	require.ErrorAs(t, err, &errResp)
	require.Contains(t, errResp.Message, "not found")

	require.NoError(t, c.SealAllStaged(ctx))

	status, err := c.WaitSealed(ctx, sid, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, api.StatusSealed, status.Code)
	require.NotNil(t, status.Sealed)

	got, err := c.PieceRead(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, data, got)

	sealed, err := c.SealedSectors(ctx)
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	meta := sealed[0]

	ok, err := c.SealVerify(ctx, &api.SealVerifyRequest{
		SectorSize: 1024,
		CommR:      meta.CommR,
		CommD:      meta.CommD,
		CommRStar:  meta.CommRStar,
		ProverID:   api.ProverID{0x0f, 0x1b},
		SectorID:   proofs.SectorIDToBytes(abi.SectorNumber(meta.SectorID)),
		Proof:      meta.Proof,
	})
	require.NoError(t, err)
	require.True(t, ok)

	var seed api.ChallengeSeed
	seed[0] = 7
	post, err := c.PostGenerate(ctx, []api.Commitment{meta.CommR}, seed)
	require.NoError(t, err)
	require.Empty(t, post.Faults)

	ok, err = c.PostVerify(ctx, &api.PostVerifyRequest{
		SectorSize:      1024,
		ProofPartitions: uint8(len(post.Proofs)),
		CommRs:          []api.Commitment{meta.CommR},
		ChallengeSeed:   seed,
		Proofs:          post.Proofs,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSealStatusUnknownSector(t *testing.T) {
	ctx := context.Background()
	c, err := Dial(ctx, startDaemon(t), testConfig())
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	_, err = c.SealStatus(ctx, 42)
	var errResp *api.ErrResponse
	require.ErrorAs(t, err, &errResp)

	// the connection survives an error response
	_, err = c.SectorSize(ctx, 2048)
	require.NoError(t, err)
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = Dial(context.Background(), addr, testConfig())
	require.ErrorIs(t, err, api.ErrIO)
}

func TestCallCancelled(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close() //nolint:errcheck

	c := NewClient(conn)
	defer c.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// drain the request and never answer
		buf := make([]byte, 1)
		_, _ = server.Read(buf)
		cancel()
		_, _ = io.Copy(io.Discard, server)
	}()

	_, err := c.SectorSize(ctx, 1024)
	require.ErrorIs(t, err, context.Canceled)
}

type slowSealHandler struct {
	release chan struct{}
}

func (h *slowSealHandler) Dispatch(ctx context.Context, req api.Request) (api.Response, error) {
	switch r := req.(type) {
	case *api.SealAllStagedRequest:
		<-h.release
		return &api.SealAllStagedResponse{}, nil
	case *api.SectorSizeRequest:
		return &api.SectorSizeResponse{Size: r.SectorSize / 128 * 127}, nil
	default:
		return nil, xerrors.Errorf("unexpected %s", req.Kind())
	}
}

func TestTimedOutCallClosesConnection(t *testing.T) {
	h := &slowSealHandler{release: make(chan struct{})}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := daemon.NewServer(h)
	go func() { _ = srv.Serve(context.Background(), l) }()
	t.Cleanup(func() {
		close(h.release)
		require.NoError(t, srv.Shutdown(context.Background()))
	})

	c, err := Dial(context.Background(), l.Addr().String(), testConfig())
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.SealAllStaged(ctx), context.DeadlineExceeded)

	// the seal response is still pending on the old connection and must
	// never be read as the answer to a later request
	_, err = c.SectorSize(context.Background(), 1024)
	require.ErrorIs(t, err, api.ErrIO)

	c2, err := Dial(context.Background(), l.Addr().String(), testConfig())
	require.NoError(t, err)
	defer c2.Close() //nolint:errcheck

	size, err := c2.SectorSize(context.Background(), 1024)
	require.NoError(t, err)
	require.EqualValues(t, 1016, size)
}
