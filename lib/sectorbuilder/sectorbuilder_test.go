package sectorbuilder

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/proofs"
)

func writePiece(t *testing.T, dir, name string, size int, seed int64) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, _ = rand.New(rand.NewSource(seed)).Read(data)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

type countingProver struct {
	proofs.MockProver
	seals int64
	fail  bool
}

func (p *countingProver) Seal(ctx context.Context, in proofs.SealInput) (proofs.SealOutput, error) {
	atomic.AddInt64(&p.seals, 1)
	if p.fail {
		return proofs.SealOutput{}, xerrors.New("out of cheese")
	}
	return p.MockProver.Seal(ctx, in)
}

func TestAddPieceAndSeal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sb, err := TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1016), sb.MaxUserBytesPerStagedSector())

	pathA, dataA := writePiece(t, dir, "a", 500, 1)
	pathB, dataB := writePiece(t, dir, "b", 300, 2)
	pathC, dataC := writePiece(t, dir, "c", 100, 3)

	sid, err := sb.AddPiece(ctx, "a", 500, pathA)
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(1), sid)

	sid, err = sb.AddPiece(ctx, "b", 300, pathB)
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(1), sid)

	// sector 1 is full after two 508 byte aligned pieces
	sid, err = sb.AddPiece(ctx, "c", 100, pathC)
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(2), sid)

	staged, err := sb.StagedSectors(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 2)
	require.Equal(t, []api.PieceMetadata{{Key: "a", NumBytes: 500}, {Key: "b", NumBytes: 300}}, staged[0].Pieces)
	require.Equal(t, api.StatusPending, staged[1].Status.Code)

	_, err = sb.ReadPiece(ctx, "a")
	require.ErrorIs(t, err, api.ErrNotFound)

	require.NoError(t, sb.SealAllStaged(ctx))

	staged, err = sb.StagedSectors(ctx)
	require.NoError(t, err)
	require.Empty(t, staged)

	sealed, err := sb.SealedSectors(ctx)
	require.NoError(t, err)
	require.Len(t, sealed, 2)

	status, err := sb.SealStatus(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, api.StatusSealed, status.Code)
	require.Equal(t, sealed[0], *status.Sealed)

	ok, err := proofs.MockVerifier.VerifySeal(ctx, proofs.SealVerifyInfo{
		Config:    proofs.PoRepConfig{SectorSize: 1024, Partitions: 2},
		CommR:     status.Sealed.CommR,
		CommD:     status.Sealed.CommD,
		CommRStar: status.Sealed.CommRStar,
		ProverID:  sb.ProverID(),
		SectorID:  proofs.SectorIDToBytes(1),
		Proof:     status.Sealed.Proof,
	})
	require.NoError(t, err)
	require.True(t, ok)

	for key, expect := range map[string][]byte{"a": dataA, "b": dataB, "c": dataC} {
		got, err := sb.ReadPiece(ctx, key)
		require.NoError(t, err)
		require.True(t, bytes.Equal(expect, got), "piece %s", key)
	}

	_, err = os.Stat(sb.StagedSectorPath(1))
	require.True(t, os.IsNotExist(err))
}

func TestAddPieceErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sb, err := TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)

	full, _ := writePiece(t, dir, "full", 1016, 1)
	big, _ := writePiece(t, dir, "big", 1017, 2)

	_, err = sb.AddPiece(ctx, "big", 1017, big)
	require.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = sb.AddPiece(ctx, "short", 1016, big[:len(big)-1]+"missing")
	require.ErrorIs(t, err, api.ErrIO)

	_, err = sb.AddPiece(ctx, "toomuch", 1000, filepath.Join(dir, "c"))
	require.ErrorIs(t, err, api.ErrIO)

	small, _ := writePiece(t, dir, "small", 10, 3)
	_, err = sb.AddPiece(ctx, "small", 20, small)
	require.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = sb.AddPiece(ctx, "", 10, small)
	require.ErrorIs(t, err, api.ErrInvalidArgument)

	for i := 0; i < 4; i++ {
		sid, err := sb.AddPiece(ctx, string(rune('p'+i)), 1016, full)
		require.NoError(t, err)
		require.Equal(t, abi.SectorNumber(i+1), sid)
	}

	_, err = sb.AddPiece(ctx, "p", 10, small)
	require.ErrorIs(t, err, api.ErrState)
	require.Equal(t, `piece "p" already added to sector 1: sector state error`, err.Error())

	_, err = sb.AddPiece(ctx, "overflow", 10, small)
	require.ErrorIs(t, err, api.ErrState)

	require.NoError(t, sb.SealAllStaged(ctx))

	sid, err := sb.AddPiece(ctx, "overflow", 10, small)
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(5), sid)
}

func TestSealStatusUnknown(t *testing.T) {
	sb, err := TempSectorbuilder(t.TempDir(), 1024, nil)
	require.NoError(t, err)

	_, err = sb.SealStatus(context.Background(), 42)
	require.ErrorIs(t, err, api.ErrNotFound)

	_, err = sb.ReadPiece(context.Background(), "nope")
	require.ErrorIs(t, err, api.ErrNotFound)
}

func TestSealBlocksReaders(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	prover := &countingProver{}
	sb, err := TempSectorbuilder(dir, 1024, prover)
	require.NoError(t, err)

	path, _ := writePiece(t, dir, "a", 200, 1)
	_, err = sb.AddPiece(ctx, "a", 200, path)
	require.NoError(t, err)

	holdCtx, release := AddOpFinish(ctx)

	sealed := make(chan error, 1)
	go func() {
		sealed <- sb.SealAllStaged(holdCtx)
	}()

	// wait for the seal to take the lock and park on the hook
	require.Eventually(t, func() bool {
		if !sb.lk.TryLock() {
			return true
		}
		sb.lk.Unlock()
		return false
	}, time.Second, time.Millisecond)

	statusCh := make(chan api.SealStatus, 1)
	go func() {
		st, err := sb.SealStatus(ctx, 1)
		if err != nil {
			t.Error(err)
		}
		statusCh <- st
	}()

	second := make(chan error, 1)
	go func() {
		second <- sb.SealAllStaged(ctx)
	}()

	select {
	case <-statusCh:
		t.Fatal("status read should wait for the seal in progress")
	case <-second:
		t.Fatal("second seal should wait for the first")
	case <-time.After(time.Second / 2):
	}

	release()

	select {
	case err := <-sealed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("seal should finish after we tell it to")
	}

	select {
	case st := <-statusCh:
		require.Equal(t, api.StatusSealed, st.Code)
		require.NotNil(t, st.Sealed)
	case <-time.After(time.Second):
		t.Fatal("status read did not complete")
	}

	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second seal did not complete")
	}

	require.Equal(t, int64(1), atomic.LoadInt64(&prover.seals))
}

func TestSealFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	prover := &countingProver{fail: true}
	sb, err := TempSectorbuilder(dir, 1024, prover)
	require.NoError(t, err)

	path, _ := writePiece(t, dir, "a", 200, 1)
	_, err = sb.AddPiece(ctx, "a", 200, path)
	require.NoError(t, err)

	err = sb.SealAllStaged(ctx)
	require.ErrorIs(t, err, api.ErrProof)
	require.Contains(t, err.Error(), "out of cheese")

	st, err := sb.SealStatus(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, api.StatusFailed, st.Code)
	require.Contains(t, st.Error, "out of cheese")

	// failed sectors are not retried and take no more pieces
	require.NoError(t, sb.SealAllStaged(ctx))
	require.Equal(t, int64(1), atomic.LoadInt64(&prover.seals))

	sid, err := sb.AddPiece(ctx, "b", 200, path)
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(2), sid)
}

func TestSealCancelled(t *testing.T) {
	dir := t.TempDir()

	sb, err := TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)

	path, _ := writePiece(t, dir, "a", 200, 1)
	_, err = sb.AddPiece(context.Background(), "a", 200, path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sb.SealAllStaged(ctx)
	require.ErrorIs(t, err, context.Canceled)

	st, err := sb.SealStatus(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, api.StatusPending, st.Code)
}

func TestGeneratePoSt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sb, err := TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)

	for i, key := range []string{"a", "b"} {
		path, _ := writePiece(t, dir, key, 1016, int64(i))
		_, err = sb.AddPiece(ctx, key, 1016, path)
		require.NoError(t, err)
	}
	require.NoError(t, sb.SealAllStaged(ctx))

	sealed, err := sb.SealedSectors(ctx)
	require.NoError(t, err)
	commRs := []api.Commitment{sealed[0].CommR, sealed[1].CommR}
	seed := api.ChallengeSeed{1, 2, 3}

	_, _, err = sb.GeneratePoSt(ctx, []api.Commitment{{0xff}}, seed)
	require.ErrorIs(t, err, api.ErrNotFound)

	_, _, err = sb.GeneratePoSt(ctx, nil, seed)
	require.ErrorIs(t, err, api.ErrInvalidArgument)

	postProofs, faults, err := sb.GeneratePoSt(ctx, commRs, seed)
	require.NoError(t, err)
	require.Len(t, postProofs, 1)
	require.Empty(t, faults)

	ok, err := proofs.MockVerifier.VerifyPoSt(ctx, proofs.PoStVerifyInfo{
		Config:        proofs.PoStConfig{SectorSize: 1024, Partitions: 1},
		CommRs:        commRs,
		ChallengeSeed: seed,
		Proofs:        postProofs,
		Faults:        faults,
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, os.Remove(sealed[1].SectorAccess))

	_, faults, err = sb.GeneratePoSt(ctx, commRs, seed)
	require.NoError(t, err)
	require.Equal(t, []uint64{sealed[1].SectorID}, faults)
}

func TestRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	cfg := &Config{
		SectorSize:          1024,
		ProverID:            api.ProverID{7},
		MaxNumStagedSectors: 2,
		PoRepPartitions:     1,
		PoStPartitions:      1,
		SealedDir:           filepath.Join(dir, "sealed"),
		StagedDir:           filepath.Join(dir, "staged"),
	}

	sb, err := New(ctx, cfg, ds, proofs.MockProver{})
	require.NoError(t, err)

	pathA, dataA := writePiece(t, dir, "a", 1016, 1)
	pathB, _ := writePiece(t, dir, "b", 20, 2)

	_, err = sb.AddPiece(ctx, "a", 1016, pathA)
	require.NoError(t, err)
	require.NoError(t, sb.SealAllStaged(ctx))
	_, err = sb.AddPiece(ctx, "b", 20, pathB)
	require.NoError(t, err)

	id, ok, err := StoredProverID(ctx, ds)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cfg.ProverID, id)

	sb, err = New(ctx, cfg, ds, proofs.MockProver{})
	require.NoError(t, err)

	got, err := sb.ReadPiece(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, dataA, got)

	staged, err := sb.StagedSectors(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	require.Equal(t, uint64(2), staged[0].SectorID)

	_, err = sb.AddPiece(ctx, "b", 20, pathB)
	require.ErrorIs(t, err, api.ErrState)

	path, _ := writePiece(t, dir, "c", 1016, 3)
	sid, err := sb.AddPiece(ctx, "c", 1016, path)
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(3), sid)
}

func TestReadPieceCachesUnsealed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sb, err := TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)

	path, data := writePiece(t, dir, "p", 200, 9)
	sid, err := sb.AddPiece(ctx, "p", 200, path)
	require.NoError(t, err)
	require.NoError(t, sb.SealAllStaged(ctx))

	got, err := sb.ReadPiece(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, data, got)

	// mutating the result must not leak into later reads
	got[0] ^= 0xff

	require.NoError(t, os.Remove(sb.SealedSectorPath(sid)))

	again, err := sb.ReadPiece(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestCancelDuringSealFinishesSector(t *testing.T) {
	dir := t.TempDir()

	sb, err := TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)

	path, data := writePiece(t, dir, "a", 200, 1)
	_, err = sb.AddPiece(context.Background(), "a", 200, path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ctx, release := AddOpFinish(ctx)

	done := make(chan error, 1)
	go func() {
		done <- sb.SealAllStaged(ctx)
	}()

	// wait for the seal to hold the lock
	require.Eventually(t, func() bool {
		if sb.lk.TryLock() {
			sb.lk.Unlock()
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	cancel()
	release()
	require.NoError(t, <-done)

	st, err := sb.SealStatus(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, api.StatusSealed, st.Code)

	got, err := sb.ReadPiece(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, data, got)
}
