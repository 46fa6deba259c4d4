package impl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/lib/sectorbuilder"
	"github.com/filecoin-project/filbase/proofs"
)

type recordingState struct {
	SectorState

	addedKey    string
	addedAmount uint64
}

func (s *recordingState) AddPiece(ctx context.Context, key string, amount uint64, path string) (abi.SectorNumber, error) {
	s.addedKey = key
	s.addedAmount = amount
	return 3, nil
}

type countingVerifier struct {
	proofs.Verifier
	sealCalls int
	postCalls int
}

func (v *countingVerifier) VerifySeal(ctx context.Context, info proofs.SealVerifyInfo) (bool, error) {
	v.sealCalls++
	return v.Verifier.VerifySeal(ctx, info)
}

func (v *countingVerifier) VerifyPoSt(ctx context.Context, info proofs.PoStVerifyInfo) (bool, error) {
	v.postCalls++
	return v.Verifier.VerifyPoSt(ctx, info)
}

type fixedSizes uint64

func (f fixedSizes) ResolveSize(string) (uint64, error) { return uint64(f), nil }

func TestSectorSize(t *testing.T) {
	sa := NewSectorAPI(nil, nil, nil)

	resp, err := sa.Dispatch(context.Background(), &api.SectorSizeRequest{SectorSize: 1024})
	require.NoError(t, err)
	require.Equal(t, &api.SectorSizeResponse{Size: 1016}, resp)
}

func TestSealVerifyBadProofLength(t *testing.T) {
	v := &countingVerifier{Verifier: proofs.MockVerifier}
	sa := NewSectorAPI(nil, v, nil)

	for _, l := range []int{0, 1, 191, 193, 500} {
		resp, err := sa.Dispatch(context.Background(), &api.SealVerifyRequest{
			SectorSize: 1024,
			Proof:      make([]byte, l),
		})
		require.ErrorIs(t, err, api.ErrInvalidArgument, "proof length %d", l)
		require.Contains(t, err.Error(), "no partition mapping")
		require.Nil(t, resp)
	}
	require.Zero(t, v.sealCalls)

	// 3 partitions divide evenly but have no circuit
	_, err := sa.Dispatch(context.Background(), &api.SealVerifyRequest{SectorSize: 1024, Proof: make([]byte, 3*proofs.SinglePartitionProofLen)})
	require.ErrorIs(t, err, api.ErrInvalidArgument)
	require.Zero(t, v.sealCalls)

	resp, err := sa.Dispatch(context.Background(), &api.SealVerifyRequest{SectorSize: 1024, Proof: make([]byte, 2*proofs.SinglePartitionProofLen)})
	require.NoError(t, err)
	require.Equal(t, &api.SealVerifyResponse{Valid: false}, resp)
	require.Equal(t, 1, v.sealCalls)
}

func TestPostVerifyPartitions(t *testing.T) {
	v := &countingVerifier{Verifier: proofs.MockVerifier}
	sa := NewSectorAPI(nil, v, nil)

	_, err := sa.Dispatch(context.Background(), &api.PostVerifyRequest{SectorSize: 1024, ProofPartitions: 7})
	require.ErrorIs(t, err, api.ErrInvalidArgument)
	require.Zero(t, v.postCalls)

	_, err = sa.Dispatch(context.Background(), &api.PostVerifyRequest{SectorSize: 1000, ProofPartitions: 1})
	require.ErrorIs(t, err, api.ErrInvalidArgument)
	require.Zero(t, v.postCalls)
}

func TestPieceAddResolvesSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "piece")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 4096), 0644))

	state := &recordingState{}
	sa := NewSectorAPI(state, nil, nil)

	resp, err := sa.Dispatch(context.Background(), &api.PieceAddRequest{Key: "k", Path: path})
	require.NoError(t, err)
	require.Equal(t, &api.PieceAddResponse{SectorID: 3}, resp)
	require.Equal(t, uint64(4096), state.addedAmount)

	amount := uint64(10)
	_, err = sa.Dispatch(context.Background(), &api.PieceAddRequest{Key: "k", Amount: &amount, Path: path})
	require.NoError(t, err)
	require.Equal(t, uint64(10), state.addedAmount)

	_, err = sa.Dispatch(context.Background(), &api.PieceAddRequest{Key: "k", Path: path + ".missing"})
	require.ErrorIs(t, err, api.ErrIO)

	_, err = sa.Dispatch(context.Background(), &api.PieceAddRequest{Key: "k", Path: filepath.Dir(path)})
	require.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestPieceAddInjectedResolver(t *testing.T) {
	state := &recordingState{}
	sa := NewSectorAPI(state, nil, fixedSizes(777))

	_, err := sa.Dispatch(context.Background(), &api.PieceAddRequest{Key: "k", Path: "/does/not/matter"})
	require.NoError(t, err)
	require.Equal(t, uint64(777), state.addedAmount)
}

func TestDispatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sb, err := sectorbuilder.TempSectorbuilder(dir, 1024, nil)
	require.NoError(t, err)
	sa := NewSectorAPI(sb, proofs.MockVerifier, nil)

	path := filepath.Join(dir, "piece")
	data := bytes.Repeat([]byte("filbase"), 100)
	require.NoError(t, os.WriteFile(path, data, 0644))

	resp, err := sa.Dispatch(ctx, &api.PieceAddRequest{Key: "k", Path: path})
	require.NoError(t, err)
	sid := resp.(*api.PieceAddResponse).SectorID

	resp, err = sa.Dispatch(ctx, &api.SectorListStagedRequest{})
	require.NoError(t, err)
	require.Len(t, resp.(*api.SectorListStagedResponse).Sectors, 1)

	_, err = sa.Dispatch(ctx, &api.SealAllStagedRequest{})
	require.NoError(t, err)

	resp, err = sa.Dispatch(ctx, &api.SealStatusRequest{SectorID: sid})
	require.NoError(t, err)
	meta := resp.(*api.SealStatusResponse).Status.Sealed
	require.NotNil(t, meta)

	resp, err = sa.Dispatch(ctx, &api.SealVerifyRequest{
		SectorSize: 1024,
		CommR:      meta.CommR,
		CommD:      meta.CommD,
		CommRStar:  meta.CommRStar,
		ProverID:   sb.ProverID(),
		SectorID:   proofs.SectorIDToBytes(abi.SectorNumber(sid)),
		Proof:      meta.Proof,
	})
	require.NoError(t, err)
	require.Equal(t, &api.SealVerifyResponse{Valid: true}, resp)

	resp, err = sa.Dispatch(ctx, &api.PieceReadRequest{Key: "k"})
	require.NoError(t, err)
	require.Equal(t, data, resp.(*api.PieceReadResponse).Data)

	_, err = sa.Dispatch(ctx, &api.PieceReadRequest{Key: "missing"})
	require.ErrorIs(t, err, api.ErrNotFound)

	seed := api.ChallengeSeed{4}
	resp, err = sa.Dispatch(ctx, &api.PostGenerateRequest{CommRs: []api.Commitment{meta.CommR}, ChallengeSeed: seed})
	require.NoError(t, err)
	post := resp.(*api.PostGenerateResponse)

	resp, err = sa.Dispatch(ctx, &api.PostVerifyRequest{
		SectorSize:      1024,
		ProofPartitions: uint8(len(post.Proofs)),
		CommRs:          []api.Commitment{meta.CommR},
		ChallengeSeed:   seed,
		Proofs:          post.Proofs,
		Faults:          post.Faults,
	})
	require.NoError(t, err)
	require.Equal(t, &api.PostVerifyResponse{Valid: true}, resp)

	resp, err = sa.Dispatch(ctx, &api.SectorListSealedRequest{})
	require.NoError(t, err)
	require.Len(t, resp.(*api.SectorListSealedResponse).Sectors, 1)
}
