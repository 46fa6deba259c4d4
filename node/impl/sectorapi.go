package impl

import (
	"context"
	"os"

	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/proofs"
)

var log = logging.Logger("impl")

// SectorState is the shared sector registry. Implementations serialize
// every call.
type SectorState interface {
	AddPiece(ctx context.Context, key string, amount uint64, path string) (abi.SectorNumber, error)
	ReadPiece(ctx context.Context, key string) ([]byte, error)
	SealAllStaged(ctx context.Context) error
	SealStatus(ctx context.Context, id abi.SectorNumber) (api.SealStatus, error)
	StagedSectors(ctx context.Context) ([]api.StagedSectorMetadata, error)
	SealedSectors(ctx context.Context) ([]api.SealedSectorMetadata, error)
	GeneratePoSt(ctx context.Context, commRs []api.Commitment, seed api.ChallengeSeed) ([][]byte, []uint64, error)
}

// SizeResolver reports the size of the file a piece is read from.
type SizeResolver interface {
	ResolveSize(path string) (uint64, error)
}

// FileSizeResolver stats the local filesystem.
type FileSizeResolver struct{}

func (FileSizeResolver) ResolveSize(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, xerrors.Errorf("resolving piece size: %s: %w", err, api.ErrIO)
	}
	if !st.Mode().IsRegular() {
		return 0, xerrors.Errorf("%s is not a regular file: %w", path, api.ErrInvalidArgument)
	}
	return uint64(st.Size()), nil
}

// SectorAPI implements every command against the shared sector state and
// the proof verifier.
type SectorAPI struct {
	State    SectorState
	Verifier proofs.Verifier
	Sizes    SizeResolver
}

func NewSectorAPI(state SectorState, verifier proofs.Verifier, sizes SizeResolver) *SectorAPI {
	if sizes == nil {
		sizes = FileSizeResolver{}
	}
	return &SectorAPI{State: state, Verifier: verifier, Sizes: sizes}
}

func (sa *SectorAPI) PostGenerate(ctx context.Context, req *api.PostGenerateRequest) (*api.PostGenerateResponse, error) {
	out, faults, err := sa.State.GeneratePoSt(ctx, req.CommRs, req.ChallengeSeed)
	if err != nil {
		return nil, err
	}
	return &api.PostGenerateResponse{Proofs: out, Faults: faults}, nil
}

func (sa *SectorAPI) PostVerify(ctx context.Context, req *api.PostVerifyRequest) (*api.PostVerifyResponse, error) {
	cfg, err := proofs.NewPoStConfig(abi.SectorSize(req.SectorSize), req.ProofPartitions)
	if err != nil {
		return nil, err
	}

	ok, err := sa.Verifier.VerifyPoSt(ctx, proofs.PoStVerifyInfo{
		Config:        cfg,
		CommRs:        req.CommRs,
		ChallengeSeed: req.ChallengeSeed,
		Proofs:        req.Proofs,
		Faults:        req.Faults,
	})
	if err != nil {
		return nil, proofs.WrapErr("verifying post", err)
	}
	return &api.PostVerifyResponse{Valid: ok}, nil
}

func (sa *SectorAPI) SealVerify(ctx context.Context, req *api.SealVerifyRequest) (*api.SealVerifyResponse, error) {
	ss := abi.SectorSize(req.SectorSize)

	partitions, err := proofs.PartitionsForProofLen(ss, len(req.Proof))
	if err != nil {
		return nil, err
	}
	cfg, err := proofs.NewPoRepConfig(ss, partitions)
	if err != nil {
		return nil, err
	}

	ok, err := sa.Verifier.VerifySeal(ctx, proofs.SealVerifyInfo{
		Config:    cfg,
		CommR:     req.CommR,
		CommD:     req.CommD,
		CommRStar: req.CommRStar,
		ProverID:  req.ProverID,
		SectorID:  req.SectorID,
		Proof:     req.Proof,
	})
	if err != nil {
		return nil, proofs.WrapErr("verifying seal", err)
	}
	return &api.SealVerifyResponse{Valid: ok}, nil
}

func (sa *SectorAPI) SealAllStaged(ctx context.Context, _ *api.SealAllStagedRequest) (*api.SealAllStagedResponse, error) {
	if err := sa.State.SealAllStaged(ctx); err != nil {
		return nil, err
	}
	return &api.SealAllStagedResponse{}, nil
}

func (sa *SectorAPI) SealStatus(ctx context.Context, req *api.SealStatusRequest) (*api.SealStatusResponse, error) {
	st, err := sa.State.SealStatus(ctx, abi.SectorNumber(req.SectorID))
	if err != nil {
		return nil, err
	}
	return &api.SealStatusResponse{Status: st}, nil
}

// SectorSize is the usable capacity of a sector of the requested raw size.
func (sa *SectorAPI) SectorSize(_ context.Context, req *api.SectorSizeRequest) (*api.SectorSizeResponse, error) {
	return &api.SectorSizeResponse{Size: proofs.UserBytes(abi.SectorSize(req.SectorSize))}, nil
}

func (sa *SectorAPI) SectorListSealed(ctx context.Context, _ *api.SectorListSealedRequest) (*api.SectorListSealedResponse, error) {
	sectors, err := sa.State.SealedSectors(ctx)
	if err != nil {
		return nil, err
	}
	return &api.SectorListSealedResponse{Sectors: sectors}, nil
}

func (sa *SectorAPI) SectorListStaged(ctx context.Context, _ *api.SectorListStagedRequest) (*api.SectorListStagedResponse, error) {
	sectors, err := sa.State.StagedSectors(ctx)
	if err != nil {
		return nil, err
	}
	return &api.SectorListStagedResponse{Sectors: sectors}, nil
}

func (sa *SectorAPI) PieceAdd(ctx context.Context, req *api.PieceAddRequest) (*api.PieceAddResponse, error) {
	var amount uint64
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		size, err := sa.Sizes.ResolveSize(req.Path)
		if err != nil {
			return nil, err
		}
		amount = size
		log.Debugw("resolved piece size", "key", req.Key, "path", req.Path, "size", size)
	}

	sid, err := sa.State.AddPiece(ctx, req.Key, amount, req.Path)
	if err != nil {
		return nil, err
	}
	return &api.PieceAddResponse{SectorID: uint64(sid)}, nil
}

func (sa *SectorAPI) PieceRead(ctx context.Context, req *api.PieceReadRequest) (*api.PieceReadResponse, error) {
	data, err := sa.State.ReadPiece(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	return &api.PieceReadResponse{Data: data}, nil
}
