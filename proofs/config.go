package proofs

import (
	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

var supportedPartitions = map[uint8]struct{}{
	1: {},
	2: {},
}

// ValidateSectorSize accepts powers of two no smaller than MinSectorSize.
func ValidateSectorSize(ss abi.SectorSize) error {
	if ss < MinSectorSize {
		return xerrors.Errorf("sector size %d is below the minimum of %d: %w", ss, MinSectorSize, api.ErrInvalidArgument)
	}
	if err := abi.PaddedPieceSize(ss).Validate(); err != nil {
		return xerrors.Errorf("sector size %d: %s: %w", ss, err, api.ErrInvalidArgument)
	}
	return nil
}

func NewPoRepConfig(ss abi.SectorSize, partitions uint8) (PoRepConfig, error) {
	if err := ValidateSectorSize(ss); err != nil {
		return PoRepConfig{}, err
	}
	if _, ok := supportedPartitions[partitions]; !ok {
		return PoRepConfig{}, xerrors.Errorf("unsupported porep partition count %d for sector size %d: %w", partitions, ss, api.ErrInvalidArgument)
	}
	return PoRepConfig{SectorSize: ss, Partitions: partitions}, nil
}

func NewPoStConfig(ss abi.SectorSize, partitions uint8) (PoStConfig, error) {
	if err := ValidateSectorSize(ss); err != nil {
		return PoStConfig{}, err
	}
	if _, ok := supportedPartitions[partitions]; !ok {
		return PoStConfig{}, xerrors.Errorf("unsupported post partition count %d for sector size %d: %w", partitions, ss, api.ErrInvalidArgument)
	}
	return PoStConfig{SectorSize: ss, Partitions: partitions}, nil
}

// PartitionsForProofLen infers how many partitions a seal proof of proofLen
// bytes was generated with. The single partition length does not depend on
// the sector size today; ss is taken so that it can.
func PartitionsForProofLen(ss abi.SectorSize, proofLen int) (uint8, error) {
	if proofLen <= 0 || proofLen%SinglePartitionProofLen != 0 {
		return 0, xerrors.Errorf("no partition mapping for proof length %d (sector size %d): %w", proofLen, ss, api.ErrInvalidArgument)
	}
	n := proofLen / SinglePartitionProofLen
	if n > 0xff {
		return 0, xerrors.Errorf("no partition mapping for proof length %d (sector size %d): %w", proofLen, ss, api.ErrInvalidArgument)
	}
	return uint8(n), nil
}

// UserBytes is the usable, unpadded capacity of a sector of size ss.
func UserBytes(ss abi.SectorSize) uint64 {
	return uint64(abi.PaddedPieceSize(ss).Unpadded())
}
