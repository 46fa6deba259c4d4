package proofs

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/filbase/api"
)

// SinglePartitionProofLen is the size in bytes of one PoRep partition
// proof. A proof of n partitions is n times as long.
const SinglePartitionProofLen = 192

// MinSectorSize is the smallest sector size any configuration supports.
const MinSectorSize = abi.SectorSize(1024)

// PoRepConfig selects the circuit a replica is sealed and verified with.
type PoRepConfig struct {
	SectorSize abi.SectorSize
	Partitions uint8
}

// PoStConfig selects the circuit a proof-of-spacetime is generated and
// verified with.
type PoStConfig struct {
	SectorSize abi.SectorSize
	Partitions uint8
}

// ProofLen is the expected length of a seal proof under c.
func (c PoRepConfig) ProofLen() int {
	return int(c.Partitions) * SinglePartitionProofLen
}

type SealInput struct {
	Config   PoRepConfig
	ProverID api.ProverID
	SectorID abi.SectorNumber

	// Data is the unsealed sector, exactly the usable capacity of Config.SectorSize.
	Data []byte
}

type SealOutput struct {
	CommR     api.Commitment
	CommD     api.Commitment
	CommRStar api.Commitment
	Proof     []byte

	Replica []byte
}

type UnsealInput struct {
	Config   PoRepConfig
	ProverID api.ProverID
	SectorID abi.SectorNumber
	Replica  []byte
}

type SealVerifyInfo struct {
	Config    PoRepConfig
	CommR     api.Commitment
	CommD     api.Commitment
	CommRStar api.Commitment
	ProverID  api.ProverID
	SectorID  api.SectorIDBytes
	Proof     []byte
}

type PoStInput struct {
	Config        PoStConfig
	CommRs        []api.Commitment
	ChallengeSeed api.ChallengeSeed
	Faults        []uint64
}

type PoStVerifyInfo struct {
	Config        PoStConfig
	CommRs        []api.Commitment
	ChallengeSeed api.ChallengeSeed
	Proofs        [][]byte
	Faults        []uint64
}

// Prover produces replicas and proofs. Calls are synchronous and may take
// a long time for large sectors.
type Prover interface {
	Seal(ctx context.Context, in SealInput) (SealOutput, error)
	Unseal(ctx context.Context, in UnsealInput) ([]byte, error)
	GeneratePoSt(ctx context.Context, in PoStInput) ([][]byte, error)
}

// Verifier checks proofs without access to sector data.
type Verifier interface {
	VerifySeal(ctx context.Context, info SealVerifyInfo) (bool, error)
	VerifyPoSt(ctx context.Context, info PoStVerifyInfo) (bool, error)
}
