package proofs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

var log = logging.Logger("proofs")

// MockProver is a deterministic stand-in for the proving library. Replicas
// are the data xored with a keystream derived from the replica id, and
// proofs are hash expansions of their public inputs, so a proof verifies
// exactly when it was produced from the same inputs.
type MockProver struct{}

var MockVerifier = MockProver{}

var _ Prover = MockProver{}
var _ Verifier = MockProver{}

func (MockProver) Seal(ctx context.Context, in SealInput) (SealOutput, error) {
	if _, err := NewPoRepConfig(in.Config.SectorSize, in.Config.Partitions); err != nil {
		return SealOutput{}, err
	}
	if uint64(len(in.Data)) != UserBytes(in.Config.SectorSize) {
		return SealOutput{}, xerrors.Errorf("sector data is %d bytes, expected %d: %w", len(in.Data), UserBytes(in.Config.SectorSize), api.ErrProof)
	}
	if err := ctx.Err(); err != nil {
		return SealOutput{}, err
	}

	sid := SectorIDToBytes(in.SectorID)

	var out SealOutput
	out.Replica = xorKeystream(in.Data, in.ProverID, sid)
	out.CommD = sha256.Sum256(in.Data)
	out.CommR = sha256.Sum256(out.Replica)
	out.CommRStar = digest([]byte("comm_r_star"), out.CommR[:], out.CommD[:], in.ProverID[:], sid[:])
	out.Proof = sealProof(in.Config, out.CommR, out.CommD, out.CommRStar, in.ProverID, sid)

	log.Debugw("sealed sector", "sector", in.SectorID, "commR", out.CommR)
	return out, nil
}

func (MockProver) Unseal(ctx context.Context, in UnsealInput) ([]byte, error) {
	if uint64(len(in.Replica)) != UserBytes(in.Config.SectorSize) {
		return nil, xerrors.Errorf("replica is %d bytes, expected %d: %w", len(in.Replica), UserBytes(in.Config.SectorSize), api.ErrProof)
	}
	return xorKeystream(in.Replica, in.ProverID, SectorIDToBytes(in.SectorID)), nil
}

func (MockProver) GeneratePoSt(ctx context.Context, in PoStInput) ([][]byte, error) {
	if _, err := NewPoStConfig(in.Config.SectorSize, in.Config.Partitions); err != nil {
		return nil, err
	}
	if len(in.CommRs) == 0 {
		return nil, xerrors.Errorf("no sectors to prove: %w", api.ErrProof)
	}

	out := make([][]byte, in.Config.Partitions)
	for i := range out {
		out[i] = postProof(in.Config, i, in.CommRs, in.ChallengeSeed, in.Faults)
	}
	return out, nil
}

func (MockProver) VerifySeal(ctx context.Context, info SealVerifyInfo) (bool, error) {
	if _, err := NewPoRepConfig(info.Config.SectorSize, info.Config.Partitions); err != nil {
		return false, err
	}
	if len(info.Proof) != info.Config.ProofLen() {
		return false, nil
	}

	expect := sealProof(info.Config, info.CommR, info.CommD, info.CommRStar, info.ProverID, info.SectorID)
	return bytes.Equal(expect, info.Proof), nil
}

func (MockProver) VerifyPoSt(ctx context.Context, info PoStVerifyInfo) (bool, error) {
	if _, err := NewPoStConfig(info.Config.SectorSize, info.Config.Partitions); err != nil {
		return false, err
	}
	if len(info.Proofs) != int(info.Config.Partitions) || len(info.CommRs) == 0 {
		return false, nil
	}

	for i, proof := range info.Proofs {
		if !bytes.Equal(proof, postProof(info.Config, i, info.CommRs, info.ChallengeSeed, info.Faults)) {
			return false, nil
		}
	}
	return true, nil
}

func sealProof(cfg PoRepConfig, commR, commD, commRStar api.Commitment, prover api.ProverID, sector api.SectorIDBytes) []byte {
	seed := digest([]byte("porep"), u64(uint64(cfg.SectorSize)), []byte{cfg.Partitions}, commR[:], commD[:], commRStar[:], prover[:], sector[:])
	return expand(seed, cfg.ProofLen())
}

func postProof(cfg PoStConfig, partition int, commRs []api.Commitment, seed api.ChallengeSeed, faults []uint64) []byte {
	h := sha256.New()
	_, _ = h.Write([]byte("post"))
	_, _ = h.Write(u64(uint64(cfg.SectorSize)))
	_, _ = h.Write(u64(uint64(partition)))
	_, _ = h.Write(seed[:])
	for _, c := range commRs {
		_, _ = h.Write(c[:])
	}
	for _, f := range faults {
		_, _ = h.Write(u64(f))
	}

	var d [sha256.Size]byte
	copy(d[:], h.Sum(nil))
	return expand(d, SinglePartitionProofLen)
}

func xorKeystream(data []byte, prover api.ProverID, sector api.SectorIDBytes) []byte {
	seed := digest([]byte("replica"), prover[:], sector[:])
	ks := expand(seed, len(data))
	for i := range ks {
		ks[i] ^= data[i]
	}
	return ks
}

// expand stretches seed to n bytes by hashing it with a block counter.
func expand(seed [sha256.Size]byte, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	for ctr := uint64(0); len(out) < n; ctr++ {
		block := digest(seed[:], u64(ctr))
		out = append(out, block[:]...)
	}
	return out[:n]
}

func digest(parts ...[]byte) [sha256.Size]byte {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

func u64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
